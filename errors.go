package blockcache

import (
	"fmt"

	jerrors "github.com/jmgilman/go/errors"

	"github.com/unkn0wn-root/blockcache/registry"
)

// Error taxonomy. Match with errors.Is or by code (jerrors.GetCode).
// Only ErrInvalidInput and cascade failures ever reach callers of the
// engine; the rest are reported through Logger and Hooks.
var (
	ErrRendererNotFound = registry.ErrNotFound
	ErrInvalidRenderer  = registry.ErrInvalid
	ErrRenderFailure    = jerrors.New(jerrors.CodeExecutionFailed, "render failed")
	ErrStoreUnavailable = jerrors.New(jerrors.CodeUnavailable, "cache store unavailable")
	ErrInvalidInput     = jerrors.New(jerrors.CodeInvalidInput, "invalid input")
)

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

func renderFailure(err error) error {
	return fmt.Errorf("%w: %w", ErrRenderFailure, err)
}

func storeUnavailable(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// InvalidateError reports a cascade scope whose generation bump and key
// deletion both failed. Entries under it may still be served until they
// expire.
type InvalidateError struct {
	Scope   string
	BumpErr error
	DelErr  error
}

func (e *InvalidateError) Error() string {
	switch {
	case e.BumpErr != nil && e.DelErr != nil:
		return fmt.Sprintf("invalidate %q failed: gen bump and delete failed: bump=%v; delete=%v",
			e.Scope, e.BumpErr, e.DelErr)
	case e.BumpErr != nil:
		return fmt.Sprintf("invalidate %q: gen bump failed: %v", e.Scope, e.BumpErr)
	case e.DelErr != nil:
		return fmt.Sprintf("invalidate %q: delete failed: %v", e.Scope, e.DelErr)
	default:
		return fmt.Sprintf("invalidate %q: unknown error", e.Scope)
	}
}

func (e *InvalidateError) Unwrap() []error {
	errs := make([]error, 0, 3)
	errs = append(errs, ErrStoreUnavailable)
	if e.BumpErr != nil {
		errs = append(errs, e.BumpErr)
	}
	if e.DelErr != nil {
		errs = append(errs, e.DelErr)
	}
	return errs
}
