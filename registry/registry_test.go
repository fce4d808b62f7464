package registry

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	jerrors "github.com/jmgilman/go/errors"

	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/renderer"
)

type stub struct {
	desc renderer.Descriptor
}

func (s *stub) Descriptor() renderer.Descriptor { return s.desc }
func (s *stub) Render(context.Context, map[string]any, renderer.Context) (string, error) {
	return "x", nil
}

func countingTable(calls *atomic.Int64) renderer.Table {
	return renderer.Table{
		"html": func() (renderer.Renderer, error) {
			calls.Add(1)
			return &stub{desc: renderer.Descriptor{Cacheable: true}}, nil
		},
		"broken": func() (renderer.Renderer, error) {
			calls.Add(1)
			return nil, errors.New("missing template")
		},
		"liar": func() (renderer.Renderer, error) {
			calls.Add(1)
			return &stub{desc: renderer.Descriptor{Preloads: true}}, nil
		},
		"renamed": func() (renderer.Renderer, error) {
			calls.Add(1)
			return &stub{desc: renderer.Descriptor{Name: "other"}}, nil
		},
		"panics": func() (renderer.Renderer, error) {
			calls.Add(1)
			panic("boom")
		},
	}
}

func TestResolveMemoizesInstance(t *testing.T) {
	var calls atomic.Int64
	r := New(countingTable(&calls))

	a, err := r.Resolve("html")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve("html")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("second resolve returned a different instance")
	}
	if calls.Load() != 1 || r.Builds() != 1 {
		t.Fatalf("factory calls=%d builds=%d, want 1/1", calls.Load(), r.Builds())
	}
	d, _ := r.Descriptor("html")
	if d.Name != "html" {
		t.Fatalf("descriptor name not normalised: %q", d.Name)
	}
}

func TestResolveConcurrent(t *testing.T) {
	var calls atomic.Int64
	r := New(countingTable(&calls))

	var wg sync.WaitGroup
	got := make([]renderer.Renderer, 32)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], _ = r.Resolve("html")
		}()
	}
	wg.Wait()
	for i := range got {
		if got[i] != got[0] || got[i] == nil {
			t.Fatalf("instance %d differs", i)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("factory calls=%d want 1", calls.Load())
	}
}

func TestFailuresAreRemembered(t *testing.T) {
	var calls atomic.Int64
	r := New(countingTable(&calls))

	cases := []struct {
		name string
		want error
		code jerrors.ErrorCode
	}{
		{"missing", ErrNotFound, jerrors.CodeNotFound},
		{"broken", ErrInvalid, jerrors.CodeInvalidConfig},
		{"liar", ErrInvalid, jerrors.CodeInvalidConfig},
		{"renamed", ErrInvalid, jerrors.CodeInvalidConfig},
		{"panics", ErrInvalid, jerrors.CodeInvalidConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := r.Builds()
			for range 3 {
				_, err := r.Resolve(tc.name)
				if !errors.Is(err, tc.want) {
					t.Fatalf("err=%v want %v", err, tc.want)
				}
				if jerrors.GetCode(err) != tc.code {
					t.Fatalf("code=%s want %s", jerrors.GetCode(err), tc.code)
				}
			}
			if r.Builds()-before != 1 {
				t.Fatalf("failed type re-validated: builds=%d", r.Builds()-before)
			}
			if !errors.Is(r.ErrorFor(tc.name), tc.want) {
				t.Fatalf("ErrorFor=%v", r.ErrorFor(tc.name))
			}
		})
	}

	s := r.Stats()
	if s.Cached != 5 || s.Valid != 0 || s.Invalid != 4 || s.Errors != 1 {
		t.Fatalf("stats=%+v", s)
	}
}

func TestClearForcesRebuild(t *testing.T) {
	var calls atomic.Int64
	r := New(countingTable(&calls))

	a, _ := r.Resolve("html")
	_, _ = r.Resolve("missing")

	r.ClearType("missing")
	if r.ErrorFor("missing") != nil {
		t.Fatalf("cleared type should have no remembered error")
	}
	if r.Stats().Cached != 1 {
		t.Fatalf("ClearType should drop one entry, stats=%+v", r.Stats())
	}

	r.Clear()
	b, _ := r.Resolve("html")
	if a == b {
		t.Fatalf("Clear should force a fresh instance")
	}
	if calls.Load() != 2 {
		t.Fatalf("factory calls=%d want 2", calls.Load())
	}
}

func TestPreloaderAccepted(t *testing.T) {
	r := New(renderer.Table{"list": func() (renderer.Renderer, error) { return &preloading{}, nil }})
	if _, err := r.Resolve("list"); err != nil {
		t.Fatalf("preloader rejected: %v", err)
	}
	if got := r.Names(); len(got) != 1 || got[0] != "list" {
		t.Fatalf("Names=%v", got)
	}
}

type preloading struct{ stub }

func (p *preloading) Descriptor() renderer.Descriptor {
	return renderer.Descriptor{Preloads: true}
}

func (p *preloading) Preload(context.Context, []block.Block) (map[int64]any, error) {
	return nil, nil
}
