package blockcache

import (
	"context"
	"time"

	jerrors "github.com/jmgilman/go/errors"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/singleflight"

	"github.com/unkn0wn-root/blockcache/block"
	c "github.com/unkn0wn-root/blockcache/codec"
	gen "github.com/unkn0wn-root/blockcache/genstore"
	"github.com/unkn0wn-root/blockcache/internal/keys"
	pr "github.com/unkn0wn-root/blockcache/provider"
	"github.com/unkn0wn-root/blockcache/registry"
)

var tracer = otel.Tracer("github.com/unkn0wn-root/blockcache")

type engine struct {
	keys     keys.Deriver
	provider pr.Provider
	gen      gen.GenStore
	source   BlockSource
	legacy   BlockSource
	reg      *registry.Registry
	codec    c.Codec[map[string]any]
	html     c.Codec[string]

	regions     map[string]block.Region
	regionNames []string

	log   Logger
	hooks Hooks

	blockTTL   time.Duration
	regionTTL  time.Duration
	preloadTTL time.Duration
	cost       SetCostFunc

	enabled  bool
	debug    bool
	collapse bool
	flight   singleflight.Group

	stats counters
	now   func() time.Time
}

var _ Engine = (*engine)(nil)

func newEngine(opts Options) (*engine, error) {
	if opts.Provider == nil {
		return nil, jerrors.New(jerrors.CodeInvalidConfig, "blockcache: provider is required")
	}
	if opts.Source == nil {
		return nil, jerrors.New(jerrors.CodeInvalidConfig, "blockcache: block source is required")
	}

	e := &engine{
		keys:     keys.New(coalesce(opts.Namespace, defaultNamespace)),
		provider: opts.Provider,
		source:   opts.Source,
		legacy:   opts.Legacy,
		regions:  make(map[string]block.Region, len(opts.Regions)),
		enabled:  !opts.Disabled,
		debug:    opts.Debug,
		collapse: opts.CollapseRenders,
		now:      time.Now,
	}
	for _, r := range opts.Regions {
		if r.Name == "" {
			return nil, jerrors.New(jerrors.CodeInvalidConfig, "blockcache: region with empty name")
		}
		if _, dup := e.regions[r.Name]; !dup {
			e.regionNames = append(e.regionNames, r.Name)
		}
		e.regions[r.Name] = r
	}

	// defaults
	e.log = coalesce[Logger](opts.Logger, NopLogger{})
	e.hooks = coalesce[Hooks](opts.Hooks, NopHooks{})
	e.codec = coalesce[c.Codec[map[string]any]](opts.PreloadCodec, c.JSON[map[string]any]{})
	e.html = coalesce[c.Codec[string]](opts.HTMLCodec, c.String{})
	e.blockTTL = coalesce(opts.BlockTTL, defaultBlockTTL)
	e.regionTTL = coalesce(opts.RegionTTL, defaultRegionTTL)
	e.preloadTTL = coalesce(opts.PreloadTTL, defaultPreloadTTL)

	if opts.ComputeSetCost != nil {
		e.cost = opts.ComputeSetCost
	} else {
		e.cost = func(string, []byte) int64 { return 1 }
	}

	if opts.Registry != nil {
		e.reg = opts.Registry
	} else {
		e.reg = registry.New(opts.Renderers)
	}

	if opts.GenStore != nil {
		e.gen = opts.GenStore
	} else {
		// default to in-process generations with periodic cleanup
		e.gen = gen.NewLocalGenStore(
			coalesce(opts.CleanupInterval, defaultSweep),
			coalesce(opts.GenRetention, defaultGenRetention),
		)
	}
	return e, nil
}

func (e *engine) Enabled() bool { return e.enabled }

func (e *engine) Registry() *registry.Registry { return e.reg }

func (e *engine) Close(ctx context.Context) error {
	// Close gen store first (best effort)
	if e.gen != nil {
		_ = e.gen.Close(ctx)
	}
	return e.provider.Close(ctx)
}

// region reports the configuration of a renderable region.
func (e *engine) region(name string) (block.Region, bool) {
	if len(e.regions) == 0 {
		return block.Region{Name: name, Active: true}, true
	}
	r, ok := e.regions[name]
	if !ok || !r.Active {
		return r, false
	}
	return r, true
}
