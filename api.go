package blockcache

import (
	"context"
	"time"

	"github.com/unkn0wn-root/blockcache/block"
	c "github.com/unkn0wn-root/blockcache/codec"
	gen "github.com/unkn0wn-root/blockcache/genstore"
	pr "github.com/unkn0wn-root/blockcache/provider"
	"github.com/unkn0wn-root/blockcache/registry"
	"github.com/unkn0wn-root/blockcache/renderer"
)

// SetCostFunc computes the provider cost of one framed entry.
type SetCostFunc func(key string, raw []byte) int64

// Engine renders regions through the cache tiers and runs invalidation
// cascades. Safe for concurrent use.
type Engine interface {
	// RenderRegion returns the HTML of a region for a viewer. page == nil
	// renders the global context. Block, renderer and store failures degrade
	// to partial or empty output; only malformed input returns an error.
	RenderRegion(ctx context.Context, page *block.Page, region string, roles block.Roles, extra map[string]any) (string, error)
	// RenderPage renders every configured active region of a page.
	RenderPage(ctx context.Context, page *block.Page, roles block.Roles, extra map[string]any) (map[string]string, error)
	// WarmRegion renders bypassing the region tier read and populates the caches.
	WarmRegion(ctx context.Context, page *block.Page, region string, roles block.Roles) error

	// Cascades
	// previous lists the block's old placement when an edit moved it.
	InvalidateBlock(ctx context.Context, b block.Block, previous ...block.Block) error
	InvalidatePage(ctx context.Context, page *block.Page) error
	InvalidatePageRegion(ctx context.Context, pageID int64, region string) error
	InvalidateRendererType(ctx context.Context, typeName string) error
	InvalidateAll(ctx context.Context) error

	// Tier access. ttl == 0 uses the tier default.
	GetBlockOutput(ctx context.Context, b block.Block) (string, bool)
	PutBlockOutput(ctx context.Context, b block.Block, html string, ttl time.Duration) error
	GetRegionOutput(ctx context.Context, region string, scope block.Context, roles block.Roles) (string, bool)
	PutRegionOutput(ctx context.Context, region string, scope block.Context, roles block.Roles, html string, ttl time.Duration) error
	GetPreloadedData(ctx context.Context, typeName string, ids []int64) (map[int64]any, bool)
	PutPreloadedData(ctx context.Context, typeName string, data map[int64]any, ttl time.Duration) error

	// Preload runs the bulk fetch for every preloading type among blocks.
	Preload(ctx context.Context, blocks []block.Block) map[int64]any

	Registry() *registry.Registry
	Stats() Stats
	Enabled() bool
	Close(context.Context) error
}

// Options configure the engine.
// Provider and Source are required; others have sensible defaults.
type Options struct {
	// Required
	Provider pr.Provider
	Source   BlockSource

	Namespace string // logical namespace; default "blocks"

	// Legacy is consulted when Source returns no blocks for a region.
	Legacy BlockSource

	// Renderers builds the registry when Registry is nil.
	Renderers renderer.Table
	Registry  *registry.Registry

	// Regions lists the known regions. Unknown or inactive regions render
	// empty. Empty means any region name is accepted.
	Regions []block.Region

	PreloadCodec c.Codec[map[string]any] // nil => JSON
	HTMLCodec    c.Codec[string]         // nil => codec.String

	Logger          Logger        // if nil, NopLogger is used
	Hooks           Hooks         // if nil, NopHooks is used
	BlockTTL        time.Duration // 0 => 1h
	RegionTTL       time.Duration // 0 => 30m
	PreloadTTL      time.Duration // 0 => 10m
	CleanupInterval time.Duration // 0 => 1h
	GenRetention    time.Duration // 0 => 30d
	GenStore        gen.GenStore  // nil => LocalGenStore (in-process)
	ComputeSetCost  SetCostFunc   // default 1

	Disabled        bool // render without touching the tiers
	Debug           bool // failed blocks render as an HTML comment
	CollapseRenders bool // concurrent identical region misses share one render
}

func New(opts Options) (Engine, error) {
	return newEngine(opts)
}
