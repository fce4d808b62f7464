// Package renderer defines the contract every block renderer type implements.
//
// Renderer types are registered by name in a static Table built at process
// start; the registry package memoizes resolution over that table.
package renderer

import (
	"context"
	"maps"
	"time"

	"github.com/unkn0wn-root/blockcache/block"
)

// Descriptor is the metadata a renderer type declares about itself.
type Descriptor struct {
	Name     string
	Title    string
	Category string
	Defaults map[string]any

	// Cacheable renderers get a BlockOutput entry. A region that contains a
	// non-cacheable renderer is never written to RegionOutput either.
	Cacheable bool
	// CacheLifetime overrides the BlockOutput TTL when > 0.
	CacheLifetime time.Duration
	// Preloads reports bulk preloading support. A renderer that sets it
	// must implement Preloader.
	Preloads bool
}

// Context is what a renderer sees besides its configuration.
type Context struct {
	Block  block.Block
	PageID int64 // 0 for global
	Region string
	Roles  block.Roles
	// Preloaded holds this block's share of the type's bulk fetch, nil when
	// the type does not preload or the fetch produced nothing for it.
	Preloaded any
	Extra     map[string]any
}

// Renderer turns a block's configuration into HTML.
// Implementations must be safe for concurrent use; one instance serves
// every block of its type.
type Renderer interface {
	Descriptor() Descriptor
	Render(ctx context.Context, cfg map[string]any, rc Context) (string, error)
}

// Preloader fetches data for many blocks of one type in a single call.
// The result is keyed by block id; ids without data may be omitted.
type Preloader interface {
	Preload(ctx context.Context, blocks []block.Block) (map[int64]any, error)
}

// Factory builds a renderer instance.
type Factory func() (Renderer, error)

// Table maps renderer type names to factories.
type Table map[string]Factory

// Register adds a factory, replacing any previous one under name.
func (t Table) Register(name string, f Factory) { t[name] = f }

// Merge returns a table holding t's entries overlaid with other's.
func (t Table) Merge(other Table) Table {
	out := make(Table, len(t)+len(other))
	maps.Copy(out, t)
	maps.Copy(out, other)
	return out
}

// MergeConfig overlays cfg on the descriptor defaults. Neither input is modified.
func MergeConfig(defaults, cfg map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(cfg))
	maps.Copy(out, defaults)
	maps.Copy(out, cfg)
	return out
}
