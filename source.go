package blockcache

import (
	"context"

	"github.com/unkn0wn-root/blockcache/block"
)

// BlockSource returns the ordered blocks placed in a region of a context,
// already filtered by stored visibility flags. Role filtering is applied by
// the engine.
type BlockSource interface {
	Blocks(ctx context.Context, region string, scope block.Context) ([]block.Block, error)
}

// PageBlockLister is optionally implemented by a BlockSource to list every
// block attached to a page. Page cascades use it to clear block output.
type PageBlockLister interface {
	PageBlocks(ctx context.Context, pageID int64) ([]block.Block, error)
}

// SourceFunc adapts a function to BlockSource.
type SourceFunc func(ctx context.Context, region string, scope block.Context) ([]block.Block, error)

func (f SourceFunc) Blocks(ctx context.Context, region string, scope block.Context) ([]block.Block, error) {
	return f(ctx, region, scope)
}
