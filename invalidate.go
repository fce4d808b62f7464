package blockcache

import (
	"context"
	"errors"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/internal/keys"
)

// cascade is the set of clears triggered by one mutation. Bumping a scope
// makes every entry it guards unreadable, even ones a prefix delete misses;
// the deletes reclaim the space right away.
type cascade struct {
	name     string
	bumps    []string
	prefixes []string
}

// InvalidateBlock clears one block's output and the output of its region in
// its context for every viewer role set. A global block can appear in its
// region on any page, so its region is cleared in every context.
//
// Only b's current placement is known here. When an edit moved the block to
// another region or context, pass the old row as previous so the region it
// left is cleared too.
func (e *engine) InvalidateBlock(ctx context.Context, b block.Block, previous ...block.Block) error {
	if b == nil {
		return invalidInput("invalidate block: nil block")
	}
	c := cascade{
		name:     "block",
		bumps:    []string{e.keys.GenBlock(b)},
		prefixes: []string{e.keys.BlockPrefix(b)},
	}
	e.placement(&c, b)
	for _, old := range previous {
		if old == nil {
			continue
		}
		if old.Type() != b.Type() {
			c.prefixes = append(c.prefixes, e.keys.BlockPrefix(old))
		}
		if old.Region() != b.Region() || old.Context() != b.Context() {
			e.placement(&c, old)
		}
	}
	return e.run(ctx, c,
		attribute.Int64("block_id", b.ID()),
		attribute.String("type", b.Type()),
		attribute.String("region", b.Region()),
		attribute.String("context", string(b.Context())),
	)
}

// placement adds the region clears for b's (region, context).
func (e *engine) placement(c *cascade, b block.Block) {
	region := b.Region()
	if region == "" {
		return
	}
	if scope := b.Context(); scope == block.Global {
		c.bumps = append(c.bumps, e.keys.GenRegionName(region))
		c.prefixes = append(c.prefixes, e.keys.RegionNamePrefix(region))
		return
	}
	c.bumps = append(c.bumps, e.keys.GenRegion(region, b.Context()))
	c.prefixes = append(c.prefixes, e.keys.RegionPrefix(region, b.Context()))
}

// InvalidatePage clears the output of every known region in the page's
// context and of every block attached to the page. Known regions are the
// configured ones plus those the attached blocks sit in; anything else in
// the page context is caught by the context generation bump.
func (e *engine) InvalidatePage(ctx context.Context, page *block.Page) error {
	if page == nil || page.ID <= 0 {
		return invalidInput("invalidate page: missing page reference")
	}
	scope := page.Context()
	c := cascade{name: "page", bumps: []string{e.keys.GenContext(scope)}}

	regions := slices.Clone(e.regionNames)
	for _, b := range e.pageBlocks(ctx, page.ID) {
		c.prefixes = append(c.prefixes, e.keys.BlockPrefix(b))
		if r := b.Region(); r != "" {
			regions = append(regions, r)
		}
	}
	slices.Sort(regions)
	for _, r := range slices.Compact(regions) {
		c.prefixes = append(c.prefixes, e.keys.RegionPrefix(r, scope))
	}
	return e.run(ctx, c, attribute.Int64("page_id", page.ID))
}

// InvalidatePageRegion clears one region of one page for every viewer role set.
func (e *engine) InvalidatePageRegion(ctx context.Context, pageID int64, region string) error {
	if pageID <= 0 || region == "" {
		return invalidInput("invalidate page region: missing page or region")
	}
	scope := block.PageContext(pageID)
	return e.run(ctx, cascade{
		name:     "page_region",
		bumps:    []string{e.keys.GenRegion(region, scope)},
		prefixes: []string{e.keys.RegionPrefix(region, scope)},
	}, attribute.Int64("page_id", pageID), attribute.String("region", region))
}

// InvalidateRendererType clears the registry, the type's block output and
// preloaded data, and all region output: any region may hold the type.
func (e *engine) InvalidateRendererType(ctx context.Context, typeName string) error {
	if typeName == "" {
		return invalidInput("invalidate renderer type: empty type name")
	}
	e.reg.Clear()
	return e.run(ctx, cascade{
		name:  "renderer_type",
		bumps: []string{e.keys.GenType(typeName), e.keys.GenRegions()},
		prefixes: []string{
			e.keys.BlockTypePrefix(typeName),
			e.keys.PreloadTypePrefix(typeName),
			e.keys.TierPrefix(keys.TierRegion),
		},
	}, attribute.String("type", typeName))
}

// InvalidateAll flushes every tier and the registry.
func (e *engine) InvalidateAll(ctx context.Context) error {
	e.reg.Clear()
	c := cascade{name: "all", bumps: []string{e.keys.GenAll()}}
	for _, t := range keys.Tiers {
		c.prefixes = append(c.prefixes, e.keys.TierPrefix(t))
	}
	return e.run(ctx, c)
}

// run bumps every scope, then deletes every prefix. Steps keep going after a
// failure. The cascade fails only when both a bump and a delete failed: a
// successful bump alone already hides stale entries, and a successful
// delete alone clears what existed.
func (e *engine) run(ctx context.Context, c cascade, attrs ...attribute.KeyValue) error {
	if !e.enabled {
		return nil
	}
	ctx, span := tracer.Start(ctx, "blockcache.Invalidate", trace.WithAttributes(
		append(attrs, attribute.String("cascade", c.name))...,
	))
	defer span.End()

	var bumpErrs, delErrs []error
	for _, sc := range c.bumps {
		if _, err := e.gen.Bump(ctx, sc); err != nil {
			e.hooks.GenBumpError(sc, err)
			e.log.Error("gen bump error", Fields{"scope": sc, "cascade": c.name, "err": err})
			bumpErrs = append(bumpErrs, err)
		}
	}
	removed := 0
	for _, p := range c.prefixes {
		n, err := e.provider.DelPrefix(ctx, p)
		if err != nil {
			e.hooks.StoreError("del", p, err)
			e.log.Error("prefix delete error", Fields{"prefix": p, "cascade": c.name, "err": err})
			delErrs = append(delErrs, err)
			continue
		}
		removed += n
	}
	span.SetAttributes(attribute.Int("removed", removed))
	e.log.Debug("invalidated (bumped gens + cleared prefixes)", Fields{
		"cascade": c.name, "scopes": len(c.bumps), "prefixes": len(c.prefixes), "removed": removed,
	})

	if len(bumpErrs) == 0 || len(delErrs) == 0 {
		return nil
	}
	ie := &InvalidateError{Scope: c.name, BumpErr: errors.Join(bumpErrs...), DelErr: errors.Join(delErrs...)}
	e.hooks.InvalidateOutage(c.name, ie.BumpErr, ie.DelErr)
	span.RecordError(ie)
	span.SetStatus(otelcodes.Error, "invalidate outage")
	return ie
}

// pageBlocks lists the blocks attached to a page through every source that
// can enumerate them. Listing failures leave the context bump to do the work.
func (e *engine) pageBlocks(ctx context.Context, pageID int64) []block.Block {
	var out []block.Block
	for _, src := range []BlockSource{e.source, e.legacy} {
		l, ok := src.(PageBlockLister)
		if !ok {
			continue
		}
		bs, err := l.PageBlocks(ctx, pageID)
		if err != nil {
			e.log.Warn("listing page blocks failed", Fields{"page_id": pageID, "err": err})
			continue
		}
		for _, b := range bs {
			if b != nil {
				out = append(out, b)
			}
		}
	}
	return out
}
