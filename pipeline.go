package blockcache

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/internal/wire"
	"github.com/unkn0wn-root/blockcache/renderer"
)

type regionRequest struct {
	page      *block.Page
	region    string
	scope     block.Context
	roles     block.Roles
	extra     map[string]any
	readCache bool
}

func (e *engine) RenderRegion(ctx context.Context, page *block.Page, region string, roles block.Roles, extra map[string]any) (string, error) {
	if region == "" {
		return "", invalidInput("render region: empty region name")
	}
	html, _ := e.renderRegion(ctx, regionRequest{
		page:      page,
		region:    region,
		scope:     page.Context(),
		roles:     roles.Normalize(),
		extra:     extra,
		readCache: true,
	})
	return html, nil
}

func (e *engine) WarmRegion(ctx context.Context, page *block.Page, region string, roles block.Roles) error {
	if region == "" {
		return invalidInput("warm region: empty region name")
	}
	e.renderRegion(ctx, regionRequest{
		page:   page,
		region: region,
		scope:  page.Context(),
		roles:  roles.Normalize(),
	})
	return nil
}

func (e *engine) RenderPage(ctx context.Context, page *block.Page, roles block.Roles, extra map[string]any) (map[string]string, error) {
	if page == nil {
		return nil, invalidInput("render page: nil page")
	}
	out := make(map[string]string, len(e.regionNames))
	for _, name := range e.regionNames {
		if !e.regions[name].Active {
			continue
		}
		html, err := e.RenderRegion(ctx, page, name, roles, extra)
		if err != nil {
			return nil, err
		}
		out[name] = html
	}
	return out, nil
}

// renderRegion runs CheckRegionCache -> (hit | fetch, preload, render blocks,
// assemble, write). It reports whether the region tier served the result.
func (e *engine) renderRegion(ctx context.Context, req regionRequest) (string, bool) {
	ctx, span := tracer.Start(ctx, "blockcache.RenderRegion", trace.WithAttributes(
		attribute.String("region", req.region),
		attribute.String("context", string(req.scope)),
	))
	defer span.End()

	reg, ok := e.region(req.region)
	if !ok {
		e.log.Warn("region not found or inactive", Fields{"region": req.region, "context": string(req.scope)})
		return "", false
	}

	key := e.keys.Region(req.region, req.scope, req.roles)
	scopes := e.keys.RegionGuards(req.region, req.scope)
	w := pending{key: key, kind: wire.KindRegion, scopes: scopes, ttl: e.regionTTL}
	cacheable := e.enabled
	if cacheable {
		ss, err := e.snapshot(ctx, scopes)
		cacheable = err == nil
		if cacheable {
			w.stamp = ss.stamp(scopes)
			if req.readCache {
				if html, ok := e.readHTML(ctx, key, wire.KindRegion, w.stamp); ok {
					e.stats.regionHits.Add(1)
					span.SetAttributes(attribute.Bool("cache.hit", true))
					return html, true
				}
			}
		}
	}
	e.stats.regionMisses.Add(1)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	miss := func() string {
		html, blocks, ok := e.renderMiss(ctx, req, reg)
		span.SetAttributes(attribute.Int("blocks", blocks))
		if cacheable && ok {
			payload, err := e.html.Encode(html)
			if err != nil {
				e.log.Warn("region output not encodable", Fields{"region": req.region, "err": err})
				return html
			}
			w.payload = payload
			if _, err := e.commit(ctx, []pending{w}); err != nil {
				e.log.Warn("region cache write failed", Fields{"region": req.region, "context": string(req.scope), "err": err})
			}
		}
		return html
	}
	if !e.collapse {
		return miss(), false
	}
	v, _, _ := e.flight.Do(key, func() (any, error) { return miss(), nil })
	return v.(string), false
}

// renderMiss fetches and renders the region's blocks. ok is false when the
// result must not be written to the region tier.
func (e *engine) renderMiss(ctx context.Context, req regionRequest, reg block.Region) (html string, blocks int, ok bool) {
	list, err := e.source.Blocks(ctx, req.region, req.scope)
	if err != nil {
		e.log.Error("block source failed", Fields{"region": req.region, "context": string(req.scope), "err": err})
		return "", 0, false
	}
	if len(list) == 0 && e.legacy != nil {
		list, err = e.legacy.Blocks(ctx, req.region, req.scope)
		if err != nil {
			e.log.Error("legacy block source failed", Fields{"region": req.region, "context": string(req.scope), "err": err})
			return "", 0, false
		}
		if len(list) > 0 {
			e.log.Debug("rendering legacy blocks", Fields{"region": req.region, "context": string(req.scope), "blocks": len(list)})
		}
	}

	list = slices.DeleteFunc(slices.Clone(list), func(b block.Block) bool { return b == nil })
	slices.SortStableFunc(list, func(a, b block.Block) int { return cmp.Compare(a.Weight(), b.Weight()) })
	if reg.MaxBlocks > 0 && len(list) > reg.MaxBlocks {
		e.log.Warn("region over capacity, extra blocks dropped", Fields{
			"region": req.region, "context": string(req.scope), "blocks": len(list), "max": reg.MaxBlocks,
		})
		list = list[:reg.MaxBlocks]
	}
	visible := slices.DeleteFunc(list, func(b block.Block) bool { return !b.Visibility().Allows(req.roles) })

	html, ok = e.renderBlocks(ctx, req, visible)
	return html, len(visible), ok
}

// renderBlocks renders each block through the block tier, isolating
// failures. ok is false if any block failed or is not cacheable.
func (e *engine) renderBlocks(ctx context.Context, req regionRequest, blocks []block.Block) (string, bool) {
	if len(blocks) == 0 {
		return "", true
	}
	preloaded := e.Preload(ctx, blocks)

	guards := make([][]string, len(blocks))
	for i, b := range blocks {
		guards[i] = e.keys.BlockGuards(b)
	}
	var ss stampSet
	tiered := e.enabled
	if tiered {
		var err error
		ss, err = e.snapshot(ctx, guards...)
		tiered = err == nil
	}

	var pageID int64
	if req.page != nil {
		pageID = req.page.ID
	}

	ok := true
	parts := make([]string, 0, len(blocks))
	var writes []pending
	for i, b := range blocks {
		r, err := e.reg.Resolve(b.Type())
		if err != nil {
			ok = false
			e.hooks.RendererUnavailable(b.Type(), err)
			e.log.Warn("renderer unavailable, block skipped", Fields{
				"block_id": b.ID(), "type": b.Type(), "region": req.region, "page_id": pageID, "err": err,
			})
			if e.debug {
				parts = append(parts, debugComment(b, err))
			}
			continue
		}
		desc, _ := e.reg.Descriptor(b.Type())
		if !desc.Cacheable {
			ok = false
		}

		cacheBlock := tiered && desc.Cacheable
		key := e.keys.Block(b)
		var stamp uint64
		if cacheBlock {
			stamp = ss.stamp(guards[i])
			if cached, hit := e.readHTML(ctx, key, wire.KindBlock, stamp); hit {
				e.stats.blockHits.Add(1)
				parts = append(parts, cached)
				continue
			}
			e.stats.blockMisses.Add(1)
		}

		html, err := e.renderOne(ctx, r, desc, renderer.Context{
			Block:     b,
			PageID:    pageID,
			Region:    req.region,
			Roles:     req.roles,
			Preloaded: preloaded[b.ID()],
			Extra:     req.extra,
		})
		if err != nil {
			ok = false
			e.stats.renderErrors.Add(1)
			e.hooks.RenderFailed(b.ID(), b.Type(), err)
			e.log.Error("block render failed", Fields{
				"block_id": b.ID(), "type": b.Type(), "region": req.region, "page_id": pageID, "err": err,
			})
			if e.debug {
				parts = append(parts, debugComment(b, err))
			}
			continue
		}
		parts = append(parts, html)
		if !cacheBlock {
			continue
		}
		payload, err := e.html.Encode(html)
		if err != nil {
			e.log.Warn("block output not encodable", Fields{"block_id": b.ID(), "type": b.Type(), "err": err})
			continue
		}
		writes = append(writes, pending{
			key:     key,
			kind:    wire.KindBlock,
			scopes:  guards[i],
			stamp:   stamp,
			payload: payload,
			ttl:     coalesce(desc.CacheLifetime, e.blockTTL),
		})
	}

	// one batch for every fresh block
	if _, err := e.commit(ctx, writes); err != nil {
		e.log.Warn("block cache write failed", Fields{"region": req.region, "blocks": len(writes), "err": err})
	}
	return strings.Join(parts, ""), ok
}

func (e *engine) renderOne(ctx context.Context, r renderer.Renderer, desc renderer.Descriptor, rc renderer.Context) (html string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = renderFailure(fmt.Errorf("renderer panicked: %v", p))
		}
	}()
	html, err = r.Render(ctx, renderer.MergeConfig(desc.Defaults, rc.Block.Config()), rc)
	if err != nil {
		return "", renderFailure(err)
	}
	return html, nil
}

// debugComment renders an inert HTML comment describing a failed block.
func debugComment(b block.Block, err error) string {
	msg := err.Error()
	if len(msg) > debugMessageLimit {
		msg = strings.ToValidUTF8(msg[:debugMessageLimit], "")
	}
	body := fmt.Sprintf("block %d (%s) failed: %s", b.ID(), b.Type(), msg)
	for strings.Contains(body, "--") {
		body = strings.ReplaceAll(body, "--", "- -")
	}
	return "<!-- " + strings.ReplaceAll(body, ">", "&gt;") + " -->"
}
