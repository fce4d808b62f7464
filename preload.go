package blockcache

import (
	"context"
	"fmt"
	"maps"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/renderer"
)

// Preload groups blocks by renderer type and runs one bulk fetch per
// preloading type, reading and filling the PreloadedData tier. A failing type
// contributes nothing; other types are unaffected.
func (e *engine) Preload(ctx context.Context, blocks []block.Block) map[int64]any {
	out := make(map[int64]any)
	if len(blocks) == 0 {
		return out
	}

	var order []string
	groups := make(map[string][]block.Block)
	for _, b := range blocks {
		if b == nil {
			continue
		}
		t := b.Type()
		if _, ok := groups[t]; !ok {
			order = append(order, t)
		}
		groups[t] = append(groups[t], b)
	}

	var writes []pending
	for _, t := range order {
		if w, ok := e.preloadType(ctx, t, groups[t], out); ok {
			writes = append(writes, w)
		}
	}
	if _, err := e.commit(ctx, writes); err != nil {
		e.log.Warn("preload write failed", Fields{"types": len(writes), "err": err})
	}
	return out
}

// preloadType merges one type's data into out and returns the write that
// caches a fresh fetch.
func (e *engine) preloadType(ctx context.Context, typeName string, group []block.Block, out map[int64]any) (pending, bool) {
	r, err := e.reg.Resolve(typeName)
	if err != nil {
		// reported once per block by the render step
		return pending{}, false
	}
	desc, _ := e.reg.Descriptor(typeName)
	if !desc.Preloads {
		return pending{}, false
	}
	p := r.(renderer.Preloader) // registry rejects Preloads without Preloader

	ids := make([]int64, len(group))
	for i, b := range group {
		ids[i] = b.ID()
	}

	scopes := e.keys.PreloadGuards(typeName)
	cacheable := e.enabled
	var stamp uint64
	if cacheable {
		ss, err := e.snapshot(ctx, scopes)
		cacheable = err == nil
		if cacheable {
			stamp = ss.stamp(scopes)
			if data, ok := e.readPreload(ctx, typeName, ids, stamp); ok {
				e.stats.preloadHits.Add(1)
				maps.Copy(out, data)
				return pending{}, false
			}
		}
	}
	e.stats.preloadMisses.Add(1)

	data, err := e.fetch(ctx, p, typeName, group)
	if err != nil {
		e.hooks.PreloadFailed(typeName, len(group), err)
		e.log.Error("preload failed", Fields{"type": typeName, "blocks": len(group), "err": err})
		return pending{}, false
	}
	if len(data) == 0 {
		return pending{}, false
	}

	w, shaped, err := e.preloadWrite(typeName, data, scopes, stamp, e.preloadTTL)
	if err != nil {
		// not encodable: use as fetched, skip the cache
		e.log.Warn("preload data not cacheable", Fields{"type": typeName, "err": err})
		maps.Copy(out, data)
		return pending{}, false
	}
	maps.Copy(out, shaped)
	return w, cacheable
}

func (e *engine) fetch(ctx context.Context, p renderer.Preloader, typeName string, group []block.Block) (data map[int64]any, err error) {
	ctx, span := tracer.Start(ctx, "blockcache.Preload", trace.WithAttributes(
		attribute.String("type", typeName),
		attribute.Int("blocks", len(group)),
	))
	defer span.End()

	defer func() {
		if rec := recover(); rec != nil {
			err = renderFailure(fmt.Errorf("preload panicked: %v", rec))
		}
		if err != nil {
			span.RecordError(err)
		}
	}()
	data, err = p.Preload(ctx, group)
	if err != nil {
		return nil, renderFailure(err)
	}
	return data, nil
}
