package builtin

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/renderer"
)

// ListFetcher loads the item titles for many list blocks at once.
type ListFetcher func(ctx context.Context, blockIDs []int64) (map[int64][]string, error)

// List renders a <ul> of titles loaded through a ListFetcher. It preloads:
// one fetch serves every list block of a render pass.
type List struct {
	fetch ListFetcher
}

var (
	_ renderer.Renderer  = (*List)(nil)
	_ renderer.Preloader = (*List)(nil)
)

func NewList(fetch ListFetcher) *List { return &List{fetch: fetch} }

func (l *List) Descriptor() renderer.Descriptor {
	return renderer.Descriptor{
		Name:      "list",
		Title:     "Item list",
		Category:  "dynamic",
		Defaults:  map[string]any{"empty": "Nothing here yet."},
		Cacheable: true,
		Preloads:  true,
	}
}

func (l *List) Preload(ctx context.Context, blocks []block.Block) (map[int64]any, error) {
	ids := make([]int64, len(blocks))
	for i, b := range blocks {
		ids[i] = b.ID()
	}
	items, err := l.fetch(ctx, ids)
	if err != nil {
		return nil, err
	}
	// every requested block gets an entry; an empty list is data too
	out := make(map[int64]any, len(ids))
	for _, id := range ids {
		titles := items[id]
		if titles == nil {
			titles = []string{}
		}
		out[id] = titles
	}
	return out, nil
}

func (l *List) Render(ctx context.Context, cfg map[string]any, rc renderer.Context) (string, error) {
	titles, ok := toStrings(rc.Preloaded)
	if !ok && rc.Block != nil {
		// not preloaded: fetch for this block alone
		items, err := l.fetch(ctx, []int64{rc.Block.ID()})
		if err != nil {
			return "", err
		}
		titles = items[rc.Block.ID()]
	}
	empty := stringOr(cfg, "empty", "")
	return renderString(ctx, templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if len(titles) == 0 {
			_, err := fmt.Fprintf(w, `<p class="block-list-empty">%s</p>`, templ.EscapeString(empty))
			return err
		}
		if _, err := io.WriteString(w, `<ul class="block-list">`); err != nil {
			return err
		}
		for _, t := range titles {
			if _, err := fmt.Fprintf(w, "<li>%s</li>", templ.EscapeString(t)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</ul>")
		return err
	}))
}

// toStrings accepts []string as returned by Preload and []any as returned
// after a round trip through the preload cache codec.
func toStrings(v any) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []any:
		out := make([]string, 0, len(vv))
		for _, x := range vv {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out, true
	default:
		return nil, false
	}
}
