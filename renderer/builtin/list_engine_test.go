package builtin

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/unkn0wn-root/blockcache"
	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/provider/memory"
)

func TestListPreloadCoversEmptyLists(t *testing.T) {
	ctx := context.Background()

	var (
		mu    sync.Mutex
		calls int
	)
	fetch := func(_ context.Context, ids []int64) (map[int64][]string, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		out := map[int64][]string{}
		for _, id := range ids {
			if id == 1 {
				out[id] = []string{"only"}
			}
		}
		return out, nil
	}
	fetches := func() int {
		mu.Lock()
		defer mu.Unlock()
		return calls
	}

	var blocks []block.Block
	for id := int64(1); id <= 5; id++ {
		blocks = append(blocks, &block.Instance{BlockID: id, TypeName: "list", RegionName: "content", Order: int(id)})
	}
	eng, err := blockcache.New(blockcache.Options{
		Provider:  memory.New(),
		Source:    blockcache.SourceFunc(func(context.Context, string, block.Context) ([]block.Block, error) { return blocks, nil }),
		Renderers: Table(fetch),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = eng.Close(ctx) })

	html, err := eng.RenderRegion(ctx, nil, "content", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if fetches() != 1 {
		t.Fatalf("one render pass fetched %d times, want 1", fetches())
	}
	if !strings.Contains(html, "<li>only</li>") || strings.Count(html, "block-list-empty") != 4 {
		t.Fatalf("unexpected html %q", html)
	}

	// the write was keyed by the full id set, so the next pass hits it
	data := eng.Preload(ctx, blocks)
	if len(data) != 5 {
		t.Fatalf("want data for 5 blocks, got %v", data)
	}
	if fetches() != 1 {
		t.Fatalf("second pass fetched again, calls=%d", fetches())
	}
	if st := eng.Stats(); st.PreloadHits != 1 || st.PreloadMisses != 1 {
		t.Fatalf("preload hits=%d misses=%d, want 1/1", st.PreloadHits, st.PreloadMisses)
	}
}

func TestListPreloadReturnsEveryRequestedID(t *testing.T) {
	l := NewList(func(context.Context, []int64) (map[int64][]string, error) {
		return map[int64][]string{2: {"x"}}, nil
	})
	data, err := l.Preload(context.Background(), []block.Block{
		&block.Instance{BlockID: 1, TypeName: "list"},
		&block.Instance{BlockID: 2, TypeName: "list"},
	})
	if err != nil {
		t.Fatal(err)
	}
	empty, ok := data[1].([]string)
	if !ok || empty == nil || len(empty) != 0 {
		t.Fatalf("block without items should map to an empty list, got %#v", data[1])
	}
}
