package ristretto

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := New(Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })
	return p
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for zero config")
	}
}

func TestDelPrefixUsesIndex(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	for _, k := range []string{"rgn:site:content:global:guest", "rgn:site:content:global:ab12", "blk:site:html:instance:1:ff"} {
		if ok, err := p.Set(ctx, k, []byte("v"), 1, time.Minute); err != nil || !ok {
			t.Fatalf("set %s: ok=%v err=%v", k, ok, err)
		}
	}
	p.c.Wait()

	n, err := p.DelPrefix(ctx, "rgn:site:content:")
	if err != nil || n != 2 {
		t.Fatalf("DelPrefix: n=%d err=%v", n, err)
	}
	p.c.Wait()
	if _, ok, _ := p.Get(ctx, "rgn:site:content:global:guest"); ok {
		t.Fatal("region entry survived prefix delete")
	}
	if _, ok, _ := p.Get(ctx, "blk:site:html:instance:1:ff"); !ok {
		t.Fatal("block entry removed by unrelated prefix")
	}
}

func TestIndexShrinksOnEviction(t *testing.T) {
	ctx := context.Background()
	// room for a handful of entries once ristretto adds its internal cost
	p, err := New(Config{NumCounters: 10000, MaxCost: 512, BufferItems: 64})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(context.Background()) })

	const writes = 500
	for i := range writes {
		if _, err := p.Set(ctx, fmt.Sprintf("blk:site:html:instance:%d:ff", i), []byte("v"), 1, time.Minute); err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
	}
	p.c.Wait()

	if n := p.Len(); n > 32 {
		t.Fatalf("index holds %d keys after %d writes into a tiny cache", n, writes)
	}
	// every indexed key is still served
	p.mu.Lock()
	keys := make([]string, 0, len(p.index))
	for k := range p.index {
		keys = append(keys, k)
	}
	p.mu.Unlock()
	for _, k := range keys {
		if _, ok, _ := p.Get(ctx, k); !ok {
			t.Fatalf("indexed key %s is not in the cache", k)
		}
	}
}

func TestRewriteKeepsKeyIndexed(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	key := "rgn:site:content:global:guest"
	for _, v := range []string{"a", "b", "c"} {
		if _, err := p.Set(ctx, key, []byte(v), 1, time.Minute); err != nil {
			t.Fatal(err)
		}
	}
	p.c.Wait()
	if p.Len() != 1 {
		t.Fatalf("index len=%d want 1", p.Len())
	}
	if n, _ := p.DelPrefix(ctx, "rgn:site:"); n != 1 {
		t.Fatalf("DelPrefix removed %d keys, want 1", n)
	}
	p.c.Wait()
	if _, ok, _ := p.Get(ctx, key); ok {
		t.Fatal("rewritten key survived prefix delete")
	}
}
