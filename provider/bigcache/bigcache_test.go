package bigcache

import (
	"context"
	"testing"
	"time"
)

func TestDelPrefix(t *testing.T) {
	ctx := context.Background()
	p, err := New(Config{LifeWindow: time.Minute, MaxEntriesInWindow: 64, MaxEntrySize: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.Close(ctx) })

	for _, k := range []string{"rgn:s:content:global:guest", "rgn:s:content:global:abc", "rgn:s:footer:global:guest"} {
		if _, err := p.Set(ctx, k, []byte("v"), 1, 0); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	n, err := p.DelPrefix(ctx, "rgn:s:content:")
	if err != nil || n != 2 {
		t.Fatalf("DelPrefix = (%d, %v), want (2, nil)", n, err)
	}
	if _, ok, _ := p.Get(ctx, "rgn:s:content:global:guest"); ok {
		t.Fatalf("prefixed key should be gone")
	}
	if _, ok, _ := p.Get(ctx, "rgn:s:footer:global:guest"); !ok {
		t.Fatalf("other region should survive")
	}
	if err := p.Del(ctx, "missing"); err != nil {
		t.Fatalf("Del of a missing key should be a no-op, got %v", err)
	}
}
