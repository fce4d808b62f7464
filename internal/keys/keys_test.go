package keys

import (
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/blockcache/block"
)

func instance() *block.Instance {
	return &block.Instance{
		BlockID:    7,
		TypeName:   "html",
		RegionName: "content",
		Scope:      block.PageContext(5),
		Settings:   map[string]any{"title": "Hello", "limit": 3},
		Body:       "<p>hi</p>",
		Modified:   time.Unix(1700000000, 0),
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := instance()
	b := instance()
	// same map content, different construction order
	b.Settings = map[string]any{"limit": 3, "title": "Hello"}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("equal blocks must fingerprint equally")
	}
	d := New("site")
	if d.Block(a) != d.Block(b) {
		t.Fatalf("equal blocks must key equally")
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	d := New("site")
	base := instance()
	baseKey := d.Block(base)

	mutations := map[string]func(b *block.Instance){
		"config":   func(b *block.Instance) { b.Settings = map[string]any{"title": "Bye", "limit": 3} },
		"config+":  func(b *block.Instance) { b.Settings["extra"] = true },
		"content":  func(b *block.Instance) { b.Body = "<p>changed</p>" },
		"modified": func(b *block.Instance) { b.Modified = b.Modified.Add(time.Second) },
	}
	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			b := instance()
			mutate(b)
			if got := d.Block(b); got == baseKey {
				t.Fatalf("key did not change after %s mutation: %s", name, got)
			}
			if !strings.HasPrefix(d.Block(b), d.BlockPrefix(base)) {
				t.Fatalf("every version of a block must share its block prefix")
			}
		})
	}
}

func TestFingerprintPageBlock(t *testing.T) {
	a := &block.PageBlock{BlockID: 1, PageID: 2, TypeName: "text", Body: "one"}
	b := &block.PageBlock{BlockID: 1, PageID: 2, TypeName: "text", Body: "two"}
	if Fingerprint(a) == Fingerprint(b) {
		t.Fatalf("content change must change fingerprint")
	}
}

func TestRoleHash(t *testing.T) {
	if got := RoleHash(nil); got != "guest" {
		t.Fatalf("nil roles = %q, want guest", got)
	}
	if got := RoleHash(block.Roles{}); got != "guest" {
		t.Fatalf("empty roles = %q, want guest", got)
	}
	a := RoleHash(block.Roles{"editor", "admin"})
	b := RoleHash(block.Roles{"admin", "editor", "admin"})
	if a != b {
		t.Fatalf("role order and duplicates must not matter: %q vs %q", a, b)
	}
	if a == RoleHash(block.Roles{"editor"}) {
		t.Fatalf("different role sets should hash differently")
	}
	if len(a) != 16 {
		t.Fatalf("role hash length = %d", len(a))
	}
}

func TestRegionKeyLayout(t *testing.T) {
	d := New("site")
	prefix := d.RegionPrefix("content", block.PageContext(5))
	for _, roles := range []block.Roles{nil, {"editor"}, {"admin", "editor"}} {
		k := d.Region("content", block.PageContext(5), roles)
		if !strings.HasPrefix(k, prefix) {
			t.Fatalf("region key %q must start with %q", k, prefix)
		}
	}
	if strings.HasPrefix(d.Region("content", block.PageContext(50), nil), prefix) {
		t.Fatalf("page:50 must not fall under page:5 prefix")
	}
	if !strings.HasPrefix(prefix, d.TierPrefix(TierRegion)) {
		t.Fatalf("region prefix must sit under the tier prefix")
	}
}

func TestSeparatorEscaping(t *testing.T) {
	d := New("site")
	// a region literally named "a:b" must not collide with region "a" in context "b:..."
	k1 := d.RegionPrefix("a:b", block.Global)
	k2 := d.RegionPrefix("a", block.Context("b:global"))
	if k1 == k2 {
		t.Fatalf("escaped segments collided: %q", k1)
	}
}

func TestPreloadKeyIsIdentityOnly(t *testing.T) {
	d := New("site")
	k1 := d.Preload("list", []int64{3, 1, 2})
	k2 := d.Preload("list", []int64{1, 2, 3, 3})
	if k1 != k2 {
		t.Fatalf("equal id sets should share a key: %q vs %q", k1, k2)
	}
	if k1 == d.Preload("list", []int64{1, 2}) {
		t.Fatalf("different id sets should differ")
	}
	if !strings.HasPrefix(k1, d.PreloadTypePrefix("list")) {
		t.Fatalf("preload key must sit under its type prefix")
	}
}

func TestBlockTypePrefixCoversBlock(t *testing.T) {
	d := New("site")
	b := instance()
	if !strings.HasPrefix(d.Block(b), d.BlockTypePrefix("html")) {
		t.Fatalf("block key must sit under its renderer type prefix")
	}
	if strings.HasPrefix(d.Block(b), d.BlockTypePrefix("htm")) {
		t.Fatalf("type prefix must be delimited")
	}
}

func TestGuardsAreScopedPerBlock(t *testing.T) {
	d := New("site")
	a := instance()
	b := instance()
	b.BlockID = 99
	ga, gb := d.BlockGuards(a), d.BlockGuards(b)
	if ga[len(ga)-1] == gb[len(gb)-1] {
		t.Fatalf("distinct blocks must not share a block scope: %q", ga[len(ga)-1])
	}
	if ga[0] != d.GenAll() || gb[0] != d.GenAll() {
		t.Fatalf("every guard set starts with the flush scope")
	}
	rg := d.RegionGuards("content", block.PageContext(5))
	if rg[2] != d.GenContext(block.PageContext(5)) {
		t.Fatalf("region guards must include the page context scope, got %v", rg)
	}
}
