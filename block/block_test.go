package block

import (
	"reflect"
	"testing"
)

func TestContextPageID(t *testing.T) {
	cases := []struct {
		in     Context
		wantID int64
		wantOK bool
	}{
		{Global, 0, false},
		{PageContext(5), 5, true},
		{Context("page:abc"), 0, false},
		{Context("pages:5"), 0, false},
	}
	for _, tc := range cases {
		id, ok := tc.in.PageID()
		if id != tc.wantID || ok != tc.wantOK {
			t.Fatalf("%q.PageID() = (%d,%v), want (%d,%v)", tc.in, id, ok, tc.wantID, tc.wantOK)
		}
	}
}

func TestVariantsShareAccessors(t *testing.T) {
	var blocks []Block = []Block{
		&Instance{BlockID: 1, TypeName: "html", RegionName: "header", Settings: map[string]any{"a": 1}},
		&PageBlock{BlockID: 2, PageID: 9, TypeName: "text", RegionName: "content", Body: "hi"},
	}
	if blocks[0].Context() != Global {
		t.Fatalf("instance without scope should be global, got %q", blocks[0].Context())
	}
	if blocks[1].Context() != PageContext(9) {
		t.Fatalf("page block context = %q", blocks[1].Context())
	}
	if blocks[1].Config() != nil {
		t.Fatalf("page blocks carry no config")
	}
	if blocks[0].Kind() == blocks[1].Kind() {
		t.Fatalf("variants must be distinguishable")
	}
}

// nil and empty role sets both describe the anonymous viewer.
func TestRolesNormalizeAnonymous(t *testing.T) {
	if got := Roles(nil).Normalize(); !reflect.DeepEqual(got, Roles{GuestRole}) {
		t.Fatalf("nil roles = %v", got)
	}
	if got := (Roles{}).Normalize(); !reflect.DeepEqual(got, Roles{GuestRole}) {
		t.Fatalf("empty roles = %v", got)
	}
	if got := (Roles{" ", ""}).Normalize(); !reflect.DeepEqual(got, Roles{GuestRole}) {
		t.Fatalf("blank roles = %v", got)
	}
	if got := (Roles{"editor", "admin", "editor"}).Normalize(); !reflect.DeepEqual(got, Roles{"admin", "editor"}) {
		t.Fatalf("roles = %v", got)
	}
}

func TestVisibilityAllows(t *testing.T) {
	public := Visibility{}
	editors := Visibility{Roles: []string{"editor"}}
	guestsOnly := Visibility{Roles: []string{GuestRole}}

	if !public.Allows(nil) || !public.Allows(Roles{"editor"}) {
		t.Fatalf("public blocks are visible to everyone")
	}
	if editors.Allows(nil) || editors.Allows(Roles{}) {
		t.Fatalf("anonymous viewers must not see editor blocks")
	}
	if !editors.Allows(Roles{"admin", "editor"}) {
		t.Fatalf("editor should see editor blocks")
	}
	if !guestsOnly.Allows(nil) || !guestsOnly.Allows(Roles{}) {
		t.Fatalf("guest-only blocks should be visible to nil and empty role sets alike")
	}
	if guestsOnly.Allows(Roles{"editor"}) {
		t.Fatalf("guest-only blocks are hidden from signed-in viewers")
	}
}
