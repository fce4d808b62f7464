package block

import (
	"slices"
	"strings"
)

// GuestRole is the role an anonymous viewer holds.
const GuestRole = "guest"

// Roles is a viewer's role set. A nil and an empty set are equivalent:
// both describe an anonymous viewer and normalise to {"guest"}.
type Roles []string

// Normalize returns the sorted, de-duplicated, trimmed role set.
// Anonymous viewers yield {"guest"}.
func (r Roles) Normalize() Roles {
	out := make(Roles, 0, len(r))
	for _, role := range r {
		role = strings.TrimSpace(role)
		if role != "" {
			out = append(out, role)
		}
	}
	if len(out) == 0 {
		return Roles{GuestRole}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// IsGuest reports whether r describes an anonymous viewer.
func (r Roles) IsGuest() bool {
	n := r.Normalize()
	return len(n) == 1 && n[0] == GuestRole
}

func (r Roles) has(role string) bool {
	return slices.Contains(r, role)
}

// Visibility is a block's role rule. An empty Roles list means visible to
// everyone; otherwise the viewer needs at least one of the listed roles.
type Visibility struct {
	Roles []string
}

// Allows reports whether a viewer holding roles may see the block.
func (v Visibility) Allows(roles Roles) bool {
	if len(v.Roles) == 0 {
		return true
	}
	viewer := roles.Normalize()
	for _, want := range v.Roles {
		if viewer.has(strings.TrimSpace(want)) {
			return true
		}
	}
	return false
}
