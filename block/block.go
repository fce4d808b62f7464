// Package block defines the renderable content model consumed by the engine.
//
// A renderable row is one of two variants:
//
//   - Instance: a standalone block placed in a named region of a context
//     (global, or page:<id>), independently configurable.
//   - PageBlock: a block attached to one page's region. It carries only raw
//     content, no configuration.
//
// Both implement Block, the accessor set the engine works with. Code that
// needs the concrete variant switches on Kind (or on the dynamic type).
package block

import (
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the two renderable variants.
type Kind uint8

const (
	KindInstance Kind = iota + 1
	KindPageBlock
)

func (k Kind) String() string {
	switch k {
	case KindInstance:
		return "instance"
	case KindPageBlock:
		return "page"
	default:
		return "unknown"
	}
}

// Block is the capability set shared by both variants.
type Block interface {
	ID() int64
	Kind() Kind
	Type() string
	Region() string
	Context() Context
	Config() map[string]any
	Content() string
	Weight() int
	Visibility() Visibility
	UpdatedAt() time.Time
}

// Instance is a standalone, configurable block.
type Instance struct {
	BlockID    int64
	TypeName   string
	RegionName string
	Scope      Context
	Settings   map[string]any
	Body       string
	Order      int
	Rule       Visibility
	Modified   time.Time
}

var _ Block = (*Instance)(nil)

func (b *Instance) ID() int64              { return b.BlockID }
func (b *Instance) Kind() Kind             { return KindInstance }
func (b *Instance) Type() string           { return b.TypeName }
func (b *Instance) Region() string         { return b.RegionName }
func (b *Instance) Config() map[string]any { return b.Settings }
func (b *Instance) Content() string        { return b.Body }
func (b *Instance) Weight() int            { return b.Order }
func (b *Instance) Visibility() Visibility { return b.Rule }
func (b *Instance) UpdatedAt() time.Time   { return b.Modified }

// Context defaults to Global when unset.
func (b *Instance) Context() Context {
	if b.Scope == "" {
		return Global
	}
	return b.Scope
}

// PageBlock is a block attached directly to a page region.
type PageBlock struct {
	BlockID    int64
	PageID     int64
	TypeName   string
	RegionName string
	Body       string
	Order      int
	Rule       Visibility
	Modified   time.Time
}

var _ Block = (*PageBlock)(nil)

func (b *PageBlock) ID() int64              { return b.BlockID }
func (b *PageBlock) Kind() Kind             { return KindPageBlock }
func (b *PageBlock) Type() string           { return b.TypeName }
func (b *PageBlock) Region() string         { return b.RegionName }
func (b *PageBlock) Context() Context       { return PageContext(b.PageID) }
func (b *PageBlock) Config() map[string]any { return nil }
func (b *PageBlock) Content() string        { return b.Body }
func (b *PageBlock) Weight() int            { return b.Order }
func (b *PageBlock) Visibility() Visibility { return b.Rule }
func (b *PageBlock) UpdatedAt() time.Time   { return b.Modified }

// Context is the scope a block is attached to: "global" or "page:<id>".
type Context string

const Global Context = "global"

const pagePrefix = "page:"

func PageContext(pageID int64) Context {
	return Context(pagePrefix + strconv.FormatInt(pageID, 10))
}

// PageID reports the page a context belongs to; ok is false for global.
func (c Context) PageID() (id int64, ok bool) {
	s := string(c)
	if !strings.HasPrefix(s, pagePrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(s[len(pagePrefix):], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Region is a named placement slot.
type Region struct {
	Name      string
	MaxBlocks int // 0 = unlimited
	Active    bool
}

// Page is the minimal page reference the engine needs.
type Page struct {
	ID        int64
	Slug      string
	UpdatedAt time.Time
}

// Context returns the page's block context; a nil page means global.
func (p *Page) Context() Context {
	if p == nil {
		return Global
	}
	return PageContext(p.ID)
}
