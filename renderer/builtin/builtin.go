// Package builtin provides the stock renderer types. Output is produced by
// templ components so every interpolated value goes through templ's escaping.
package builtin

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/a-h/templ"

	"github.com/unkn0wn-root/blockcache/renderer"
)

const category = "basic"

// Table returns the stock renderer types. fetch backs the "list" type; when
// nil, "list" is left out.
func Table(fetch ListFetcher) renderer.Table {
	t := renderer.Table{
		"html":    func() (renderer.Renderer, error) { return HTML{}, nil },
		"text":    func() (renderer.Renderer, error) { return Text{}, nil },
		"heading": func() (renderer.Renderer, error) { return Heading{}, nil },
	}
	if fetch != nil {
		t.Register("list", func() (renderer.Renderer, error) { return NewList(fetch), nil })
	}
	return t
}

// HTML emits the block body (or cfg["html"]) verbatim.
type HTML struct{}

func (HTML) Descriptor() renderer.Descriptor {
	return renderer.Descriptor{Name: "html", Title: "Raw HTML", Category: category, Cacheable: true}
}

func (HTML) Render(ctx context.Context, cfg map[string]any, rc renderer.Context) (string, error) {
	return renderString(ctx, templ.Raw(stringOr(cfg, "html", body(rc))))
}

// Text escapes its body into a paragraph wrapper.
type Text struct{}

func (Text) Descriptor() renderer.Descriptor {
	return renderer.Descriptor{
		Name:      "text",
		Title:     "Text",
		Category:  category,
		Defaults:  map[string]any{"class": "block-text"},
		Cacheable: true,
	}
}

func (Text) Render(ctx context.Context, cfg map[string]any, rc renderer.Context) (string, error) {
	text := stringOr(cfg, "text", body(rc))
	class := stringOr(cfg, "class", "block-text")
	return renderString(ctx, templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<div class="%s">%s</div>`, templ.EscapeString(class), templ.EscapeString(text))
		return err
	}))
}

// Heading renders <hN> with N from cfg["level"] (1..6, default 2).
type Heading struct{}

func (Heading) Descriptor() renderer.Descriptor {
	return renderer.Descriptor{
		Name:      "heading",
		Title:     "Heading",
		Category:  category,
		Defaults:  map[string]any{"level": 2},
		Cacheable: true,
	}
}

func (Heading) Render(ctx context.Context, cfg map[string]any, rc renderer.Context) (string, error) {
	text := stringOr(cfg, "text", body(rc))
	if text == "" {
		return "", fmt.Errorf("heading: empty text")
	}
	level := min(max(intOr(cfg, "level", 2), 1), 6)
	return renderString(ctx, templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, "<h%d>%s</h%d>", level, templ.EscapeString(text), level)
		return err
	}))
}

func renderString(ctx context.Context, c templ.Component) (string, error) {
	var sb strings.Builder
	if err := c.Render(ctx, &sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func body(rc renderer.Context) string {
	if rc.Block == nil {
		return ""
	}
	return rc.Block.Content()
}

func stringOr(cfg map[string]any, key, def string) string {
	if s, ok := cfg[key].(string); ok && s != "" {
		return s
	}
	return def
}

// intOr accepts the numeric shapes config takes after JSON or CBOR decoding.
func intOr(cfg map[string]any, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
