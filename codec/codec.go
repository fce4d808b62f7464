// Package codec serializes tier values to bytes. The PreloadedData tier
// stores map[string]any (block id -> preloaded data) through a Codec; rendered
// HTML tiers use String.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
