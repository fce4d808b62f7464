// Package keys derives cache keys. Every function is pure.
//
// Layout (coarse segments first so prefix deletes can target a scope):
//
//	blk:<ns>:<type>:<kind>:<id>:<fingerprint>   block output
//	rgn:<ns>:<region>:<context>:<rolehash>      region output
//	pre:<ns>:<type>:<idset>                     preloaded data
//	gen:<ns>:<scope...>                         generation counters
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/codec"
)

const (
	TierBlock   = "blk"
	TierRegion  = "rgn"
	TierPreload = "pre"
	tierGen     = "gen"
)

// Tiers lists the provider-backed tier prefixes.
var Tiers = []string{TierBlock, TierRegion, TierPreload}

var segEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// seg escapes the separator so that user-supplied names cannot forge a
// shorter prefix of another scope.
func seg(s string) string { return segEscaper.Replace(s) }

// Deriver builds keys inside one namespace.
type Deriver struct {
	ns string
}

func New(namespace string) Deriver { return Deriver{ns: seg(namespace)} }

func (d Deriver) Namespace() string { return d.ns }

// TierPrefix covers every key of a tier in this namespace.
func (d Deriver) TierPrefix(tier string) string { return tier + ":" + d.ns + ":" }

func (d Deriver) Block(b block.Block) string {
	return d.BlockPrefix(b) + Fingerprint(b)
}

// BlockPrefix covers every fingerprint version of one block.
func (d Deriver) BlockPrefix(b block.Block) string {
	return d.BlockTypePrefix(b.Type()) + b.Kind().String() + ":" + strconv.FormatInt(b.ID(), 10) + ":"
}

func (d Deriver) BlockTypePrefix(typeName string) string {
	return d.TierPrefix(TierBlock) + seg(typeName) + ":"
}

func (d Deriver) Region(region string, scope block.Context, roles block.Roles) string {
	return d.RegionPrefix(region, scope) + RoleHash(roles)
}

// RegionNamePrefix covers a region's output in every context.
func (d Deriver) RegionNamePrefix(region string) string {
	return d.TierPrefix(TierRegion) + seg(region) + ":"
}

// RegionPrefix covers the region output of every viewer role set.
func (d Deriver) RegionPrefix(region string, scope block.Context) string {
	return d.RegionNamePrefix(region) + seg(string(scope)) + ":"
}

// Preload keys on identity only; preload entries are cleared explicitly.
func (d Deriver) Preload(typeName string, ids []int64) string {
	return d.PreloadTypePrefix(typeName) + IDSetHash(ids)
}

func (d Deriver) PreloadTypePrefix(typeName string) string {
	return d.TierPrefix(TierPreload) + seg(typeName) + ":"
}

// Generation scopes.

func (d Deriver) GenAll() string     { return tierGen + ":" + d.ns + ":all" }
func (d Deriver) GenRegions() string { return tierGen + ":" + d.ns + ":regions" }

func (d Deriver) GenRegion(region string, scope block.Context) string {
	return tierGen + ":" + d.ns + ":region:" + seg(region) + ":" + seg(string(scope))
}

func (d Deriver) GenType(typeName string) string {
	return tierGen + ":" + d.ns + ":type:" + seg(typeName)
}

// GenRegionName guards a region in every context.
func (d Deriver) GenRegionName(region string) string {
	return tierGen + ":" + d.ns + ":region-all:" + seg(region)
}

// GenContext guards everything rendered for one context (a page).
func (d Deriver) GenContext(scope block.Context) string {
	return tierGen + ":" + d.ns + ":ctx:" + seg(string(scope))
}

func (d Deriver) GenBlock(b block.Block) string {
	return tierGen + ":" + d.ns + ":block:" + b.Kind().String() + ":" + strconv.FormatInt(b.ID(), 10)
}

// BlockGuards lists the scopes whose bump invalidates b's output.
func (d Deriver) BlockGuards(b block.Block) []string {
	return []string{d.GenAll(), d.GenType(b.Type()), d.GenContext(b.Context()), d.GenBlock(b)}
}

// RegionGuards lists the scopes whose bump invalidates a region's output.
func (d Deriver) RegionGuards(region string, scope block.Context) []string {
	return []string{d.GenAll(), d.GenRegions(), d.GenContext(scope), d.GenRegionName(region), d.GenRegion(region, scope)}
}

// PreloadGuards lists the scopes whose bump invalidates a type's preload data.
func (d Deriver) PreloadGuards(typeName string) []string {
	return []string{d.GenAll(), d.GenType(typeName)}
}

// RoleHash folds a role set into a stable token. Anonymous viewers (nil or
// empty set) share the literal "guest" slot.
func RoleHash(roles block.Roles) string {
	n := roles.Normalize()
	if len(n) == 1 && n[0] == block.GuestRole {
		return block.GuestRole
	}
	return fmt.Sprintf("%016x", xxhash.Sum64String(strings.Join(n, ",")))
}

// IDSetHash hashes the sorted, de-duplicated id set.
func IDSetHash(ids []int64) string {
	s := slices.Clone(ids)
	slices.Sort(s)
	s = slices.Compact(s)
	parts := make([]string, len(s))
	for i, id := range s {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return shortHash([]byte(strings.Join(parts, ",")))
}

var fingerprintCodec = codec.MustCBOR[fingerprintInput](true)

type fingerprintInput struct {
	Config   map[string]any `cbor:"1,keyasint"`
	Content  string         `cbor:"2,keyasint"`
	Modified int64          `cbor:"3,keyasint"`
}

// Fingerprint hashes the render-affecting fields of b together with its
// modification time. Config is encoded with canonical CBOR so map ordering
// never changes the result.
func Fingerprint(b block.Block) string {
	in := fingerprintInput{
		Config:  b.Config(),
		Content: b.Content(),
	}
	if ts := b.UpdatedAt(); !ts.IsZero() {
		in.Modified = ts.UnixNano()
	}
	raw, err := fingerprintCodec.Encode(in)
	if err != nil {
		// unencodable config values; fmt prints maps in key order
		raw = []byte(fmt.Sprintf("%v|%s|%d", in.Config, in.Content, in.Modified))
	}
	return shortHash(raw)
}

func shortHash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
