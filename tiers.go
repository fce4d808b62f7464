package blockcache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/internal/wire"
	pr "github.com/unkn0wn-root/blockcache/provider"
)

// stampSet holds generations read in one snapshot.
type stampSet map[string]uint64

// stamp folds the generations of scopes into a guard stamp. Generations only
// grow, so the stamp changes iff one of the scopes was bumped.
func (s stampSet) stamp(scopes []string) uint64 {
	var sum uint64
	for _, sc := range scopes {
		sum += s[sc]
	}
	return sum
}

// snapshot reads every scope of every set in one gen store call.
func (e *engine) snapshot(ctx context.Context, sets ...[]string) (stampSet, error) {
	var all []string
	seen := make(map[string]struct{})
	for _, set := range sets {
		for _, sc := range set {
			if _, ok := seen[sc]; !ok {
				seen[sc] = struct{}{}
				all = append(all, sc)
			}
		}
	}
	if len(all) == 0 {
		return stampSet{}, nil
	}
	gens, err := e.gen.SnapshotMany(ctx, all)
	if err != nil {
		e.storeError("gen_snapshot", all[0], err)
		return nil, err
	}
	return stampSet(gens), nil
}

// pending is a guarded write: it lands only if the scopes still add up to stamp.
type pending struct {
	key     string
	kind    wire.Kind
	scopes  []string
	stamp   uint64
	payload []byte
	ttl     time.Duration
}

// commit re-reads the guards and writes the entries whose stamp held, in one
// batch. It reports how many entries were written.
func (e *engine) commit(ctx context.Context, ws []pending) (int, error) {
	if len(ws) == 0 {
		return 0, nil
	}
	sets := make([][]string, len(ws))
	for i, w := range ws {
		sets[i] = w.scopes
	}
	now, err := e.snapshot(ctx, sets...)
	if err != nil {
		return 0, storeUnavailable(err)
	}

	written := e.now()
	items := make([]pr.Item, 0, len(ws))
	for _, w := range ws {
		if now.stamp(w.scopes) != w.stamp {
			// invalidated while computing; skip stale write
			e.log.Debug("cache write skipped (gen mismatch)", Fields{"key": w.key, "obs": w.stamp})
			continue
		}
		raw := wire.Encode(wire.Entry{Kind: w.kind, Stamp: w.stamp, WrittenAt: written, Payload: w.payload})
		items = append(items, pr.Item{Key: w.key, Value: raw, Cost: e.cost(w.key, raw), TTL: w.ttl})
	}
	if len(items) == 0 {
		return 0, nil
	}
	if err := pr.SetMany(ctx, e.provider, items); err != nil {
		e.storeError("set", items[0].Key, err)
		return 0, storeUnavailable(err)
	}
	return len(items), nil
}

// read returns the payload of a live entry. Corrupt and stale entries are
// deleted. Provider errors read as a miss.
func (e *engine) read(ctx context.Context, key string, kind wire.Kind, stamp uint64) ([]byte, bool) {
	raw, ok, err := e.provider.Get(ctx, key)
	if err != nil {
		e.storeError("get", key, err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	ent, err := wire.Decode(raw, kind)
	if err != nil {
		e.heal(ctx, key, "corrupt")
		return nil, false
	}
	if ent.Stamp != stamp {
		e.heal(ctx, key, "gen_mismatch")
		return nil, false
	}
	return ent.Payload, true
}

// readHTML is read for the rendered-HTML tiers.
func (e *engine) readHTML(ctx context.Context, key string, kind wire.Kind, stamp uint64) (string, bool) {
	payload, ok := e.read(ctx, key, kind, stamp)
	if !ok {
		return "", false
	}
	html, err := e.html.Decode(payload)
	if err != nil {
		e.heal(ctx, key, "value_decode")
		return "", false
	}
	return html, true
}

func (e *engine) heal(ctx context.Context, key, reason string) {
	if err := e.provider.Del(ctx, key); err != nil {
		e.storeError("del", key, err)
	}
	e.hooks.SelfHeal(key, reason)
	e.log.Debug("self-healed cache entry", Fields{"key": key, "reason": reason})
}

func (e *engine) storeError(op, key string, err error) {
	e.stats.storeErrors.Add(1)
	e.hooks.StoreError(op, key, err)
	e.log.Warn("cache store error (treated as miss)", Fields{"op": op, "key": key, "err": err})
}

// BlockOutput

func (e *engine) GetBlockOutput(ctx context.Context, b block.Block) (string, bool) {
	if !e.enabled || b == nil {
		return "", false
	}
	scopes := e.keys.BlockGuards(b)
	ss, err := e.snapshot(ctx, scopes)
	if err != nil {
		return "", false
	}
	return e.readHTML(ctx, e.keys.Block(b), wire.KindBlock, ss.stamp(scopes))
}

func (e *engine) PutBlockOutput(ctx context.Context, b block.Block, html string, ttl time.Duration) error {
	if b == nil {
		return invalidInput("put block output: nil block")
	}
	if !e.enabled {
		return nil
	}
	payload, err := e.html.Encode(html)
	if err != nil {
		return errors.Join(ErrInvalidInput, err)
	}
	scopes := e.keys.BlockGuards(b)
	ss, err := e.snapshot(ctx, scopes)
	if err != nil {
		return storeUnavailable(err)
	}
	_, err = e.commit(ctx, []pending{{
		key:     e.keys.Block(b),
		kind:    wire.KindBlock,
		scopes:  scopes,
		stamp:   ss.stamp(scopes),
		payload: payload,
		ttl:     coalesce(ttl, e.blockTTL),
	}})
	return err
}

// RegionOutput

func (e *engine) GetRegionOutput(ctx context.Context, region string, scope block.Context, roles block.Roles) (string, bool) {
	if !e.enabled || region == "" {
		return "", false
	}
	scopes := e.keys.RegionGuards(region, scope)
	ss, err := e.snapshot(ctx, scopes)
	if err != nil {
		return "", false
	}
	return e.readHTML(ctx, e.keys.Region(region, scope, roles), wire.KindRegion, ss.stamp(scopes))
}

func (e *engine) PutRegionOutput(ctx context.Context, region string, scope block.Context, roles block.Roles, html string, ttl time.Duration) error {
	if region == "" {
		return invalidInput("put region output: empty region name")
	}
	if !e.enabled {
		return nil
	}
	payload, err := e.html.Encode(html)
	if err != nil {
		return errors.Join(ErrInvalidInput, err)
	}
	scopes := e.keys.RegionGuards(region, scope)
	ss, err := e.snapshot(ctx, scopes)
	if err != nil {
		return storeUnavailable(err)
	}
	_, err = e.commit(ctx, []pending{{
		key:     e.keys.Region(region, scope, roles),
		kind:    wire.KindRegion,
		scopes:  scopes,
		stamp:   ss.stamp(scopes),
		payload: payload,
		ttl:     coalesce(ttl, e.regionTTL),
	}})
	return err
}

// PreloadedData

func (e *engine) GetPreloadedData(ctx context.Context, typeName string, ids []int64) (map[int64]any, bool) {
	if !e.enabled || typeName == "" {
		return nil, false
	}
	scopes := e.keys.PreloadGuards(typeName)
	ss, err := e.snapshot(ctx, scopes)
	if err != nil {
		return nil, false
	}
	return e.readPreload(ctx, typeName, ids, ss.stamp(scopes))
}

func (e *engine) readPreload(ctx context.Context, typeName string, ids []int64, stamp uint64) (map[int64]any, bool) {
	key := e.keys.Preload(typeName, ids)
	payload, ok := e.read(ctx, key, wire.KindPreload, stamp)
	if !ok {
		return nil, false
	}
	m, err := e.codec.Decode(payload)
	if err != nil {
		e.heal(ctx, key, "value_decode")
		return nil, false
	}
	out := make(map[int64]any, len(m))
	for k, v := range m {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			e.heal(ctx, key, "value_decode")
			return nil, false
		}
		out[id] = v
	}
	return out, true
}

func (e *engine) PutPreloadedData(ctx context.Context, typeName string, data map[int64]any, ttl time.Duration) error {
	if typeName == "" {
		return invalidInput("put preloaded data: empty renderer type")
	}
	if !e.enabled || len(data) == 0 {
		return nil
	}
	scopes := e.keys.PreloadGuards(typeName)
	ss, err := e.snapshot(ctx, scopes)
	if err != nil {
		return storeUnavailable(err)
	}
	w, _, err := e.preloadWrite(typeName, data, scopes, ss.stamp(scopes), coalesce(ttl, e.preloadTTL))
	if err != nil {
		return err
	}
	_, err = e.commit(ctx, []pending{w})
	return err
}

// preloadWrite encodes data keyed by the ids it holds. It also returns data
// as decoded from the encoding, the shape readers get on a cache hit.
func (e *engine) preloadWrite(typeName string, data map[int64]any, scopes []string, stamp uint64, ttl time.Duration) (pending, map[int64]any, error) {
	m := make(map[string]any, len(data))
	ids := make([]int64, 0, len(data))
	for id, v := range data {
		m[strconv.FormatInt(id, 10)] = v
		ids = append(ids, id)
	}
	payload, err := e.codec.Encode(m)
	if err != nil {
		return pending{}, nil, errors.Join(ErrInvalidInput, err)
	}
	decoded, err := e.codec.Decode(payload)
	if err != nil {
		return pending{}, nil, errors.Join(ErrInvalidInput, err)
	}
	shaped := make(map[int64]any, len(decoded))
	for _, id := range ids {
		shaped[id] = decoded[strconv.FormatInt(id, 10)]
	}
	return pending{
		key:     e.keys.Preload(typeName, ids),
		kind:    wire.KindPreload,
		scopes:  scopes,
		stamp:   stamp,
		payload: payload,
		ttl:     ttl,
	}, shaped, nil
}
