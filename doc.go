// Package blockcache renders content-block regions and memoizes the output in
// three provider-backed tiers, tearing down exactly the affected entries when
// content changes.
//
// Components:
//   - Engine: the orchestrator. Renders regions, warms caches, runs
//     invalidation cascades.
//   - Provider: byte store with TTL and prefix delete (memory, Ristretto,
//     BigCache, Redis).
//   - GenStore: generation counters per invalidation scope. Local by default,
//     Redis for multi-replica deployments.
//   - registry.Registry: memoized renderer resolution over a static table.
//
// Tiers and keys:
//
//	blk:<ns>:<type>:<kind>:<id>:<fingerprint>   rendered block      (1h)
//	rgn:<ns>:<region>:<context>:<rolehash>      rendered region     (30m)
//	pre:<ns>:<type>:<idset>                     preloaded type data (10m)
//
// Block keys carry a fingerprint of the block's config, content and
// modification time, so plain edits never hit an old entry. Everything else
// is cleared by cascades: each one bumps the generations of the affected
// scopes and prefix-deletes their keys.
//
// Every entry is stamped with the sum of its guard generations at the time
// its inputs were read. A write is skipped if the stamp moved before it
// landed, and a read whose stamp no longer matches deletes the entry. A render
// racing an invalidation therefore never leaves stale output behind.
//
// Usage:
//
//	eng, err := blockcache.New(blockcache.Options{
//		Namespace: "site",
//		Provider:  memory.New(),
//		Source:    store,
//		Renderers: builtin.Table(nil),
//	})
//	html, err := eng.RenderRegion(ctx, page, "content", viewer.Roles, nil)
//	...
//	_ = eng.InvalidateBlock(ctx, edited)
package blockcache
