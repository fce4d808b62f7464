package blockcache

import (
	"sync/atomic"

	"github.com/unkn0wn-root/blockcache/registry"
)

// Stats is a point-in-time view of engine counters.
type Stats struct {
	Hits   int64 // block + region + preload
	Misses int64
	Errors int64 // render + store

	BlockHits     int64
	BlockMisses   int64
	RegionHits    int64
	RegionMisses  int64
	PreloadHits   int64
	PreloadMisses int64
	RenderErrors  int64
	StoreErrors   int64

	Registry registry.Stats
}

type counters struct {
	blockHits     atomic.Int64
	blockMisses   atomic.Int64
	regionHits    atomic.Int64
	regionMisses  atomic.Int64
	preloadHits   atomic.Int64
	preloadMisses atomic.Int64
	renderErrors  atomic.Int64
	storeErrors   atomic.Int64
}

func (e *engine) Stats() Stats {
	s := Stats{
		BlockHits:     e.stats.blockHits.Load(),
		BlockMisses:   e.stats.blockMisses.Load(),
		RegionHits:    e.stats.regionHits.Load(),
		RegionMisses:  e.stats.regionMisses.Load(),
		PreloadHits:   e.stats.preloadHits.Load(),
		PreloadMisses: e.stats.preloadMisses.Load(),
		RenderErrors:  e.stats.renderErrors.Load(),
		StoreErrors:   e.stats.storeErrors.Load(),
		Registry:      e.reg.Stats(),
	}
	s.Hits = s.BlockHits + s.RegionHits + s.PreloadHits
	s.Misses = s.BlockMisses + s.RegionMisses + s.PreloadMisses
	s.Errors = s.RenderErrors + s.StoreErrors
	return s
}
