package blockcache

import "time"

const (
	defaultNamespace    = "blocks"
	defaultBlockTTL     = time.Hour
	defaultRegionTTL    = 30 * time.Minute
	defaultPreloadTTL   = 10 * time.Minute
	defaultSweep        = time.Hour
	defaultGenRetention = 30 * 24 * time.Hour

	debugMessageLimit = 200
)

// coalesce returns def when v is the zero value of T - otherwise v.
func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
