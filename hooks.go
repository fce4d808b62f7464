package blockcache

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The engine calls them on hot paths.
type Hooks interface {
	// A single entry was deleted by the engine on read.
	// reason ∈ {"corrupt", "gen_mismatch", "value_decode"}
	SelfHeal(storageKey, reason string)

	// A provider or generation store call failed and was treated as a miss.
	// op ∈ {"get", "set", "del", "gen_snapshot"}
	StoreError(op, key string, err error)

	// A renderer returned an error or panicked; the block rendered empty.
	RenderFailed(blockID int64, typeName string, err error)

	// A bulk preload failed; blocks of that type fetch for themselves.
	PreloadFailed(typeName string, blocks int, err error)

	// A block referenced a renderer type that is missing or invalid.
	RendererUnavailable(typeName string, err error)

	// GenStore bump failed during a cascade.
	GenBumpError(scope string, err error)

	// Both gen bump and delete failed during a cascade (likely backend outage).
	InvalidateOutage(scope string, bumpErr, delErr error)
}

// NopHooks is the default no-op
type NopHooks struct{}

func (NopHooks) SelfHeal(string, string)               {}
func (NopHooks) StoreError(string, string, error)      {}
func (NopHooks) RenderFailed(int64, string, error)     {}
func (NopHooks) PreloadFailed(string, int, error)      {}
func (NopHooks) RendererUnavailable(string, error)     {}
func (NopHooks) GenBumpError(string, error)            {}
func (NopHooks) InvalidateOutage(string, error, error) {}
