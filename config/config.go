// Package config loads process configuration from BLOCKCACHE_* environment
// variables and turns it into engine options.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/unkn0wn-root/blockcache"
	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/codec"
)

// Provider backends selectable through BLOCKCACHE_PROVIDER.
const (
	ProviderMemory    = "memory"
	ProviderRedis     = "redis"
	ProviderRistretto = "ristretto"
	ProviderBigcache  = "bigcache"
)

// Preload codecs selectable through BLOCKCACHE_PRELOAD_CODEC.
const (
	CodecJSON     = "json"
	CodecMsgpack  = "msgpack"
	CodecCBOR     = "cbor"
	CodecStructPB = "structpb"
)

// Config is the environment-backed process configuration.
type Config struct {
	Namespace string `env:"BLOCKCACHE_NAMESPACE" envDefault:"blocks"`
	Provider  string `env:"BLOCKCACHE_PROVIDER"  envDefault:"memory"`

	RedisAddr     string `env:"BLOCKCACHE_REDIS_ADDR"     envDefault:"localhost:6379"`
	RedisDB       int    `env:"BLOCKCACHE_REDIS_DB"       envDefault:"0"`
	RedisPassword string `env:"BLOCKCACHE_REDIS_PASSWORD"`

	// Ristretto sizing; MaxCost counts bytes when cost is computed per entry.
	RistrettoMaxCost int64 `env:"BLOCKCACHE_RISTRETTO_MAX_COST" envDefault:"268435456"`
	// Bigcache hard limit in MB, 0 = unlimited.
	BigcacheMaxMB int `env:"BLOCKCACHE_BIGCACHE_MAX_MB" envDefault:"256"`

	SQLitePath string `env:"BLOCKCACHE_SQLITE_PATH" envDefault:"blocks.db"`

	BlockTTL   time.Duration `env:"BLOCKCACHE_BLOCK_TTL"   envDefault:"1h"`
	RegionTTL  time.Duration `env:"BLOCKCACHE_REGION_TTL"  envDefault:"30m"`
	PreloadTTL time.Duration `env:"BLOCKCACHE_PRELOAD_TTL" envDefault:"10m"`

	PreloadCodec string `env:"BLOCKCACHE_PRELOAD_CODEC" envDefault:"json"`
	// MaxEntryBytes caps decoded payloads read back from the provider, 0 = no cap.
	MaxEntryBytes int `env:"BLOCKCACHE_MAX_ENTRY_BYTES" envDefault:"0"`

	Debug           bool `env:"BLOCKCACHE_DEBUG"`
	CollapseRenders bool `env:"BLOCKCACHE_COLLAPSE_RENDERS"`
	Disabled        bool `env:"BLOCKCACHE_DISABLED"`

	// Regions entries are name[:max[:inactive]], e.g. "header:1,content,sidebar:4".
	Regions []string `env:"BLOCKCACHE_REGIONS" envSeparator:","`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enumerations and region syntax.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderMemory, ProviderRedis, ProviderRistretto, ProviderBigcache:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	switch c.PreloadCodec {
	case CodecJSON, CodecMsgpack, CodecCBOR, CodecStructPB:
	default:
		return fmt.Errorf("unknown preload codec %q", c.PreloadCodec)
	}
	if c.MaxEntryBytes < 0 {
		return fmt.Errorf("max entry bytes must not be negative")
	}
	if c.BlockTTL < 0 || c.RegionTTL < 0 || c.PreloadTTL < 0 {
		return fmt.Errorf("ttl must not be negative")
	}
	_, err := ParseRegions(c.Regions)
	return err
}

// Options fills the tunables of base from the configuration. Provider,
// Source and the renderer table stay with the caller.
func (c Config) Options(base blockcache.Options) (blockcache.Options, error) {
	regions, err := ParseRegions(c.Regions)
	if err != nil {
		return base, err
	}
	preload, err := c.preloadCodec()
	if err != nil {
		return base, err
	}
	base.PreloadCodec = codec.LimitCodec[map[string]any]{Inner: preload, MaxDecode: c.MaxEntryBytes}
	base.HTMLCodec = codec.LimitCodec[string]{Inner: codec.String{}, MaxDecode: c.MaxEntryBytes}
	base.Namespace = c.Namespace
	base.BlockTTL = c.BlockTTL
	base.RegionTTL = c.RegionTTL
	base.PreloadTTL = c.PreloadTTL
	base.Debug = c.Debug
	base.CollapseRenders = c.CollapseRenders
	base.Disabled = c.Disabled
	if len(regions) > 0 {
		base.Regions = regions
	}
	return base, nil
}

func (c Config) preloadCodec() (codec.Codec[map[string]any], error) {
	switch c.PreloadCodec {
	case CodecMsgpack:
		return codec.Msgpack[map[string]any]{}, nil
	case CodecCBOR:
		cb, err := codec.NewCBOR[map[string]any](false)
		if err != nil {
			return nil, err
		}
		return cb, nil
	case CodecStructPB:
		return codec.StructPB{}, nil
	case CodecJSON, "":
		return codec.JSON[map[string]any]{}, nil
	default:
		return nil, fmt.Errorf("unknown preload codec %q", c.PreloadCodec)
	}
}

// ParseRegions parses name[:max[:inactive]] entries. Blank entries are skipped.
func ParseRegions(specs []string) ([]block.Region, error) {
	var out []block.Region
	seen := make(map[string]struct{}, len(specs))
	for _, raw := range specs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		r := block.Region{Name: strings.TrimSpace(parts[0]), Active: true}
		if r.Name == "" {
			return nil, fmt.Errorf("region %q: empty name", raw)
		}
		if len(parts) > 3 {
			return nil, fmt.Errorf("region %q: too many fields", raw)
		}
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(parts[1]))
			if err != nil || n < 0 {
				return nil, fmt.Errorf("region %q: invalid max blocks", raw)
			}
			r.MaxBlocks = n
		}
		if len(parts) == 3 {
			if strings.TrimSpace(parts[2]) != "inactive" {
				return nil, fmt.Errorf("region %q: unknown flag %q", raw, parts[2])
			}
			r.Active = false
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("region %q declared twice", r.Name)
		}
		seen[r.Name] = struct{}{}
		out = append(out, r)
	}
	return out, nil
}
