package config

import (
	"strings"
	"testing"
	"time"

	"github.com/unkn0wn-root/blockcache"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Namespace != "blocks" || cfg.Provider != ProviderMemory {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.BlockTTL != time.Hour || cfg.RegionTTL != 30*time.Minute || cfg.PreloadTTL != 10*time.Minute {
		t.Fatalf("unexpected ttl defaults: %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BLOCKCACHE_PROVIDER", "redis")
	t.Setenv("BLOCKCACHE_REGION_TTL", "5m")
	t.Setenv("BLOCKCACHE_DEBUG", "true")
	t.Setenv("BLOCKCACHE_REGIONS", "header:1,content,sidebar:4:inactive")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider != ProviderRedis || cfg.RegionTTL != 5*time.Minute || !cfg.Debug {
		t.Fatalf("env not applied: %+v", cfg)
	}

	opts, err := cfg.Options(blockcache.Options{Namespace: "ignored"})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Namespace != "blocks" || opts.RegionTTL != 5*time.Minute || !opts.Debug {
		t.Fatalf("options not assembled: %+v", opts)
	}
	if len(opts.Regions) != 3 {
		t.Fatalf("want 3 regions, got %+v", opts.Regions)
	}
	if r := opts.Regions[0]; r.Name != "header" || r.MaxBlocks != 1 || !r.Active {
		t.Fatalf("header: %+v", r)
	}
	if r := opts.Regions[2]; r.Name != "sidebar" || r.Active {
		t.Fatalf("sidebar should be inactive: %+v", r)
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	t.Setenv("BLOCKCACHE_PROVIDER", "memcached")
	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "memcached") {
		t.Fatalf("want unknown provider error, got %v", err)
	}
}

func TestParseEnvWrapsErrors(t *testing.T) {
	t.Setenv("BLOCKCACHE_BLOCK_TTL", "soon")
	var cfg Config
	err := ParseEnv(&cfg)
	if err == nil || !strings.HasPrefix(err.Error(), "parse env:") {
		t.Fatalf("want wrapped parse error, got %v", err)
	}
}

func TestParseRegions(t *testing.T) {
	cases := []struct {
		name    string
		in      []string
		want    int
		wantErr bool
	}{
		{"empty", nil, 0, false},
		{"blank entries", []string{" ", "content"}, 1, false},
		{"bad max", []string{"header:x"}, 0, true},
		{"negative max", []string{"header:-1"}, 0, true},
		{"bad flag", []string{"header:1:off"}, 0, true},
		{"duplicate", []string{"a", "a:2"}, 0, true},
		{"too many", []string{"a:1:inactive:x"}, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRegions(tc.in)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tc.wantErr)
			}
			if len(got) != tc.want {
				t.Fatalf("want %d regions, got %+v", tc.want, got)
			}
		})
	}
}

func TestOptionsPreloadCodec(t *testing.T) {
	for _, name := range []string{CodecJSON, CodecMsgpack, CodecCBOR, CodecStructPB} {
		t.Run(name, func(t *testing.T) {
			cfg := Config{Provider: ProviderMemory, PreloadCodec: name, MaxEntryBytes: 1 << 10}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("validate: %v", err)
			}
			opts, err := cfg.Options(blockcache.Options{})
			if err != nil {
				t.Fatalf("options: %v", err)
			}
			raw, err := opts.PreloadCodec.Encode(map[string]any{"7": []any{"a", "b"}})
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := opts.PreloadCodec.Decode(raw)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if items, ok := got["7"].([]any); !ok || len(items) != 2 || items[0] != "a" {
				t.Fatalf("unexpected round trip: %#v", got)
			}
		})
	}
}

func TestOptionsCapsEntrySize(t *testing.T) {
	cfg := Config{Provider: ProviderMemory, PreloadCodec: CodecJSON, MaxEntryBytes: 4}
	opts, err := cfg.Options(blockcache.Options{})
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if _, err := opts.HTMLCodec.Decode([]byte("<p>long</p>")); err == nil {
		t.Fatal("expected oversized payload to be rejected")
	}
}

func TestValidateRejectsUnknownCodec(t *testing.T) {
	cfg := Config{Provider: ProviderMemory, PreloadCodec: "gob"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown codec error")
	}
}
