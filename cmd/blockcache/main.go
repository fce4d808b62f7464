// Command blockcache renders regions and runs cache invalidation cascades
// against a SQLite block store.
//
// Usage:
//
//	blockcache [flags] render|warm|invalidate-block|invalidate-page|invalidate-type|flush|stats
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/unkn0wn-root/blockcache"
	"github.com/unkn0wn-root/blockcache/block"
	"github.com/unkn0wn-root/blockcache/config"
	gen "github.com/unkn0wn-root/blockcache/genstore"
	asynchook "github.com/unkn0wn-root/blockcache/hooks/async"
	zapadapter "github.com/unkn0wn-root/blockcache/log/zap"
	pr "github.com/unkn0wn-root/blockcache/provider"
	bigcacheprov "github.com/unkn0wn-root/blockcache/provider/bigcache"
	"github.com/unkn0wn-root/blockcache/provider/memory"
	redisprov "github.com/unkn0wn-root/blockcache/provider/redis"
	ristrettoprov "github.com/unkn0wn-root/blockcache/provider/ristretto"
	"github.com/unkn0wn-root/blockcache/renderer/builtin"
	"github.com/unkn0wn-root/blockcache/sloghooks"
	"github.com/unkn0wn-root/blockcache/source/sqlite"
)

type cliFlags struct {
	pageID   int64
	region   string
	roles    string
	blockID  int64
	kind     string
	typeName string
	timeout  time.Duration
}

func main() {
	var f cliFlags
	flag.Int64Var(&f.pageID, "page", 0, "page ID (0 = global context)")
	flag.StringVar(&f.region, "region", "", "region name; empty renders every configured region of -page")
	flag.StringVar(&f.roles, "roles", "", "comma-separated viewer roles (empty = guest)")
	flag.Int64Var(&f.blockID, "block", 0, "block ID for invalidate-block")
	flag.StringVar(&f.kind, "kind", "instance", "block variant for invalidate-block: instance or page")
	flag.StringVar(&f.typeName, "type", "", "renderer type for invalidate-type")
	flag.DurationVar(&f.timeout, "timeout", 30*time.Second, "overall command timeout")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(),
			"usage: blockcache [flags] render|warm|invalidate-block|invalidate-page|invalidate-type|flush|stats\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	if err := run(ctx, cfg, logger, flag.Arg(0), f); err != nil {
		logger.Error("command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger, command string, f cliFlags) error {
	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	p, gs, err := openBackend(cfg)
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	hookLog := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	hooks := asynchook.New(sloghooks.New(hookLog, sloghooks.Options{SelfHealEvery: 10}), 1, 256)
	defer hooks.Close()

	opts, err := cfg.Options(blockcache.Options{
		Hooks:     hooks,
		Provider:  p,
		GenStore:  gs,
		Source:    store,
		Legacy:    store.Legacy(),
		Renderers: builtin.Table(store.ListItems),
		Logger:    zapadapter.New(logger),
	})
	if err != nil {
		closeBackend(ctx, p, gs)
		return err
	}
	if cfg.Provider == config.ProviderRistretto {
		opts.ComputeSetCost = func(_ string, raw []byte) int64 { return int64(len(raw)) }
	}
	eng, err := blockcache.New(opts)
	if err != nil {
		closeBackend(ctx, p, gs)
		return err
	}
	defer func() {
		if err := eng.Close(context.Background()); err != nil {
			logger.Warn("close engine", zap.Error(err))
		}
	}()

	page := pageRef(f.pageID)
	roles := splitRoles(f.roles)

	switch command {
	case "render":
		if f.region == "" {
			if page == nil {
				return errors.New("render without -region requires -page")
			}
			out, err := eng.RenderPage(ctx, page, roles, nil)
			if err != nil {
				return err
			}
			return printJSON(out)
		}
		html, err := eng.RenderRegion(ctx, page, f.region, roles, nil)
		if err != nil {
			return err
		}
		fmt.Println(html)
	case "warm":
		if f.region == "" {
			return errors.New("warm requires -region")
		}
		if err := eng.WarmRegion(ctx, page, f.region, roles); err != nil {
			return err
		}
		logger.Info("region warmed", zap.String("region", f.region), zap.String("context", string(page.Context())))
	case "invalidate-block":
		if f.blockID == 0 {
			return errors.New("invalidate-block requires -block")
		}
		b, err := loadBlock(ctx, store, f.kind, f.blockID)
		if err != nil {
			return err
		}
		return eng.InvalidateBlock(ctx, b)
	case "invalidate-page":
		if page == nil {
			return errors.New("invalidate-page requires -page")
		}
		return eng.InvalidatePage(ctx, page)
	case "invalidate-type":
		return eng.InvalidateRendererType(ctx, f.typeName)
	case "flush":
		return eng.InvalidateAll(ctx)
	case "stats":
		return printJSON(eng.Stats())
	default:
		return fmt.Errorf("unknown command %q", command)
	}
	return nil
}

// openBackend builds the cache provider and, for redis, a shared generation
// store so cascades are visible to every process.
func openBackend(cfg config.Config) (pr.Provider, gen.GenStore, error) {
	switch cfg.Provider {
	case config.ProviderRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			DB:       cfg.RedisDB,
			Password: cfg.RedisPassword,
		})
		p, err := redisprov.New(redisprov.Config{Client: client})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		// the gen store owns and closes the client
		return p, gen.NewRedisGenStore(client), nil
	case config.ProviderRistretto:
		p, err := ristrettoprov.New(ristrettoprov.Config{
			NumCounters: 1e6,
			MaxCost:     cfg.RistrettoMaxCost,
			BufferItems: 64,
		})
		return p, nil, err
	case config.ProviderBigcache:
		p, err := bigcacheprov.New(bigcacheprov.Config{
			LifeWindow:         bigcacheLifeWindow(cfg),
			HardMaxCacheSizeMB: cfg.BigcacheMaxMB,
		})
		return p, nil, err
	default:
		return memory.New(), nil, nil
	}
}

// bigcacheLifeWindow is the shortest positive tier TTL. Bigcache has one
// lifetime for every entry, so a longer window would serve regions past
// their TTL.
func bigcacheLifeWindow(cfg config.Config) time.Duration {
	var w time.Duration
	for _, ttl := range []time.Duration{cfg.BlockTTL, cfg.RegionTTL, cfg.PreloadTTL} {
		if ttl > 0 && (w == 0 || ttl < w) {
			w = ttl
		}
	}
	return w
}

// loadBlock reads the block row invalidate-block acts on.
func loadBlock(ctx context.Context, store *sqlite.Store, kind string, id int64) (block.Block, error) {
	switch kind {
	case "", block.KindInstance.String():
		b, err := store.Instance(ctx, id)
		if err != nil {
			return nil, err
		}
		return b, nil
	case block.KindPageBlock.String():
		b, err := store.PageBlock(ctx, id)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown block kind %q (want instance or page)", kind)
	}
}

func closeBackend(ctx context.Context, p pr.Provider, gs gen.GenStore) {
	if gs != nil {
		_ = gs.Close(ctx)
	}
	_ = p.Close(ctx)
}

func pageRef(id int64) *block.Page {
	if id == 0 {
		return nil
	}
	return &block.Page{ID: id}
}

func splitRoles(csv string) block.Roles {
	var out block.Roles
	for _, r := range strings.Split(csv, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
