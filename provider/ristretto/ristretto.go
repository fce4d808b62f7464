package ristretto

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	rc "github.com/dgraph-io/ristretto"

	pr "github.com/unkn0wn-root/blockcache/provider"
)

// Provider wraps a ristretto cache. Ristretto cannot enumerate its keys, so
// the provider keeps an index of live keys to serve DelPrefix. Entries leave
// the index when ristretto evicts, rejects, expires or replaces them.
type Provider struct {
	c *rc.Cache

	mu    sync.Mutex
	index map[string]*entry
}

// entry is the stored value. The pointer identifies one write of a key.
type entry struct {
	key string
	b   []byte
}

var _ pr.Provider = (*Provider)(nil)

type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Metrics     bool
	// Cost in Ristretto is provided by the caller (blockcache passes cost per Set).
}

func New(cfg Config) (*Provider, error) {
	if cfg.NumCounters <= 0 || cfg.MaxCost <= 0 || cfg.BufferItems <= 0 {
		return nil, errors.New("ristretto: invalid config")
	}
	p := &Provider{index: make(map[string]*entry)}
	c, err := rc.NewCache(&rc.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     cfg.Metrics,
		OnEvict:     func(it *rc.Item) { p.forget(it.Value) },
		OnReject:    func(it *rc.Item) { p.rejected(it.Value) },
	})
	if err != nil {
		return nil, err
	}
	p.c = c
	return p, nil
}

// forget drops v from the index unless the key was rewritten since.
func (p *Provider) forget(v any) {
	e, ok := v.(*entry)
	if !ok {
		return
	}
	p.mu.Lock()
	if p.index[e.key] == e {
		delete(p.index, e.key)
	}
	p.mu.Unlock()
}

// rejected handles a write the policy refused. A second write of a key that
// is still buffered is rejected while the first one is stored, so the index
// falls back to whatever the cache holds.
func (p *Provider) rejected(v any) {
	e, ok := v.(*entry)
	if !ok {
		return
	}
	p.forget(e)
	if cur, found := p.c.Get(e.key); found {
		if ce, ok := cur.(*entry); ok {
			p.mu.Lock()
			if _, taken := p.index[e.key]; !taken {
				p.index[e.key] = ce
			}
			p.mu.Unlock()
		}
	}
}

func (p *Provider) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := p.c.Get(key)
	if !ok {
		return nil, false, nil
	}
	e, _ := v.(*entry)
	if e == nil {
		// self-heal: drop unexpected entry shape
		p.c.Del(key)
		return nil, false, nil
	}
	return e.b, true, nil
}

func (p *Provider) Set(_ context.Context, key string, value []byte, cost int64, ttl time.Duration) (bool, error) {
	e := &entry{key: key, b: value}
	// indexed before the write so an immediate rejection finds it
	p.mu.Lock()
	p.index[key] = e
	p.mu.Unlock()

	ok := p.c.SetWithTTL(key, e, cost, ttl)
	if !ok {
		p.forget(e)
	}
	return ok, nil
}

func (p *Provider) Del(_ context.Context, key string) error {
	p.c.Del(key)
	p.mu.Lock()
	delete(p.index, key)
	p.mu.Unlock()
	return nil
}

func (p *Provider) DelPrefix(_ context.Context, prefix string) (int, error) {
	p.mu.Lock()
	var doomed []string
	for k := range p.index {
		if strings.HasPrefix(k, prefix) {
			doomed = append(doomed, k)
			delete(p.index, k)
		}
	}
	p.mu.Unlock()

	for _, k := range doomed {
		p.c.Del(k)
	}
	return len(doomed), nil
}

func (p *Provider) Close(_ context.Context) error {
	p.c.Wait()
	p.c.Close()
	return nil
}

// Len reports how many keys the DelPrefix index holds.
func (p *Provider) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.index)
}

// Helper to expose metrics if desired by the application (not part of provider.Provider).
func (p *Provider) Metrics() *rc.Metrics { return p.c.Metrics }
