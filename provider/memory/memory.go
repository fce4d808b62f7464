// Package memory is an in-process provider backed by a map.
// Expired entries are dropped lazily on read and by Sweep.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	pr "github.com/unkn0wn-root/blockcache/provider"
)

type entry struct {
	v   []byte
	exp time.Time // zero => no TTL
}

type Memory struct {
	mu  sync.RWMutex
	m   map[string]entry
	now func() time.Time
}

var (
	_ pr.Provider    = (*Memory)(nil)
	_ pr.BatchSetter = (*Memory)(nil)
)

func New() *Memory {
	return &Memory{m: make(map[string]entry), now: time.Now}
}

func (p *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.RLock()
	e, ok := p.m[key]
	p.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && p.now().After(e.exp) {
		p.mu.Lock()
		if cur, ok := p.m[key]; ok && cur.exp.Equal(e.exp) {
			delete(p.m, key)
		}
		p.mu.Unlock()
		return nil, false, nil
	}
	return e.v, true, nil
}

func (p *Memory) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	p.m[key] = p.entry(value, ttl)
	p.mu.Unlock()
	return true, nil
}

// SetMany stores every item under one lock acquisition.
func (p *Memory) SetMany(_ context.Context, items []pr.Item) error {
	p.mu.Lock()
	for _, it := range items {
		p.m[it.Key] = p.entry(it.Value, it.TTL)
	}
	p.mu.Unlock()
	return nil
}

func (p *Memory) entry(value []byte, ttl time.Duration) entry {
	var exp time.Time
	if ttl > 0 {
		exp = p.now().Add(ttl)
	}
	return entry{v: value, exp: exp}
}

func (p *Memory) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
	return nil
}

func (p *Memory) DelPrefix(_ context.Context, prefix string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k := range p.m {
		if strings.HasPrefix(k, prefix) {
			delete(p.m, k)
			n++
		}
	}
	return n, nil
}

// Sweep drops expired entries and returns how many were removed.
func (p *Memory) Sweep() int {
	now := p.now()
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for k, e := range p.m {
		if !e.exp.IsZero() && now.After(e.exp) {
			delete(p.m, k)
			n++
		}
	}
	return n
}

// Len reports the number of stored entries, expired ones included.
func (p *Memory) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.m)
}

// Keys returns the stored keys with the given prefix.
func (p *Memory) Keys(prefix string) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []string
	for k := range p.m {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out
}

func (p *Memory) Close(_ context.Context) error { return nil }
