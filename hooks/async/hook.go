// Package asynchook moves hook delivery off the render path. Events go
// through a bounded queue served by a fixed worker pool; when the queue is
// full they are dropped.
//
// usage:
//
//	raw := sloghooks.New(slog.Default(), sloghooks.Options{
//	    SelfHealEvery:     10, // sample logs: ~every 10th self-heal
//	    RenderFailedEvery: 1,  // log every render failure
//	})
//
//	hooks := asynchook.New(raw, 1, 1000) // 1 worker; queue 1000 events
//	defer hooks.Close()
//
//	eng, _ := blockcache.New(blockcache.Options{
//	    Namespace: "site",
//	    Provider:  provider,
//	    Source:    store,
//	    GenStore:  genstore.NewRedisGenStoreWithTTL(rdb, 24*time.Hour),
//	    Hooks:     hooks, // or `raw` if you don’t want async
//	})
package asynchook

import (
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/blockcache"
)

type Hooks struct {
	inner   blockcache.Hooks
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var _ blockcache.Hooks = (*Hooks)(nil)

func New(inner blockcache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}

	h := &Hooks{inner: inner, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for range workers {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close drains the queue and stops the workers. Events after Close are dropped.
func (h *Hooks) Close() {
	h.once.Do(func() {
		close(h.q)
		h.wg.Wait()
	})
}

// Dropped reports how many events were discarded on a full queue.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	defer func() {
		// send on closed queue after Close
		if recover() != nil {
			h.dropped.Add(1)
		}
	}()
	select {
	case h.q <- f:
	default: // drop
		h.dropped.Add(1)
	}
}

func (h *Hooks) SelfHeal(k, r string)             { h.try(func() { h.inner.SelfHeal(k, r) }) }
func (h *Hooks) GenBumpError(s string, err error) { h.try(func() { h.inner.GenBumpError(s, err) }) }
func (h *Hooks) StoreError(op, k string, err error) {
	h.try(func() { h.inner.StoreError(op, k, err) })
}
func (h *Hooks) RenderFailed(id int64, t string, err error) {
	h.try(func() { h.inner.RenderFailed(id, t, err) })
}
func (h *Hooks) PreloadFailed(t string, n int, err error) {
	h.try(func() { h.inner.PreloadFailed(t, n, err) })
}
func (h *Hooks) RendererUnavailable(t string, err error) {
	h.try(func() { h.inner.RendererUnavailable(t, err) })
}
func (h *Hooks) InvalidateOutage(s string, be, de error) {
	h.try(func() { h.inner.InvalidateOutage(s, be, de) })
}
