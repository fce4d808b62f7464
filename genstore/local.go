package genstore

import (
	"context"
	"sync"
	"time"
)

// LocalGenStore keeps generation counters in process memory. It is the
// default store and only sees cascades run by the same process.
//
// With a positive cleanup interval and retention, a sweeper drops scopes not
// bumped within retention. A dropped scope reads 0 again, so retention must
// exceed the longest tier TTL.
type LocalGenStore struct {
	mu     sync.RWMutex
	gens   map[string]uint64
	bumped map[string]time.Time
	now    func() time.Time

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

var _ GenStore = (*LocalGenStore)(nil)

func NewLocalGenStore(cleanupInterval, retention time.Duration) *LocalGenStore {
	s := &LocalGenStore{
		gens:   make(map[string]uint64),
		bumped: make(map[string]time.Time),
		now:    time.Now,
	}
	if cleanupInterval > 0 && retention > 0 {
		s.stop = make(chan struct{})
		s.done = make(chan struct{})
		go s.sweep(cleanupInterval, retention)
	}
	return s
}

func (s *LocalGenStore) sweep(every, retention time.Duration) {
	defer close(s.done)
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(retention)
		case <-s.stop:
			return
		}
	}
}

func (s *LocalGenStore) Snapshot(_ context.Context, scope string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[scope], nil
}

// SnapshotMany reads every scope under one read lock, so a stamp never mixes
// counters from before and after a concurrent cascade.
func (s *LocalGenStore) SnapshotMany(_ context.Context, scopes []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(scopes))
	s.mu.RLock()
	for _, sc := range scopes {
		out[sc] = s.gens[sc]
	}
	s.mu.RUnlock()
	return out, nil
}

func (s *LocalGenStore) Bump(_ context.Context, scope string) (uint64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gens[scope]++
	s.bumped[scope] = now
	return s.gens[scope], nil
}

// Cleanup drops scopes last bumped before now-retention.
func (s *LocalGenStore) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for scope, at := range s.bumped {
		if at.Before(cutoff) {
			delete(s.bumped, scope)
			delete(s.gens, scope)
		}
	}
}

// Len reports how many scopes hold a non-zero generation.
func (s *LocalGenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

// Close stops the sweeper. Safe to call more than once.
func (s *LocalGenStore) Close(_ context.Context) error {
	s.closeOnce.Do(func() {
		if s.stop != nil {
			close(s.stop)
			<-s.done
		}
	})
	return nil
}
