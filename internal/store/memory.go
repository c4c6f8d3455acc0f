// internal/store/memory.go
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"aqsentry/internal/sensor"
)

// MemoryStore keeps records in memory only. It is a non-durable mode:
// every baseline and debounce marker is lost on restart, so it is only
// suitable for short-lived processes and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	index map[Kind][]Record
	now   func() time.Time
}

// NewMemoryStore builds an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		index: make(map[Kind][]Record),
		now:   time.Now,
	}
}

// Put records the reading under the given kind.
func (s *MemoryStore) Put(ctx context.Context, kind Kind, reading sensor.Reading) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if !kind.Valid() {
		return Record{}, fmt.Errorf("invalid reading kind %q", kind)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := Record{Kind: kind, StoredAt: s.now(), Reading: reading}
	s.index[kind] = append(s.index[kind], rec)
	return rec, nil
}

// Latest returns the newest record of the kind within maxAge.
func (s *MemoryStore) Latest(ctx context.Context, kind Kind, maxAge time.Duration) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	recs := s.index[kind]
	if len(recs) == 0 {
		return Record{}, false, nil
	}
	last := recs[len(recs)-1]
	if maxAge > 0 && s.now().Sub(last.StoredAt) > maxAge {
		return Record{}, false, nil
	}
	return last, true, nil
}

// ExpireOlderThan drops records stored before the cutoff.
func (s *MemoryStore) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for kind, recs := range s.index {
		keep := make([]Record, 0, len(recs))
		for _, rec := range recs {
			if rec.StoredAt.Before(cutoff) {
				removed++
				continue
			}
			keep = append(keep, rec)
		}
		s.index[kind] = keep
	}
	return removed, nil
}

// Close is a no-op for the in-memory driver.
func (s *MemoryStore) Close() error {
	return nil
}
