// internal/store/store.go

// Package store persists readings keyed by the purpose they were taken
// for. The interval chain feeds the threshold detector, adhoc records
// back the report debounce, and the newest daily record doubles as the
// digest's last-sent marker.
package store

import (
	"context"
	"time"

	"aqsentry/internal/sensor"
)

// Kind partitions stored readings by purpose. Kinds never shadow each
// other: the latest adhoc reading has no effect on the interval chain.
type Kind string

const (
	// KindInterval is the scheduled poll chain used for baselines.
	KindInterval Kind = "interval"
	// KindAdhoc is the on-demand report cache.
	KindAdhoc Kind = "adhoc"
	// KindDaily marks a delivered daily digest.
	KindDaily Kind = "daily"
)

// Valid reports whether the kind is one of the defined partitions.
func (k Kind) Valid() bool {
	switch k {
	case KindInterval, KindAdhoc, KindDaily:
		return true
	}
	return false
}

// Record is one stored reading plus its storage metadata. Recency
// filters operate on StoredAt, the moment this process persisted the
// reading, not on the source-reported observation time.
type Record struct {
	Kind     Kind           `json:"kind"`
	StoredAt time.Time      `json:"storedAt"`
	Reading  sensor.Reading `json:"reading"`
}

// Store is the persistence contract. Implementations serialize access
// internally; callers never coordinate.
type Store interface {
	// Put persists a reading under the given kind and returns the
	// stored record.
	Put(ctx context.Context, kind Kind, reading sensor.Reading) (Record, error)
	// Latest returns the newest record of the given kind no older than
	// maxAge. maxAge <= 0 disables the recency filter. The boolean is
	// false when no qualifying record exists.
	Latest(ctx context.Context, kind Kind, maxAge time.Duration) (Record, bool, error)
	// ExpireOlderThan removes records stored before the cutoff and
	// reports how many were removed.
	ExpireOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	// Close releases the underlying resources.
	Close() error
}
