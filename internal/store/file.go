// internal/store/file.go
package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"aqsentry/internal/sensor"
)

// FileStore is an append-safe JSONL store that keeps every record on
// disk and an index in memory. One file carries all kinds; the index is
// rebuilt on open and kept sorted by StoredAt per kind.
type FileStore struct {
	path  string
	log   *slog.Logger
	f     *os.File
	mu    sync.RWMutex
	index map[Kind][]Record
	now   func() time.Time
}

// NewFileStore opens (or creates) the store file and loads the index.
// Unreadable lines are skipped with a warning so one torn write cannot
// take the whole history down.
func NewFileStore(path string, logger *slog.Logger) (*FileStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("file store requires a logger")
	}
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir store dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &FileStore{
		path:  path,
		log:   logger,
		f:     f,
		index: make(map[Kind][]Record),
		now:   time.Now,
	}
	if err := s.loadIndex(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("load store index: %w", err)
	}
	return s, nil
}

func (s *FileStore) loadIndex() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.f.Seek(0, 0); err != nil {
		return err
	}
	s.index = make(map[Kind][]Record)

	scanner := bufio.NewScanner(s.f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			s.log.Warn("store_skipping_bad_record", slog.Any("err", err))
			continue
		}
		if !rec.Kind.Valid() {
			s.log.Warn("store_skipping_unknown_kind", slog.String("kind", string(rec.Kind)))
			continue
		}
		s.index[rec.Kind] = append(s.index[rec.Kind], rec)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	for kind := range s.index {
		recs := s.index[kind]
		sort.Slice(recs, func(i, j int) bool { return recs[i].StoredAt.Before(recs[j].StoredAt) })
		s.index[kind] = recs
	}
	return nil
}

// Put appends the reading as a single JSON line and updates the index.
func (s *FileStore) Put(ctx context.Context, kind Kind, reading sensor.Reading) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if !kind.Valid() {
		return Record{}, fmt.Errorf("invalid reading kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{Kind: kind, StoredAt: s.now(), Reading: reading}
	enc, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}
	if _, err := s.f.Seek(0, io.SeekEnd); err != nil {
		return Record{}, fmt.Errorf("seek store: %w", err)
	}
	if _, err := s.f.Write(append(enc, '\n')); err != nil {
		return Record{}, fmt.Errorf("append record: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return Record{}, fmt.Errorf("sync store: %w", err)
	}
	s.index[kind] = append(s.index[kind], rec)
	s.log.Debug("store_put",
		slog.String("kind", string(kind)),
		slog.String("sensor_id", reading.SensorID),
		slog.Time("stored_at", rec.StoredAt),
	)
	return rec, nil
}

// Latest returns the newest record of the kind within maxAge.
func (s *FileStore) Latest(ctx context.Context, kind Kind, maxAge time.Duration) (Record, bool, error) {
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

// ExpireOlderThan drops records stored before the cutoff and compacts
// the file through a tmp-file rename so a crash mid-rewrite cannot lose
// the surviving records.
func (s *FileStore) ExpireOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	kept := make(map[Kind][]Record, len(s.index))
	var survivors []Record
	for kind, recs := range s.index {
		keep := make([]Record, 0, len(recs))
		for _, rec := range recs {
			if rec.StoredAt.Before(cutoff) {
				removed++
				continue
			}
			keep = append(keep, rec)
		}
		kept[kind] = keep
		survivors = append(survivors, keep...)
	}
	if removed == 0 {
		return 0, nil
	}
	sort.Slice(survivors, func(i, j int) bool { return survivors[i].StoredAt.Before(survivors[j].StoredAt) })

	if err := s.rewrite(survivors); err != nil {
		return 0, err
	}
	s.index = kept
	s.log.Info("store_expired_records",
		slog.Int("removed", removed),
		slog.Time("cutoff", cutoff),
	)
	return removed, nil
}

// rewrite replaces the store file with the given records. The caller
// holds the write lock.
func (s *FileStore) rewrite(records []Record) error {
	tmpPath := s.path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tmp store: %w", err)
	}
	enc := json.NewEncoder(tmp)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
			return fmt.Errorf("write tmp store: %w", err)
		}
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync tmp store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close tmp store: %w", err)
	}
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("swap store: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("reopen store: %w", err)
	}
	s.f = f
	return nil
}

// Close flushes and closes the file.
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
