package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/bmcscout/bmcscout/internal/certcheck"
	"github.com/bmcscout/bmcscout/internal/sensor"
)

// Entry is a device's latest snapshot together with its certificate status
// and the time the snapshot was last published.
type Entry struct {
	Snapshot  *sensor.Snapshot
	Cert      *certcheck.Status
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory snapshot store, keyed by device ID.
// A background goroutine (Run) periodically marks up the TTL: List excludes
// entries whose device has not published within the configured TTL, and Evict
// removes them.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the staleness cutoff interval.
func (s *Store) TTL() time.Duration { return s.ttl }

// Put stores or replaces the snapshot for the device. A nil cert keeps the
// previous certificate status: cert checks run at discovery cadence, much
// slower than poll cycles. Callers must not modify snap after calling Put.
func (s *Store) Put(deviceID string, snap *sensor.Snapshot, cert *certcheck.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &Entry{
		Snapshot:  snap,
		Cert:      cert,
		UpdatedAt: s.now(),
	}
	if cert == nil {
		if prev, ok := s.data[deviceID]; ok {
			e.Cert = prev.Cert
		}
	}
	s.data[deviceID] = e
}

// Get returns the Entry for the given device ID and a boolean indicating
// whether an entry was found. The entry may be stale if TTL has elapsed.
func (s *Store) Get(deviceID string) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[deviceID]
	return e, ok
}

// Stale reports whether the entry's device has missed the TTL window.
func (s *Store) Stale(e *Entry) bool {
	return !e.UpdatedAt.After(s.now().Add(-s.ttl))
}

// List returns all entries whose device published within the TTL, ordered by
// device ID. Stale entries that have not yet been evicted are excluded.
func (s *Store) List() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cutoff := s.now().Add(-s.ttl)
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		if e.UpdatedAt.After(cutoff) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Snapshot.DeviceID < out[j].Snapshot.DeviceID
	})
	return out
}

// ListAll returns every entry including stale ones, ordered by device ID.
// The exporter uses it to report stale devices as down instead of absent.
func (s *Store) ListAll() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, 0, len(s.data))
	for _, e := range s.data {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Snapshot.DeviceID < out[j].Snapshot.DeviceID
	})
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.ttl)
	removed := 0
	for id, e := range s.data {
		if !e.UpdatedAt.After(cutoff) {
			delete(s.data, id)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// interval (minimum 1 second) so entries are evicted promptly. Run blocks
// until ctx is cancelled.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("store: evicted stale devices", "count", n)
			}
		}
	}
}
