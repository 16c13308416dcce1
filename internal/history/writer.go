package history

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/bmcscout/bmcscout/internal/sensor"
)

const (
	defaultBufferSize = 1024
	pruneInterval     = time.Hour

	backoffInitial    = 1 * time.Second
	backoffMax        = 60 * time.Second
	backoffMultiplier = 2.0
)

// Writer buffers snapshot rows and flushes them to the archive in the
// background.
//
// Record() is non-blocking: rows are placed in an in-memory channel. When the
// buffer is full the oldest batch is evicted so the latest readings are always
// preserved. Run() drains the buffer in a loop, retrying failed inserts with
// truncated exponential backoff (1s→60s, ±25% jitter), and prunes rows past
// retention once an hour.
type Writer struct {
	db  *DB
	buf chan []Row
}

// NewWriter creates a Writer over the archive.
func NewWriter(db *DB) *Writer {
	return &Writer{
		db:  db,
		buf: make(chan []Row, defaultBufferSize),
	}
}

// Record converts the snapshot's numeric and boolean sensors to rows and
// enqueues them. Enum sensors are skipped: the health column already carries
// their state, and a synthetic numeric encoding would be misleading in
// dashboards. If the buffer is full the oldest batch is evicted to make room.
func (w *Writer) Record(snap *sensor.Snapshot) {
	rows := snapshotRows(snap)
	if len(rows) == 0 {
		return
	}
	select {
	case w.buf <- rows:
	default:
		// Buffer full — drop the oldest batch, keep the newest.
		select {
		case <-w.buf:
			slog.Warn("history: buffer full, evicted oldest batch",
				"device", snap.DeviceID, "buffer_cap", cap(w.buf))
		default:
		}
		// Another producer may have refilled the slot, and after Run exits
		// nothing drains the channel at all. Record must never block the
		// poll loop, so drop the batch instead of waiting.
		select {
		case w.buf <- rows:
		default:
			slog.Warn("history: buffer full, dropped batch",
				"device", snap.DeviceID, "rows", len(rows))
		}
	}
}

// Run drains the buffer until ctx is cancelled.
func (w *Writer) Run(ctx context.Context) {
	bo := newBackoff()
	prune := time.NewTicker(pruneInterval)
	defer prune.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-prune.C:
			if n, err := w.db.Prune(ctx, now); err != nil {
				slog.Error("history: prune failed", "err", err)
			} else if n > 0 {
				slog.Debug("history: pruned expired rows", "count", n)
			}

		case rows := <-w.buf:
			for {
				err := w.db.Insert(ctx, rows)
				if err == nil {
					bo.reset()
					break
				}
				if ctx.Err() != nil {
					return
				}
				wait := bo.next()
				slog.Error("history: insert failed, will retry",
					"rows", len(rows), "err", err, "retry_in", wait)
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
		}
	}
}

// snapshotRows flattens a snapshot into archive rows.
func snapshotRows(snap *sensor.Snapshot) []Row {
	rows := make([]Row, 0, len(snap.Sensors))
	for i := range snap.Sensors {
		s := &snap.Sensors[i]
		var v float64
		switch s.Value.Kind {
		case sensor.ValueNumeric:
			v = s.Value.Num
		case sensor.ValueBool:
			if s.Value.Bool {
				v = 1
			}
		default:
			continue
		}
		rows = append(rows, Row{
			Device:   snap.DeviceID,
			Key:      s.Key,
			Category: string(s.Category),
			At:       snap.TakenAt,
			Value:    v,
			Health:   string(s.Health),
			Source:   string(s.Source),
		})
	}
	return rows
}

type backoff struct {
	current time.Duration
}

func newBackoff() *backoff {
	return &backoff{current: backoffInitial}
}

// next returns the current backoff duration and advances the internal state.
func (b *backoff) next() time.Duration {
	d := b.current
	// Apply ±25 % jitter.
	jitter := time.Duration(float64(b.current) * 0.25 * (rand.Float64()*2 - 1)) //nolint:gosec // not crypto
	d += jitter
	if d < 0 {
		d = 0
	}

	// Advance for next call.
	b.current = time.Duration(float64(b.current) * backoffMultiplier)
	if b.current > backoffMax {
		b.current = backoffMax
	}
	return d
}

func (b *backoff) reset() {
	b.current = backoffInitial
}
