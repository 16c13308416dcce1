package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/bmcscout/bmcscout/internal/sensor"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "history.db"), 168*time.Hour)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func row(device, key string, at time.Time, v float64) Row {
	return Row{
		Device:   device,
		Key:      key,
		Category: "temperature",
		At:       at,
		Value:    v,
		Health:   "ok",
		Source:   "snmp",
	}
}

func TestInsertAndRecent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	rows := []Row{
		row("dev1", "temperature/1", baseTime, 23),
		row("dev1", "temperature/1", baseTime.Add(30*time.Second), 24),
		row("dev1", "fan/1", baseTime, 4200),
		row("dev2", "temperature/1", baseTime, 30),
	}
	if err := db.Insert(ctx, rows); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := db.Recent(ctx, "dev1", "temperature/1", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d rows, want 2", len(got))
	}
	// Newest first.
	if got[0].Value != 24 || got[1].Value != 23 {
		t.Errorf("order: got values %v, %v, want 24, 23", got[0].Value, got[1].Value)
	}
	if !got[0].At.Equal(baseTime.Add(30 * time.Second)) {
		t.Errorf("At round-trip: got %v", got[0].At)
	}
}

func TestRecent_NoKeyFilterAndLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var rows []Row
	for i := 0; i < 10; i++ {
		rows = append(rows, row("dev1", "temperature/1", baseTime.Add(time.Duration(i)*time.Minute), float64(i)))
	}
	if err := db.Insert(ctx, rows); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := db.Recent(ctx, "dev1", "", 3)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("limit: got %d rows, want 3", len(got))
	}
	if got[0].Value != 9 {
		t.Errorf("newest first: got value %v, want 9", got[0].Value)
	}
}

func TestRecent_UnknownDevice(t *testing.T) {
	db := openTestDB(t)
	got, err := db.Recent(context.Background(), "nope", "", 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d rows for unknown device, want 0", len(got))
	}
}

func TestPrune(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	old := baseTime.Add(-200 * time.Hour) // past the 168h retention
	if err := db.Insert(ctx, []Row{
		row("dev1", "temperature/1", old, 20),
		row("dev1", "temperature/1", baseTime, 23),
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := db.Prune(ctx, baseTime)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d rows, want 1", n)
	}

	got, _ := db.Recent(ctx, "dev1", "", 10)
	if len(got) != 1 || got[0].Value != 23 {
		t.Errorf("remaining rows: %+v", got)
	}
}

func TestSnapshotRows(t *testing.T) {
	snap := &sensor.Snapshot{
		DeviceID: "dev1",
		TakenAt:  baseTime,
		Sensors: []sensor.CanonicalSensor{
			{Key: "temperature/1", Category: sensor.Temperature, Value: sensor.Num(23.5), Health: sensor.HealthOK, Source: sensor.SourceSNMP},
			{Key: "intrusion/1", Category: sensor.Intrusion, Value: sensor.Bool(true), Health: sensor.HealthOK, Source: sensor.SourceSNMP},
			{Key: "memory/aggregate", Category: sensor.Memory, Value: sensor.Enum("ok"), Health: sensor.HealthOK, Source: sensor.SourceDerived},
		},
	}

	rows := snapshotRows(snap)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2 (enum sensors skipped)", len(rows))
	}
	if rows[0].Key != "temperature/1" || rows[0].Value != 23.5 {
		t.Errorf("row[0] = %+v", rows[0])
	}
	if rows[1].Key != "intrusion/1" || rows[1].Value != 1 {
		t.Errorf("bool encoding: row[1] = %+v", rows[1])
	}
}

func TestWriter_RecordAndRun(t *testing.T) {
	db := openTestDB(t)
	w := NewWriter(db)

	snap := &sensor.Snapshot{
		DeviceID: "dev1",
		TakenAt:  baseTime,
		Sensors: []sensor.CanonicalSensor{
			{Key: "temperature/1", Category: sensor.Temperature, Value: sensor.Num(23), Health: sensor.HealthOK, Source: sensor.SourceSNMP},
		},
	}
	w.Record(snap)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()

	deadline := time.After(2 * time.Second)
	for {
		got, err := db.Recent(context.Background(), "dev1", "", 10)
		if err == nil && len(got) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("row never flushed to the archive")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	<-done
}

func TestWriter_RecordNeverBlocksWithoutDrain(t *testing.T) {
	// After shutdown nothing drains the buffer. Record must still return:
	// a wedged Record would hang the device loop past its WaitGroup.
	w := &Writer{buf: make(chan []Row, 1)}

	snap := &sensor.Snapshot{
		DeviceID: "dev1",
		TakenAt:  baseTime,
		Sensors: []sensor.CanonicalSensor{
			{Key: "temperature/1", Category: sensor.Temperature, Value: sensor.Num(23), Health: sensor.HealthOK, Source: sensor.SourceSNMP},
		},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			w.Record(snap)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked with a full, undrained buffer")
	}
}

func TestBackoff_TruncatesAtMax(t *testing.T) {
	bo := newBackoff()
	var last time.Duration
	for i := 0; i < 12; i++ {
		last = bo.next()
	}
	// With ±25% jitter the truncated value stays within [45s, 75s].
	if last < 45*time.Second || last > 75*time.Second {
		t.Errorf("truncated backoff = %v, want ~60s", last)
	}
	bo.reset()
	if d := bo.next(); d > 2*time.Second {
		t.Errorf("after reset: %v, want ~1s", d)
	}
}
