// Package coordinator owns the per-device poll cycle: it drives both protocol
// pollers, reconciles and normalizes their output, and publishes the result as
// an atomically swapped snapshot. One Coordinator exists per monitored device;
// there is no process-wide mutable state.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmcscout/bmcscout/internal/manifest"
	"github.com/bmcscout/bmcscout/internal/normalize"
	"github.com/bmcscout/bmcscout/internal/reconcile"
	"github.com/bmcscout/bmcscout/internal/sensor"
	"github.com/bmcscout/bmcscout/internal/source"
)

var (
	// ErrBusy reports that a Cycle or Refresh is already in progress.
	// Retryable: the caller waits out the in-flight operation.
	ErrBusy = errors.New("coordinator: operation already in progress")

	// ErrNoManifest reports that the coordinator holds no usable manifest.
	// Cycle never runs against an empty or missing manifest.
	ErrNoManifest = errors.New("coordinator: no usable manifest")
)

const (
	defaultTreeInterval  = 15 * time.Second
	defaultGraphInterval = 45 * time.Second
)

// Discoverer builds a fresh manifest for the device.
type Discoverer interface {
	Discover(ctx context.Context, deviceID string) (*manifest.Manifest, error)
}

// Config assembles a Coordinator. Tree and Graph may each be nil when the
// protocol is not configured for the device; Engine may be nil when the
// manifest is only ever seeded from disk.
type Config struct {
	DeviceID string
	Tree     source.Poller
	Graph    source.Poller
	Engine   Discoverer
	Prefs    reconcile.Preferences
	Policy   normalize.Policy

	// Per-protocol poll cadence. A cycle invoked before a protocol's
	// interval has elapsed reuses that protocol's cached result instead of
	// polling again, so the two protocols keep independent cadences under
	// one cycle schedule.
	TreeInterval  time.Duration
	GraphInterval time.Duration
}

// Coordinator holds the device's manifest and last snapshot and runs its
// poll cycles. Cycle and Refresh are mutually exclusive: whichever starts
// second fails fast with ErrBusy rather than running against state in flux.
type Coordinator struct {
	deviceID string
	tree     source.Poller
	graph    source.Poller
	engine   Discoverer
	prefs    reconcile.Preferences
	policy   normalize.Policy

	treeInterval  time.Duration
	graphInterval time.Duration

	op       sync.Mutex // guards cycle/refresh exclusivity and the last* fields
	manifest atomic.Pointer[manifest.Manifest]
	snap     atomic.Pointer[sensor.Snapshot]

	lastTree  source.Result
	lastGraph source.Result

	now func() time.Time // injectable for deterministic tests
}

// New builds a Coordinator. Intervals <= 0 select the defaults.
func New(cfg Config) *Coordinator {
	if cfg.TreeInterval <= 0 {
		cfg.TreeInterval = defaultTreeInterval
	}
	if cfg.GraphInterval <= 0 {
		cfg.GraphInterval = defaultGraphInterval
	}
	return &Coordinator{
		deviceID:      cfg.DeviceID,
		tree:          cfg.Tree,
		graph:         cfg.Graph,
		engine:        cfg.Engine,
		prefs:         cfg.Prefs,
		policy:        cfg.Policy,
		treeInterval:  cfg.TreeInterval,
		graphInterval: cfg.GraphInterval,
		now:           time.Now,
	}
}

// SeedManifest installs a manifest loaded from disk, skipping discovery.
func (c *Coordinator) SeedManifest(m *manifest.Manifest) {
	c.manifest.Store(m)
}

// Manifest returns the current manifest, or nil before seeding/discovery.
func (c *Coordinator) Manifest() *manifest.Manifest {
	return c.manifest.Load()
}

// Snapshot returns the last published snapshot, or nil before the first
// successful cycle. The snapshot is immutable; readers never block cycles.
func (c *Coordinator) Snapshot() *sensor.Snapshot {
	return c.snap.Load()
}

// Refresh re-discovers the device and replaces the manifest. Exclusive with
// Cycle; the caller decides whether to persist the returned manifest.
func (c *Coordinator) Refresh(ctx context.Context) (*manifest.Manifest, error) {
	if !c.op.TryLock() {
		return nil, ErrBusy
	}
	defer c.op.Unlock()

	if c.engine == nil {
		return nil, errors.New("coordinator: no discovery engine configured")
	}
	m, err := c.engine.Discover(ctx, c.deviceID)
	if err != nil {
		return nil, err
	}
	c.manifest.Store(m)
	// Cached results may reference identifiers the new manifest dropped;
	// force fresh polls on the next cycle.
	c.lastTree = source.Result{}
	c.lastGraph = source.Result{}
	return m, nil
}

// Cycle runs one bounded poll cycle and publishes the resulting snapshot.
// Partial data never fails a cycle: a degraded protocol leaves its sensors
// carrying the previous cycle's values with source "none". Cycle fails only
// when another operation is in flight or no usable manifest exists.
func (c *Coordinator) Cycle(ctx context.Context) (*sensor.Snapshot, error) {
	if !c.op.TryLock() {
		return nil, ErrBusy
	}
	defer c.op.Unlock()

	m := c.manifest.Load()
	if m == nil || m.Empty() {
		return nil, ErrNoManifest
	}

	now := c.now()
	c.pollDue(ctx, m, now)

	selected := reconcile.Reconcile(m, c.lastTree, c.lastGraph, c.prefs)
	prev := c.snap.Load()

	units := make([]sensor.CanonicalSensor, 0, len(selected))
	for _, sel := range selected {
		cs := normalize.Sensor(sel, c.policy)
		if sel.Source == sensor.SourceNone && prev != nil {
			// Retain the previous value rather than flapping back to the
			// safe default; source "none" marks the value as carried over.
			if p := prev.Find(sel.Key); p != nil && p.Source != sensor.SourceDerived {
				cs = *p
				cs.Source = sensor.SourceNone
			}
		}
		units = append(units, cs)
	}
	normalize.DisambiguateLabels(units)

	snap := &sensor.Snapshot{
		DeviceID: c.deviceID,
		TakenAt:  now,
		Sensors:  append(units, normalize.Aggregates(units)...),
		Identity: identityFrom(units),
		Sources:  c.sourceStatuses(),
	}
	c.snap.Store(snap)

	slog.Info("coordinator: cycle complete",
		"device", c.deviceID,
		"sensors", len(snap.Sensors),
		"health", string(snap.WorstHealth()))
	return snap, nil
}

// pollDue runs every configured poller whose interval has elapsed, both
// concurrently, and caches the results. Pollers own their timeouts; the
// slower one never extends the faster one's deadline.
func (c *Coordinator) pollDue(ctx context.Context, m *manifest.Manifest, now time.Time) {
	var wg sync.WaitGroup
	if c.tree != nil && due(c.lastTree, c.treeInterval, now) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.lastTree = c.tree.Poll(ctx, m)
		}()
	}
	if c.graph != nil && due(c.lastGraph, c.graphInterval, now) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.lastGraph = c.graph.Poll(ctx, m)
		}()
	}
	wg.Wait()
}

func due(last source.Result, interval time.Duration, now time.Time) bool {
	return last.PolledAt.IsZero() || now.Sub(last.PolledAt) >= interval
}

func (c *Coordinator) sourceStatuses() []sensor.SourceStatus {
	var out []sensor.SourceStatus
	if c.tree != nil {
		out = append(out, statusOf(c.lastTree))
	}
	if c.graph != nil {
		out = append(out, statusOf(c.lastGraph))
	}
	return out
}

func statusOf(r source.Result) sensor.SourceStatus {
	st := sensor.SourceStatus{
		Protocol: r.Protocol,
		OK:       r.Err == nil,
		PolledAt: r.PolledAt,
	}
	if r.Err != nil {
		st.Err = r.Err.Error()
	}
	return st
}

// identityFrom lifts the device self-description out of the system and
// manager facet sensors.
func identityFrom(units []sensor.CanonicalSensor) sensor.Identity {
	var id sensor.Identity
	for i := range units {
		u := &units[i]
		switch u.Key {
		case "system/hostname":
			id.Hostname = u.Value.Str
		case "system/model":
			id.Model = u.Value.Str
		case "system/service_tag":
			id.ServiceTag = u.Value.Str
		case "system/bios_version":
			id.BIOSVersion = u.Value.Str
		case "manager/firmware_version":
			id.FirmwareVersion = u.Value.Str
		}
	}
	return id
}
