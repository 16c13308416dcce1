package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bmcscout/bmcscout/internal/manifest"
	"github.com/bmcscout/bmcscout/internal/normalize"
	"github.com/bmcscout/bmcscout/internal/reconcile"
	"github.com/bmcscout/bmcscout/internal/sensor"
	"github.com/bmcscout/bmcscout/internal/source"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakePoller returns a canned result per call and counts invocations.
type fakePoller struct {
	results []source.Result
	calls   int
	block   chan struct{} // when non-nil, Poll waits until the channel closes
	started chan struct{} // closed when a blocking Poll has begun
}

func (p *fakePoller) Poll(ctx context.Context, m *manifest.Manifest) source.Result {
	if p.block != nil {
		close(p.started)
		<-p.block
	}
	i := p.calls
	if i >= len(p.results) {
		i = len(p.results) - 1
	}
	p.calls++
	return p.results[i]
}

func treeResult(at time.Time, temp int64) source.Result {
	return source.Result{
		Protocol: sensor.SourceSNMP,
		PolledAt: at,
		Readings: map[sensor.Category][]sensor.Reading{
			sensor.Temperature: {{
				Protocol:   sensor.SourceSNMP,
				Category:   sensor.Temperature,
				Identifier: "1",
				Label:      "System Board Inlet Temp",
				Value:      sensor.Int64(temp),
				Status:     sensor.Int64(3),
			}},
		},
		OK: map[sensor.Category]bool{sensor.Temperature: true},
	}
}

func graphResult(at time.Time, hostname string) source.Result {
	return source.Result{
		Protocol: sensor.SourceRedfish,
		PolledAt: at,
		Readings: map[sensor.Category][]sensor.Reading{
			sensor.System: {{
				Protocol:   sensor.SourceRedfish,
				Category:   sensor.System,
				Identifier: "hostname",
				Value:      sensor.Str(hostname),
			}},
		},
		OK: map[sensor.Category]bool{sensor.System: true},
	}
}

func testManifest() *manifest.Manifest {
	m := manifest.New("r740-lab-01", baseTime)
	m.SNMP[sensor.Temperature] = []string{"1"}
	m.Redfish[sensor.System] = []string{"hostname"}
	return m
}

func newTestCoordinator(tree, graph source.Poller) *Coordinator {
	c := New(Config{
		DeviceID:      "r740-lab-01",
		Tree:          tree,
		Graph:         graph,
		Prefs:         reconcile.DefaultPreferences(),
		Policy:        normalize.Policy{},
		TreeInterval:  15 * time.Second,
		GraphInterval: 45 * time.Second,
	})
	c.SeedManifest(testManifest())
	return c
}

func TestCycle_MergesBothProtocols(t *testing.T) {
	tree := &fakePoller{results: []source.Result{treeResult(baseTime, 230)}}
	graph := &fakePoller{results: []source.Result{graphResult(baseTime, "r740-lab-01.example.net")}}
	c := newTestCoordinator(tree, graph)
	c.now = func() time.Time { return baseTime }

	snap, err := c.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}

	temp := snap.Find("temperature/1")
	if temp == nil {
		t.Fatal("temperature/1 missing from snapshot")
	}
	if temp.Value.Num != 23 || temp.Source != sensor.SourceSNMP {
		t.Errorf("temperature = %+v, want 23 C from snmp", temp)
	}
	if snap.Find("temperature/aggregate") == nil {
		t.Error("temperature aggregate missing")
	}
	if snap.Identity.Hostname != "r740-lab-01.example.net" {
		t.Errorf("identity hostname = %q", snap.Identity.Hostname)
	}
	if len(snap.Sources) != 2 {
		t.Fatalf("got %d source statuses, want 2", len(snap.Sources))
	}
	for _, st := range snap.Sources {
		if !st.OK {
			t.Errorf("source %s not OK: %s", st.Protocol, st.Err)
		}
	}
	if got := c.Snapshot(); got != snap {
		t.Error("Snapshot() does not return the published snapshot")
	}
}

func TestCycle_NoManifest(t *testing.T) {
	c := New(Config{DeviceID: "d1", Tree: &fakePoller{results: []source.Result{treeResult(baseTime, 1)}}})
	if _, err := c.Cycle(context.Background()); !errors.Is(err, ErrNoManifest) {
		t.Fatalf("err = %v, want ErrNoManifest", err)
	}

	c.SeedManifest(manifest.New("d1", baseTime)) // empty
	if _, err := c.Cycle(context.Background()); !errors.Is(err, ErrNoManifest) {
		t.Fatalf("empty manifest: err = %v, want ErrNoManifest", err)
	}
}

func TestCycle_BusyFailsFast(t *testing.T) {
	tree := &fakePoller{
		results: []source.Result{treeResult(baseTime, 230)},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	c := newTestCoordinator(tree, nil)
	c.now = func() time.Time { return baseTime }

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Cycle(context.Background()); err != nil {
			t.Errorf("in-flight Cycle: %v", err)
		}
	}()
	<-tree.started

	if _, err := c.Cycle(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Cycle: err = %v, want ErrBusy", err)
	}
	if _, err := c.Refresh(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Refresh: err = %v, want ErrBusy", err)
	}

	close(tree.block)
	<-done
}

func TestCycle_DegradedSourceRetainsPreviousValues(t *testing.T) {
	tree := &fakePoller{results: []source.Result{
		treeResult(baseTime, 230),
		treeResult(baseTime.Add(time.Minute), 245),
	}}
	graph := &fakePoller{results: []source.Result{
		graphResult(baseTime, "r740-lab-01.example.net"),
		{
			Protocol: sensor.SourceRedfish,
			PolledAt: baseTime.Add(time.Minute),
			Readings: map[sensor.Category][]sensor.Reading{},
			OK:       map[sensor.Category]bool{sensor.System: false},
			Err:      errors.New("context deadline exceeded"),
		},
	}}
	c := newTestCoordinator(tree, graph)

	now := baseTime
	c.now = func() time.Time { return now }
	if _, err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("first Cycle: %v", err)
	}

	now = baseTime.Add(time.Minute)
	snap, err := c.Cycle(context.Background())
	if err != nil {
		t.Fatalf("second Cycle: %v", err)
	}

	// Tree-sourced sensor updates normally.
	temp := snap.Find("temperature/1")
	if temp.Value.Num != 24.5 || temp.Source != sensor.SourceSNMP {
		t.Errorf("temperature = %+v, want fresh 24.5 from snmp", temp)
	}

	// Graph-sourced sensor keeps its previous value, marked carried-over.
	host := snap.Find("system/hostname")
	if host.Value.Str != "r740-lab-01.example.net" {
		t.Errorf("hostname = %q, want retained previous value", host.Value.Str)
	}
	if host.Source != sensor.SourceNone {
		t.Errorf("hostname source = %q, want none", host.Source)
	}

	// The degraded source is reported as such.
	for _, st := range snap.Sources {
		if st.Protocol == sensor.SourceRedfish && st.OK {
			t.Error("redfish status OK after a failed poll")
		}
	}
}

func TestCycle_CadenceReusesCachedResult(t *testing.T) {
	tree := &fakePoller{results: []source.Result{treeResult(baseTime, 230)}}
	graph := &fakePoller{results: []source.Result{graphResult(baseTime, "host-a")}}
	c := newTestCoordinator(tree, graph)

	now := baseTime
	c.now = func() time.Time { return now }
	if _, err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("first Cycle: %v", err)
	}

	// 30s later: the tree interval (15s) has elapsed, the graph one (45s)
	// has not.
	now = baseTime.Add(30 * time.Second)
	snap, err := c.Cycle(context.Background())
	if err != nil {
		t.Fatalf("second Cycle: %v", err)
	}
	if tree.calls != 2 {
		t.Errorf("tree polled %d times, want 2", tree.calls)
	}
	if graph.calls != 1 {
		t.Errorf("graph polled %d times, want 1 (cached within interval)", graph.calls)
	}

	// The cached result still backs its sensors: not carried-over.
	if host := snap.Find("system/hostname"); host.Source != sensor.SourceRedfish {
		t.Errorf("hostname source = %q, want redfish from cached result", host.Source)
	}

	// 45s after the first poll the graph is due again.
	now = baseTime.Add(46 * time.Second)
	if _, err := c.Cycle(context.Background()); err != nil {
		t.Fatalf("third Cycle: %v", err)
	}
	if graph.calls != 2 {
		t.Errorf("graph polled %d times after interval elapsed, want 2", graph.calls)
	}
}

type fakeDiscoverer struct {
	m   *manifest.Manifest
	err error
}

func (d *fakeDiscoverer) Discover(ctx context.Context, deviceID string) (*manifest.Manifest, error) {
	return d.m, d.err
}

func TestRefresh_ReplacesManifest(t *testing.T) {
	fresh := manifest.New("r740-lab-01", baseTime.Add(time.Hour))
	fresh.SNMP[sensor.Fan] = []string{"1", "2"}

	c := New(Config{
		DeviceID: "r740-lab-01",
		Engine:   &fakeDiscoverer{m: fresh},
	})
	c.SeedManifest(testManifest())

	got, err := c.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got != fresh || c.Manifest() != fresh {
		t.Error("Refresh did not install the discovered manifest")
	}
}

func TestRefresh_DiscoveryFailureKeepsOldManifest(t *testing.T) {
	c := New(Config{
		DeviceID: "r740-lab-01",
		Engine:   &fakeDiscoverer{err: errors.New("no protocol responded")},
	})
	seed := testManifest()
	c.SeedManifest(seed)

	if _, err := c.Refresh(context.Background()); err == nil {
		t.Fatal("Refresh succeeded despite discovery failure")
	}
	if c.Manifest() != seed {
		t.Error("failed Refresh replaced the manifest")
	}
}
