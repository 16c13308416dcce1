package discovery

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/bmcscout/bmcscout/internal/manifest"
	"github.com/bmcscout/bmcscout/internal/redfish"
	"github.com/bmcscout/bmcscout/internal/sensor"
	"github.com/bmcscout/bmcscout/internal/snmp"
	"github.com/bmcscout/bmcscout/internal/source"
)

const (
	// probeMissLimit stops the index walk after this many consecutive
	// misses. Dell firmware leaves holes in some tables (a removed PSU keeps
	// its index), so a single miss is not the end of the table.
	probeMissLimit = 3

	// probeHardCap bounds the index walk regardless of hits.
	probeHardCap = 32

	// defaultProbeTimeout bounds each individual probe. A slow or dead
	// endpoint reads as "not present", never as a discovery failure.
	defaultProbeTimeout = 3 * time.Second
)

// Error reports that discovery produced nothing usable: no configured
// protocol responded to any probe, or every answer was a rejection and the
// manifest came out empty. Per-category absences are not errors.
type Error struct {
	Tree  error
	Graph error
}

func (e *Error) Error() string {
	return "discovery: no identifiers found on any configured protocol"
}

// TreeClient is the SNMP capability the engine consumes.
type TreeClient interface {
	Get(ctx context.Context, oids []string) (map[string]sensor.RawValue, error)
	Probe(ctx context.Context, oid string) bool
}

// Engine probes a device once to build its discovery manifest. Either client
// may be nil when the protocol is not configured for the device.
//
// The engine mutates no process-wide state; the caller decides whether to
// persist the returned manifest.
type Engine struct {
	tree         TreeClient
	graph        source.GraphClient
	probeTimeout time.Duration
	now          func() time.Time // injectable for deterministic tests
}

// New builds an Engine. probeTimeout <= 0 selects the default.
func New(tree TreeClient, graph source.GraphClient, probeTimeout time.Duration) *Engine {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &Engine{tree: tree, graph: graph, probeTimeout: probeTimeout, now: time.Now}
}

// Discover probes every category on every configured protocol and returns
// the manifest of identifiers confirmed present. Categories with zero
// identifiers are legal — the hardware feature is simply not populated on
// this unit. Discover fails when no configured protocol responded to
// anything, or when the probes that did answer yielded an empty manifest.
func (e *Engine) Discover(ctx context.Context, deviceID string) (*manifest.Manifest, error) {
	m := manifest.New(deviceID, e.now())

	var treeErr, graphErr error
	treeConfigured := e.tree != nil
	graphConfigured := e.graph != nil

	if treeConfigured {
		treeErr = e.discoverTree(ctx, m)
	}
	if graphConfigured {
		graphErr = e.discoverGraph(ctx, m)
	}

	anyAlive := (treeConfigured && treeErr == nil) || (graphConfigured && graphErr == nil)
	if !anyAlive {
		return nil, &Error{Tree: treeErr, Graph: graphErr}
	}

	// A protocol that only rejected us (every Redfish path answering 401)
	// counts as responsive yet yields nothing. An empty manifest would make
	// every later poll cycle fail, so report it as a discovery failure and
	// let the caller retry.
	if m.Empty() {
		return nil, &Error{Tree: treeErr, Graph: graphErr}
	}

	slog.Info("discovery: manifest built",
		"device", deviceID,
		"snmp_categories", len(m.SNMP),
		"redfish_categories", len(m.Redfish))
	return m, nil
}

// discoverTree probes the SNMP side. It returns an error only when the agent
// never responded at all.
func (e *Engine) discoverTree(ctx context.Context, m *manifest.Manifest) error {
	responded := false

	// Identity and power-draw scalars are fetched in one shot: any answer,
	// even all-absent, proves the agent is reachable.
	for _, cat := range []sensor.Category{sensor.System, sensor.Power} {
		facets := snmp.ScalarFacets(cat)
		names := make([]string, 0, len(facets))
		oids := make([]string, 0, len(facets))
		for name, oid := range facets {
			names = append(names, name)
			oids = append(oids, oid)
		}

		probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
		vals, err := e.tree.Get(probeCtx, oids)
		cancel()
		if err != nil {
			continue
		}
		responded = true

		var found []string
		for i, name := range names {
			if !vals[oids[i]].IsAbsent() {
				found = append(found, name)
			}
		}
		if len(found) > 0 {
			// Deterministic facet order regardless of map iteration.
			m.SNMP[cat] = sortedFacets(cat, found)
		}
	}

	// Unit-indexed tables: walk indexes until the miss limit.
	for _, cat := range sensor.Categories {
		table, ok := snmp.Tables[cat]
		if !ok {
			continue
		}
		probeCol, _ := table.Column(table.Probe)

		var ids []string
		misses := 0
		for i := 1; i <= probeHardCap && misses < probeMissLimit; i++ {
			probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
			hit := e.tree.Probe(probeCtx, snmp.UnitOID(probeCol, strconv.Itoa(i)))
			cancel()
			if hit {
				responded = true
				misses = 0
				ids = append(ids, strconv.Itoa(i))
			} else {
				misses++
			}
		}
		if len(ids) > 0 {
			m.SNMP[cat] = ids
		}
	}

	if !responded {
		return errors.New("discovery: snmp agent unreachable")
	}
	return nil
}

// sortedFacets orders discovered facet names by their declaration order in
// the OID tables.
func sortedFacets(cat sensor.Category, found []string) []string {
	var order []string
	switch cat {
	case sensor.System:
		order = []string{"hostname", "model", "service_tag", "bios_version"}
	case sensor.Power:
		order = []string{"consumed", "peak"}
	}
	set := make(map[string]bool, len(found))
	for _, f := range found {
		set[f] = true
	}
	out := make([]string, 0, len(found))
	for _, f := range order {
		if set[f] {
			out = append(out, f)
		}
	}
	return out
}

// discoverGraph probes the Redfish side by fetching each resource once and
// recording the identifiers its payload yields. It returns an error only
// when the service never responded at all.
func (e *Engine) discoverGraph(ctx context.Context, m *manifest.Manifest) error {
	responded := false
	bodies := make(map[string][]byte)

	for _, cat := range sensor.Categories {
		path := source.ResourcePath(e.graph, cat)
		if path == "" {
			continue
		}
		body, fetched := bodies[path]
		if !fetched {
			probeCtx, cancel := context.WithTimeout(ctx, e.probeTimeout)
			b, err := e.graph.Fetch(probeCtx, path)
			cancel()
			switch {
			case err == nil:
				responded = true
				body = b
			case errors.Is(err, redfish.ErrNotFound):
				// The service answered; this resource just is not exposed.
				responded = true
			default:
				var authErr *redfish.AuthError
				if errors.As(err, &authErr) {
					responded = true
					slog.Warn("discovery: redfish auth rejected", "path", path)
				}
			}
			bodies[path] = body
		}
		if body == nil {
			continue
		}

		readings, err := source.ParseCategory(cat, body)
		if err != nil {
			continue
		}
		ids := make([]string, 0, len(readings))
		for _, rd := range readings {
			ids = append(ids, rd.Identifier)
		}
		if len(ids) > 0 {
			m.Redfish[cat] = ids
		}
	}

	if !responded {
		return errors.New("discovery: redfish service unreachable")
	}
	return nil
}
