package source

import (
	"context"
	"log/slog"
	"time"

	"github.com/bmcscout/bmcscout/internal/manifest"
	"github.com/bmcscout/bmcscout/internal/sensor"
	"github.com/bmcscout/bmcscout/internal/snmp"
)

// TreeClient is the SNMP capability the tree poller consumes.
// *snmp.Client satisfies it; tests inject fakes.
type TreeClient interface {
	Get(ctx context.Context, oids []string) (map[string]sensor.RawValue, error)
}

// TreePoller fetches every SNMP identifier the manifest lists in one bounded
// call. OIDs for all categories are composed up front and issued together so
// the client can batch them; when the transport fails mid-call, the
// categories whose OIDs were answered before the failure still report data.
type TreePoller struct {
	client  TreeClient
	timeout time.Duration
	now     func() time.Time // injectable for deterministic tests
}

// NewTreePoller builds a TreePoller with the given whole-call timeout.
func NewTreePoller(client TreeClient, timeout time.Duration) *TreePoller {
	return &TreePoller{client: client, timeout: timeout, now: time.Now}
}

// Poll implements Poller for the SNMP protocol.
func (p *TreePoller) Poll(ctx context.Context, m *manifest.Manifest) Result {
	res := newResult(sensor.SourceSNMP, p.now())

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var polled []sensor.Category
	var oids []string
	for _, cat := range sensor.Categories {
		ids := m.SNMP[cat]
		if len(ids) == 0 {
			continue
		}
		polled = append(polled, cat)
		oids = append(oids, categoryOIDs(cat, ids)...)
	}
	if len(oids) == 0 {
		res.finish(polled)
		return res
	}

	vals, err := p.client.Get(ctx, oids)
	if err != nil {
		res.Err = err
		slog.Warn("source: snmp poll degraded", "err", err, "answered", len(vals))
	}

	for _, cat := range polled {
		res.Readings[cat] = treeReadings(cat, m.SNMP[cat], vals)
	}
	res.finish(polled)
	return res
}

// categoryOIDs composes the full OID list for one category's identifiers.
func categoryOIDs(cat sensor.Category, ids []string) []string {
	if facets := snmp.ScalarFacets(cat); facets != nil {
		oids := make([]string, 0, len(ids))
		for _, id := range ids {
			if oid, ok := facets[id]; ok {
				oids = append(oids, oid)
			}
		}
		return oids
	}

	table, ok := snmp.Tables[cat]
	if !ok {
		return nil
	}
	oids := make([]string, 0, len(ids)*len(table.Columns))
	for _, id := range ids {
		for _, col := range table.Columns {
			oids = append(oids, snmp.UnitOID(col, id))
		}
	}
	return oids
}

// treeReadings assembles Readings for one category from the answered values.
// Identifiers whose every facet came back absent are dropped — the unit did
// not answer this cycle.
func treeReadings(cat sensor.Category, ids []string, vals map[string]sensor.RawValue) []sensor.Reading {
	if facets := snmp.ScalarFacets(cat); facets != nil {
		return scalarReadings(cat, ids, facets, vals)
	}

	table, ok := snmp.Tables[cat]
	if !ok {
		return nil
	}

	readings := make([]sensor.Reading, 0, len(ids))
	for _, id := range ids {
		rd := sensor.Reading{
			Protocol:   sensor.SourceSNMP,
			Category:   cat,
			Identifier: id,
			Value:      sensor.Absent(),
			Status:     sensor.Absent(),
		}
		present := false
		for _, col := range table.Columns {
			v, ok := vals[snmp.UnitOID(col, id)]
			if !ok || v.IsAbsent() {
				continue
			}
			present = true
			switch col.Facet {
			case snmp.FacetLocation:
				rd.Label = v.Str
			case snmp.FacetReading:
				rd.Value = v
			case snmp.FacetStatus:
				rd.Status = v
			default:
				if rd.Fields == nil {
					rd.Fields = make(map[string]sensor.RawValue)
				}
				rd.Fields[col.Facet] = v
			}
		}
		if present {
			readings = append(readings, rd)
		}
	}
	return readings
}

// scalarReadings assembles one Reading per facet for System and Power, whose
// identifiers are facet names rather than unit indexes.
func scalarReadings(cat sensor.Category, ids []string, facets map[string]string, vals map[string]sensor.RawValue) []sensor.Reading {
	readings := make([]sensor.Reading, 0, len(ids))
	for _, id := range ids {
		oid, ok := facets[id]
		if !ok {
			continue
		}
		v, ok := vals[oid]
		if !ok || v.IsAbsent() {
			continue
		}
		readings = append(readings, sensor.Reading{
			Protocol:   sensor.SourceSNMP,
			Category:   cat,
			Identifier: id,
			Value:      v,
			Status:     sensor.Absent(),
		})
	}
	return readings
}
