package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bmcscout/bmcscout/internal/manifest"
	"github.com/bmcscout/bmcscout/internal/sensor"
	"github.com/bmcscout/bmcscout/internal/snmp"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeTreeClient answers Get from a canned OID map. When err is set, only
// OIDs listed in answered come back — modelling a transport failure partway
// through the batched call.
type fakeTreeClient struct {
	vals     map[string]sensor.RawValue
	err      error
	answered map[string]bool // nil means answer everything
}

func (f *fakeTreeClient) Get(_ context.Context, oids []string) (map[string]sensor.RawValue, error) {
	out := make(map[string]sensor.RawValue, len(oids))
	for _, oid := range oids {
		if f.answered != nil && !f.answered[oid] {
			continue
		}
		if v, ok := f.vals[oid]; ok {
			out[oid] = v
		} else {
			out[oid] = sensor.Absent()
		}
	}
	return out, f.err
}

func tempOID(facet, index string) string {
	col, _ := snmp.Tables[sensor.Temperature].Column(facet)
	return snmp.UnitOID(col, index)
}

func fanOID(facet, index string) string {
	col, _ := snmp.Tables[sensor.Fan].Column(facet)
	return snmp.UnitOID(col, index)
}

func treeManifest() *manifest.Manifest {
	m := manifest.New("dev", baseTime)
	m.SNMP[sensor.Temperature] = []string{"1", "2"}
	m.SNMP[sensor.Fan] = []string{"1"}
	m.SNMP[sensor.Power] = []string{"consumed"}
	return m
}

func newTestTreePoller(c TreeClient) *TreePoller {
	p := NewTreePoller(c, time.Second)
	p.now = func() time.Time { return baseTime }
	return p
}

func TestTreePoller_FullPoll(t *testing.T) {
	client := &fakeTreeClient{vals: map[string]sensor.RawValue{
		tempOID(snmp.FacetLocation, "1"):      sensor.Str("System Board Inlet Temp"),
		tempOID(snmp.FacetReading, "1"):       sensor.Int64(230),
		tempOID(snmp.FacetStatus, "1"):        sensor.Int64(3),
		tempOID(snmp.FacetUpperCritical, "1"): sensor.Int64(470),
		tempOID(snmp.FacetLocation, "2"):      sensor.Str("CPU1 Temp"),
		tempOID(snmp.FacetReading, "2"):       sensor.Int64(610),
		tempOID(snmp.FacetStatus, "2"):        sensor.Int64(3),
		fanOID(snmp.FacetLocation, "1"):       sensor.Str("System Board Fan1"),
		fanOID(snmp.FacetReading, "1"):        sensor.Int64(4200),
		fanOID(snmp.FacetStatus, "1"):         sensor.Int64(3),
		snmp.PowerFacets["consumed"]:          sensor.Int64(312),
	}}

	res := newTestTreePoller(client).Poll(context.Background(), treeManifest())

	if res.Err != nil {
		t.Fatalf("Poll err = %v", res.Err)
	}
	for _, cat := range []sensor.Category{sensor.Temperature, sensor.Fan, sensor.Power} {
		if !res.OK[cat] {
			t.Errorf("OK[%s] = false, want true", cat)
		}
	}

	temps := res.Readings[sensor.Temperature]
	if len(temps) != 2 {
		t.Fatalf("temperature readings: got %d, want 2", len(temps))
	}
	if temps[0].Label != "System Board Inlet Temp" || temps[0].Value.Int != 230 {
		t.Errorf("temps[0] = %+v", temps[0])
	}
	if temps[0].Field("upper_critical").Int != 470 {
		t.Errorf("upper_critical field = %v", temps[0].Field("upper_critical"))
	}

	power := res.Readings[sensor.Power]
	if len(power) != 1 || power[0].Identifier != "consumed" || power[0].Value.Int != 312 {
		t.Errorf("power readings = %+v", power)
	}
}

func TestTreePoller_PartialTransportFailure(t *testing.T) {
	// Only the temperature OIDs for unit 1 are answered before the failure.
	answered := map[string]bool{
		tempOID(snmp.FacetLocation, "1"): true,
		tempOID(snmp.FacetReading, "1"):  true,
		tempOID(snmp.FacetStatus, "1"):   true,
	}
	client := &fakeTreeClient{
		vals: map[string]sensor.RawValue{
			tempOID(snmp.FacetLocation, "1"): sensor.Str("Inlet"),
			tempOID(snmp.FacetReading, "1"):  sensor.Int64(230),
			tempOID(snmp.FacetStatus, "1"):   sensor.Int64(3),
		},
		answered: answered,
		err:      &snmp.TransportError{Err: errors.New("i/o timeout")},
	}

	res := newTestTreePoller(client).Poll(context.Background(), treeManifest())

	if res.Err == nil {
		t.Fatal("Poll should record the transport error")
	}
	if !res.OK[sensor.Temperature] {
		t.Error("temperature answered before the failure — OK must be true")
	}
	if res.OK[sensor.Fan] || res.OK[sensor.Power] {
		t.Error("fan and power returned nothing — OK must be false")
	}
	if len(res.Readings[sensor.Temperature]) != 1 {
		t.Errorf("temperature readings: got %d, want 1", len(res.Readings[sensor.Temperature]))
	}
}

func TestTreePoller_AbsentUnitsDropped(t *testing.T) {
	// Unit 2 answers nothing at all: it must not produce a reading.
	client := &fakeTreeClient{vals: map[string]sensor.RawValue{
		tempOID(snmp.FacetLocation, "1"): sensor.Str("Inlet"),
		tempOID(snmp.FacetReading, "1"):  sensor.Int64(230),
		tempOID(snmp.FacetStatus, "1"):   sensor.Int64(3),
	}}

	m := manifest.New("dev", baseTime)
	m.SNMP[sensor.Temperature] = []string{"1", "2"}

	res := newTestTreePoller(client).Poll(context.Background(), m)
	if got := len(res.Readings[sensor.Temperature]); got != 1 {
		t.Errorf("readings: got %d, want 1 — absent unit must be dropped", got)
	}
}

func TestTreePoller_EmptyManifestSubset(t *testing.T) {
	client := &fakeTreeClient{}
	res := newTestTreePoller(client).Poll(context.Background(), manifest.New("dev", baseTime))
	if res.Err != nil || len(res.Readings) != 0 || len(res.OK) != 0 {
		t.Errorf("empty manifest: got %+v, want empty result", res)
	}
}

func TestResult_Index(t *testing.T) {
	res := newResult(sensor.SourceSNMP, baseTime)
	res.Readings[sensor.Fan] = []sensor.Reading{
		{Identifier: "1", Label: "Fan1"},
		{Identifier: "2", Label: "Fan2"},
	}
	idx := res.Index()
	if idx[sensor.Fan]["2"].Label != "Fan2" {
		t.Errorf("Index lookup = %+v", idx[sensor.Fan]["2"])
	}
	if _, ok := idx[sensor.Fan]["3"]; ok {
		t.Error("Index must not invent identifiers")
	}
}
