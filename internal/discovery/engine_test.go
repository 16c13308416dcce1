package discovery

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/bmcscout/bmcscout/internal/redfish"
	"github.com/bmcscout/bmcscout/internal/sensor"
	"github.com/bmcscout/bmcscout/internal/snmp"
)

var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeTree answers probes from a set of present OIDs. unreachable makes
// every call fail transport-level.
type fakeTree struct {
	present     map[string]sensor.RawValue
	unreachable bool
}

func (f *fakeTree) Get(_ context.Context, oids []string) (map[string]sensor.RawValue, error) {
	if f.unreachable {
		return nil, &snmp.TransportError{Err: errors.New("i/o timeout")}
	}
	out := make(map[string]sensor.RawValue, len(oids))
	for _, oid := range oids {
		if v, ok := f.present[oid]; ok {
			out[oid] = v
		} else {
			out[oid] = sensor.Absent()
		}
	}
	return out, nil
}

func (f *fakeTree) Probe(ctx context.Context, oid string) bool {
	vals, err := f.Get(ctx, []string{oid})
	if err != nil {
		return false
	}
	return !vals[oid].IsAbsent()
}

// fakeGraph serves canned bodies; everything else is 404. unreachable fails
// transport-level; authRejected answers every path with a credential error.
type fakeGraph struct {
	bodies       map[string][]byte
	unreachable  bool
	authRejected bool
}

func (f *fakeGraph) Fetch(_ context.Context, path string) ([]byte, error) {
	if f.unreachable {
		return nil, &redfish.TransportError{Err: errors.New("connection refused")}
	}
	if f.authRejected {
		return nil, &redfish.AuthError{StatusCode: 401}
	}
	if body, ok := f.bodies[path]; ok {
		return body, nil
	}
	return nil, redfish.ErrNotFound
}

func (f *fakeGraph) SystemPath() string  { return "/redfish/v1/Systems/System.Embedded.1" }
func (f *fakeGraph) ThermalPath() string { return "/redfish/v1/Chassis/System.Embedded.1/Thermal" }
func (f *fakeGraph) PowerPath() string   { return "/redfish/v1/Chassis/System.Embedded.1/Power" }
func (f *fakeGraph) ChassisPath() string { return "/redfish/v1/Chassis/System.Embedded.1" }
func (f *fakeGraph) ManagerPath() string { return "/redfish/v1/Managers/iDRAC.Embedded.1" }

// populateTree marks count units present for cat via its probe column.
func populateTree(f *fakeTree, cat sensor.Category, count int) {
	table := snmp.Tables[cat]
	col, _ := table.Column(table.Probe)
	for i := 1; i <= count; i++ {
		f.present[snmp.UnitOID(col, strconv.Itoa(i))] = sensor.Str("unit " + strconv.Itoa(i))
	}
}

func newTestEngine(tree TreeClient, graph *fakeGraph) *Engine {
	var e *Engine
	if graph == nil {
		e = New(tree, nil, time.Second)
	} else {
		e = New(tree, graph, time.Second)
	}
	e.now = func() time.Time { return baseTime }
	return e
}

func TestDiscover_TreeIndexWalk(t *testing.T) {
	tree := &fakeTree{present: map[string]sensor.RawValue{}}
	populateTree(tree, sensor.Temperature, 4)
	populateTree(tree, sensor.Fan, 6)
	populateTree(tree, sensor.PSU, 2)
	tree.present[snmp.SystemFacets["hostname"]] = sensor.Str("web01")
	tree.present[snmp.SystemFacets["model"]] = sensor.Str("PowerEdge R740")
	tree.present[snmp.PowerFacets["consumed"]] = sensor.Int64(312)

	m, err := newTestEngine(tree, nil).Discover(context.Background(), "dev")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if got := m.SNMP[sensor.Temperature]; len(got) != 4 || got[3] != "4" {
		t.Errorf("temperature ids = %v, want 1..4", got)
	}
	if got := m.SNMP[sensor.Fan]; len(got) != 6 {
		t.Errorf("fan ids = %v, want 6", got)
	}
	if got := m.SNMP[sensor.System]; len(got) != 2 || got[0] != "hostname" || got[1] != "model" {
		t.Errorf("system facets = %v, want [hostname model]", got)
	}
	if got := m.SNMP[sensor.Power]; len(got) != 1 || got[0] != "consumed" {
		t.Errorf("power facets = %v, want [consumed]", got)
	}
	// Undiscovered categories carry no identifiers but do not fail discovery.
	if got := m.SNMP[sensor.Memory]; len(got) != 0 {
		t.Errorf("memory ids = %v, want none", got)
	}
}

func TestDiscover_TreeToleratesIndexHoles(t *testing.T) {
	// Units 1, 2 and 4 present: the single hole at 3 must not end the walk.
	tree := &fakeTree{present: map[string]sensor.RawValue{}}
	table := snmp.Tables[sensor.PSU]
	col, _ := table.Column(table.Probe)
	for _, i := range []string{"1", "2", "4"} {
		tree.present[snmp.UnitOID(col, i)] = sensor.Str("PS" + i)
	}

	m, err := newTestEngine(tree, nil).Discover(context.Background(), "dev")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	got := m.SNMP[sensor.PSU]
	if len(got) != 3 || got[2] != "4" {
		t.Errorf("psu ids = %v, want [1 2 4]", got)
	}
}

func TestDiscover_GraphEndpoints(t *testing.T) {
	graph := &fakeGraph{bodies: map[string][]byte{}}
	graph.bodies[graph.ThermalPath()] = []byte(`{
	  "Temperatures": [{"Name": "Inlet", "ReadingCelsius": 23, "Status": {"Health": "OK"}},
	                   {"Name": "CPU1", "ReadingCelsius": 55, "Status": {"Health": "OK"}}],
	  "Fans": [{"Name": "Fan1", "Reading": 4200, "Status": {"Health": "OK"}}]
	}`)
	graph.bodies[graph.SystemPath()] = []byte(`{
	  "HostName": "web01", "PowerState": "On",
	  "MemorySummary": {"Status": {"Health": "OK", "State": "Enabled"}}
	}`)
	graph.bodies[graph.ChassisPath()] = []byte(`{
	  "PhysicalSecurity": {"IntrusionSensor": "Normal"}, "Status": {"Health": "OK"}
	}`)

	m, err := newTestEngine(nil, graph).Discover(context.Background(), "dev")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if got := m.Redfish[sensor.Temperature]; len(got) != 2 || got[1] != "2" {
		t.Errorf("temperature ids = %v, want [1 2]", got)
	}
	if got := m.Redfish[sensor.Fan]; len(got) != 1 {
		t.Errorf("fan ids = %v, want [1]", got)
	}
	if got := m.Redfish[sensor.System]; len(got) != 2 {
		t.Errorf("system facets = %v, want [hostname power_state]", got)
	}
	if got := m.Redfish[sensor.Memory]; len(got) != 1 || got[0] != "summary" {
		t.Errorf("memory ids = %v, want [summary]", got)
	}
	if got := m.Redfish[sensor.Intrusion]; len(got) != 1 {
		t.Errorf("intrusion ids = %v, want [1]", got)
	}
	// The /Power resource 404'd: its categories are simply absent.
	if len(m.Redfish[sensor.PSU]) != 0 || len(m.Redfish[sensor.Power]) != 0 {
		t.Error("404'd resource must yield no identifiers")
	}
}

func TestDiscover_IdempotentKeying(t *testing.T) {
	tree := &fakeTree{present: map[string]sensor.RawValue{}}
	populateTree(tree, sensor.Fan, 3)

	e := newTestEngine(tree, nil)
	a, err := e.Discover(context.Background(), "dev")
	if err != nil {
		t.Fatal(err)
	}
	b, err := e.Discover(context.Background(), "dev")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(a.SNMP[sensor.Fan], ",") != strings.Join(b.SNMP[sensor.Fan], ",") {
		t.Errorf("discovery not idempotent: %v vs %v", a.SNMP[sensor.Fan], b.SNMP[sensor.Fan])
	}
}

func TestDiscover_OneProtocolDownIsNotFatal(t *testing.T) {
	tree := &fakeTree{unreachable: true}
	graph := &fakeGraph{bodies: map[string][]byte{}}
	graph.bodies[graph.ThermalPath()] = []byte(`{"Fans": [{"Name": "Fan1", "Reading": 4000, "Status": {"Health": "OK"}}]}`)

	m, err := newTestEngine(tree, graph).Discover(context.Background(), "dev")
	if err != nil {
		t.Fatalf("Discover with one live protocol: %v", err)
	}
	if len(m.SNMP) != 0 {
		t.Errorf("unreachable snmp side yielded %v", m.SNMP)
	}
	if len(m.Redfish[sensor.Fan]) != 1 {
		t.Errorf("redfish fan ids = %v, want [1]", m.Redfish[sensor.Fan])
	}
}

func TestDiscover_AllPathsAuthRejectedFails(t *testing.T) {
	// The service answers every probe with 401: reachable, but nothing is
	// identifiable. Accepting the empty manifest would doom every poll
	// cycle, so discovery must fail and leave the caller to retry.
	graph := &fakeGraph{authRejected: true}

	_, err := newTestEngine(nil, graph).Discover(context.Background(), "dev")
	if err == nil {
		t.Fatal("Discover with every path auth-rejected must fail")
	}
	var derr *Error
	if !errors.As(err, &derr) {
		t.Errorf("error type = %T, want *discovery.Error", err)
	}
}

func TestDiscover_ResponsiveButBarrenTreeFails(t *testing.T) {
	// The agent answers but exposes no sensors at all. An empty manifest is
	// useless, so discovery reports failure rather than success.
	tree := &fakeTree{present: map[string]sensor.RawValue{}}

	if _, err := newTestEngine(tree, nil).Discover(context.Background(), "dev"); err == nil {
		t.Fatal("Discover with a barren tree must fail")
	}
}

func TestDiscover_AllProtocolsDownFails(t *testing.T) {
	tree := &fakeTree{unreachable: true}
	graph := &fakeGraph{unreachable: true}

	_, err := newTestEngine(tree, graph).Discover(context.Background(), "dev")
	if err == nil {
		t.Fatal("Discover with no live protocol must fail")
	}
	var derr *Error
	if !errors.As(err, &derr) {
		t.Errorf("error type = %T, want *discovery.Error", err)
	}
}
