package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/bmcscout/bmcscout/internal/sensor"
)

// Manifest records which identifiers each protocol confirmed present,
// per category, in probe order.
type Manifest struct {
	DeviceID string    `json:"device_id"`
	BuiltAt  time.Time `json:"built_at"`

	SNMP    map[sensor.Category][]string `json:"snmp"`
	Redfish map[sensor.Category][]string `json:"redfish"`
}

// New returns an empty manifest for the given device.
func New(deviceID string, builtAt time.Time) *Manifest {
	return &Manifest{
		DeviceID: deviceID,
		BuiltAt:  builtAt,
		SNMP:     make(map[sensor.Category][]string),
		Redfish:  make(map[sensor.Category][]string),
	}
}

// Identifiers returns the ordered identifier list for one protocol and
// category. Unknown protocols return nil.
func (m *Manifest) Identifiers(p sensor.Protocol, cat sensor.Category) []string {
	switch p {
	case sensor.SourceSNMP:
		return m.SNMP[cat]
	case sensor.SourceRedfish:
		return m.Redfish[cat]
	}
	return nil
}

// Empty reports whether no protocol discovered any identifier at all.
func (m *Manifest) Empty() bool {
	for _, ids := range m.SNMP {
		if len(ids) > 0 {
			return false
		}
	}
	for _, ids := range m.Redfish {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// Unit is one logical physical unit within a category, with the identifier
// each protocol uses for it. Either side may be empty when only one protocol
// knows the unit.
type Unit struct {
	// ID is the canonical identifier the unit's sensor key derives from:
	// the SNMP identifier when present, otherwise the Redfish one.
	ID      string
	SNMP    string
	Redfish string
}

// facetCategories pair identifiers by name rather than position: their
// identifiers are facet names like "hostname" or "consumed", not unit indexes.
// Memory and processor are included because Redfish reports them as a single
// "summary" facet while SNMP enumerates per-module units — pairing those by
// position would glue the summary onto module 1.
var facetCategories = map[sensor.Category]bool{
	sensor.System:    true,
	sensor.Manager:   true,
	sensor.Power:     true,
	sensor.Memory:    true,
	sensor.Processor: true,
}

// Units zips both protocols' identifiers for cat into logical units.
// Numeric-identifier categories pair by list position; facet categories pair
// by identifier name. Order is deterministic: shared units first in SNMP
// order, then units only the other protocol knows.
func (m *Manifest) Units(cat sensor.Category) []Unit {
	snmpIDs := m.SNMP[cat]
	redfishIDs := m.Redfish[cat]

	if facetCategories[cat] {
		return zipByName(snmpIDs, redfishIDs)
	}
	return zipByPosition(snmpIDs, redfishIDs)
}

func zipByPosition(snmpIDs, redfishIDs []string) []Unit {
	n := len(snmpIDs)
	if len(redfishIDs) > n {
		n = len(redfishIDs)
	}
	units := make([]Unit, 0, n)
	for i := 0; i < n; i++ {
		var u Unit
		if i < len(snmpIDs) {
			u.SNMP = snmpIDs[i]
			u.ID = snmpIDs[i]
		}
		if i < len(redfishIDs) {
			u.Redfish = redfishIDs[i]
			if u.ID == "" {
				u.ID = redfishIDs[i]
			}
		}
		units = append(units, u)
	}
	return units
}

func zipByName(snmpIDs, redfishIDs []string) []Unit {
	seen := make(map[string]bool, len(snmpIDs))
	units := make([]Unit, 0, len(snmpIDs)+len(redfishIDs))
	for _, id := range snmpIDs {
		seen[id] = true
		u := Unit{ID: id, SNMP: id}
		for _, rid := range redfishIDs {
			if rid == id {
				u.Redfish = rid
				break
			}
		}
		units = append(units, u)
	}
	for _, rid := range redfishIDs {
		if !seen[rid] {
			units = append(units, Unit{ID: rid, Redfish: rid})
		}
	}
	return units
}

// Save writes the manifest as indented JSON to path.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("manifest: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("manifest: write %q: %w", path, err)
	}
	return nil
}

// Load reads a previously saved manifest from path.
// An empty manifest on disk is rejected so callers fall back to discovery.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: read %q: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("manifest: parse %q: %w", path, err)
	}
	if m.SNMP == nil {
		m.SNMP = make(map[sensor.Category][]string)
	}
	if m.Redfish == nil {
		m.Redfish = make(map[sensor.Category][]string)
	}
	if m.Empty() {
		return nil, fmt.Errorf("manifest: %q holds no identifiers", path)
	}
	return &m, nil
}
