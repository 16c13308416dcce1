package snmp

import "github.com/bmcscout/bmcscout/internal/sensor"

// Facet names shared with the normalizer. Each facet is one MIB table column.
const (
	FacetLocation      = "location"
	FacetReading       = "reading"
	FacetStatus        = "status"
	FacetUpperCritical = "upper_critical"
	FacetUpperWarning  = "upper_warning"
	FacetSizeKB        = "size_kb"
	FacetMaxWatts      = "max_watts"
	FacetCurrentWatts  = "current_watts"
)

// Column is one MIB table column fetched per unit.
type Column struct {
	Facet string
	OID   string // column prefix; the unit's OID is OID + "." + index
}

// Table describes one category's layout in the Dell enterprise MIB.
type Table struct {
	Category sensor.Category

	// Probe is the column used for existence probing during discovery.
	Probe string

	Columns []Column
}

// Column returns the column carrying the given facet, or false.
func (t Table) Column(facet string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Facet == facet {
			return c, true
		}
	}
	return Column{}, false
}

// UnitOID composes the full OID for one unit's facet.
func UnitOID(col Column, identifier string) string {
	return col.OID + "." + identifier
}

// Dell iDRAC enterprise MIB prefixes (IDRAC-MIB-SMIv2).
const dellBase = "1.3.6.1.4.1.674.10892.5"

// Tables maps each unit-indexed category to its MIB table.
var Tables = map[sensor.Category]Table{
	sensor.Temperature: {
		Category: sensor.Temperature,
		Probe:    FacetLocation,
		Columns: []Column{
			{FacetLocation, dellBase + ".4.700.20.1.8.1"},
			{FacetReading, dellBase + ".4.700.20.1.6.1"},
			{FacetStatus, dellBase + ".4.700.20.1.5.1"},
			{FacetUpperCritical, dellBase + ".4.700.20.1.10.1"},
			{FacetUpperWarning, dellBase + ".4.700.20.1.11.1"},
		},
	},
	sensor.Fan: {
		Category: sensor.Fan,
		Probe:    FacetLocation,
		Columns: []Column{
			{FacetLocation, dellBase + ".4.700.12.1.8.1"},
			{FacetReading, dellBase + ".4.700.12.1.6.1"},
			{FacetStatus, dellBase + ".4.700.12.1.5.1"},
		},
	},
	sensor.PSU: {
		Category: sensor.PSU,
		Probe:    FacetLocation,
		Columns: []Column{
			{FacetLocation, dellBase + ".4.600.12.1.8.1"},
			{FacetStatus, dellBase + ".4.600.12.1.5.1"},
			{FacetMaxWatts, dellBase + ".4.600.12.1.15.1"},
			{FacetCurrentWatts, dellBase + ".4.600.12.1.16.1"},
		},
	},
	sensor.Voltage: {
		Category: sensor.Voltage,
		Probe:    FacetLocation,
		Columns: []Column{
			{FacetLocation, dellBase + ".4.600.20.1.8.1"},
			{FacetReading, dellBase + ".4.600.20.1.6.1"},
			{FacetStatus, dellBase + ".4.600.20.1.5.1"},
		},
	},
	sensor.Memory: {
		Category: sensor.Memory,
		Probe:    FacetLocation,
		Columns: []Column{
			{FacetLocation, dellBase + ".4.1100.50.1.8.1"},
			{FacetStatus, dellBase + ".4.1100.50.1.5.1"},
			{FacetSizeKB, dellBase + ".4.1100.50.1.14.1"},
		},
	},
	sensor.Intrusion: {
		Category: sensor.Intrusion,
		Probe:    FacetLocation,
		Columns: []Column{
			{FacetLocation, dellBase + ".4.300.70.1.8.1"},
			{FacetReading, dellBase + ".4.300.70.1.6.1"},
			{FacetStatus, dellBase + ".4.300.70.1.5.1"},
		},
	},
	sensor.Battery: {
		Category: sensor.Battery,
		Probe:    FacetReading,
		Columns: []Column{
			{FacetReading, dellBase + ".4.600.50.1.6.1"},
			{FacetStatus, dellBase + ".4.600.50.1.5.1"},
		},
	},
	sensor.Processor: {
		Category: sensor.Processor,
		Probe:    FacetLocation,
		Columns: []Column{
			{FacetLocation, dellBase + ".4.1200.10.1.8.1"},
			{FacetReading, dellBase + ".4.1200.10.1.6.1"},
			{FacetStatus, dellBase + ".4.1200.10.1.5.1"},
		},
	},
}

// SystemFacets maps identity facet names to their scalar OIDs.
var SystemFacets = map[string]string{
	"hostname":     "1.3.6.1.2.1.1.5.0",
	"model":        dellBase + ".1.3.12.0",
	"service_tag":  dellBase + ".1.3.2.0",
	"bios_version": dellBase + ".1.3.6.0",
}

// PowerFacets maps chassis power-draw facet names to their scalar OIDs.
// These are amperage-probe entries the firmware pins to probe index 3.
var PowerFacets = map[string]string{
	"consumed": dellBase + ".4.600.30.1.6.1.3",
	"peak":     dellBase + ".4.600.30.1.7.1.3",
}

// ScalarFacets returns the facet→OID map for a scalar category, or nil for
// unit-indexed categories.
func ScalarFacets(cat sensor.Category) map[string]string {
	switch cat {
	case sensor.System:
		return SystemFacets
	case sensor.Power:
		return PowerFacets
	}
	return nil
}
