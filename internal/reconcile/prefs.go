package reconcile

import "github.com/bmcscout/bmcscout/internal/sensor"

// Preferences maps every category to the protocol consulted first when both
// report the same logical unit. The table is total: every category has
// exactly one entry, and the preferred protocol always wins on conflict —
// there is no averaging or agreement checking.
type Preferences map[sensor.Category]sensor.Protocol

// DefaultPreferences returns the built-in table: environmental and health
// categories read SNMP first (the tree values are the firmware's own probe
// readings), identity and management state read Redfish first.
func DefaultPreferences() Preferences {
	return Preferences{
		sensor.Temperature: sensor.SourceSNMP,
		sensor.Fan:         sensor.SourceSNMP,
		sensor.PSU:         sensor.SourceSNMP,
		sensor.Voltage:     sensor.SourceSNMP,
		sensor.Power:       sensor.SourceSNMP,
		sensor.Memory:      sensor.SourceSNMP,
		sensor.Intrusion:   sensor.SourceSNMP,
		sensor.Battery:     sensor.SourceSNMP,
		sensor.Processor:   sensor.SourceSNMP,
		sensor.System:      sensor.SourceRedfish,
		sensor.Manager:     sensor.SourceRedfish,
	}
}

// WithOverrides returns a copy of p with per-category overrides applied.
// Override keys are category names, values "snmp" or "redfish"; unknown
// categories are ignored (config validation rejects unknown protocols).
func (p Preferences) WithOverrides(overrides map[string]string) Preferences {
	out := make(Preferences, len(p))
	for cat, proto := range p {
		out[cat] = proto
	}
	for name, proto := range overrides {
		cat := sensor.Category(name)
		if _, ok := out[cat]; !ok {
			continue
		}
		switch proto {
		case "snmp":
			out[cat] = sensor.SourceSNMP
		case "redfish":
			out[cat] = sensor.SourceRedfish
		}
	}
	return out
}

// Preferred returns the protocol consulted first for cat.
func (p Preferences) Preferred(cat sensor.Category) sensor.Protocol {
	if proto, ok := p[cat]; ok {
		return proto
	}
	return sensor.SourceSNMP
}

// Other returns the protocol that is not proto.
func Other(proto sensor.Protocol) sensor.Protocol {
	if proto == sensor.SourceSNMP {
		return sensor.SourceRedfish
	}
	return sensor.SourceSNMP
}
