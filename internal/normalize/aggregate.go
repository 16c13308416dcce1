package normalize

import "github.com/bmcscout/bmcscout/internal/sensor"

// statusCategories are the categories that expose a derived worst-of
// aggregate sensor alongside their unit sensors.
var statusCategories = []sensor.Category{
	sensor.Temperature,
	sensor.Fan,
	sensor.PSU,
	sensor.Voltage,
	sensor.Memory,
	sensor.Processor,
}

// aggregateLabels name the derived sensors.
var aggregateLabels = map[sensor.Category]string{
	sensor.Temperature: "Temperature Health",
	sensor.Fan:         "Fan Health",
	sensor.PSU:         "Power Supply Health",
	sensor.Voltage:     "Voltage Health",
	sensor.Memory:      "Memory Health",
	sensor.Processor:   "Processor Health",
}

// Aggregates computes the derived sensors for a cycle's unit sensors: one
// worst-of health aggregate per status category that has at least one unit,
// plus the PSU redundancy sensor. An aggregate over zero siblings would be
// unknown, never ok — so categories with no units emit no aggregate at all
// rather than a misleading one.
func Aggregates(units []sensor.CanonicalSensor) []sensor.CanonicalSensor {
	byCat := make(map[sensor.Category][]sensor.Health)
	for i := range units {
		u := &units[i]
		byCat[u.Category] = append(byCat[u.Category], u.Health)
	}

	var out []sensor.CanonicalSensor
	for _, cat := range statusCategories {
		states := byCat[cat]
		if len(states) == 0 {
			continue
		}
		h := sensor.Worst(states)
		out = append(out, sensor.CanonicalSensor{
			Key:      sensor.MakeKey(cat, "aggregate"),
			Category: cat,
			Label:    aggregateLabels[cat],
			Value:    sensor.Enum(string(h)),
			Health:   h,
			Source:   sensor.SourceDerived,
		})
	}

	if psu := byCat[sensor.PSU]; len(psu) > 0 {
		r := Redundancy(psu)
		out = append(out, sensor.CanonicalSensor{
			Key:      sensor.MakeKey(sensor.PSU, "redundancy"),
			Category: sensor.PSU,
			Label:    "Power Supply Redundancy",
			Value:    sensor.Enum(r),
			Health:   redundancyHealth(r),
			Source:   sensor.SourceDerived,
		})
	}
	return out
}

// Redundancy derives the PSU redundancy state from the sibling supply
// healths: all ok is full redundancy, at least half ok is degraded, fewer is
// lost. A single supply cannot be redundant; zero supplies is unknown.
func Redundancy(statuses []sensor.Health) string {
	switch len(statuses) {
	case 0:
		return "unknown"
	case 1:
		return "non_redundant"
	}
	ok := 0
	for _, s := range statuses {
		if s == sensor.HealthOK {
			ok++
		}
	}
	switch {
	case ok == len(statuses):
		return "full"
	case ok*2 >= len(statuses):
		return "degraded"
	default:
		return "lost"
	}
}

func redundancyHealth(r string) sensor.Health {
	switch r {
	case "full", "non_redundant":
		return sensor.HealthOK
	case "degraded":
		return sensor.HealthWarning
	case "lost":
		return sensor.HealthCritical
	default:
		return sensor.HealthUnknown
	}
}
