package normalize

import (
	"log/slog"

	"github.com/bmcscout/bmcscout/internal/reconcile"
	"github.com/bmcscout/bmcscout/internal/sensor"
)

// Policy holds the per-device normalization choices that are deliberately
// configurable rather than hard-coded.
type Policy struct {
	// IntrusionUnknownIsBreach flips the safe default for unrecognized
	// intrusion states. False (the default) treats an unknown state as "no
	// intrusion": a false negative is preferred over a false alarm for
	// non-security-critical fleets, and the choice is documented so
	// operators can audit it.
	IntrusionUnknownIsBreach bool
}

// Sensor converts one reconciled reading into its canonical sensor. Raw
// values the mapping tables do not recognize resolve to the category's safe
// default and are logged as diagnostics — never surfaced as errors.
func Sensor(sel reconcile.Selected, pol Policy) sensor.CanonicalSensor {
	out := sensor.CanonicalSensor{
		Key:      sel.Key,
		Category: sel.Category,
		Label:    sel.Reading.Label,
		Source:   sel.Source,
	}
	if out.Label == "" {
		out.Label = defaultLabel(sel)
	}

	if sel.Source == sensor.SourceNone {
		out.Value = safeDefault(sel.Category, pol)
		out.Health = sensor.HealthUnknown
		return out
	}

	switch sel.Category {
	case sensor.Temperature:
		normalizeTemperature(sel.Reading, &out)
	case sensor.Fan:
		out.Value = sensor.Num(numericValue(sel.Reading))
		out.Unit = "RPM"
		out.Health = healthOf(sel.Reading, sel.Category)
	case sensor.Voltage:
		normalizeVoltage(sel.Reading, &out)
	case sensor.Power:
		out.Value = sensor.Num(numericValue(sel.Reading))
		out.Unit = "W"
		out.Health = presenceHealth(sel.Reading)
	case sensor.Intrusion:
		out.Value = sensor.Bool(intrusionValue(sel.Reading, pol))
		out.Health = healthOf(sel.Reading, sel.Category)
	case sensor.PSU, sensor.Memory, sensor.Battery, sensor.Processor:
		h := healthOf(sel.Reading, sel.Category)
		out.Value = sensor.Enum(string(h))
		out.Health = h
	case sensor.System:
		normalizeSystemFacet(sel.Reading, &out)
	case sensor.Manager:
		out.Value = sensor.Enum(sel.Reading.Value.Str)
		out.Health = healthOf(sel.Reading, sel.Category)
	default:
		out.Value = sensor.Enum(string(sensor.HealthUnknown))
		out.Health = sensor.HealthUnknown
	}
	return out
}

// safeDefault is the value a sensor carries when no protocol had data and no
// previous value exists to retain.
func safeDefault(cat sensor.Category, pol Policy) sensor.Value {
	switch cat {
	case sensor.Intrusion:
		return sensor.Bool(pol.IntrusionUnknownIsBreach)
	case sensor.Temperature, sensor.Fan, sensor.Voltage, sensor.Power:
		return sensor.Num(0)
	case sensor.System, sensor.Manager:
		return sensor.Enum("")
	default:
		return sensor.Enum(string(sensor.HealthUnknown))
	}
}

// defaultLabel names a sensor whose protocol reported no location string.
func defaultLabel(sel reconcile.Selected) string {
	return string(sel.Category) + " " + sel.Unit.ID
}

// numericValue extracts the primary measurement, zero when absent.
func numericValue(rd sensor.Reading) float64 {
	f, _ := rd.Value.AsFloat()
	return f
}

func normalizeTemperature(rd sensor.Reading, out *sensor.CanonicalSensor) {
	out.Unit = "C"
	out.Health = healthOf(rd, sensor.Temperature)
	out.Value = sensor.Num(scaleTemp(rd.Protocol, numericValue(rd)))

	if v, ok := rd.Field("upper_critical").AsFloat(); ok {
		scaled := scaleTemp(rd.Protocol, v)
		out.UpperCritical = &scaled
	}
	if v, ok := rd.Field("upper_warning").AsFloat(); ok {
		scaled := scaleTemp(rd.Protocol, v)
		out.UpperWarning = &scaled
	}
}

// scaleTemp converts the tree protocol's tenths-of-degree readings. Values
// at or below 100 are already whole degrees — the firmware reports small
// probes (ambient, NDC) unscaled.
func scaleTemp(p sensor.Protocol, v float64) float64 {
	if p == sensor.SourceSNMP && v > 100 {
		return v / 10
	}
	return v
}

func normalizeVoltage(rd sensor.Reading, out *sensor.CanonicalSensor) {
	out.Unit = "V"
	out.Health = healthOf(rd, sensor.Voltage)
	v := numericValue(rd)
	// The tree protocol reports millivolts for system voltage probes.
	if rd.Protocol == sensor.SourceSNMP && v > 1000 {
		v /= 1000
	}
	out.Value = sensor.Num(v)
}

func normalizeSystemFacet(rd sensor.Reading, out *sensor.CanonicalSensor) {
	if rd.Identifier == "power_state" {
		on, ok := powerStateValue(rd.Value.Str)
		if !ok {
			slog.Debug("normalize: unrecognized power state",
				"value", rd.Value.Str)
		}
		out.Value = sensor.Bool(on)
		out.Health = sensor.HealthOK
		return
	}
	out.Value = sensor.Enum(rd.Value.Str)
	out.Health = presenceHealth(rd)
}

// powerStateValue maps the graph protocol's power state strings. Transitional
// states report the last stable state: PoweringOff means the host is still
// on, PoweringOn means it was off. ok is false for strings outside the table,
// which resolve to the safe default (off).
func powerStateValue(s string) (on, ok bool) {
	switch s {
	case "On", "PoweringOff":
		return true, true
	case "Off", "PoweringOn":
		return false, true
	}
	return false, false
}

// intrusionValue maps both protocols' intrusion encodings to a breach bool.
// The tree protocol reports a small code, the graph protocol a string; both
// fall back to the policy's safe default when unrecognized.
func intrusionValue(rd sensor.Reading, pol Policy) bool {
	switch rd.Value.Kind {
	case sensor.KindInt:
		switch rd.Value.Int {
		case 1: // breach detected
			return true
		case 2, 3: // no breach, ok
			return false
		}
		slog.Debug("normalize: unrecognized intrusion code", "code", rd.Value.Int)
		return pol.IntrusionUnknownIsBreach
	case sensor.KindString:
		switch rd.Value.Str {
		case "Normal":
			return false
		case "HardwareIntrusion", "TamperingDetected":
			return true
		}
		slog.Debug("normalize: unrecognized intrusion state", "state", rd.Value.Str)
		return pol.IntrusionUnknownIsBreach
	}
	return pol.IntrusionUnknownIsBreach
}

// presenceHealth is the health of facets with no health notion of their own:
// ok when any data is present.
func presenceHealth(rd sensor.Reading) sensor.Health {
	if rd.Value.IsAbsent() && rd.Status.IsAbsent() {
		return sensor.HealthUnknown
	}
	return sensor.HealthOK
}

// healthOf normalizes the reading's raw status facet: integer codes through
// the tree protocol's ladder, strings through the graph protocol's table.
func healthOf(rd sensor.Reading, cat sensor.Category) sensor.Health {
	switch rd.Status.Kind {
	case sensor.KindInt:
		return treeHealth(rd.Status.Int, cat)
	case sensor.KindString:
		return graphHealth(rd.Status.Str)
	}
	return sensor.HealthUnknown
}

// treeHealth maps the tree protocol's status codes. The generic ladder is
// 1=other 2=unknown 3=ok 4=nonCritical 5=critical 6=nonRecoverable;
// temperature probes extend it with lower-threshold and failed states.
func treeHealth(code int64, cat sensor.Category) sensor.Health {
	switch code {
	case 3:
		return sensor.HealthOK
	case 4:
		return sensor.HealthWarning
	case 5, 6:
		return sensor.HealthCritical
	case 1, 2:
		return sensor.HealthUnknown
	}
	if cat == sensor.Temperature {
		switch code {
		case 7:
			return sensor.HealthWarning
		case 8, 9, 10:
			return sensor.HealthCritical
		}
	}
	slog.Debug("normalize: unrecognized status code", "category", cat, "code", code)
	return sensor.HealthUnknown
}

// graphHealth maps the graph protocol's Status.Health strings.
func graphHealth(s string) sensor.Health {
	switch s {
	case "OK":
		return sensor.HealthOK
	case "Warning":
		return sensor.HealthWarning
	case "Critical":
		return sensor.HealthCritical
	}
	slog.Debug("normalize: unrecognized health string", "health", s)
	return sensor.HealthUnknown
}
