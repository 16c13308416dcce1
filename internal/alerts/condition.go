package alerts

import (
	"strconv"
	"strings"

	"github.com/bmcscout/bmcscout/internal/certcheck"
	"github.com/bmcscout/bmcscout/internal/sensor"
)

// evalCondition evaluates a rule condition string against a device snapshot.
//
// Supported expressions (field operator value):
//
//	temperature_max_c > 85
//	power_watts > 900
//	critical_count > 0
//	warning_count > 2
//	unknown_count > 5
//	intrusion == 1
//	state == critical
//	state == warning
//	cert_days_left < 14
//
// Returns (fires bool, triggering value float64).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, snap *sensor.Snapshot, cert *certcheck.Status) (bool, float64) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	switch field {
	case "state":
		if op == "==" {
			return string(snap.WorstHealth()) == rhs, 0
		}
		return false, 0

	case "cert_days_left":
		if cert == nil || cert.State == "unreachable" {
			return false, 0
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		v := float64(cert.DaysLeft)
		return compareFloat(v, op, threshold), v

	default:
		v, ok := numericField(field, snap)
		if !ok {
			return false, 0
		}
		threshold, err := strconv.ParseFloat(rhs, 64)
		if err != nil {
			return false, 0
		}
		return compareFloat(v, op, threshold), v
	}
}

// numericField maps a field name to its value in the snapshot.
func numericField(field string, snap *sensor.Snapshot) (float64, bool) {
	counts := func(h sensor.Health) float64 {
		return float64(snap.CountByHealth()[h])
	}
	switch field {
	case "temperature_max_c":
		v, ok := snap.MaxTemperatureC()
		return v, ok
	case "power_watts":
		v, ok := snap.PowerWatts()
		return v, ok
	case "critical_count":
		return counts(sensor.HealthCritical), true
	case "warning_count":
		return counts(sensor.HealthWarning), true
	case "unknown_count":
		return counts(sensor.HealthUnknown), true
	case "intrusion":
		detected, ok := snap.IntrusionDetected()
		if !ok {
			return 0, false
		}
		if detected {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// compareFloat applies a comparison operator to two float64 values.
func compareFloat(v float64, op string, threshold float64) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
