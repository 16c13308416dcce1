package normalize

import (
	"testing"

	"github.com/bmcscout/bmcscout/internal/sensor"
)

func unitSensor(cat sensor.Category, id string, h sensor.Health) sensor.CanonicalSensor {
	return sensor.CanonicalSensor{
		Key:      sensor.MakeKey(cat, id),
		Category: cat,
		Health:   h,
		Source:   sensor.SourceSNMP,
	}
}

func findAggregate(t *testing.T, out []sensor.CanonicalSensor, key string) sensor.CanonicalSensor {
	t.Helper()
	for _, s := range out {
		if s.Key == key {
			return s
		}
	}
	t.Fatalf("aggregate %q not emitted (got %d sensors)", key, len(out))
	return sensor.CanonicalSensor{}
}

func TestAggregates_WorstOf(t *testing.T) {
	tests := []struct {
		name   string
		states []sensor.Health
		want   sensor.Health
	}{
		{"all ok", []sensor.Health{sensor.HealthOK, sensor.HealthOK}, sensor.HealthOK},
		{"one warning dominates ok", []sensor.Health{sensor.HealthOK, sensor.HealthOK, sensor.HealthWarning, sensor.HealthOK}, sensor.HealthWarning},
		{"critical dominates everything", []sensor.Health{sensor.HealthOK, sensor.HealthCritical, sensor.HealthWarning, sensor.HealthUnknown}, sensor.HealthCritical},
		{"unknown dominates nothing but ok absence", []sensor.Health{sensor.HealthUnknown, sensor.HealthUnknown}, sensor.HealthUnknown},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var units []sensor.CanonicalSensor
			for i, h := range tc.states {
				units = append(units, unitSensor(sensor.Memory, string(rune('1'+i)), h))
			}
			out := Aggregates(units)
			agg := findAggregate(t, out, "memory/aggregate")
			if agg.Health != tc.want {
				t.Errorf("aggregate health = %q, want %q", agg.Health, tc.want)
			}
			if agg.Value != sensor.Enum(string(tc.want)) {
				t.Errorf("aggregate value = %+v, want enum %q", agg.Value, tc.want)
			}
			if agg.Source != sensor.SourceDerived {
				t.Errorf("aggregate source = %q, want derived", agg.Source)
			}
		})
	}
}

func TestAggregates_EmptyCategoryEmitsNothing(t *testing.T) {
	units := []sensor.CanonicalSensor{
		unitSensor(sensor.Temperature, "1", sensor.HealthOK),
	}
	out := Aggregates(units)
	for _, s := range out {
		if s.Category == sensor.Fan {
			t.Fatalf("fan aggregate emitted with zero fan units: %+v", s)
		}
	}
	findAggregate(t, out, "temperature/aggregate")
}

func TestAggregates_NonStatusCategoriesExcluded(t *testing.T) {
	units := []sensor.CanonicalSensor{
		unitSensor(sensor.Intrusion, "1", sensor.HealthOK),
		unitSensor(sensor.System, "hostname", sensor.HealthOK),
	}
	if out := Aggregates(units); len(out) != 0 {
		t.Fatalf("got %d aggregates for non-status categories, want 0", len(out))
	}
}

func TestAggregates_PSURedundancySensor(t *testing.T) {
	units := []sensor.CanonicalSensor{
		unitSensor(sensor.PSU, "1", sensor.HealthOK),
		unitSensor(sensor.PSU, "2", sensor.HealthCritical),
	}
	out := Aggregates(units)
	red := findAggregate(t, out, "psu/redundancy")
	if red.Value != sensor.Enum("degraded") {
		t.Errorf("redundancy value = %+v, want degraded", red.Value)
	}
	if red.Health != sensor.HealthWarning {
		t.Errorf("redundancy health = %q, want warning", red.Health)
	}
}

func TestRedundancy_Table(t *testing.T) {
	ok := sensor.HealthOK
	crit := sensor.HealthCritical
	tests := []struct {
		name     string
		statuses []sensor.Health
		want     string
	}{
		{"no supplies", nil, "unknown"},
		{"single supply", []sensor.Health{ok}, "non_redundant"},
		{"both healthy", []sensor.Health{ok, ok}, "full"},
		{"one of two failed", []sensor.Health{ok, crit}, "degraded"},
		{"two of three failed", []sensor.Health{ok, crit, crit}, "lost"},
		{"all failed", []sensor.Health{crit, crit}, "lost"},
		{"warning is not healthy", []sensor.Health{ok, sensor.HealthWarning}, "degraded"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Redundancy(tc.statuses); got != tc.want {
				t.Errorf("Redundancy(%v) = %q, want %q", tc.statuses, got, tc.want)
			}
		})
	}
}
