package sensor

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Protocol identifies which client produced a reading.
type Protocol string

const (
	SourceSNMP    Protocol = "snmp"
	SourceRedfish Protocol = "redfish"

	// SourceNone marks a sensor whose value is a safe default because no
	// protocol had data for it this cycle.
	SourceNone Protocol = "none"

	// SourceDerived marks a sensor computed from sibling sensors rather
	// than read from a protocol (aggregates, PSU redundancy).
	SourceDerived Protocol = "derived"
)

// Category is the closed set of physical sensor classes.
type Category string

const (
	Temperature Category = "temperature"
	Fan         Category = "fan"
	PSU         Category = "psu"
	Voltage     Category = "voltage"
	Power       Category = "power"
	Memory      Category = "memory"
	Intrusion   Category = "intrusion"
	Battery     Category = "battery"
	Processor   Category = "processor"
	System      Category = "system"
	Manager     Category = "manager"
)

// Categories lists every category in display order. Discovery, reconciliation
// and snapshot assembly iterate this slice so output ordering is deterministic.
var Categories = []Category{
	Temperature, Fan, PSU, Voltage, Power,
	Memory, Intrusion, Battery, Processor,
	System, Manager,
}

// Kind discriminates the payload carried by a RawValue.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindInt
	KindFloat
	KindString
)

// RawValue is the tagged variant handed from a protocol client to the
// normalizer. Exactly one payload field is meaningful, selected by Kind.
// Absent is a first-class outcome — a probe miss or a null JSON field —
// and never an error.
type RawValue struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

// Absent returns the absent RawValue.
func Absent() RawValue { return RawValue{Kind: KindAbsent} }

// Int64 returns a RawValue carrying an integer code or measurement.
func Int64(v int64) RawValue { return RawValue{Kind: KindInt, Int: v} }

// Float64 returns a RawValue carrying a floating-point measurement.
func Float64(v float64) RawValue { return RawValue{Kind: KindFloat, Float: v} }

// Str returns a RawValue carrying a free-form string.
func Str(v string) RawValue { return RawValue{Kind: KindString, Str: v} }

// IsAbsent reports whether no payload is present.
func (v RawValue) IsAbsent() bool { return v.Kind == KindAbsent }

// AsFloat converts an int or float payload to float64.
// ok is false for absent and string payloads.
func (v RawValue) AsFloat() (f float64, ok bool) {
	switch v.Kind {
	case KindInt:
		return float64(v.Int), true
	case KindFloat:
		return v.Float, true
	}
	return 0, false
}

// String renders the payload for logs and diagnostics.
func (v RawValue) String() string {
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case KindString:
		return v.Str
	default:
		return "<absent>"
	}
}

// Reading is one protocol's observation of one logical unit in one cycle.
// Readings are ephemeral: produced by a poller, consumed by the reconciler,
// discarded after the cycle.
type Reading struct {
	Protocol Protocol
	Category Category

	// Identifier is the protocol-scoped key for the unit: the numeric table
	// index for SNMP, the 1-based array ordinal or field name for Redfish.
	Identifier string

	// Label is the human name the protocol reported for the unit. Labels may
	// collide within a category; the normalizer disambiguates them.
	Label string

	// Value is the unit's primary measurement or state facet.
	Value RawValue

	// Status is the unit's raw health facet: an integer code (SNMP) or a
	// health string (Redfish). Absent when the protocol has no health notion
	// for the category.
	Status RawValue

	// Fields holds secondary facets keyed by name: "upper_critical",
	// "upper_warning", "size_kb", "max_watts" and similar.
	Fields map[string]RawValue
}

// Field returns the named secondary facet, or the absent value.
func (r Reading) Field(name string) RawValue {
	if r.Fields == nil {
		return Absent()
	}
	v, ok := r.Fields[name]
	if !ok {
		return Absent()
	}
	return v
}

// ValueKind discriminates the canonical typed value of a sensor.
type ValueKind uint8

const (
	ValueNumeric ValueKind = iota
	ValueBool
	ValueEnum
)

// Value is the canonical typed value exposed outward: a numeric measurement,
// a boolean state, or an enumerated status string, selected per category.
type Value struct {
	Kind ValueKind
	Num  float64
	Bool bool
	Str  string
}

// Num returns a numeric canonical value.
func Num(v float64) Value { return Value{Kind: ValueNumeric, Num: v} }

// Bool returns a boolean canonical value.
func Bool(v bool) Value { return Value{Kind: ValueBool, Bool: v} }

// Enum returns an enumerated-status canonical value.
func Enum(v string) Value { return Value{Kind: ValueEnum, Str: v} }

// MarshalJSON renders the value as a bare JSON scalar so API payloads read
// naturally: 42.5, false, "full".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.Kind {
	case ValueBool:
		return json.Marshal(v.Bool)
	case ValueEnum:
		return json.Marshal(v.Str)
	default:
		return json.Marshal(v.Num)
	}
}

// UnmarshalJSON accepts any JSON scalar and stores it under the matching kind.
func (v *Value) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*v = Bool(b)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*v = Num(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = Enum(s)
		return nil
	}
	return fmt.Errorf("sensor: value %q is not a JSON scalar", data)
}

// CanonicalSensor is the deduplicated logical sensor exposed to consumers.
// Exactly one exists per physical unit regardless of how many protocols
// report it.
type CanonicalSensor struct {
	// Key is stable across cycles and process restarts: "category/identifier"
	// where identifier is the unit's original protocol identifier.
	Key      string   `json:"key"`
	Category Category `json:"category"`
	Label    string   `json:"label"`
	Value    Value    `json:"value"`
	Unit     string   `json:"unit,omitempty"`
	Health   Health   `json:"health"`

	// Source is the protocol whose reading produced Value this cycle, or
	// "none" when the value is a retained previous value or a safe default.
	Source Protocol `json:"source"`

	// Optional thresholds reported by the device for numeric sensors.
	UpperWarning  *float64 `json:"upper_warning,omitempty"`
	UpperCritical *float64 `json:"upper_critical,omitempty"`
}

// MakeKey derives the stable sensor key from category and unit identifier.
func MakeKey(cat Category, identifier string) string {
	return string(cat) + "/" + identifier
}

// SourceStatus describes one protocol's outcome for the latest cycle.
type SourceStatus struct {
	Protocol Protocol  `json:"protocol"`
	OK       bool      `json:"ok"`
	PolledAt time.Time `json:"polled_at"`
	Err      string    `json:"error,omitempty"`
}

// Identity is the device self-description lifted from system/manager sensors
// for convenience on API payloads.
type Identity struct {
	Hostname        string `json:"hostname,omitempty"`
	Model           string `json:"model,omitempty"`
	ServiceTag      string `json:"service_tag,omitempty"`
	BIOSVersion     string `json:"bios_version,omitempty"`
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

// Snapshot is the full reconciled state of one device after a cycle.
// Snapshots are immutable once built; each cycle produces a fresh one.
type Snapshot struct {
	DeviceID string            `json:"device_id"`
	TakenAt  time.Time         `json:"taken_at"`
	Sensors  []CanonicalSensor `json:"sensors"`
	Identity Identity          `json:"identity"`
	Sources  []SourceStatus    `json:"sources"`
}

// Find returns the sensor with the given key, or nil.
func (s *Snapshot) Find(key string) *CanonicalSensor {
	for i := range s.Sensors {
		if s.Sensors[i].Key == key {
			return &s.Sensors[i]
		}
	}
	return nil
}

// WorstHealth returns the worst health across all status-bearing sensors.
// A snapshot with no sensors is unknown.
func (s *Snapshot) WorstHealth() Health {
	states := make([]Health, 0, len(s.Sensors))
	for i := range s.Sensors {
		states = append(states, s.Sensors[i].Health)
	}
	return Worst(states)
}

// CountByHealth tallies sensors per health state.
func (s *Snapshot) CountByHealth() map[Health]int {
	out := make(map[Health]int, 4)
	for i := range s.Sensors {
		out[s.Sensors[i].Health]++
	}
	return out
}

// MaxTemperatureC returns the hottest temperature reading in the snapshot.
// ok is false when no temperature sensor carries a numeric value.
func (s *Snapshot) MaxTemperatureC() (float64, bool) {
	max, found := 0.0, false
	for i := range s.Sensors {
		sn := &s.Sensors[i]
		if sn.Category != Temperature || sn.Value.Kind != ValueNumeric {
			continue
		}
		if !found || sn.Value.Num > max {
			max, found = sn.Value.Num, true
		}
	}
	return max, found
}

// PowerWatts returns the current whole-chassis power draw, if reported.
func (s *Snapshot) PowerWatts() (float64, bool) {
	if sn := s.Find(MakeKey(Power, "consumed")); sn != nil && sn.Value.Kind == ValueNumeric {
		return sn.Value.Num, true
	}
	return 0, false
}

// IntrusionDetected reports whether any intrusion sensor is tripped.
// ok is false when the device has no intrusion sensors.
func (s *Snapshot) IntrusionDetected() (detected, ok bool) {
	for i := range s.Sensors {
		sn := &s.Sensors[i]
		if sn.Category != Intrusion || sn.Value.Kind != ValueBool {
			continue
		}
		ok = true
		if sn.Value.Bool {
			return true, true
		}
	}
	return false, ok
}
