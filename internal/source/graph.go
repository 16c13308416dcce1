package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bmcscout/bmcscout/internal/manifest"
	"github.com/bmcscout/bmcscout/internal/redfish"
	"github.com/bmcscout/bmcscout/internal/sensor"
)

// GraphClient is the Redfish capability the graph poller consumes.
// *redfish.Client satisfies it; tests inject fakes.
type GraphClient interface {
	Fetch(ctx context.Context, path string) ([]byte, error)
	SystemPath() string
	ThermalPath() string
	PowerPath() string
	ChassisPath() string
	ManagerPath() string
}

// GraphPoller fetches the Redfish resources backing the manifest's categories
// in one bounded call. Each resource is fetched at most once per poll even
// when several categories read from it; a failed fetch degrades only the
// categories it backs.
type GraphPoller struct {
	client  GraphClient
	timeout time.Duration
	now     func() time.Time // injectable for deterministic tests
}

// NewGraphPoller builds a GraphPoller with the given whole-call timeout.
func NewGraphPoller(client GraphClient, timeout time.Duration) *GraphPoller {
	return &GraphPoller{client: client, timeout: timeout, now: time.Now}
}

// ResourcePath maps a category to the Redfish resource that carries it.
// Shared with the discovery engine, which probes the same resources.
func ResourcePath(c GraphClient, cat sensor.Category) string {
	switch cat {
	case sensor.Temperature, sensor.Fan:
		return c.ThermalPath()
	case sensor.PSU, sensor.Voltage, sensor.Power:
		return c.PowerPath()
	case sensor.System, sensor.Memory, sensor.Processor:
		return c.SystemPath()
	case sensor.Intrusion:
		return c.ChassisPath()
	case sensor.Manager:
		return c.ManagerPath()
	}
	return ""
}

// Poll implements Poller for the Redfish protocol.
func (p *GraphPoller) Poll(ctx context.Context, m *manifest.Manifest) Result {
	res := newResult(sensor.SourceRedfish, p.now())

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	// Collect the distinct resources needed, preserving category order.
	var polled []sensor.Category
	var paths []string
	seen := make(map[string]bool)
	for _, cat := range sensor.Categories {
		if len(m.Redfish[cat]) == 0 {
			continue
		}
		polled = append(polled, cat)
		if path := ResourcePath(p.client, cat); path != "" && !seen[path] {
			seen[path] = true
			paths = append(paths, path)
		}
	}

	bodies := make(map[string][]byte, len(paths))
	for _, path := range paths {
		body, err := p.client.Fetch(ctx, path)
		if err != nil {
			if res.Err == nil {
				res.Err = err
			}
			slog.Warn("source: redfish fetch failed", "path", path, "err", err)
			continue
		}
		bodies[path] = body
	}

	for _, cat := range polled {
		body, ok := bodies[ResourcePath(p.client, cat)]
		if !ok {
			continue
		}
		readings, err := ParseCategory(cat, body)
		if err != nil {
			slog.Warn("source: redfish payload unusable", "category", cat, "err", err)
			continue
		}
		res.Readings[cat] = readings
	}
	res.finish(polled)
	return res
}

// ParseCategory parses one resource body into the readings for cat.
// The discovery engine uses the same parse to enumerate identifiers.
func ParseCategory(cat sensor.Category, body []byte) ([]sensor.Reading, error) {
	switch cat {
	case sensor.Temperature, sensor.Fan:
		var th redfish.Thermal
		if err := json.Unmarshal(body, &th); err != nil {
			return nil, fmt.Errorf("parse thermal: %w", err)
		}
		if cat == sensor.Temperature {
			return temperatureReadings(th.Temperatures), nil
		}
		return fanReadings(th.Fans), nil

	case sensor.PSU, sensor.Voltage, sensor.Power:
		var pw redfish.Power
		if err := json.Unmarshal(body, &pw); err != nil {
			return nil, fmt.Errorf("parse power: %w", err)
		}
		switch cat {
		case sensor.PSU:
			return psuReadings(pw.PowerSupplies), nil
		case sensor.Voltage:
			return voltageReadings(pw.Voltages), nil
		default:
			return powerReadings(pw.PowerControl), nil
		}

	case sensor.System, sensor.Memory, sensor.Processor:
		var sys redfish.ComputerSystem
		if err := json.Unmarshal(body, &sys); err != nil {
			return nil, fmt.Errorf("parse system: %w", err)
		}
		switch cat {
		case sensor.Memory:
			return summaryReading(cat, "Memory", sys.MemorySummary.Status), nil
		case sensor.Processor:
			return summaryReading(cat, "Processors", sys.ProcessorSummary.Status), nil
		default:
			return systemReadings(sys), nil
		}

	case sensor.Intrusion:
		var ch redfish.Chassis
		if err := json.Unmarshal(body, &ch); err != nil {
			return nil, fmt.Errorf("parse chassis: %w", err)
		}
		return intrusionReadings(ch), nil

	case sensor.Manager:
		var mgr redfish.Manager
		if err := json.Unmarshal(body, &mgr); err != nil {
			return nil, fmt.Errorf("parse manager: %w", err)
		}
		return managerReadings(mgr), nil
	}
	return nil, nil
}

// ordinal returns the 1-based array position as an identifier string.
func ordinal(i int) string { return strconv.Itoa(i + 1) }

// rawFloat wraps an optional JSON number as a tagged value.
func rawFloat(v *float64) sensor.RawValue {
	if v == nil {
		return sensor.Absent()
	}
	return sensor.Float64(*v)
}

// rawHealth wraps a Status.Health string; a null/empty health is absent.
func rawHealth(st redfish.Status) sensor.RawValue {
	if st.Health == "" {
		return sensor.Absent()
	}
	return sensor.Str(st.Health)
}

func temperatureReadings(temps []redfish.Temperature) []sensor.Reading {
	out := make([]sensor.Reading, 0, len(temps))
	for i, t := range temps {
		out = append(out, sensor.Reading{
			Protocol:   sensor.SourceRedfish,
			Category:   sensor.Temperature,
			Identifier: ordinal(i),
			Label:      t.Name,
			Value:      rawFloat(t.ReadingCelsius),
			Status:     rawHealth(t.Status),
			Fields: map[string]sensor.RawValue{
				"upper_critical": rawFloat(t.UpperThresholdCritical),
				"upper_warning":  rawFloat(t.UpperThresholdNonCritical),
			},
		})
	}
	return out
}

func fanReadings(fans []redfish.FanUnit) []sensor.Reading {
	out := make([]sensor.Reading, 0, len(fans))
	for i, f := range fans {
		out = append(out, sensor.Reading{
			Protocol:   sensor.SourceRedfish,
			Category:   sensor.Fan,
			Identifier: ordinal(i),
			Label:      f.Name,
			Value:      rawFloat(f.Reading),
			Status:     rawHealth(f.Status),
		})
	}
	return out
}

func psuReadings(supplies []redfish.PowerSupply) []sensor.Reading {
	out := make([]sensor.Reading, 0, len(supplies))
	for i, ps := range supplies {
		out = append(out, sensor.Reading{
			Protocol:   sensor.SourceRedfish,
			Category:   sensor.PSU,
			Identifier: ordinal(i),
			Label:      ps.Name,
			Value:      sensor.Absent(),
			Status:     rawHealth(ps.Status),
			Fields: map[string]sensor.RawValue{
				"current_watts":      rawFloat(ps.LastPowerOutputWatts),
				"max_watts":          rawFloat(ps.PowerCapacityWatts),
				"line_input_voltage": rawFloat(ps.LineInputVoltage),
			},
		})
	}
	return out
}

func voltageReadings(probes []redfish.VoltageProbe) []sensor.Reading {
	out := make([]sensor.Reading, 0, len(probes))
	for i, v := range probes {
		out = append(out, sensor.Reading{
			Protocol:   sensor.SourceRedfish,
			Category:   sensor.Voltage,
			Identifier: ordinal(i),
			Label:      v.Name,
			Value:      rawFloat(v.ReadingVolts),
			Status:     rawHealth(v.Status),
		})
	}
	return out
}

func powerReadings(controls []redfish.PowerControl) []sensor.Reading {
	if len(controls) == 0 {
		return nil
	}
	pc := controls[0]
	var out []sensor.Reading
	if pc.PowerConsumedWatts != nil {
		out = append(out, sensor.Reading{
			Protocol:   sensor.SourceRedfish,
			Category:   sensor.Power,
			Identifier: "consumed",
			Label:      "Power Consumption",
			Value:      rawFloat(pc.PowerConsumedWatts),
			Status:     sensor.Absent(),
		})
	}
	if pc.PowerMetrics.MaxConsumedWatts != nil {
		out = append(out, sensor.Reading{
			Protocol:   sensor.SourceRedfish,
			Category:   sensor.Power,
			Identifier: "peak",
			Label:      "Peak Power Consumption",
			Value:      rawFloat(pc.PowerMetrics.MaxConsumedWatts),
			Status:     sensor.Absent(),
		})
	}
	return out
}

func summaryReading(cat sensor.Category, label string, st redfish.Status) []sensor.Reading {
	if st.Health == "" && st.State == "" {
		return nil
	}
	return []sensor.Reading{{
		Protocol:   sensor.SourceRedfish,
		Category:   cat,
		Identifier: "summary",
		Label:      label,
		Value:      sensor.Absent(),
		Status:     rawHealth(st),
	}}
}

func systemReadings(sys redfish.ComputerSystem) []sensor.Reading {
	facet := func(id, label string, v sensor.RawValue) sensor.Reading {
		return sensor.Reading{
			Protocol:   sensor.SourceRedfish,
			Category:   sensor.System,
			Identifier: id,
			Label:      label,
			Value:      v,
			Status:     sensor.Absent(),
		}
	}

	var out []sensor.Reading
	if sys.HostName != "" {
		out = append(out, facet("hostname", "Hostname", sensor.Str(sys.HostName)))
	}
	if sys.Model != "" {
		out = append(out, facet("model", "Model", sensor.Str(sys.Model)))
	}
	if sys.SKU != "" {
		out = append(out, facet("service_tag", "Service Tag", sensor.Str(sys.SKU)))
	}
	if sys.BiosVersion != "" {
		out = append(out, facet("bios_version", "BIOS Version", sensor.Str(sys.BiosVersion)))
	}
	if sys.PowerState != "" {
		out = append(out, facet("power_state", "Power State", sensor.Str(sys.PowerState)))
	}
	return out
}

func intrusionReadings(ch redfish.Chassis) []sensor.Reading {
	if ch.PhysicalSecurity.IntrusionSensor == "" {
		return nil
	}
	return []sensor.Reading{{
		Protocol:   sensor.SourceRedfish,
		Category:   sensor.Intrusion,
		Identifier: "1",
		Label:      "Chassis Intrusion",
		Value:      sensor.Str(ch.PhysicalSecurity.IntrusionSensor),
		Status:     rawHealth(ch.Status),
	}}
}

func managerReadings(mgr redfish.Manager) []sensor.Reading {
	if mgr.FirmwareVersion == "" {
		return nil
	}
	return []sensor.Reading{{
		Protocol:   sensor.SourceRedfish,
		Category:   sensor.Manager,
		Identifier: "firmware_version",
		Label:      "iDRAC Firmware",
		Value:      sensor.Str(mgr.FirmwareVersion),
		Status:     rawHealth(mgr.Status),
	}}
}
