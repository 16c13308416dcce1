package api

import (
	"github.com/bmcscout/bmcscout/internal/certcheck"
	"github.com/bmcscout/bmcscout/internal/sensor"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	State         string `json:"state"`
	DeviceCount   int    `json:"device_count"`
	OKCount       int    `json:"ok_count"`
	WarningCount  int    `json:"warning_count"`
	CriticalCount int    `json:"critical_count"`
	UnknownCount  int    `json:"unknown_count"`
	AlertCount    int    `json:"alert_count"`
}

// DeviceSummary is one device entry in GET /api/v1/devices.
type DeviceSummary struct {
	DeviceID    string                `json:"device_id"`
	State       string                `json:"state"`
	SensorCount int                   `json:"sensor_count"`
	Identity    sensor.Identity       `json:"identity"`
	Sources     []sensor.SourceStatus `json:"sources"`
	Cert        *certcheck.Status     `json:"cert,omitempty"`
	LastSeen    string                `json:"last_seen"` // RFC3339
}

// DeviceResponse is the payload for GET /api/v1/devices/{id}: the summary
// plus the full sensor list.
type DeviceResponse struct {
	DeviceSummary
	Sensors []sensor.CanonicalSensor `json:"sensors"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot.
type SnapshotResponse struct {
	Devices     []DeviceResponse `json:"devices"`
	GeneratedAt string           `json:"generated_at"` // RFC3339
}

// PowerRequest is the body for POST /api/v1/devices/{id}/power.
type PowerRequest struct {
	Action string `json:"action"`
}

// PowerResponse acknowledges an accepted power action.
type PowerResponse struct {
	DeviceID string `json:"device_id"`
	Action   string `json:"action"`
	Status   string `json:"status"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
