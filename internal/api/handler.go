package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bmcscout/bmcscout/internal/alerts"
	"github.com/bmcscout/bmcscout/internal/history"
	"github.com/bmcscout/bmcscout/internal/power"
	"github.com/bmcscout/bmcscout/internal/sensor"
	"github.com/bmcscout/bmcscout/internal/store"
)

// AlertSource lists the alerts to expose on /api/v1/alerts.
type AlertSource interface {
	Active() []*alerts.Alert
}

// HistoryReader serves /api/v1/devices/{id}/history.
type HistoryReader interface {
	Recent(ctx context.Context, device, key string, limit int) ([]history.Row, error)
}

// PowerController executes POST /api/v1/devices/{id}/power actions.
type PowerController interface {
	PowerAction(ctx context.Context, deviceID, action string) error
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
// It reads device state from the snapshot store and returns JSON responses.
type Handler struct {
	store  *store.Store
	alerts AlertSource
	hist   HistoryReader
	power  PowerController
	mux    *http.ServeMux
}

// New creates a Handler wired to the given snapshot store and registers all
// routes. alertSrc, hist and power may be nil when the feature is disabled;
// read endpoints then return empty payloads and power actions 501.
func New(st *store.Store, alertSrc AlertSource, hist HistoryReader, power PowerController) http.Handler {
	h := &Handler{store: st, alerts: alertSrc, hist: hist, power: power, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/devices", h.listDevices)
	h.mux.HandleFunc("/api/v1/devices/", h.deviceSubtree) // extracts {id}[/sensors|/history]
	h.mux.HandleFunc("/api/v1/alerts", h.listAlerts)
	h.mux.HandleFunc("/api/v1/snapshot", h.snapshot)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — fleet rollup and per-state counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	resp := HealthResponse{DeviceCount: len(entries)}
	if h.alerts != nil {
		resp.AlertCount = len(h.alerts.Active())
	}

	if len(entries) == 0 {
		resp.State = string(sensor.HealthUnknown)
		jsonResp(w, http.StatusOK, resp)
		return
	}

	states := make([]sensor.Health, 0, len(entries))
	for _, e := range entries {
		st := e.Snapshot.WorstHealth()
		states = append(states, st)
		switch st {
		case sensor.HealthOK:
			resp.OKCount++
		case sensor.HealthWarning:
			resp.WarningCount++
		case sensor.HealthCritical:
			resp.CriticalCount++
		default:
			resp.UnknownCount++
		}
	}
	resp.State = string(sensor.Worst(states))
	jsonResp(w, http.StatusOK, resp)
}

// listDevices returns GET /api/v1/devices — all live devices.
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	out := make([]DeviceSummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, h.toSummary(e))
	}
	jsonResp(w, http.StatusOK, out)
}

// deviceSubtree routes GET /api/v1/devices/{id}, .../{id}/sensors,
// .../{id}/history and POST .../{id}/power.
func (h *Handler) deviceSubtree(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/devices/")
	if rest == "" {
		// Redirect bare /api/v1/devices/ to list handler.
		h.listDevices(w, r)
		return
	}

	id, sub, _ := strings.Cut(rest, "/")

	if sub == "power" {
		if r.Method != http.MethodPost {
			jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.postPower(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	switch sub {
	case "":
		h.getDevice(w, r, id)
	case "sensors":
		h.getSensors(w, r, id)
	case "history":
		h.getHistory(w, r, id)
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

// getDevice returns GET /api/v1/devices/{id} — a single device with its full
// sensor list. A device past the snapshot TTL is surfaced with state
// "unreachable" rather than hidden, until eviction removes it.
func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request, id string) {
	e, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "device not found")
		return
	}
	jsonResp(w, http.StatusOK, DeviceResponse{
		DeviceSummary: h.toSummary(e),
		Sensors:       e.Snapshot.Sensors,
	})
}

// getSensors returns GET /api/v1/devices/{id}/sensors — the flat sensor list.
func (h *Handler) getSensors(w http.ResponseWriter, r *http.Request, id string) {
	e, ok := h.store.Get(id)
	if !ok {
		jsonErr(w, http.StatusNotFound, "device not found")
		return
	}
	jsonResp(w, http.StatusOK, e.Snapshot.Sensors)
}

// getHistory returns GET /api/v1/devices/{id}/history?key=&limit= — recent
// archived readings, newest first.
func (h *Handler) getHistory(w http.ResponseWriter, r *http.Request, id string) {
	if h.hist == nil {
		jsonResp(w, http.StatusOK, []history.Row{})
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			jsonErr(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	rows, err := h.hist.Recent(r.Context(), id, r.URL.Query().Get("key"), limit)
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "history query failed")
		return
	}
	if rows == nil {
		rows = []history.Row{}
	}
	jsonResp(w, http.StatusOK, rows)
}

// postPower handles POST /api/v1/devices/{id}/power with a JSON body of
// {"action": "on"|"force_off"|"graceful_shutdown"|"restart"|"force_restart"}.
// Control requires a Redfish endpoint; SNMP-only devices get 404 from the
// controller registry.
func (h *Handler) postPower(w http.ResponseWriter, r *http.Request, id string) {
	if h.power == nil {
		jsonErr(w, http.StatusNotImplemented, "power control disabled")
		return
	}
	if _, ok := h.store.Get(id); !ok {
		jsonErr(w, http.StatusNotFound, "device not found")
		return
	}

	var req PowerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1024)).Decode(&req); err != nil {
		jsonErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.power.PowerAction(r.Context(), id, req.Action)
	switch {
	case err == nil:
		jsonResp(w, http.StatusAccepted, PowerResponse{
			DeviceID: id,
			Action:   req.Action,
			Status:   "accepted",
		})
	case errors.Is(err, power.ErrUnknownAction):
		jsonErr(w, http.StatusBadRequest,
			"unknown action; supported: "+strings.Join(power.Actions(), ", "))
	case errors.Is(err, power.ErrUnknownDevice):
		jsonErr(w, http.StatusNotFound, "device has no power controller")
	default:
		jsonErr(w, http.StatusBadGateway, "power action failed")
	}
}

// listAlerts returns GET /api/v1/alerts — firing and recently resolved alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.alerts == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.alerts.Active())
}

// snapshot returns GET /api/v1/snapshot — full JSON dump of all live devices.
func (h *Handler) snapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, BuildSnapshot(h.store))
}

// BuildSnapshot assembles the full-fleet payload. Shared with the websocket
// hub so both surfaces broadcast identical shapes.
func BuildSnapshot(st *store.Store) SnapshotResponse {
	entries := st.List()
	devices := make([]DeviceResponse, 0, len(entries))
	for _, e := range entries {
		devices = append(devices, BuildDevice(st, e))
	}
	return SnapshotResponse{
		Devices:     devices,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// BuildDevice assembles one device payload in the shape the snapshot
// endpoint uses. The websocket hub uses it for per-device delta frames.
func BuildDevice(st *store.Store, e *store.Entry) DeviceResponse {
	return DeviceResponse{
		DeviceSummary: summarize(st, e),
		Sensors:       e.Snapshot.Sensors,
	}
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

func (h *Handler) toSummary(e *store.Entry) DeviceSummary {
	return summarize(h.store, e)
}

// summarize maps a store.Entry to its JSON summary.
func summarize(st *store.Store, e *store.Entry) DeviceSummary {
	snap := e.Snapshot
	state := string(snap.WorstHealth())
	if st.Stale(e) {
		state = "unreachable"
	}
	return DeviceSummary{
		DeviceID:    snap.DeviceID,
		State:       state,
		SensorCount: len(snap.Sensors),
		Identity:    snap.Identity,
		Sources:     snap.Sources,
		Cert:        e.Cert,
		LastSeen:    e.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
