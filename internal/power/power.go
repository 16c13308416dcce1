package power

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrUnknownDevice reports a device id with no registered controller —
	// either the id is wrong or the device has no Redfish endpoint.
	ErrUnknownDevice = errors.New("power: no controller for device")

	// ErrUnknownAction reports an action name outside the supported set.
	ErrUnknownAction = errors.New("power: unknown action")
)

// Actor performs reset actions against one BMC. *redfish.Client satisfies it.
type Actor interface {
	Reset(ctx context.Context, resetType string) error
}

// actions maps the API-facing action names to Redfish reset types. The
// "restart" entry lists a fallback: iDRAC rejects GracefulRestart when the
// host OS has no management agents, so a failed graceful restart retries
// with a forced one.
var actions = map[string][]string{
	"on":                {"On"},
	"force_off":         {"ForceOff"},
	"graceful_shutdown": {"GracefulShutdown"},
	"restart":           {"GracefulRestart", "ForceRestart"},
	"force_restart":     {"ForceRestart"},
}

// Actions returns the supported action names, for error payloads.
func Actions() []string {
	return []string{"on", "force_off", "graceful_shutdown", "restart", "force_restart"}
}

// Registry routes power actions to the per-device Redfish clients. Devices
// without a Redfish endpoint are simply never registered; actions against
// them fail with ErrUnknownDevice.
type Registry struct {
	mu     sync.RWMutex
	actors map[string]Actor
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{actors: make(map[string]Actor)}
}

// Register binds a device id to its controller. Called once per device at
// startup, before the HTTP surface accepts requests.
func (r *Registry) Register(deviceID string, a Actor) {
	r.mu.Lock()
	r.actors[deviceID] = a
	r.mu.Unlock()
}

// PowerAction executes the named action against the device's BMC.
func (r *Registry) PowerAction(ctx context.Context, deviceID, action string) error {
	resetTypes, ok := actions[action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	r.mu.RLock()
	actor, ok := r.actors[deviceID]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownDevice, deviceID)
	}

	var err error
	for i, rt := range resetTypes {
		err = actor.Reset(ctx, rt)
		if err == nil {
			slog.Info("power: action executed",
				"device", deviceID, "action", action, "reset_type", rt)
			return nil
		}
		if i < len(resetTypes)-1 {
			slog.Warn("power: reset type rejected, trying fallback",
				"device", deviceID, "reset_type", rt, "err", err)
		}
	}
	return fmt.Errorf("power: %s on %s: %w", action, deviceID, err)
}
