// Package coordinator runs the per-device poll cycle: it polls whichever
// protocols are due, reconciles their readings against the manifest,
// normalizes the winners into canonical sensors and publishes an immutable
// snapshot. One Coordinator per device; no shared state between devices.
package coordinator
