// Package redfish is the HTTPS/JSON client adapter for the BMC's Redfish
// service.
//
// Client exposes a single capability: Fetch(ctx, path) returning the raw JSON
// body. Failure shapes are distinguishable because callers react differently:
// *AuthError (bad credentials — retrying is pointless), ErrNotFound (resource
// not present on this unit — a discovery miss, not a failure) and
// *TransportError (network or server trouble — degrade and retry next cycle).
//
// The HTTP client is built once per device with basic-auth injection and
// optional InsecureSkipVerify, since BMCs ship self-signed certificates.
// types.go holds the json-tagged payload structs for the resources polled:
// Thermal, Power, ComputerSystem, Chassis, Manager. Nullable readings are
// pointers — Redfish reports null for absent readings and zero is a valid
// value.
package redfish
