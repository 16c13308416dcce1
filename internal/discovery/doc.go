// Package discovery builds the per-device manifest of identifiers each
// protocol confirms present.
//
// Hardware population varies per unit, so nothing is assumed: the SNMP side
// is walked index by index until a run of consecutive misses (bounded by a
// hard cap), and the Redfish side is probed resource by resource. A probe
// timeout reads as "not present" — discovery fails outright only when no
// configured protocol responds to anything.
package discovery
