// Package manifest holds the discovery manifest: the ordered identifiers
// confirmed present on a device, per protocol per category.
//
// A manifest is built once by the discovery engine and is immutable until the
// next explicit refresh. Categories with zero identifiers are legal — the
// feature is simply not populated on that unit.
//
// Units(category) zips the two protocols' identifier lists into logical
// physical units so the reconciler can match same-unit readings across
// protocols: numeric identifiers pair by position, facet-named identifiers
// (system, manager) pair by name. The unit's canonical identifier is its SNMP
// identifier when the SNMP side knows the unit, otherwise the Redfish one —
// keys derived from it stay stable across repeated discoveries of an
// unchanged device.
//
// Save/Load persist the manifest as JSON so a restart can skip re-probing.
package manifest
