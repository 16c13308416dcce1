// Package source implements the two per-protocol pollers.
//
// TreePoller walks the SNMP identifiers the manifest lists and GraphPoller
// fetches the Redfish resources backing them; both run under one timeout per
// call and report category-granular outcomes. A timeout or transport failure
// mid-call never discards the readings that already arrived — the Result
// carries them alongside a per-category OK flag so the reconciler can fall
// back source by source rather than all or nothing.
//
// The two pollers run concurrently per coordinator cycle and never wait on
// each other.
package source
