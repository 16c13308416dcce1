// Package sensor defines the protocol-agnostic domain model shared by the
// discovery, polling, reconciliation and normalization stages.
//
// The central type is CanonicalSensor: the deduplicated logical sensor exposed
// to consumers, keyed by a stable Key derived from category + protocol
// identifier so it survives process restarts. RawValue is the tagged variant
// carried between a protocol client and the normalizer — integer code, string,
// float, structured record, or absent. Absent is a first-class outcome, not an
// error.
//
// Health is the four-state ladder (ok < warning < critical, unknown ranked
// below ok for aggregation) with Worst() implementing the worst-of ordering
// used for aggregate sensors: any critical wins, zero siblings yield unknown.
package sensor
