// Package normalize converts reconciled raw readings into canonical typed
// sensors and derives the aggregate sensors.
//
// Each category has one explicit normalization path: integer status codes
// map through the tree protocol's ladder, health strings through the graph
// protocol's table, and anything unrecognized resolves to the category's
// documented safe default with a diagnostic log — a surprising raw value is
// never an error. Worst-of aggregation (critical > warning > ok > unknown,
// zero siblings never read as healthy) and PSU redundancy derivation live in
// aggregate.go; label collision handling lives in labels.go.
package normalize
