package source

import (
	"context"
	"time"

	"github.com/bmcscout/bmcscout/internal/manifest"
	"github.com/bmcscout/bmcscout/internal/sensor"
)

// Result is the outcome of one poll call for one protocol.
//
// Partial failure is category-granular: a category that returned at least one
// reading before a timeout or transport failure is OK even when later
// categories are not. Err records the transport failure, if any, for
// diagnostics — it never invalidates the readings that did arrive.
type Result struct {
	Protocol sensor.Protocol
	PolledAt time.Time

	// Readings holds everything fetched this call, keyed by category.
	Readings map[sensor.Category][]sensor.Reading

	// OK reports, per category in the polled manifest subset, whether any
	// reading came back.
	OK map[sensor.Category]bool

	// Err is the transport failure that cut the poll short, or nil.
	Err error
}

// Poller executes one bounded-time fetch of all known identifiers for its
// protocol. Implementations must respect their configured timeout and return
// whatever completed before the deadline.
type Poller interface {
	Poll(ctx context.Context, m *manifest.Manifest) Result
}

// newResult initialises an empty Result with all maps allocated.
func newResult(p sensor.Protocol, now time.Time) Result {
	return Result{
		Protocol: p,
		PolledAt: now,
		Readings: make(map[sensor.Category][]sensor.Reading),
		OK:       make(map[sensor.Category]bool),
	}
}

// finish fills OK for every category the manifest asked for.
func (r *Result) finish(categories []sensor.Category) {
	for _, cat := range categories {
		r.OK[cat] = len(r.Readings[cat]) > 0
	}
}

// Index returns the readings keyed by (category, identifier) for O(1) lookup
// during reconciliation.
func (r Result) Index() map[sensor.Category]map[string]sensor.Reading {
	out := make(map[sensor.Category]map[string]sensor.Reading, len(r.Readings))
	for cat, readings := range r.Readings {
		byID := make(map[string]sensor.Reading, len(readings))
		for _, rd := range readings {
			byID[rd.Identifier] = rd
		}
		out[cat] = byID
	}
	return out
}
