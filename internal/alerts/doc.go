// Package alerts implements the threshold rule engine and webhook delivery
// for device snapshots.
package alerts
