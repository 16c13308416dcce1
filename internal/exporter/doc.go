// Package exporter exposes device snapshots on /metrics in Prometheus
// exposition format.
package exporter
