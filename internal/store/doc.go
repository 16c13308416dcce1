// Package store holds the latest published snapshot per monitored device for
// the API, websocket and exporter surfaces to read. Entries age out on a TTL
// so a device that stops publishing eventually disappears from listings.
package store
