// Package history archives sensor readings to SQLite for the /history API.
//
// The archive keeps one row per numeric or boolean sensor per cycle, pruned
// on a retention window. Writes go through a non-blocking buffered Writer so
// a slow disk never stalls a poll cycle.
package history
