// Package cache holds the client-side caches filled from server responses:
// track durations keyed by identity and artwork keyed by URL.
package cache

import (
	"maps"
	"time"
)

// Durations maps track identity to length. Each Set publishes a new map, so
// a map returned by Snapshot never changes.
type Durations struct {
	m map[string]time.Duration
}

// NewDurations returns an empty cache.
func NewDurations() *Durations {
	return &Durations{m: map[string]time.Duration{}}
}

// Duration returns the cached length for id.
func (c *Durations) Duration(id string) (time.Duration, bool) {
	d, ok := c.m[id]
	return d, ok
}

// Set records the length of id. Non-positive durations are ignored.
func (c *Durations) Set(id string, d time.Duration) {
	if id == "" || d <= 0 {
		return
	}
	if cur, ok := c.m[id]; ok && cur == d {
		return
	}
	next := maps.Clone(c.m)
	next[id] = d
	c.m = next
}

// Snapshot returns the current map. Callers must not modify it.
func (c *Durations) Snapshot() map[string]time.Duration {
	return c.m
}

// Len returns the number of cached durations.
func (c *Durations) Len() int {
	return len(c.m)
}
