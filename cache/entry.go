package cache

import (
	"time"
)

// entry is a cached value plus the time it was last stored or read. Reads
// only move lastAccess forward when a limit is configured.
type entry[T Cacheable] struct {
	id         string
	payload    T
	lastAccess time.Time
}

func (e *entry[T]) expired(cutoff time.Time) bool {
	return !e.lastAccess.After(cutoff)
}

// expiredIDs returns the ids of every entry last accessed at or before cutoff.
func expiredIDs[T Cacheable](entries map[string]*entry[T], cutoff time.Time) []string {
	var ids []string
	for id, e := range entries {
		if e.expired(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// leastRecentlyAccessed scans every entry and returns the id with the oldest
// lastAccess. Ties go to whichever the map yields first.
func leastRecentlyAccessed[T Cacheable](entries map[string]*entry[T]) (string, bool) {
	var victim *entry[T]
	for _, e := range entries {
		if victim == nil || e.lastAccess.Before(victim.lastAccess) {
			victim = e
		}
	}
	if victim == nil {
		return "", false
	}
	return victim.id, true
}
