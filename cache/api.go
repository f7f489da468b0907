package cache

// Cache is the operation set of a content-less object cache.
// All methods are safe for concurrent use by multiple goroutines.
//
// Every returned object carries one reference owned by the caller.
type Cache[T any] interface {
	// Insert adopts candidate as the canonical entry unless a live, equal entry
	// exists. It returns the canonical object and whether candidate was adopted.
	// On false the caller still owns candidate and should Release it.
	// An equal entry whose target is dying does not block adoption.
	Insert(candidate T) (T, bool)

	// Find returns the live entry equal to blueprint, if any. A miss is also
	// reported when the matching entry is dying on another goroutine.
	Find(blueprint T) (T, bool)

	// Erase removes target's own entry (pointer identity, not content).
	// Returns false if target was not cached.
	Erase(target T) bool

	// Empty reports whether the cache holds no entries.
	Empty() bool

	// Len returns the number of entries, including ones whose target is dying.
	Len() int

	// Stats returns a snapshot of the cache counters.
	Stats() Stats

	// Close marks the cache closed. It panics if entries remain.
	Close() error
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits    uint64 // Find or Insert resolved to an existing live entry
	Misses  uint64 // Find found nothing live
	Inserts uint64 // candidates adopted by Insert
	Erased  uint64 // entries removed by Erase
	Entries int
}
