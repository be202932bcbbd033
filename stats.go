package zict

/*
Stats structs mirror the teacher's Stats: a plain counters struct, no
internal locking of its own, returned as a value copy from a Stats()
method that takes the owning component's lock just long enough to copy
the fields out. Each policy layer gets the counters relevant to it.
*/

// LRUStats reports LRU eviction activity.
type LRUStats struct {
	Hits           uint64
	Misses         uint64
	Evictions      uint64
	HeavyEvictions uint64
	CacheEvictions uint64
}

// BufferStats reports Buffer/AsyncBuffer tiering activity.
type BufferStats struct {
	Promotions uint64
	Demotions  uint64
	FastHits   uint64
	SlowHits   uint64
	Misses     uint64
}

// CacheStats reports Cache read-through activity.
type CacheStats struct {
	Hits        uint64
	Misses      uint64
	Invalidated uint64
	Coalesced   uint64 // misses whose load singleflight shared among concurrent callers (the leading caller included)
}
