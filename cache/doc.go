// Package cache provides ContentLessCache, a mutex-guarded set that
// deduplicates immutable, hashable, reference-counted objects (GPU sampler,
// layout and shader objects, for example) without owning them.
//
// Design
//
//   - Content-less: the cache never copies an object's content. Each entry is a
//     weak handle (weakref.Ref) plus the content hash captured at insertion.
//     The object itself is owned by whoever holds strong references to it.
//
//   - At most one canonical entry: Insert either adopts the candidate or
//     returns a new reference to the live, equal entry already present. Two
//     entries that both resolve to live objects never compare equal.
//     An entry whose object is dying stays in the set beside its replacement
//     until the dying object's Uncache removes it.
//
//   - Self-uncaching: cached types embed Cacheable and call Uncache(self) from
//     their teardown path, before weakref.Base.InvalidateWeakRef. Uncache
//     erases the entry by pointer identity, never by content.
//
//   - Keys: lookups probe with one of three key kinds. Pointer keys (Find)
//     compare the blueprint's content against promoted entries. Erase keys
//     compare raw pointers, peeking at entries without promoting them. Weak
//     keys are the only kind stored in the set.
//
//   - Concurrency: one sync.Mutex guards the set and every owner back-pointer
//     change. Promoting an entry takes the weak cell's own lock while the cache
//     lock is held; locks are always taken in that order. References pinned
//     while comparing are released only after the cache lock is dropped, since
//     a release may run teardown that calls back into Erase.
//
// Basic usage
//
//	type Sampler struct {
//	    refcount.Counted
//	    weakref.Base
//	    cache.Cacheable[*Sampler]
//	    desc SamplerDescriptor
//	}
//
//	samplers := cache.New(cache.Options[*Sampler]{
//	    Name:  "samplers",
//	    Hash:  func(s *Sampler) uint64 { return s.desc.Hash() },
//	    Equal: func(a, b *Sampler) bool { return a.desc == b.desc },
//	})
//
//	s := newSampler(desc) // Init(s.destroy) + InitWeakRef(s)
//	got, inserted := samplers.Insert(s)
//	if !inserted {
//	    s.Release() // redundant candidate; got is the canonical sampler
//	}
//
//	func (s *Sampler) destroy() {
//	    s.Uncache(s)
//	    // free backend resources ...
//	    s.InvalidateWeakRef()
//	    s.AssertUncached()
//	}
//
// Programmer errors (closing a cache that still holds entries, tearing down
// an object that is still attached) panic. Lookup misses and insert
// collisions are ordinary results.
package cache
