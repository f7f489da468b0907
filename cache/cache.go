package cache

import (
	"fmt"
	"sync"

	"github.com/IvanBrykalov/objcache/internal/util"
	"github.com/IvanBrykalov/objcache/weakref"
	"go.uber.org/zap"
)

// ContentLessCache holds weak entries for domain-equal objects.
// All methods are safe for concurrent use by multiple goroutines.
type ContentLessCache[T Object[T]] struct {
	// ---- guarded by mu ----
	mu     sync.Mutex
	set    set[T]
	closed bool

	opt Options[T]
	att *attachment[T]
	log *zap.Logger

	// ---- counters (separate cache lines to avoid false sharing) ----
	_       util.CacheLinePad
	hits    util.Counter
	misses  util.Counter
	inserts util.Counter
	erased  util.Counter
}

// New constructs an empty cache. Hash and Equal are required.
// Defaults:
//   - nil Metrics -> NoopMetrics
//   - nil Logger  -> zap.NewNop()
func New[T Object[T]](opt Options[T]) *ContentLessCache[T] {
	if opt.Hash == nil || opt.Equal == nil {
		panic("cache: Options.Hash and Options.Equal must be set")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}

	c := &ContentLessCache[T]{
		set: newSet[T](),
		opt: opt,
		log: opt.Logger.With(zap.String("cache", opt.Name)),
	}
	c.att = &attachment[T]{name: opt.Name, erase: c.Erase}

	// Compile-time check: ContentLessCache implements Cache for every T.
	var _ Cache[T] = c
	return c
}

// Insert adopts candidate unless a live, equal entry exists, in which case a
// new reference to that entry is returned with false. The caller keeps its
// reference to candidate either way; a rejected candidate is usually released
// right away.
//
// An entry whose target is dying never compares equal, so candidate is added
// next to it. The two coexist in the set until the dying object's teardown
// reaches Uncache and erases its own entry by identity. Only one of them can
// ever be resolved, so there is still at most one canonical entry per value.
func (c *ContentLessCache[T]) Insert(candidate T) (T, bool) {
	cmp := comparer[T]{equal: c.opt.Equal}
	defer cmp.release()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		panic(fmt.Sprintf("cache %q: Insert after Close", c.opt.Name))
	}

	k := weakKey[T]{ref: weakref.Make(candidate), hash: c.opt.Hash(candidate)}
	if i, found := c.set.lookup(k.hash, k, cmp.keysEqual); found {
		// The comparison pinned the entry, so this promotion cannot fail.
		if obj, ok := c.set.at(k.hash, i).ref.Promote(); ok {
			c.hits.Inc()
			c.opt.Metrics.Hit()
			return obj, false
		}
	}
	c.set.add(k)
	c.adoptLocked(candidate)
	return candidate, true
}

// Find returns a new reference to the live entry equal to blueprint.
// blueprint is only read through Hash and Equal; it need not be initialized
// as a reference-counted object.
func (c *ContentLessCache[T]) Find(blueprint T) (T, bool) {
	var zero T
	cmp := comparer[T]{equal: c.opt.Equal}
	defer cmp.release()

	c.mu.Lock()
	defer c.mu.Unlock()

	probe := pointerKey[T]{obj: blueprint}
	h := hashKey[T](probe, c.opt.Hash)
	i, found := c.set.lookup(h, probe, cmp.keysEqual)
	if found {
		if obj, ok := c.set.at(h, i).ref.Promote(); ok {
			c.hits.Inc()
			c.opt.Metrics.Hit()
			return obj, true
		}
	}
	c.misses.Inc()
	c.opt.Metrics.Miss()
	return zero, false
}

// Erase removes target's own entry and detaches target from the cache.
// Entries are matched by pointer identity, so an equal but distinct object
// is never removed. Erasing an object that is not cached is a no-op.
//
// Stored entries are peeked at without promotion here. That is safe because
// the lock is held: target itself is still readable (its teardown is the
// caller), and any other entry cannot be erased concurrently.
func (c *ContentLessCache[T]) Erase(target T) bool {
	cmp := comparer[T]{equal: c.opt.Equal}

	c.mu.Lock()
	defer c.mu.Unlock()

	probe := eraseKey[T]{obj: target}
	h := hashKey[T](probe, c.opt.Hash)
	i, found := c.set.lookup(h, probe, cmp.keysEqual)
	if !found {
		return false
	}
	target.cacheable().owner.Store(nil)
	c.set.removeAt(h, i)

	c.erased.Inc()
	c.opt.Metrics.Remove()
	c.opt.Metrics.Size(c.set.len())
	c.log.Debug("erased entry", zap.Uint64("hash", h), zap.Int("entries", c.set.len()))
	return true
}

// Empty reports whether the cache holds no entries.
func (c *ContentLessCache[T]) Empty() bool {
	return c.Len() == 0
}

// Len returns the number of entries, including ones whose target is dying.
func (c *ContentLessCache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set.len()
}

// Stats returns a snapshot of the cache counters.
func (c *ContentLessCache[T]) Stats() Stats {
	return Stats{
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
		Inserts: c.inserts.Load(),
		Erased:  c.erased.Load(),
		Entries: c.Len(),
	}
}

// Close marks the cache closed. Entries left at this point belong to objects
// whose teardown never called Uncache, which is a bug in the cached type:
// Close logs and panics in that case.
func (c *ContentLessCache[T]) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n := c.set.len(); n != 0 {
		c.log.Error("cache closed with live entries", zap.Int("entries", n))
		panic(fmt.Sprintf("cache %q: closed with %d entries; a cached object was never uncached", c.opt.Name, n))
	}
	c.closed = true
	return nil
}

// ---- helpers (mu held) ----

func (c *ContentLessCache[T]) adoptLocked(candidate T) {
	candidate.cacheable().owner.Store(c.att)
	c.inserts.Inc()
	c.opt.Metrics.Insert()
	c.opt.Metrics.Size(c.set.len())
	c.log.Debug("adopted entry", zap.Int("entries", c.set.len()))
}
