package cache

import "github.com/IvanBrykalov/objcache/weakref"

// key is the sum of the three ways the set can be probed.
// Only weakKey is ever stored.
type key[T Object[T]] interface {
	isKey()
}

// pointerKey probes by content, for Find.
type pointerKey[T Object[T]] struct{ obj T }

// weakKey is the stored form. hash is captured at insertion and never
// recomputed, so the entry stays reachable after its target starts dying.
type weakKey[T Object[T]] struct {
	ref  weakref.Ref[T]
	hash uint64
}

// eraseKey probes by pointer identity, for Erase.
type eraseKey[T Object[T]] struct{ obj T }

func (pointerKey[T]) isKey() {}
func (weakKey[T]) isKey()    {}
func (eraseKey[T]) isKey()   {}

// hashKey returns the bucket hash for k. Stored keys never touch their target.
func hashKey[T Object[T]](k key[T], hash func(T) uint64) uint64 {
	switch k := k.(type) {
	case weakKey[T]:
		return k.hash
	case pointerKey[T]:
		return hash(k.obj)
	case eraseKey[T]:
		return hash(k.obj)
	}
	panic("cache: unknown key kind")
}

// comparer evaluates key equality for one cache operation. Entries promoted
// while comparing are appended to pins and must be released by the caller
// once the cache lock is no longer held.
type comparer[T Object[T]] struct {
	equal func(a, b T) bool
	pins  []T
}

func (c *comparer[T]) keysEqual(a, b key[T]) bool {
	_, ea := a.(eraseKey[T])
	_, eb := b.(eraseKey[T])
	erasing := ea || eb

	x, ok := c.resolve(a, erasing)
	if !ok {
		return false
	}
	y, ok := c.resolve(b, erasing)
	if !ok {
		return false
	}
	if erasing {
		return x == y
	}
	return c.equal(x, y)
}

// resolve returns the object k stands for. A stored key is peeked at without
// a reference when erasing (the cache lock keeps it readable, see Erase) and
// promoted otherwise, so it cannot die mid-comparison. A key that resolves to
// nothing never equals anything, including another dead entry.
func (c *comparer[T]) resolve(k key[T], erasing bool) (T, bool) {
	var zero T
	switch k := k.(type) {
	case pointerKey[T]:
		return k.obj, k.obj != zero
	case eraseKey[T]:
		return k.obj, k.obj != zero
	case weakKey[T]:
		if erasing {
			return k.ref.UnsafeGet()
		}
		obj, ok := k.ref.Promote()
		if ok {
			c.pins = append(c.pins, obj)
		}
		return obj, ok
	}
	panic("cache: unknown key kind")
}

// release drops every pinned reference. Call without the cache lock.
func (c *comparer[T]) release() {
	for _, obj := range c.pins {
		obj.Release()
	}
	c.pins = nil
}
