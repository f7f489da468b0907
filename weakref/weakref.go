// Package weakref implements non-owning references to reference-counted
// objects.
//
// A weak-enabled type embeds Base and calls InitWeakRef(self) once during
// construction and InvalidateWeakRef() once during teardown. Ref handles made
// from it never keep the object alive: Promote succeeds only while the
// object's reference count is above zero, even if the Go value itself is still
// reachable.
//
// The GC-based weak package does not fit here: an object whose count reached
// zero is logically dead (its teardown is running or finished) while the
// collector may still consider it reachable for a long time.
package weakref

import (
	"sync"

	"github.com/IvanBrykalov/objcache/refcount"
)

// cell is the shared indirection between an object and its weak handles.
// It outlives the object as long as a handle points to it.
type cell struct {
	mu     sync.Mutex
	target refcount.TryIncrementer // nil once invalidated
}

// tryGet returns the target with one reference already taken, or nil if the
// target is gone or its count already reached zero.
func (c *cell) tryGet() refcount.TryIncrementer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.target == nil || !c.target.TryIncrement() {
		return nil
	}
	return c.target
}

// get returns the raw target without taking a reference.
func (c *cell) get() refcount.TryIncrementer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cell) invalidate() {
	c.mu.Lock()
	c.target = nil
	c.mu.Unlock()
}

// Weakable is implemented by every type embedding Base.
// The unexported method keeps other types from satisfying it.
type Weakable interface {
	refcount.TryIncrementer
	weakCell() *cell
}

// Base makes the embedding type weak-referenceable.
type Base struct {
	c *cell
}

// InitWeakRef allocates the weak cell pointing at self, which must be the
// embedding object itself (the most-derived pointer, e.g. *Sampler).
func (b *Base) InitWeakRef(self refcount.TryIncrementer) {
	if b.c != nil {
		panic("weakref: InitWeakRef called twice")
	}
	b.c = &cell{target: self}
}

// InvalidateWeakRef detaches every outstanding Ref from the object.
// It must run once, from the object's teardown path, after the object has been
// uncached.
func (b *Base) InvalidateWeakRef() {
	if b.c == nil {
		panic("weakref: InvalidateWeakRef without InitWeakRef")
	}
	b.c.invalidate()
}

func (b *Base) weakCell() *cell { return b.c }
