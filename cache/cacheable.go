package cache

import (
	"fmt"
	"sync/atomic"

	"github.com/IvanBrykalov/objcache/weakref"
)

// Object is the constraint for types a ContentLessCache can hold: comparable
// pointers to reference-counted, weak-enabled values embedding Cacheable.
// Types missing any piece are rejected at compile time.
type Object[T any] interface {
	comparable
	weakref.Weakable
	Release() bool
	cacheable() *Cacheable[T]
}

// attachment is a cache's identity as seen from the objects it holds.
type attachment[T any] struct {
	name  string
	erase func(T) bool
}

// Cacheable is embedded by every cached type. It records which cache, if
// any, currently holds the object.
type Cacheable[T any] struct {
	// set by Insert and cleared by Erase, both under the cache lock
	owner atomic.Pointer[attachment[T]]
}

func (c *Cacheable[T]) cacheable() *Cacheable[T] { return c }

// IsCached reports whether a cache currently holds the object.
func (c *Cacheable[T]) IsCached() bool { return c.owner.Load() != nil }

// Uncache removes self from the cache holding it, if any. self must be the
// embedding object. Call it from the teardown path while the object is still
// fully readable, before weakref.Base.InvalidateWeakRef.
func (c *Cacheable[T]) Uncache(self T) {
	// Erase clears owner; it is not reset here in case the object is
	// re-inserted between the two steps.
	if a := c.owner.Load(); a != nil {
		a.erase(self)
	}
}

// AssertUncached panics if the object is still attached to a cache.
// Call it last in the teardown path.
func (c *Cacheable[T]) AssertUncached() {
	if a := c.owner.Load(); a != nil {
		panic(fmt.Sprintf("cache %q: object torn down while still cached; missing Uncache call", a.name))
	}
}
