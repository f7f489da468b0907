// Package refcount provides an embeddable atomic reference count.
//
// Go's garbage collector decides when memory is reclaimed, but GPU objects
// also own resources outside the Go heap, and a content-less cache needs to
// know the exact moment the last owner lets go. Counted tracks that moment and
// runs a teardown callback when the count drops to zero.
package refcount

import "sync/atomic"

// TryIncrementer is the capability used to upgrade a non-owning observation
// into an owning reference.
type TryIncrementer interface {
	// TryIncrement takes a reference only if the count has not reached zero.
	TryIncrement() bool
}

// Object is a reference-counted value.
type Object interface {
	TryIncrementer
	Reference()
	Release() bool
}

// Counted is an atomic reference count meant to be embedded in a struct.
// The zero value has a count of zero; call Init before handing the object out.
type Counted struct {
	refs   atomic.Int64
	onZero func()
}

// Init sets the count to one (owned by the caller) and records the teardown
// callback run by the Release that drops the count to zero.
func (c *Counted) Init(onZero func()) {
	c.onZero = onZero
	c.refs.Store(1)
}

// Reference takes one more reference. The caller must already own one.
func (c *Counted) Reference() {
	if c.refs.Add(1) <= 1 {
		panic("refcount: Reference on a released object")
	}
}

// Release drops one reference and reports whether it was the last one.
// The teardown callback runs on the calling goroutine before Release returns.
func (c *Counted) Release() bool {
	n := c.refs.Add(-1)
	switch {
	case n > 0:
		return false
	case n < 0:
		panic("refcount: Release without a matching reference")
	}
	if c.onZero != nil {
		c.onZero()
	}
	return true
}

// TryIncrement takes a reference unless the count is already zero.
// It is safe to race with the final Release: once the count has hit zero it
// never comes back.
func (c *Counted) TryIncrement() bool {
	for {
		old := c.refs.Load()
		if old <= 0 {
			return false
		}
		if c.refs.CompareAndSwap(old, old+1) {
			return true
		}
	}
}

// RefCount returns the current count. Only meaningful for diagnostics.
func (c *Counted) RefCount() int64 { return c.refs.Load() }

var _ Object = (*Counted)(nil)
