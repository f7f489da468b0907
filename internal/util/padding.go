package util

import (
	"sync/atomic"
	"unsafe"
)

// CacheLineSize covers common x86-64 and arm64 parts.
const CacheLineSize = 64

// CacheLinePad keeps the fields after it off the cache line of the fields
// before it.
type CacheLinePad struct{ _ [CacheLineSize]byte }

// Counter is an event counter that fills exactly one cache line, so counters
// bumped from different goroutines never share a line.
type Counter struct {
	n atomic.Uint64
	_ [CacheLineSize - 8]byte
}

// Inc adds one.
func (c *Counter) Inc() { c.n.Add(1) }

// Load returns the current count.
func (c *Counter) Load() uint64 { return c.n.Load() }

// must be exactly one cache line
var _ [CacheLineSize - int(unsafe.Sizeof(Counter{}))]byte
var _ [int(unsafe.Sizeof(Counter{})) - CacheLineSize]byte
