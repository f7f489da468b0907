// Package singleflight collapses concurrent calls that would do the same work.
package singleflight

import (
	"context"
	"sync"
)

// Group runs fn at most once at a time per key. Callers arriving while a call
// for their key is in flight wait for it instead of starting another.
//
// Only the leader (the caller that ran fn) owns the result. Followers learn
// the outcome but must not assume ownership of the value: when V carries a
// reference, a follower takes its own through some other path (for example a
// cache lookup that the leader's fn populated).
type Group[K comparable, V any] struct {
	mu sync.Mutex
	m  map[K]*call[V]
}

type call[V any] struct {
	done chan struct{} // closed after val/err are set
	val  V
	err  error
}

// Do runs fn for key unless a call is already in flight, in which case it
// waits for that call. leader reports whether this caller ran fn.
//
// A follower whose ctx is cancelled returns ctx.Err() right away; the
// leader's fn keeps running.
func (g *Group[K, V]) Do(ctx context.Context, key K, fn func() (V, error)) (v V, leader bool, err error) {
	g.mu.Lock()
	if g.m == nil {
		g.m = make(map[K]*call[V])
	}
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		select {
		case <-c.done:
			return c.val, false, c.err
		case <-ctx.Done():
			var zero V
			return zero, false, ctx.Err()
		}
	}

	c := &call[V]{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	// A panicking fn must still release the key and wake followers.
	defer func() {
		g.mu.Lock()
		delete(g.m, key)
		g.mu.Unlock()
		close(c.done)
	}()

	c.val, c.err = fn()
	return c.val, true, c.err
}

// InFlight returns the number of keys with a running call.
func (g *Group[K, V]) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.m)
}
