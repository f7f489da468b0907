package cache

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Eight goroutines insert the same hundred values concurrently. For every
// value exactly one object must win, every goroutine must be handed that
// object, and Find must return it.
// Should pass under `-race` without detector reports.
func TestRace_ConcurrentInsertSameValues(t *testing.T) {
	const (
		goroutines = 8
		values     = 100
	)
	c := newTestCache(t)

	var adopted [values]atomic.Int32
	got := make([][values]*obj, goroutines)
	hit := make([][values]bool, goroutines)
	candidates := make([][values]*obj, goroutines)

	start := make(chan struct{})
	var g errgroup.Group
	for w := 0; w < goroutines; w++ {
		g.Go(func() error {
			<-start
			for v := 0; v < values; v++ {
				cand := newObj(v)
				candidates[w][v] = cand
				res, inserted := c.Insert(cand)
				if inserted {
					adopted[v].Add(1)
					if res != cand {
						return fmt.Errorf("value %d: adopted result is not the candidate", v)
					}
				}
				got[w][v] = res
				hit[w][v] = !inserted
			}
			return nil
		})
	}
	close(start)
	require.NoError(t, g.Wait())

	for v := 0; v < values; v++ {
		require.EqualValues(t, 1, adopted[v].Load(), "value %d", v)
		winner := got[0][v]
		for w := 1; w < goroutines; w++ {
			require.Same(t, winner, got[w][v], "value %d goroutine %d", v, w)
		}
	}
	require.Equal(t, values, c.Len())

	// Every goroutine sees the same canonical object through Find.
	var finds errgroup.Group
	for w := 0; w < goroutines; w++ {
		finds.Go(func() error {
			for v := 0; v < values; v++ {
				found, ok := c.Find(blueprint(v))
				if !ok || found != got[0][v] {
					return fmt.Errorf("value %d: Find returned %p ok=%v", v, found, ok)
				}
				found.Release()
			}
			return nil
		})
	}
	require.NoError(t, finds.Wait())

	// Hits carry their own reference; adopted results share the candidate's.
	for w := 0; w < goroutines; w++ {
		for v := 0; v < values; v++ {
			if hit[w][v] {
				got[w][v].Release()
			}
		}
	}
	for w := 0; w < goroutines; w++ {
		for v := 0; v < values; v++ {
			candidates[w][v].Release()
		}
	}
	require.True(t, c.Empty())
}

// Find racing with the final Release of the matching entry must return either
// the live object or nothing, never an object whose teardown started.
func TestRace_FindDuringRelease(t *testing.T) {
	c := newTestCache(t)
	finders := 2 * runtime.GOMAXPROCS(0)

	for round := 0; round < 200; round++ {
		o := newObj(round)
		c.Insert(o)

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(finders + 1)
		go func() {
			defer wg.Done()
			<-start
			o.Release()
		}()
		for i := 0; i < finders; i++ {
			go func() {
				defer wg.Done()
				<-start
				found, ok := c.Find(blueprint(round))
				if !ok {
					return
				}
				if found != o || found.destroyed.Load() {
					t.Errorf("round %d: Find returned a dead or foreign object", round)
				}
				found.Release()
			}()
		}
		close(start)
		wg.Wait()

		require.True(t, o.destroyed.Load())
		require.True(t, c.Empty())
	}
}

// Insert of an equal candidate racing with the teardown of the cached entry
// must hand out either the original, while it is still alive, or a single
// newly adopted candidate.
func TestRace_InsertDuringRelease(t *testing.T) {
	c := newTestCache(t)
	inserters := runtime.GOMAXPROCS(0)
	if inserters < 2 {
		inserters = 2
	}

	for round := 0; round < 200; round++ {
		old := newObj(round)
		c.Insert(old)

		results := make([]*obj, inserters)
		adopted := make([]bool, inserters)
		cands := make([]*obj, inserters)
		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(inserters + 1)
		go func() {
			defer wg.Done()
			<-start
			old.Release()
		}()
		for i := 0; i < inserters; i++ {
			cands[i] = newObj(round)
			go func(i int) {
				defer wg.Done()
				<-start
				res, inserted := c.Insert(cands[i])
				if res.destroyed.Load() {
					t.Errorf("round %d: Insert returned a destroyed object", round)
				}
				results[i], adopted[i] = res, inserted
			}(i)
		}
		close(start)
		wg.Wait()

		var winner *obj
		for i, res := range results {
			if !adopted[i] {
				continue
			}
			require.Nil(t, winner, "round %d: two candidates adopted", round)
			winner = res
		}
		for _, res := range results {
			if res != old {
				require.Same(t, winner, res)
			}
		}

		for i := range results {
			if !adopted[i] {
				results[i].Release()
			}
		}
		require.True(t, old.destroyed.Load())

		if winner != nil {
			found, ok := c.Find(blueprint(round))
			require.True(t, ok)
			require.Same(t, winner, found)
			found.Release()
			require.Equal(t, 1, c.Len())
		}
		for _, cand := range cands {
			cand.Release()
		}
		require.True(t, c.Empty())
	}
}

// A mixed workload of concurrent Insert/Find/Release on a small value space.
func TestRace_Mixed(t *testing.T) {
	c := newTestCache(t)
	workers := 4 * runtime.GOMAXPROCS(0)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			held := make([]*obj, 0, 16)
			for i := 0; i < 2_000; i++ {
				v := (i*7 + w) % 32
				switch i % 5 {
				case 0, 1:
					cand := newObj(v)
					res, inserted := c.Insert(cand)
					if !inserted {
						cand.Release()
					}
					held = append(held, res)
				case 2:
					if found, ok := c.Find(blueprint(v)); ok {
						if found.value != v {
							return fmt.Errorf("Find(%d) returned value %d", v, found.value)
						}
						found.Release()
					}
				default:
					if n := len(held); n > 0 {
						held[n-1].Release()
						held = held[:n-1]
					}
				}
			}
			for _, o := range held {
				o.Release()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.True(t, c.Empty())
}
