package weakref

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/IvanBrykalov/objcache/refcount"
	"github.com/stretchr/testify/require"
)

// --- test doubles ---

type named interface {
	Weakable
	Name() string
}

type thing struct {
	refcount.Counted
	Base

	name      string
	destroyed atomic.Bool
}

func newThing(name string) *thing {
	t := &thing{name: name}
	t.Init(func() {
		t.destroyed.Store(true)
		t.InvalidateWeakRef()
	})
	t.InitWeakRef(t)
	return t
}

func (t *thing) Name() string { return t.name }

// --- tests ---

func TestRef_NullHandle(t *testing.T) {
	t.Parallel()

	var r Ref[*thing]
	require.True(t, r.IsNull())

	_, ok := r.Promote()
	require.False(t, ok)
	_, ok = r.UnsafeGet()
	require.False(t, ok)
}

func TestRef_PromoteTakesReference(t *testing.T) {
	t.Parallel()

	obj := newThing("a")
	r := Make(obj)
	require.False(t, r.IsNull())

	got, ok := r.Promote()
	require.True(t, ok)
	require.Same(t, obj, got)
	require.EqualValues(t, 2, obj.RefCount())

	got.Release()
	require.EqualValues(t, 1, obj.RefCount())
}

func TestRef_DoesNotKeepObjectAlive(t *testing.T) {
	t.Parallel()

	obj := newThing("a")
	r := Make(obj)

	obj.Release()
	require.True(t, obj.destroyed.Load())

	_, ok := r.Promote()
	require.False(t, ok)
	_, ok = r.UnsafeGet()
	require.False(t, ok, "invalidated cell must not expose the target")
}

// Between the last Release and InvalidateWeakRef the target is still in the
// cell, but promotion must fail because the count is zero.
func TestRef_PromoteFailsWhileDying(t *testing.T) {
	t.Parallel()

	var r Ref[*thing]
	obj := &thing{name: "dying"}
	obj.Init(func() {
		_, ok := r.Promote()
		require.False(t, ok)

		raw, ok := r.UnsafeGet()
		require.True(t, ok)
		require.Same(t, obj, raw)

		obj.InvalidateWeakRef()
	})
	obj.InitWeakRef(obj)
	r = Make(obj)

	obj.Release()
}

func TestUpcast(t *testing.T) {
	t.Parallel()

	obj := newThing("base")
	r := Upcast(Make(obj), func(x *thing) named { return x })

	got, ok := r.Promote()
	require.True(t, ok)
	require.Equal(t, "base", got.Name())
	got.Release()

	require.Panics(t, func() { Upcast[named, *thing](Make(obj), nil) })
	obj.Release()
}

type gadget struct {
	refcount.Counted
	Base
}

// A sibling witness compiles; the mismatch only surfaces on Promote.
func TestUpcast_SiblingPanicsOnPromote(t *testing.T) {
	t.Parallel()

	obj := newThing("sibling")
	r := Upcast(Make(obj), func(*thing) *gadget { return nil })
	require.PanicsWithValue(t,
		"weakref: Promote of a *weakref.thing through a Ref[*weakref.gadget]",
		func() { r.Promote() })

	// Promote took a reference before the type check failed.
	obj.Release()
	obj.Release()
	require.True(t, obj.destroyed.Load())
}

func TestBase_Misuse(t *testing.T) {
	t.Parallel()

	var b Base
	require.Panics(t, func() { b.InvalidateWeakRef() })

	obj := newThing("x")
	require.Panics(t, func() { obj.InitWeakRef(obj) })
	require.Panics(t, func() { Make(&thing{}) })
	obj.Release()
}

// Promote racing with the final Release must never hand out a reference to an
// object whose teardown already started.
func TestRef_PromoteRacesRelease(t *testing.T) {
	workers := 2 * runtime.GOMAXPROCS(0)

	for round := 0; round < 200; round++ {
		obj := newThing("race")
		r := Make(obj)

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(workers + 1)
		go func() {
			defer wg.Done()
			<-start
			obj.Release()
		}()
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				<-start
				if got, ok := r.Promote(); ok {
					if got.destroyed.Load() {
						t.Errorf("promoted a destroyed object")
					}
					got.Release()
				}
			}()
		}
		close(start)
		wg.Wait()

		require.True(t, obj.destroyed.Load())
		_, ok := r.Promote()
		require.False(t, ok)
	}
}
