package cache

import (
	"testing"

	"github.com/IvanBrykalov/objcache/weakref"
	"github.com/stretchr/testify/require"
)

func TestKeys_EqualityMatrix(t *testing.T) {
	t.Parallel()

	a := newObj(1)
	b := newObj(1)
	other := newObj(2)
	t.Cleanup(func() {
		a.Release()
		b.Release()
		other.Release()
	})

	stored := func(o *obj) key[*obj] { return weakKey[*obj]{ref: weakref.Make(o), hash: 1} }

	cmp := comparer[*obj]{equal: testOptions().Equal}
	defer cmp.release()

	// content comparison for Find and Insert
	require.True(t, cmp.keysEqual(pointerKey[*obj]{obj: b}, stored(a)))
	require.True(t, cmp.keysEqual(stored(a), stored(b)))
	require.False(t, cmp.keysEqual(pointerKey[*obj]{obj: other}, stored(a)))

	// identity comparison for Erase
	require.True(t, cmp.keysEqual(eraseKey[*obj]{obj: a}, stored(a)))
	require.False(t, cmp.keysEqual(eraseKey[*obj]{obj: b}, stored(a)))
	require.False(t, cmp.keysEqual(stored(a), eraseKey[*obj]{obj: b}))

	// promoted entries stay pinned until release
	require.Len(t, cmp.pins, 4)
	require.EqualValues(t, 4, a.RefCount())
}

func TestKeys_DeadEntryNeverMatches(t *testing.T) {
	t.Parallel()

	dead := newObj(1)
	k := weakKey[*obj]{ref: weakref.Make(dead), hash: 1}
	dead.Release()

	cmp := comparer[*obj]{equal: testOptions().Equal}
	require.False(t, cmp.keysEqual(pointerKey[*obj]{obj: blueprint(1)}, k))
	require.False(t, cmp.keysEqual(k, k))
	require.Empty(t, cmp.pins)
}

func TestKeys_HashUsesStoredValue(t *testing.T) {
	t.Parallel()

	o := newObj(3)
	defer o.Release()
	hash := func(o *obj) uint64 { return uint64(o.value) * 10 }

	require.EqualValues(t, 30, hashKey[*obj](pointerKey[*obj]{obj: o}, hash))
	require.EqualValues(t, 30, hashKey[*obj](eraseKey[*obj]{obj: o}, hash))
	require.EqualValues(t, 99, hashKey[*obj](weakKey[*obj]{ref: weakref.Make(o), hash: 99}, hash))
}
