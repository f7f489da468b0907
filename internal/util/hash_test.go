package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasher_Deterministic(t *testing.T) {
	t.Parallel()

	a := NewHasher("sampler").Uint32(1).Float32(0.5).String("x").Bool(true).Sum64()
	b := NewHasher("sampler").Uint32(1).Float32(0.5).String("x").Bool(true).Sum64()
	require.Equal(t, a, b)
}

func TestHasher_TagAndFramingMatter(t *testing.T) {
	t.Parallel()

	require.NotEqual(t,
		NewHasher("sampler").Uint32(1).Sum64(),
		NewHasher("layout").Uint32(1).Sum64())

	// "ab"+"c" must not collide with "a"+"bc".
	require.NotEqual(t,
		NewHasher("t").String("ab").String("c").Sum64(),
		NewHasher("t").String("a").String("bc").Sum64())
}

func TestHasher_SignedZero(t *testing.T) {
	t.Parallel()

	negZero := float32(math.Copysign(0, -1))
	require.Equal(t,
		NewHasher("t").Float32(0).Sum64(),
		NewHasher("t").Float32(negZero).Sum64())
}

func TestHashString(t *testing.T) {
	t.Parallel()

	require.Equal(t, HashString("@vertex fn main() {}"), HashString("@vertex fn main() {}"))
	require.NotEqual(t, HashString("a"), HashString("b"))
}
