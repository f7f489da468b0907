package device

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSamplerDescriptor_HashIgnoresLabelAndSignedZero(t *testing.T) {
	t.Parallel()

	a := DefaultSamplerDescriptor()
	a.Label = "a"
	b := a
	b.Label = "b"
	b.LodMinClamp = float32(math.Copysign(0, -1))

	require.Equal(t, a.normalized(), b.normalized())
	require.Equal(t, a.normalized().contentHash(), b.normalized().contentHash())

	b.LodMinClamp = 1
	require.NotEqual(t, a.normalized().contentHash(), b.normalized().contentHash())
}

func TestSamplerDescriptor_NaNRejected(t *testing.T) {
	t.Parallel()

	d := DefaultSamplerDescriptor()
	d.LodMaxClamp = float32(math.NaN())
	require.Error(t, d.normalized().validate())
}

func TestEntriesHash_KindTagged(t *testing.T) {
	t.Parallel()

	// Empty bind group and pipeline layouts never share a hash.
	require.NotEqual(t, entriesHash(nil), layoutsHash(nil))

	e := []BindGroupLayoutEntry{{Binding: 1}, {Binding: 0}}
	sorted := BindGroupLayoutDescriptor{Entries: e}.normalized()
	require.Equal(t, uint32(0), sorted[0].Binding)
	require.Equal(t, uint32(1), e[0].Binding, "caller slice is not reordered")
}

func TestObjectKind_String(t *testing.T) {
	t.Parallel()

	want := []string{
		"sampler", "bind_group_layout", "pipeline_layout", "shader_module",
		"attachment_state", "compute_pipeline", "render_pipeline",
	}
	require.Len(t, Kinds, len(want))
	for i, k := range Kinds {
		require.Equal(t, want[i], k.String())
	}
	require.Equal(t, "unknown", ObjectKind(42).String())
}
