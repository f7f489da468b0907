package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/IvanBrykalov/objcache/device"
	"github.com/stretchr/testify/require"
)

func TestGenerate_ReleasesEverything(t *testing.T) {
	t.Parallel()

	b := &device.NullBackend{}
	d := device.New(device.Options{Backend: b})
	w := workload{workers: 4, duration: 50 * time.Millisecond, descriptors: 8, release: 30, seed: 1}

	res, err := generate(context.Background(), d, w)
	require.NoError(t, err)
	require.NotZero(t, res.ops)

	for _, k := range device.Kinds {
		require.Zero(t, b.Live(k), "kind %s", k)
	}
	require.NoError(t, d.Close())

	var out bytes.Buffer
	report(&out, w, res, d)
	require.Contains(t, out.String(), "sampler")
	require.Contains(t, out.String(), "pipeline_layout")
	require.Contains(t, out.String(), "compute_pipeline")
}

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	_, err := newLogger("loud")
	require.Error(t, err)

	l, err := newLogger("debug")
	require.NoError(t, err)
	require.NotNil(t, l)
}
