package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func writeProfile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bench.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestProfile_FileOverridesDefaultsButNotExplicitFlags(t *testing.T) {
	t.Parallel()

	path := writeProfile(t, `
workers = 3
duration = "250ms"
descriptors = 64
release = 20
seed = 42
`)
	file, err := loadProfile(path)
	require.NoError(t, err)

	flags := pflag.NewFlagSet("run", pflag.ContinueOnError)
	flags.Int("workers", 0, "")
	flags.Int64("seed", 0, "")
	require.NoError(t, flags.Set("seed", "7"))

	p := defaultProfile()
	p.Seed = 7
	p = p.merge(file, flags)

	require.Equal(t, 3, p.Workers)
	require.Equal(t, int64(7), p.Seed, "explicit flag wins")

	w, err := p.workload()
	require.NoError(t, err)
	require.Equal(t, 250*time.Millisecond, w.duration)
	require.Equal(t, 64, w.descriptors)
	require.Equal(t, 20, w.release)
	require.Equal(t, ":8080", w.httpAddr, "unset profile fields keep defaults")
}

func TestProfile_Invalid(t *testing.T) {
	t.Parallel()

	_, err := loadProfile(writeProfile(t, `workers = "many"`))
	require.Error(t, err)

	for _, p := range []profile{
		{Duration: "soon", Descriptors: 1},
		{Duration: "0s", Descriptors: 1},
		{Duration: "1s", Descriptors: 0},
		{Duration: "1s", Descriptors: 1, Release: 101},
	} {
		_, err := p.workload()
		require.Error(t, err, "%+v", p)
	}

	w, err := profile{Duration: "1s", Descriptors: 1}.workload()
	require.NoError(t, err)
	require.Equal(t, 1, w.workers, "non-positive workers fall back to one")
}
