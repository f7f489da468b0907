package main

import (
	"fmt"
	"runtime"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"
)

// profile is a workload description. Zero fields in a TOML profile keep the
// flag defaults; flags given explicitly on the command line always win.
type profile struct {
	Workers     int    `toml:"workers"`
	Duration    string `toml:"duration"`
	Descriptors int    `toml:"descriptors"`
	Release     int    `toml:"release"`
	HTTP        string `toml:"http"`
	Pprof       string `toml:"pprof"`
	Seed        int64  `toml:"seed"`
}

// workload is a validated profile.
type workload struct {
	workers     int
	duration    time.Duration
	descriptors int
	release     int
	httpAddr    string
	pprofAddr   string
	seed        int64
}

func defaultProfile() profile {
	return profile{
		Workers:     2 * runtime.GOMAXPROCS(0),
		Duration:    "10s",
		Descriptors: 256,
		Release:     50,
		HTTP:        ":8080",
		Seed:        1,
	}
}

func loadProfile(path string) (profile, error) {
	var p profile
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return profile{}, fmt.Errorf("failed to decode profile %s: %w", path, err)
	}
	return p, nil
}

// merge overlays the non-zero fields of file onto p, skipping any field whose
// flag was set explicitly.
func (p profile) merge(file profile, flags *pflag.FlagSet) profile {
	keep := func(name string) bool { return flags != nil && flags.Changed(name) }
	if file.Workers != 0 && !keep("workers") {
		p.Workers = file.Workers
	}
	if file.Duration != "" && !keep("duration") {
		p.Duration = file.Duration
	}
	if file.Descriptors != 0 && !keep("descriptors") {
		p.Descriptors = file.Descriptors
	}
	if file.Release != 0 && !keep("release") {
		p.Release = file.Release
	}
	if file.HTTP != "" && !keep("http") {
		p.HTTP = file.HTTP
	}
	if file.Pprof != "" && !keep("pprof") {
		p.Pprof = file.Pprof
	}
	if file.Seed != 0 && !keep("seed") {
		p.Seed = file.Seed
	}
	return p
}

func (p profile) workload() (workload, error) {
	d, err := time.ParseDuration(p.Duration)
	if err != nil {
		return workload{}, fmt.Errorf("invalid duration %q: %w", p.Duration, err)
	}
	switch {
	case d <= 0:
		return workload{}, fmt.Errorf("duration must be > 0, got %v", d)
	case p.Descriptors <= 0:
		return workload{}, fmt.Errorf("descriptors must be > 0, got %d", p.Descriptors)
	case p.Release < 0 || p.Release > 100:
		return workload{}, fmt.Errorf("release must be in [0,100], got %d", p.Release)
	}
	w := workload{
		workers:     p.Workers,
		duration:    d,
		descriptors: p.Descriptors,
		release:     p.Release,
		httpAddr:    p.HTTP,
		pprofAddr:   p.Pprof,
		seed:        p.Seed,
	}
	if w.workers <= 0 {
		w.workers = 1
	}
	return w, nil
}
