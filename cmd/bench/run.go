package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/objcache/cache"
	"github.com/IvanBrykalov/objcache/device"
	pmet "github.com/IvanBrykalov/objcache/metrics/prom"
	"github.com/fatih/color"
	pprofile "github.com/pkg/profile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a timed create/release workload",
	Long: `Each worker repeatedly requests a random sampler, shader module or pipeline
layout out of a fixed descriptor space, holds it in a small ring and releases
held objects at the configured rate. Equal requests share one live object;
released objects uncache themselves and are recreated on the next request.`,
	Args: cobra.NoArgs,
	RunE: runBench,
}

func init() {
	def := defaultProfile()
	runCmd.Flags().Int("workers", def.Workers, "number of worker goroutines")
	runCmd.Flags().Duration("duration", 10*time.Second, "benchmark duration")
	runCmd.Flags().Int("descriptors", def.Descriptors, "distinct descriptors per object kind")
	runCmd.Flags().Int("release", def.Release, "percentage of operations that release a held object [0..100]")
	runCmd.Flags().String("http", def.HTTP, "serve Prometheus metrics at addr; empty = disabled")
	runCmd.Flags().String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
	runCmd.Flags().String("profile", "", "write a profile for the run (cpu|mem|mutex|block|trace)")
	runCmd.Flags().String("profile-dir", ".", "directory for --profile output")
	runCmd.Flags().String("config", "", "TOML workload file; explicit flags override it")
	runCmd.Flags().Int64("seed", def.Seed, "random seed")
}

func runBench(cmd *cobra.Command, _ []string) error {
	w, err := workloadFromFlags(cmd)
	if err != nil {
		return err
	}
	levelName, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return fmt.Errorf("failed to get log-level flag: %w", err)
	}
	logger, err := newLogger(levelName)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	prof, err := startProfile(cmd)
	if err != nil {
		return err
	}
	defer prof.Stop()

	// ---- Prometheus registry and servers ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	servers := startServers(w, reg, logger)
	defer shutdown(servers, logger)

	// ---- Device ----
	d := device.New(device.Options{
		Logger: logger,
		Metrics: func(k device.ObjectKind) cache.Metrics {
			return pmet.New(reg, "objcache", "bench", prometheus.Labels{"kind": k.String()})
		},
	})

	res, err := generate(ctx, d, w)
	if err != nil {
		return err
	}
	report(cmd.OutOrStdout(), w, res, d)
	return d.Close()
}

func workloadFromFlags(cmd *cobra.Command) (workload, error) {
	flags := cmd.Flags()
	p := defaultProfile()
	var err error
	if p.Workers, err = flags.GetInt("workers"); err != nil {
		return workload{}, err
	}
	dur, err := flags.GetDuration("duration")
	if err != nil {
		return workload{}, err
	}
	p.Duration = dur.String()
	if p.Descriptors, err = flags.GetInt("descriptors"); err != nil {
		return workload{}, err
	}
	if p.Release, err = flags.GetInt("release"); err != nil {
		return workload{}, err
	}
	if p.HTTP, err = flags.GetString("http"); err != nil {
		return workload{}, err
	}
	if p.Pprof, err = flags.GetString("pprof"); err != nil {
		return workload{}, err
	}
	if p.Seed, err = flags.GetInt64("seed"); err != nil {
		return workload{}, err
	}

	path, err := flags.GetString("config")
	if err != nil {
		return workload{}, err
	}
	if path != "" {
		file, err := loadProfile(path)
		if err != nil {
			return workload{}, err
		}
		p = p.merge(file, flags)
	}
	return p.workload()
}

type stopper interface{ Stop() }

type noProfile struct{}

func (noProfile) Stop() {}

func startProfile(cmd *cobra.Command) (stopper, error) {
	mode, err := cmd.Flags().GetString("profile")
	if err != nil {
		return nil, fmt.Errorf("failed to get profile flag: %w", err)
	}
	dir, err := cmd.Flags().GetString("profile-dir")
	if err != nil {
		return nil, fmt.Errorf("failed to get profile-dir flag: %w", err)
	}
	var kind func(*pprofile.Profile)
	switch mode {
	case "":
		return noProfile{}, nil
	case "cpu":
		kind = pprofile.CPUProfile
	case "mem":
		kind = pprofile.MemProfile
	case "mutex":
		kind = pprofile.MutexProfile
	case "block":
		kind = pprofile.BlockProfile
	case "trace":
		kind = pprofile.TraceProfile
	default:
		return nil, fmt.Errorf("unknown profile %q (use cpu, mem, mutex, block or trace)", mode)
	}
	return pprofile.Start(kind, pprofile.ProfilePath(dir), pprofile.NoShutdownHook, pprofile.Quiet), nil
}

func newLogger(level string) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

func startServers(w workload, reg *prometheus.Registry, log *zap.Logger) []*http.Server {
	var servers []*http.Server
	serve := func(name string, srv *http.Server) {
		servers = append(servers, srv)
		go func() {
			log.Info("serving", zap.String("endpoint", name), zap.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("server failed", zap.String("endpoint", name), zap.Error(err))
			}
		}()
	}
	if w.pprofAddr != "" {
		serve("pprof", &http.Server{Addr: w.pprofAddr, Handler: http.DefaultServeMux, ReadHeaderTimeout: 5 * time.Second})
	}
	if w.httpAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		serve("metrics", &http.Server{Addr: w.httpAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second})
	}
	return servers
}

func shutdown(servers []*http.Server, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn("server shutdown", zap.String("addr", srv.Addr), zap.Error(err))
		}
	}
}

// ---- load generation ----

type result struct {
	ops, created, released uint64
	elapsed                time.Duration
}

type releaser interface{ Release() bool }

const ringSize = 16

// generate runs the workers until w.duration elapses or ctx is cancelled, then
// releases everything still held.
func generate(ctx context.Context, d *device.Device, w workload) (result, error) {
	var res result
	ctx, cancel := context.WithTimeout(ctx, w.duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for id := 0; id < w.workers; id++ {
		g.Go(func() error {
			r := rand.New(rand.NewSource(w.seed + int64(id)*9973))
			var ring [ringSize]releaser
			next := 0
			defer func() {
				for _, h := range ring {
					if h != nil {
						h.Release()
					}
				}
			}()

			for ctx.Err() == nil {
				atomic.AddUint64(&res.ops, 1)
				slot := &ring[next%ringSize]
				if *slot != nil && r.Intn(100) < w.release {
					(*slot).Release()
					*slot = nil
					atomic.AddUint64(&res.released, 1)
					next++
					continue
				}
				obj, err := request(d, r, w.descriptors)
				if err != nil {
					return err
				}
				if *slot != nil {
					(*slot).Release()
					atomic.AddUint64(&res.released, 1)
				}
				*slot = obj
				atomic.AddUint64(&res.created, 1)
				next++
			}
			return nil
		})
	}
	err := g.Wait()
	res.elapsed = time.Since(start)
	return res, err
}

// request asks the device for one object out of the descriptor space.
func request(d *device.Device, r *rand.Rand, space int) (releaser, error) {
	i := r.Intn(space)
	switch r.Intn(4) {
	case 0:
		return d.GetOrCreateSampler(samplerDescriptor(i))
	case 1:
		return shaderModule(d, i)
	case 2:
		return pipelineLayout(d, i)
	default:
		pl, err := pipelineLayout(d, i)
		if err != nil {
			return nil, err
		}
		defer pl.Release()
		m, err := shaderModule(d, i)
		if err != nil {
			return nil, err
		}
		defer m.Release()
		return d.CreateComputePipeline(device.ComputePipelineDescriptor{
			Label:   fmt.Sprintf("bench-%d", i),
			Layout:  pl,
			Compute: device.ProgrammableStage{Module: m, EntryPoint: "main"},
		})
	}
}

func shaderModule(d *device.Device, i int) (*device.ShaderModule, error) {
	return d.GetOrCreateShaderModule(device.ShaderModuleDescriptor{
		Label: fmt.Sprintf("bench-%d", i),
		Code:  fmt.Sprintf("@compute @workgroup_size(%d) fn main() {}", i+1),
	})
}

func pipelineLayout(d *device.Device, i int) (*device.PipelineLayout, error) {
	bgl, err := d.GetOrCreateBindGroupLayout(device.BindGroupLayoutDescriptor{
		Entries: []device.BindGroupLayoutEntry{{
			Binding:        uint32(i % device.MaxBindingsPerGroup),
			Visibility:     device.StageCompute,
			Type:           device.BindingUniformBuffer,
			MinBindingSize: 16,
		}},
	})
	if err != nil {
		return nil, err
	}
	defer bgl.Release()
	return d.GetOrCreatePipelineLayout(device.PipelineLayoutDescriptor{
		BindGroupLayouts: []*device.BindGroupLayout{bgl},
	})
}

func samplerDescriptor(i int) device.SamplerDescriptor {
	desc := device.DefaultSamplerDescriptor()
	desc.Label = fmt.Sprintf("bench-%d", i)
	desc.LodMaxClamp = float32(i%32) + 1
	desc.AddressModeU = device.AddressMode(i / 32 % 3)
	return desc
}

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	kindColor   = color.New(color.FgYellow)
)

func report(out io.Writer, w workload, res result, d *device.Device) {
	headerColor.Fprintf(out, "workers=%d descriptors=%d release=%d%% dur=%v seed=%d\n",
		w.workers, w.descriptors, w.release, res.elapsed.Round(time.Millisecond), w.seed)
	fmt.Fprintf(out, "ops=%d (%.0f ops/s)  acquired=%d  released=%d\n",
		res.ops, float64(res.ops)/res.elapsed.Seconds(), res.created, res.released)

	stats := d.CacheStats()
	for _, k := range device.Kinds {
		s := stats[k]
		lookups := s.Hits + s.Misses
		hitRate := 0.0
		if lookups > 0 {
			hitRate = float64(s.Hits) / float64(lookups) * 100
		}
		kindColor.Fprintf(out, "%-18s", k)
		fmt.Fprintf(out, " hits=%d misses=%d hit-rate=%.2f%% inserts=%d erased=%d live=%d\n",
			s.Hits, s.Misses, hitRate, s.Inserts, s.Erased, s.Entries)
	}
}
