// loombench drives scenario workloads through the dispatcher and reports
// per-world throughput. Worlds are independent and run in parallel.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/weavework/loom/dispatch"
	"github.com/weavework/loom/ecs"
	"github.com/weavework/loom/internal/bench"
	"github.com/weavework/loom/internal/config"
	"github.com/weavework/loom/internal/scenario"
	"github.com/weavework/loom/script"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := flag.String("config", "", "config file (toml); empty uses built-in defaults")
	scenarioPath := flag.String("scenario", "", "scenario file (yaml); overrides config")
	ticks := flag.Int("ticks", 0, "tick count; overrides config")
	workers := flag.Int("workers", -1, "worker goroutines per world; 0 = all CPUs")
	worlds := flag.Int("worlds", 0, "parallel worlds; overrides config")
	prof := flag.String("profile", "", `profiling: "cpu" or "mem"; overrides config`)
	flag.Parse()

	cfg := config.Default()
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if *scenarioPath != "" {
		cfg.Bench.Scenario = *scenarioPath
	}
	if *ticks > 0 {
		cfg.Bench.Ticks = *ticks
	}
	if *workers >= 0 {
		cfg.Runtime.Workers = *workers
	}
	if *worlds > 0 {
		cfg.Bench.Worlds = *worlds
	}
	if *prof != "" {
		cfg.Bench.Profile = *prof
	}
	if cfg.Bench.Worlds <= 0 {
		cfg.Bench.Worlds = 1
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	sc := scenario.Default()
	if cfg.Bench.Scenario != "" {
		sc, err = scenario.Load(cfg.Bench.Scenario)
		if err != nil {
			return fmt.Errorf("load scenario: %w", err)
		}
	}

	switch cfg.Bench.Profile {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown profile %q", cfg.Bench.Profile)
	}

	workersPerWorld := cfg.Runtime.Workers
	if workersPerWorld <= 0 {
		workersPerWorld = runtime.NumCPU()
	}
	log.Info("bench starting",
		zap.String("scenario", sc.Name),
		zap.Int("entities", sc.Entities),
		zap.Int("ticks", cfg.Bench.Ticks),
		zap.Int("worlds", cfg.Bench.Worlds),
		zap.Int("workers", workersPerWorld))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.Bench.Worlds; i++ {
		i := i
		g.Go(func() error {
			return runWorld(ctx, cfg, sc, log.With(zap.Int("world", i)))
		})
	}
	return g.Wait()
}

// runWorld seeds one world, registers the scenario's systems and scripts,
// then ticks it to completion. Worn-out particles are replaced at each flush
// so the population holds steady.
func runWorld(ctx context.Context, cfg *config.Config, sc *scenario.Scenario, log *zap.Logger) error {
	w, err := bench.NewWorld(sc)
	if err != nil {
		return fmt.Errorf("build world: %w", err)
	}
	rng := rand.New(rand.NewSource(sc.Seed))
	if err := bench.Populate(w, rng, sc); err != nil {
		return fmt.Errorf("seed world: %w", err)
	}

	d := dispatch.NewDispatcher(w, cfg.Runtime.Workers, log)
	defer d.Close()

	for _, name := range sc.Systems {
		sys, err := bench.ByName(name)
		if err != nil {
			return err
		}
		if err := d.Register(sys); err != nil {
			return err
		}
	}
	for _, path := range sc.Scripts {
		sys, err := script.LoadFile(path, log)
		if err != nil {
			return err
		}
		defer sys.Close()
		if err := d.Register(sys); err != nil {
			return err
		}
	}

	for i, names := range d.Stages() {
		log.Info("stage planned", zap.Int("stage", i), zap.Strings("systems", names))
	}

	clock, ok := ecs.GetResource[bench.Clock](w)
	if !ok {
		return fmt.Errorf("clock resource missing")
	}

	start := time.Now()
	destroyed := 0
	for tick := 0; tick < cfg.Bench.Ticks; tick++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		clock.Tick = tick
		if err := d.RunOnce(); err != nil {
			return err
		}
		if cfg.Bench.FlushEvery > 0 && (tick+1)%cfg.Bench.FlushEvery == 0 {
			reaped, err := w.FlushDeallocations()
			if err != nil {
				return err
			}
			destroyed += reaped
			for i := 0; i < reaped; i++ {
				if err := bench.Spawn(w, rng, sc); err != nil {
					return err
				}
			}
		}
	}
	elapsed := time.Since(start)

	avgSpeed := 0.0
	if stats, ok := ecs.GetResource[bench.Stats](w); ok {
		avgSpeed = stats.AvgSpeed
	}
	perSec := 0.0
	if elapsed > 0 {
		perSec = float64(cfg.Bench.Ticks) / elapsed.Seconds()
	}
	log.Info("world finished",
		zap.Int("ticks", cfg.Bench.Ticks),
		zap.Duration("elapsed", elapsed),
		zap.Float64("ticks_per_sec", perSec),
		zap.Int("live", w.Live()),
		zap.Int("destroyed", destroyed),
		zap.Float64("avg_speed", avgSpeed))
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
