package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/yairfalse/siivo/executor"
	"github.com/yairfalse/siivo/internal/config"
	"github.com/yairfalse/siivo/policy"
	"github.com/yairfalse/siivo/providers"
	_ "github.com/yairfalse/siivo/providers/aws" // Register AWS provider
	"github.com/yairfalse/siivo/retention"
	"github.com/yairfalse/siivo/sweeper"
	"github.com/yairfalse/siivo/telemetry"
)

var (
	sweepConfigPath   string
	sweepDebug        bool
	sweepDryRun       bool
	sweepVolumesAge   int
	sweepSnapshotsAge int
	sweepCheckTags    bool
	sweepRegions      []string
	sweepPolicyDir    string
	sweepMetricsAddr  string
	sweepWorkers      int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Sweep stale volumes and snapshots once",
	Long: `Sweep every cloud/region once: list volumes and snapshots,
evaluate the retention filter against each record, and delete (or, in
dry-run, report) the eligible ones.

A volume is eligible when it is older than --volumes-age, currently
available (not attached), and carries no safe word in its nickname or
description. A snapshot is eligible when older than --snapshots-age,
carries no safe word, and is not a base OS image.`,
	Example: `  siivo sweep                          # dry run with defaults
  siivo sweep --dry-run=false          # actually delete
  siivo sweep --volumes-age 14         # volumes must be two weeks old
  siivo sweep --region eu-west-1       # one region only`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringVar(&sweepConfigPath, "config", "", "Path to YAML config file")
	sweepCmd.Flags().BoolVar(&sweepDebug, "debug", true, "Enable debug logging")
	sweepCmd.Flags().BoolVar(&sweepDryRun, "dry-run", true, "Simulate deletions instead of executing them")
	sweepCmd.Flags().IntVar(&sweepVolumesAge, "volumes-age", 7, "Minimum age in days before a volume is eligible")
	sweepCmd.Flags().IntVar(&sweepSnapshotsAge, "snapshots-age", 30, "Minimum age in days before a snapshot is eligible")
	sweepCmd.Flags().BoolVar(&sweepCheckTags, "check-tags", false, "Extend safe-word protection to tag keys and values")
	sweepCmd.Flags().StringSliceVar(&sweepRegions, "region", nil, "Region allowlist (repeatable; empty means all)")
	sweepCmd.Flags().StringVar(&sweepPolicyDir, "policy-dir", "", "Directory of Rego protection policies")
	sweepCmd.Flags().StringVar(&sweepMetricsAddr, "metrics", "", "Metrics server address (default :9090)")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "Concurrent cloud fan-out (default 1, sequential)")
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	setupLogging(cfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	otelProvider, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelProvider.Shutdown(shutdownCtx)
	}()

	s, err := buildSweeper(ctx, cfg, otelProvider)
	if err != nil {
		return err
	}

	result, err := runGroup(ctx, cfg, s)
	if err != nil {
		return err
	}

	if result != nil && result.HadErrors() {
		return fmt.Errorf("sweep finished with errors: %d failed deletions, %d listing errors",
			result.Failed, len(result.ListingErrors))
	}
	return nil
}

// loadConfig merges the config file with explicit flag overrides
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if sweepConfigPath != "" {
		loaded, err := config.Load(sweepConfigPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("dry-run") {
		cfg.Sweep.DryRun = &sweepDryRun
	}
	if flags.Changed("volumes-age") {
		cfg.Sweep.VolumesAgeDays = sweepVolumesAge
	}
	if flags.Changed("snapshots-age") {
		cfg.Sweep.SnapshotsAgeDays = sweepSnapshotsAge
	}
	if flags.Changed("check-tags") {
		cfg.Sweep.CheckTags = sweepCheckTags
	}
	if flags.Changed("region") {
		cfg.Regions = sweepRegions
	}
	if flags.Changed("policy-dir") {
		cfg.Sweep.PolicyDir = sweepPolicyDir
	}
	if flags.Changed("metrics") {
		cfg.MetricsAddr = sweepMetricsAddr
	}
	if flags.Changed("workers") {
		cfg.Sweep.Workers = sweepWorkers
	}
	if flags.Changed("debug") {
		if sweepDebug {
			cfg.Log.Level = "debug"
		} else {
			cfg.Log.Level = "info"
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
}

func buildSweeper(ctx context.Context, cfg *config.Config, otelProvider *telemetry.Provider) (*sweeper.Sweeper, error) {
	provider, err := providers.GetProvider(ctx, cfg.Provider, providers.ProviderConfig{
		Regions:        cfg.Regions,
		Profile:        cfg.Profile,
		RequestTimeout: cfg.Sweep.RequestTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create provider %s: %w", cfg.Provider, err)
	}

	day := 24 * time.Hour
	filter := retention.New(
		time.Duration(cfg.Sweep.VolumesAgeDays)*day,
		time.Duration(cfg.Sweep.SnapshotsAgeDays)*day,
		cfg.Sweep.ExtraSafeWords,
		cfg.Sweep.CheckTags,
	)

	exec := executor.New(provider, *cfg.Sweep.DryRun, telemetry.NewLogger("executor"))

	s := sweeper.New(provider, filter, exec).
		WithTelemetry(otelProvider).
		WithWorkers(cfg.Sweep.Workers)

	if cfg.Sweep.PolicyDir != "" {
		engine := policy.NewEngine()
		if err := engine.LoadDir(ctx, cfg.Sweep.PolicyDir); err != nil {
			return nil, fmt.Errorf("load policies: %w", err)
		}
		s = s.WithPolicyEngine(engine)
	}

	return s, nil
}

// runGroup runs the sweep alongside the metrics listener and a signal
// handler; whichever finishes first winds the others down.
func runGroup(ctx context.Context, cfg *config.Config, s *sweeper.Sweeper) (*sweeper.Result, error) {
	var g run.Group
	var result *sweeper.Result

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Add(func() error {
		return srv.ListenAndServe()
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})

	sweepCtx, cancelSweep := context.WithCancel(ctx)
	g.Add(func() error {
		var err error
		result, err = s.Run(sweepCtx)
		return err
	}, func(error) {
		cancelSweep()
	})

	err := g.Run()

	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		return result, fmt.Errorf("interrupted: %v", sigErr.Signal)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return result, err
	}
	return result, nil
}
