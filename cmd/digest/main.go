package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"kindle_digest/internal/config"
	"kindle_digest/internal/scheduler"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "kindle-digest",
	Short:         "Deliver a daily e-book of new feed posts to a Kindle",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runLoop,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a round now and then once a day at the configured time",
	RunE:  runLoop,
}

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single round and exit",
	RunE:  runOnce,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("kindle-digest %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	rootCmd.AddCommand(runCmd, onceCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads the configuration and wires the application. Failures are
// logged here so the caller only has to exit.
func bootstrap(ctx context.Context) (*app, *config.Config, *slog.Logger, error) {
	logger, _ := setupLogger("info", "")

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return nil, nil, nil, err
	}

	logger, closeLog := setupLogger(cfg.LogLevel, cfg.LogFile)
	slog.SetDefault(logger)

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		_ = closeLog()
		return nil, nil, nil, err
	}
	a.closers = append(a.closers, closeLog)

	return a, cfg, logger, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-sigCh:
			slog.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

func runLoop(_ *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, cfg, logger, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	loc, _ := cfg.Schedule.Location()
	sched := scheduler.NewScheduler(a.rounds, scheduler.Config{
		Hour:         cfg.Schedule.Hour,
		Minute:       cfg.Schedule.Minute,
		Location:     loc,
		RunOnStart:   *cfg.Schedule.RunOnStart,
		RoundTimeout: cfg.Schedule.RoundTimeout,
	}, logger)

	logger.Info("starting kindle digest",
		"version", Version,
		"feeds", cfg.Feeds.Path,
		"watermark", cfg.Watermark.Driver,
		"lookback", cfg.Fetch.Lookback(),
	)

	if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("scheduler error", "error", err)
		return err
	}
	return nil
}

func runOnce(_ *cobra.Command, _ []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, cfg, logger, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Schedule.RoundTimeout > 0 {
		var cancelRound context.CancelFunc
		ctx, cancelRound = context.WithTimeout(ctx, cfg.Schedule.RoundTimeout)
		defer cancelRound()
	}

	stats, err := a.rounds.Run(ctx)
	if err != nil {
		logger.Error("round failed, watermark unchanged", "error", err)
		return err
	}

	logger.Info("round finished",
		"round_id", stats.RoundID,
		"posts", stats.Posts,
		"delivered", stats.Delivered,
	)
	return nil
}
