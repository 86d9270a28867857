package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/moneta/internal/cache"
	"github.com/fortuna/moneta/internal/config"
	"github.com/fortuna/moneta/internal/ingest/polymarket"
	"github.com/fortuna/moneta/internal/notify"
	"github.com/fortuna/moneta/internal/publisher"
	"github.com/fortuna/moneta/internal/scheduler"
	"github.com/fortuna/moneta/internal/store"
	"github.com/fortuna/moneta/internal/store/repository"
	"github.com/fortuna/moneta/internal/workbook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

type runFlags struct {
	headless    bool
	dryRun      bool
	maxGames    int
	batchCommit bool
}

func newRunCommand(configPath *string) *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Capture every game once and append the results to the workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("headless") {
				cfg.Browser.Headless = flags.headless
			}
			if cmd.Flags().Changed("max-games") {
				cfg.Run.MaxGames = flags.maxGames
			}
			if flags.batchCommit {
				cfg.Run.BatchCommit = true
			}
			return runOnce(cmd.Context(), cfg, flags.dryRun, logger)
		},
	}

	cmd.Flags().BoolVar(&flags.headless, "headless", true, "run the browser without a window (--headless=false to watch)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "capture without writing the workbook")
	cmd.Flags().IntVar(&flags.maxGames, "max-games", 0, "process at most N games (0 = all)")
	cmd.Flags().BoolVar(&flags.batchCommit, "batch", false, "commit the workbook once at the end of the run")
	return cmd
}

func runOnce(parent context.Context, cfg *config.Config, dryRun bool, logger *logrus.Logger) error {
	logger.Infof("Starting %s v%s - NBA moneyline capture", serviceName, serviceVersion)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	session, err := polymarket.NewSession(polymarket.SessionConfig{
		GamesURL:        cfg.Browser.GamesURL,
		Headless:        cfg.Browser.Headless,
		Width:           cfg.Browser.Width,
		Height:          cfg.Browser.Height,
		PageLoadTimeout: cfg.Browser.PageLoadTimeout,
		NetworkIdle:     cfg.Browser.NetworkIdle,
		GraphRenderWait: cfg.Browser.GraphRenderWait,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("❌ Failed to start browser session")
		return errRunFailed
	}
	defer session.Close()

	// Optional infrastructure: every piece is best-effort
	var historyCache polymarket.HistoryCache
	var sinks []scheduler.Sink

	if cfg.Redis.URL != "" {
		redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cfg.Redis.HistoryTTL)
		if err != nil {
			logger.WithError(err).Warn("⚠️  Redis unavailable, continuing without cache and stream")
		} else {
			defer redisCache.Close()
			historyCache = redisCache
			logger.Info("✓ Connected to Redis")
			if cfg.Redis.Publish {
				sinks = append(sinks, publisher.NewRedisStreamPublisher(redisCache.Client()))
			}
		}
	}

	if cfg.Archive.DSN != "" {
		db, err := store.NewDatabase(cfg.Archive.DSN, logger)
		if err != nil {
			logger.WithError(err).Warn("⚠️  Archive database unavailable, continuing without it")
		} else {
			defer db.Close()
			if err := db.RunMigrations(parent); err != nil {
				logger.WithError(err).Warn("⚠️  Archive migrations failed, continuing without it")
			} else {
				sinks = append(sinks, repository.NewArchive(db))
			}
		}
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		tg, err := notify.NewTelegram(cfg.Telegram.BotToken, cfg.Telegram.ChatID, logger)
		if err != nil {
			logger.WithError(err).Warn("⚠️  Telegram unavailable, continuing without it")
		} else {
			sinks = append(sinks, tg)
		}
	}

	var history scheduler.HistoryFetcher
	if cfg.History.Enabled {
		history = polymarket.NewHistoryClient(cfg.History.BaseURL, cfg.History.Timeout, historyCache, logger)
	}

	// Ctrl-C during a rate-limit wait skips the wait; otherwise it stops the run
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)
	ctx, interrupts := scheduler.WatchInterrupts(parent, sig)
	defer interrupts.Stop()

	writer := workbook.NewWriter(cfg.Workbook, logger)
	orch := scheduler.NewOrchestrator(session, history, writer, &scheduler.Config{
		Location:      loc,
		Window:        cfg.Run.Window,
		ScreenshotDir: cfg.Run.ScreenshotDir,
		RequestDelay:  cfg.Run.RequestDelay,
		MaxGames:      cfg.Run.MaxGames,
		DryRun:        dryRun,
		BatchCommit:   cfg.Run.BatchCommit,
		TimePeriod:    cfg.Run.TimePeriod,
	}, logger).
		WithSinks(sinks...).
		WithInterrupts(interrupts).
		WithRetryPolicy(scheduler.RetryPolicy{
			MaxAttempts: cfg.Run.MaxAttempts,
			Backoff:     scheduler.LinearBackoff(cfg.Run.RetryBackoff),
			Logger:      logger,
		})

	start := time.Now()
	report, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	printSummary(os.Stdout, report)
	logger.Infof("Run finished in %v", time.Since(start).Round(time.Second))

	if report.Failed() {
		logger.Error("❌ Every attempted game failed")
		return errRunFailed
	}
	return nil
}
