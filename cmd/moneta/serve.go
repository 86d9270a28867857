package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fortuna/moneta/internal/api/rest"
	"github.com/fortuna/moneta/internal/store"
	"github.com/fortuna/moneta/internal/store/repository"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newServeCommand(configPath *string) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the workbook and observation archive over a read-only REST API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.REST.Port = port
			}

			var archive rest.ObservationArchive
			if cfg.Archive.DSN != "" {
				db, err := store.NewDatabase(cfg.Archive.DSN, logger)
				if err != nil {
					logger.WithError(err).Warn("⚠️  Archive database unavailable, serving workbook only")
				} else {
					defer db.Close()
					archive = repository.NewObservationRepository(db)
				}
			}

			server := rest.NewServer(cfg.REST.Port, cfg.Workbook, archive, logger)
			logger.Infof("✓ REST API server listening on :%s", cfg.REST.Port)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)

			return serveUntilSignal(server, sig, logger)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (overrides config)")
	return cmd
}

type httpServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serveUntilSignal runs server until it fails or sig fires. A listen
// error is returned; a signal triggers a graceful shutdown.
func serveUntilSignal(server httpServer, sig <-chan os.Signal, logger *logrus.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.WithError(err).Error("❌ REST server error")
		return err
	case <-sig:
	}

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
