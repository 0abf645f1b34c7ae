package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/user/composablestudio/internal/api"
	ctxengine "github.com/user/composablestudio/internal/context"
	"github.com/user/composablestudio/internal/dispatch"
	"github.com/user/composablestudio/internal/gateway"
	"github.com/user/composablestudio/internal/metrics"
	"github.com/user/composablestudio/internal/scheduler"
	"github.com/user/composablestudio/internal/studio"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the studio API server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, pidFileName)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return "", errors.Wrap(err, "write PID file")
	}
	return pidPath, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	m := metrics.New()
	opts := []studio.Option{studio.WithMetrics(m)}
	engine, err := ctxengine.New(cfg.Context.Encoding, cfg.Context.MaxContextTokens, cfg.Context.OutputReserve)
	if err != nil {
		log.Warn().Err(err).Str("encoding", cfg.Context.Encoding).Msg("context engine disabled")
	} else {
		opts = append(opts, studio.WithEngine(engine))
	}

	svc, content, closeStores, err := openStudio(cfg, opts...)
	if err != nil {
		return err
	}
	defer closeStores()

	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	// Action dispatch
	registry := dispatch.NewRegistry()
	svc.RegisterHandlers(registry)
	gw := gateway.New(registry, int64(cfg.MaxConcurrent),
		gateway.WithMetrics(m),
		gateway.WithRetryPolicy(&gateway.RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: time.Duration(cfg.Retry.InitialDelayMs) * time.Millisecond,
			MaxDelay:     time.Duration(cfg.Retry.MaxDelayMs) * time.Millisecond,
			Multiplier:   2,
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw.Start(ctx)
	defer gw.Stop()

	// Maintenance
	sched := scheduler.New(
		scheduler.CheckpointJob(cfg.Maintenance.CheckpointSchedule, content),
		scheduler.SweepJob(cfg.Maintenance.SweepSchedule, cfg.DataDir),
	)
	if err := sched.Start(); err != nil {
		return errors.Wrap(err, "start scheduler")
	}
	defer sched.Stop()

	// HTTP server
	srv := api.NewServer(svc, gw, api.Options{
		AuthToken:      cfg.Server.AuthToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Metrics:        m,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("listen", cfg.Server.ListenAddr).Msg("api server started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("api server error")
			cancel()
		}
	}()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("log_level", cfg.LogLevel).
		Int("max_concurrent", cfg.MaxConcurrent).
		Str("pid_file", pidPath).
		Msg("studio started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case <-ctx.Done():
			return errors.New("api server stopped unexpectedly")
		case sig := <-sigChan:
			if sig == syscall.SIGHUP {
				log.Info().Msg("received SIGHUP, restarting")
				execPath, err := os.Executable()
				if err != nil {
					log.Error().Err(err).Msg("failed to get executable path")
					continue
				}
				// Clean up PID file before re-exec
				os.Remove(pidPath)
				if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
					log.Error().Err(err).Msg("failed to re-exec")
					if _, writeErr := writePIDFile(cfg.DataDir); writeErr != nil {
						log.Error().Err(writeErr).Msg("failed to re-write PID file")
					}
					continue
				}
			}
			log.Info().Str("signal", sig.String()).Msg("shutting down")
			return nil
		}
	}
}
