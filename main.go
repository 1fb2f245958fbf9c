// Command threadpress serves thread resolution over HTTP and keeps the
// article archive fresh.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ibeckermayer/threadpress/internal/app"
	"github.com/ibeckermayer/threadpress/internal/config"
	"github.com/ibeckermayer/threadpress/internal/httpserver"
	"github.com/ibeckermayer/threadpress/internal/scheduler"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, created, err := config.LoadOrCreate()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if created {
		path, _ := config.ConfigPath()
		logger.Info("created default config", "path", path)
	}
	if cfg.API.BearerToken == "" {
		logger.Warn("no bearer token configured; resolve requests will fail",
			"env", config.EnvBearerToken)
	}

	a, err := app.Open(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}
	defer a.Close()

	sched, err := scheduler.New(cfg.Refresh.Timezone, logger)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	sched.Start()
	if err := syncRefresh(sched, a, logger); err != nil {
		<-sched.Stop().Done()
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	server := httpserver.NewServer(cfg.Server.Addr, a, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	logger.Info("threadpress started", "addr", cfg.Server.Addr, "archive", cfg.Archive.Enabled)

	for {
		select {
		case err := <-serverErr:
			<-sched.Stop().Done()
			return fmt.Errorf("http server: %w", err)
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				if err := a.ReloadConfig(); err != nil {
					logger.Error("config reload failed", "error", err)
					continue
				}
				if err := syncRefresh(sched, a, logger); err != nil {
					logger.Error("refresh job not rescheduled", "error", err)
				}
				continue
			}
			logger.Info("received signal, shutting down", "signal", sig)
			return shutdown(server, sched, logger)
		}
	}
}

// syncRefresh brings the refresh job in line with the active config and
// logs when each job runs next.
func syncRefresh(sched *scheduler.Scheduler, a *app.App, logger *slog.Logger) error {
	cfg := a.Config()
	sched.SetJobTimeout(cfg.Refresh.Timeout.Std())

	enabled := cfg.Refresh.Enabled && a.HasArchive()
	err := sched.SyncRefreshJob(enabled, cfg.Refresh.Schedule, func(ctx context.Context) error {
		_, err := a.RefreshArchive(ctx)
		return err
	})
	if err != nil {
		return err
	}

	jobs := sched.ListJobs()
	if len(jobs) == 0 {
		logger.Info("no scheduled jobs")
	}
	for _, job := range jobs {
		logger.Info("next scheduled run", "job", job.Name, "at", job.NextRun)
	}
	return nil
}

func shutdown(server *httpserver.Server, sched *scheduler.Scheduler, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("error shutting down http server", "error", err)
	}

	select {
	case <-sched.Stop().Done():
	case <-ctx.Done():
		logger.Warn("refresh job did not stop in time")
	}
	return nil
}
