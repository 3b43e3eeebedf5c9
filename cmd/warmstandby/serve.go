package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/warmstandby/internal/api"
	"github.com/FairForge/warmstandby/internal/cloud"
	"github.com/FairForge/warmstandby/internal/config"
	"github.com/FairForge/warmstandby/internal/ha"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the health monitor and the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", true, "Reload the domain list when the config file changes")
	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, watch bool) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.Close()
	logger := a.logger

	var trigger ha.FailoverTrigger
	if a.cfg.Monitor.Enabled {
		trigger = a.dr
	}
	monitor := ha.NewHealthMonitor(a.cfg.MonitorConfig(), a.health, trigger, logger.Named("monitor"))
	defer monitor.Stop()
	monitor.Sync(a.cfg.ToDomains())
	monitor.Subscribe(func(e ha.MonitorEvent) {
		logger.Info("monitor event",
			zap.String("domain", e.Domain),
			zap.Stringer("type", e.Type),
			zap.String("message", e.Message),
		)
	})

	if a.cfg.Monitor.Enabled {
		go monitor.Run(ctx)
	} else {
		logger.Warn("health monitor disabled; failover only via the API")
	}

	if watch && opts.configPath != "" {
		go func() {
			load := config.ParameterLoader(cloud.NewParameterStore(a.clients.SSM))
			err := config.Watch(ctx, opts.configPath, 0, logger.Named("config"), load, func(cfg *config.Config) {
				monitor.Sync(cfg.ToDomains())
			})
			if err != nil {
				logger.Error("config watch stopped", zap.Error(err))
			}
		}()
	}

	server := api.NewServer(api.Options{
		Addr:         a.cfg.Server.Addr,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		JWTSecret:    a.cfg.Server.JWTSecret,
		TriggerRate:  a.cfg.Server.TriggerRate,
		TriggerBurst: a.cfg.Server.TriggerBurst,
		Version:      version,
	}, api.Deps{
		RunContext: ctx,
		Failover:   a.dr,
		Domains:    monitor,
		Runs:       a.store,
		Tracker:    a.tracker,
		Recorder:   a.recorder,
	}, logger.Named("api"))

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	return nil
}
