package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/FairForge/warmstandby/internal/cloud"
	"github.com/FairForge/warmstandby/internal/config"
	"github.com/FairForge/warmstandby/internal/database"
	"github.com/FairForge/warmstandby/internal/ha"
	"github.com/FairForge/warmstandby/internal/health"
	"github.com/FairForge/warmstandby/internal/logging"
	"github.com/FairForge/warmstandby/internal/metrics"
)

// app holds the wired components shared by the subcommands
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	clients  *cloud.Clients
	health   ha.HealthSource
	store    ha.RunStore
	tracker  *ha.RTORPOTracker
	recorder *metrics.Recorder
	dr       *ha.DROrchestrator
	closers  []func() error
}

func loadConfig(opts *globalOptions) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// newApp loads configuration and builds every component. Nothing is
// started.
func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, logger, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, recorder: metrics.NewRecorder()}

	a.clients, err = cloud.NewClients(ctx, cfg.CloudSettings())
	if err != nil {
		return nil, err
	}

	if cfg.Parameters.Enabled {
		if err := cfg.ApplyParameters(ctx, cloud.NewParameterStore(a.clients.SSM)); err != nil {
			return nil, fmt.Errorf("load recovery parameters: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config after parameter overlay: %w", err)
		}
		// regions may have moved
		if a.clients, err = cloud.NewClients(ctx, cfg.CloudSettings()); err != nil {
			return nil, err
		}
	}

	router := health.NewRouter(health.NewHTTPProber(health.ProberConfig{Timeout: cfg.Monitor.ProbeTimeout}, logger.Named("prober")))
	router.Handle("route53", cloud.NewRoute53HealthSource(a.clients.Route53))
	a.health = metrics.NewInstrumentedHealth(router, a.recorder)

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	base, perDomain := cfg.Targets()
	a.tracker, err = ha.NewRTORPOTrackerWithDomains(base, perDomain)
	if err != nil {
		return nil, err
	}

	deps := ha.Dependencies{
		Health:   a.health,
		Database: cloud.NewRDSAdmin(a.clients.RDS, a.clients.CloudWatch, cfg.Failover.BackupRetentionDays),
		Compute:  cloud.NewECSAdmin(a.clients.ECS),
		DNS:      cloud.NewRoute53Admin(a.clients.Route53),
		Store:    a.store,
		Tracker:  a.tracker,
		Observer: a.recorder,
	}
	if cfg.Notify.TopicARN != "" {
		deps.Sink = cloud.NewSNSSink(a.clients.SNS, cfg.Notify.TopicARN)
	} else {
		logger.Warn("no notification topic configured; runs will not notify")
	}
	if cfg.Archive.Bucket != "" {
		deps.Archiver = cloud.NewS3Archive(a.clients.S3, cfg.Archive.Bucket, cfg.Archive.Prefix)
	}

	a.dr, err = ha.NewDROrchestrator(cfg.DRConfig(), deps, logger.Named("dr"))
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	if !a.cfg.Database.Enabled() {
		a.logger.Info("no database configured; run history is kept in memory")
		a.store = ha.NewMemoryRunStore(1000)
		return nil
	}

	db, err := database.NewPostgres(a.cfg.Database)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, db.Close)
	if err := db.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	if err := db.CreateTables(ctx); err != nil {
		return err
	}
	a.store = database.NewRunStore(db)
	return nil
}

func (a *app) domain(name string) (ha.FailoverDomain, error) {
	d, ok := a.cfg.Domain(name)
	if !ok {
		return ha.FailoverDomain{}, fmt.Errorf("%w: %s", ha.ErrUnknownDomain, name)
	}
	return d, nil
}

func (a *app) Close() {
	a.dr.Wait()
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
