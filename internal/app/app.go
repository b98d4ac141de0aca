// Package app wires configuration, infrastructure, and the provisioning
// control plane's domain packages into a running HTTP server (spec §2).
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wisbric/urumi-provisioner/internal/admission"
	"github.com/wisbric/urumi-provisioner/internal/audit"
	"github.com/wisbric/urumi-provisioner/internal/config"
	"github.com/wisbric/urumi-provisioner/internal/httpserver"
	"github.com/wisbric/urumi-provisioner/internal/platform"
	"github.com/wisbric/urumi-provisioner/internal/ratelimit"
	"github.com/wisbric/urumi-provisioner/internal/repository"
	"github.com/wisbric/urumi-provisioner/internal/retry"
	"github.com/wisbric/urumi-provisioner/internal/telemetry"
	"github.com/wisbric/urumi-provisioner/pkg/appworkload"
	"github.com/wisbric/urumi-provisioner/pkg/dbworkload"
	"github.com/wisbric/urumi-provisioner/pkg/k8sgateway"
	"github.com/wisbric/urumi-provisioner/pkg/orchestrator"
)

// Run is the main application entry point: it reads config, connects
// infrastructure, wires the domain packages, and serves HTTP until ctx is
// cancelled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting urumi-provisioner", "listen", cfg.ListenAddr())

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("schema migrations applied")

	clientset, err := k8sgateway.NewClientset(cfg.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("building kubernetes clientset: %w", err)
	}
	restCfg, err := k8sgateway.NewRESTConfig(cfg.KubeconfigPath)
	if err != nil {
		return fmt.Errorf("building kubernetes rest config: %w", err)
	}

	retryCfg, err := buildRetryConfig(cfg)
	if err != nil {
		return err
	}
	gw := k8sgateway.NewGateway(clientset, restCfg, retryCfg, logger)

	repo := repository.NewPostgresRepository(db)
	auditLog := audit.NewPostgresLog(db, logger)

	if n, err := repo.CountActive(ctx); err != nil {
		logger.Warn("seeding active store gauge", "error", err)
	} else {
		telemetry.ActiveStoresGauge.Set(float64(n))
	}

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	orch, err := buildOrchestrator(gw, repo, auditLog, cfg, logger)
	if err != nil {
		return err
	}

	go orch.RunReaper(ctx, 30*time.Second)

	srv := httpserver.NewServer(cfg, logger, metricsReg, gw, repo)

	createLimit := ratelimit.New(rdb, "create", orDefault(cfg.CreateRateLimitPerIP, 5), 10*time.Minute)
	deleteLimit := ratelimit.New(rdb, "delete", orDefault(cfg.DeleteRateLimitPerIP, 10), 10*time.Minute)
	globalWriteLimit := ratelimit.New(rdb, "write", orDefault(cfg.GlobalWriteRateLimit, 100), 15*time.Minute)

	storeHandler := admission.NewHandler(orch, repo, auditLog, createLimit, deleteLimit)
	auditHandler := audit.NewHandler(auditLog)

	srv.Router.Route("/api", func(r chi.Router) {
		r.Use(httpserver.GlobalWriteRateLimit(globalWriteLimit, logger))
		r.Mount("/stores", storeHandler.Routes())
		r.Mount("/audit", auditHandler.Routes())
	})

	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func buildRetryConfig(cfg *config.Config) (retry.Config, error) {
	rc := retry.DefaultConfig()
	if cfg.RetryMaxAttempts > 0 {
		rc.MaxRetries = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialDelay != "" {
		d, err := time.ParseDuration(cfg.RetryInitialDelay)
		if err != nil {
			return retry.Config{}, fmt.Errorf("parsing retry initial delay %q: %w", cfg.RetryInitialDelay, err)
		}
		rc.InitialDelay = d
	}
	return rc, nil
}

func buildOrchestrator(gw *k8sgateway.Gateway, repo repository.Repository, auditLog audit.Log, cfg *config.Config, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	provisioningDeadline, err := parseDurationOrDefault(cfg.ProvisioningDeadline, 300*time.Second)
	if err != nil {
		return nil, err
	}
	dbTimeout, err := parseDurationOrDefault(cfg.DatabaseReadyTimeout, 90*time.Second)
	if err != nil {
		return nil, err
	}
	appTimeout, err := parseDurationOrDefault(cfg.ApplicationReadyTimeout, 180*time.Second)
	if err != nil {
		return nil, err
	}

	orchCfg := orchestrator.Config{
		ProvisioningDeadline: provisioningDeadline,
		NamespaceGoneTimeout: 60 * time.Second,
		MaxActiveStores:      cfg.MaxActiveStores,
		StoreDomain:          cfg.StoreDomain,
	}
	dbCfg := dbworkload.Config{
		StorageSize:  cfg.DatabaseStorageSize,
		ReadyTimeout: dbTimeout,
	}
	appCfg := appworkload.Config{
		StorageSize:  cfg.ApplicationStorageSize,
		ReadyTimeout: appTimeout,
		StoreDomain:  cfg.StoreDomain,
		IngressClass: cfg.IngressClass,
	}

	return orchestrator.New(gw, repo, auditLog, orchCfg, dbCfg, appCfg, logger), nil
}

func parseDurationOrDefault(raw string, def time.Duration) (time.Duration, error) {
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	return d, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
