package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"vault-refresh-agent/pkg/config"
	"vault-refresh-agent/pkg/dbprobe"
	"vault-refresh-agent/pkg/env"
	"vault-refresh-agent/pkg/logger"
	"vault-refresh-agent/pkg/manager"
	"vault-refresh-agent/pkg/scheduler"
	"vault-refresh-agent/pkg/telemetry"
	"vault-refresh-agent/pkg/vault"
)

const serviceName = "vault-refresh-agent"

const (
	dynamicRefreshInterval = 5 * time.Second
	staticRefreshInterval  = 10 * time.Second

	kvFailureBackoff      = 5 * time.Second
	dynamicFailureBackoff = 5 * time.Second
	staticFailureBackoff  = 10 * time.Second

	shutdownGrace = 10 * time.Second
)

type App struct {
	cfg     *config.Config
	tracker *vault.TokenTracker
	manager *manager.Manager
	prober  *dbprobe.Prober
	server  *http.Server
	started time.Time

	mu          sync.Mutex
	lastProbeID string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{}
	if err := app.Bootstrap(ctx); err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
}

func (a *App) Bootstrap(ctx context.Context) error {
	env.Load()
	a.started = time.Now()

	// Telemetry gracefully degrades if OTEL_EXPORTER_OTLP_ENDPOINT is not set.
	shutdownTelemetry, err := telemetry.Init(ctx, serviceName)
	if err != nil {
		slog.Warn("otel_init_failed, continuing without full observability", "error", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			if err := shutdownTelemetry(context.Background()); err != nil {
				slog.Error("otel_shutdown_failed", "error", err)
			}
		}
	}()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config_load_failed: %w", err)
	}
	a.cfg = cfg

	client, err := vault.NewClient(vault.Config{
		Address:   cfg.Vault.URL,
		Namespace: cfg.Vault.Namespace,
		RoleID:    cfg.Vault.RoleID,
		SecretID:  cfg.Vault.SecretID,
		KVMount:   cfg.Vault.KVMount(),
		DBMount:   cfg.Vault.DatabaseMount(),
		Timeout:   cfg.Vault.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("vault_client_init_failed: %w", err)
	}

	a.tracker = vault.NewTokenTracker(client)
	a.manager = manager.New(client, a.tracker)
	if cfg.Probe.Enabled {
		a.prober = dbprobe.New(cfg.Probe)
	}

	// A failed initial login is not fatal: the refresh loops retry on every
	// cycle, so the agent recovers as soon as Vault is reachable.
	if err := a.tracker.Login(ctx); err != nil {
		logger.Warn("initial login failed, will retry on refresh", "error", err)
	} else {
		logger.Info("initial login ok", "vault_url", cfg.Vault.URL)
		if meta, err := client.LookupSelf(ctx); err == nil {
			logger.Info("token introspection",
				"display_name", meta["display_name"], "policies", meta["policies"], "ttl", meta["ttl"])
		}
	}

	if os.Getenv("APP_ENV") == "test" {
		return nil
	}

	sched := scheduler.New()
	a.startRefreshLoops(ctx, sched)

	if cfg.Status.Enabled {
		a.server = &http.Server{
			Addr:    cfg.Status.Addr(),
			Handler: telemetry.NewHTTPHandler(a.statusMux(), serviceName),
		}
		go func() {
			logger.Info("status server listening", "addr", cfg.Status.Addr())
			if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("status server failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if a.server != nil {
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("status server shutdown failed", "error", err)
		}
	}
	if !sched.Wait(shutdownGrace) {
		logger.Warn("refresh loops did not stop within grace period")
	}
	return nil
}

func (a *App) startRefreshLoops(ctx context.Context, sched *scheduler.Scheduler) {
	if a.cfg.KVSecret.Enabled {
		sched.Start(ctx, scheduler.Task{
			Name:     "kv",
			Interval: a.cfg.KVSecret.RefreshInterval(),
			Backoff:  kvFailureBackoff,
			Run:      a.refreshKV,
		})
	}
	if a.cfg.DatabaseDynamic.Enabled {
		sched.Start(ctx, scheduler.Task{
			Name:     "database-dynamic",
			Interval: dynamicRefreshInterval,
			Backoff:  dynamicFailureBackoff,
			Run:      a.refreshDynamic,
		})
	}
	if a.cfg.DatabaseStatic.Enabled {
		sched.Start(ctx, scheduler.Task{
			Name:     "database-static",
			Interval: staticRefreshInterval,
			Backoff:  staticFailureBackoff,
			Run:      a.refreshStatic,
		})
	}
}

func (a *App) refreshKV(ctx context.Context) error {
	_, err := a.manager.GetKVSecret(ctx, a.cfg.KVSecret.Path)
	return err
}

func (a *App) refreshDynamic(ctx context.Context) error {
	creds, err := a.manager.GetDynamicCredentials(ctx, a.cfg.DatabaseDynamic.Role)
	if err != nil {
		return err
	}
	return a.probeIfNew(ctx, creds)
}

func (a *App) refreshStatic(ctx context.Context) error {
	_, err := a.manager.GetStaticCredentials(ctx, a.cfg.DatabaseStatic.Role)
	return err
}

// probeIfNew verifies freshly generated credentials against the live
// database. Cached credentials were already probed when issued, so only a
// changed username triggers a new connection.
func (a *App) probeIfNew(ctx context.Context, creds *vault.Credentials) error {
	if a.prober == nil {
		return nil
	}

	a.mu.Lock()
	seen := a.lastProbeID == creds.Username
	a.mu.Unlock()
	if seen {
		return nil
	}

	if _, err := a.prober.Check(ctx, creds); err != nil {
		return fmt.Errorf("credential probe failed: %w", err)
	}

	a.mu.Lock()
	a.lastProbeID = creds.Username
	a.mu.Unlock()
	return nil
}
