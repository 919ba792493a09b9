package cli

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eshaffer321/ledger-balancer/internal/adapters/rpc"
	"github.com/eshaffer321/ledger-balancer/internal/api"
	"github.com/eshaffer321/ledger-balancer/internal/application/service"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/config"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/logging"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/storage"
	"github.com/eshaffer321/ledger-balancer/internal/observability"
	"github.com/eshaffer321/ledger-balancer/internal/realtime"
)

// JanitorInterval is how often finished jobs are pruned and stuck jobs failed.
var JanitorInterval = time.Minute

// RunServe runs the API server until ctx is cancelled, then shuts it down,
// cancels running jobs and waits for them to finish.
func RunServe(ctx context.Context, cfg *config.Config, flags *ServeFlags, stdout io.Writer) error {
	loggingCfg := cfg.Observability.Logging
	if flags.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "api")

	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	var metrics *observability.Metrics
	if cfg.Observability.Metrics {
		metrics = observability.NewMetrics()
	}

	hub := realtime.NewHub(cfg.Realtime.Buffer, logging.NewLoggerWithSystem(loggingCfg, "realtime"))
	defer hub.Close()

	var gateway rpc.Gateway
	if cfg.Gateway.Enabled() {
		gw, err := rpc.NewHTTPGateway(rpc.HTTPConfig{
			BaseURL:   cfg.Gateway.BaseURL,
			APIKey:    cfg.Gateway.APIKey,
			APISecret: cfg.Gateway.APISecret,
			Timeout:   cfg.Gateway.Timeout,
			RetryMax:  cfg.Gateway.RetryMax,
		}, logging.NewLoggerWithSystem(loggingCfg, "rpc"))
		if err != nil {
			return err
		}
		gateway = gw
	}

	svc := service.NewBalanceService(store, hub, gateway, metrics,
		logging.NewLoggerWithSystem(loggingCfg, "balance"),
		service.Options{
			Precision:         cfg.Invoice.Precision,
			MarketplacePrefix: cfg.Invoice.MarketplacePrefix,
		})

	apiCfg := api.Config{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		Precision:         cfg.Invoice.Precision,
		MarketplacePrefix: cfg.Invoice.MarketplacePrefix,
	}
	if flags.Port > 0 {
		apiCfg.Port = flags.Port
	}
	if len(apiCfg.AllowedOrigins) == 0 {
		apiCfg.AllowedOrigins = api.DefaultConfig().AllowedOrigins
	}

	server := api.NewServer(apiCfg, api.Dependencies{
		Repo:           store,
		BalanceService: svc,
		Hub:            hub,
		Gateway:        gateway,
		Metrics:        metrics,
	}, logger)
	PrintHeader(stdout, apiCfg.Addr(), gateway != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		runJanitor(gctx, svc, logger)
		return nil
	})

	err = g.Wait()

	if n := svc.CancelAll(); n > 0 {
		logger.Info("cancelled running jobs", slog.Int("count", n))
	}
	svc.Wait()
	PrintJobSummary(stdout, svc.List())

	if errors.Is(err, context.Canceled) {
		err = nil
	}
	logger.Info("server stopped")
	return err
}

func runJanitor(ctx context.Context, svc *service.BalanceService, logger *slog.Logger) {
	ticker := time.NewTicker(JanitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := svc.MarkStaleJobsAsFailed(service.DefaultJobStaleThreshold, service.DefaultJobMaxDuration); n > 0 {
				logger.Warn("failed stale jobs", slog.Int("count", n))
			}
			if n := svc.CleanupOldJobs(time.Hour); n > 0 {
				logger.Debug("pruned finished jobs", slog.Int("count", n))
			}
		}
	}
}
