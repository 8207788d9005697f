package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/asecn/asecn/internal/config"
	"github.com/asecn/asecn/internal/gateway/httpapi"
	"github.com/asecn/asecn/internal/gateway/ws"
	"github.com/asecn/asecn/internal/monitor"
	"github.com/asecn/asecn/internal/ratelimit"
	"github.com/asecn/asecn/internal/scheduler"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the monitor loop, cron scheduler, and HTTP gateway",
	RunE:  runServe,
}

func init() {
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&listenAddr, "listen", "", "override gateway listen address (e.g. :8080)")
	}
}

// runServe is the long-running mode: every background component plus the
// configured network surfaces, until SIGINT or SIGTERM.
func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddr != "" {
		if cfg.Gateway == nil {
			cfg.Gateway = &config.GatewayConfig{Enabled: true}
		}
		cfg.Gateway.ListenAddr = listenAddr
	}
	logger := newLogger(cfg.Logging)

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := sc.Obs.Registerer()

	// Self-monitoring loop.
	monitorDone := make(chan struct{})
	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	defer cancelMonitor()
	if cfg.Monitor.IsEnabled() {
		var mc config.MonitorConfig
		if cfg.Monitor != nil {
			mc = *cfg.Monitor
		}
		loop := monitor.New(sc.Orchestrator, monitor.Config{
			Task:         mc.Task,
			Workflow:     mc.Workflow,
			Context:      mc.Context,
			BaseInterval: cfg.Monitor.BaseInterval(),
			Fallback:     cfg.Monitor.Fallback(),
		}, monitor.NewMetrics(reg), logger)
		go func() {
			defer close(monitorDone)
			if err := loop.Run(monitorCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("monitor loop exited", slog.String("error", err.Error()))
			}
		}()
		logger.Debug("monitor loop started",
			slog.String("base_interval", cfg.Monitor.BaseInterval().String()),
		)
	} else {
		close(monitorDone)
	}

	// Cron scheduler.
	var sched *scheduler.Scheduler
	stopScheduler := func() {}
	if cfg.Scheduler != nil && cfg.Scheduler.Enabled {
		jobs := make([]scheduler.Job, 0, len(cfg.Scheduler.Jobs))
		for _, j := range cfg.Scheduler.Jobs {
			jobs = append(jobs, scheduler.Job{
				Name:        j.Name,
				Schedule:    j.Schedule,
				Description: j.Description,
				Workflow:    j.Workflow,
				Context:     j.Context,
			})
		}
		sched, err = scheduler.New(sc.Orchestrator, jobs, scheduler.NewMetrics(reg), logger)
		if err != nil {
			return fmt.Errorf("initializing scheduler: %w", err)
		}
		stopScheduler = sched.Start(ctx)
		logger.Debug("cron scheduler started", slog.Int("jobs", len(jobs)))
	}

	// Network surfaces.
	var (
		gw       *httpapi.Gateway
		wsServer *ws.Server
		errs     = make(chan error, 1)
	)
	if cfg.Gateway != nil && cfg.Gateway.Enabled {
		gw, wsServer, err = buildGateway(cfg, sc, sched, logger)
		if err != nil {
			stopScheduler()
			return err
		}
		go func() {
			errs <- gw.Start(ctx)
		}()
	} else {
		logger.Info("http gateway disabled")
	}

	logger.Info("asecn running",
		slog.String("executor", cfg.Executor.ExecutorMode()),
		slog.String("storage", sc.Store.Driver()),
		slog.Bool("gateway", gw != nil),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	stopScheduler()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Gateway.ShutdownGrace())
	defer cancel()
	if gw != nil {
		if err := gw.Stop(shutdownCtx); err != nil {
			logger.Error("stopping gateway", slog.String("error", err.Error()))
		}
	}
	if wsServer != nil {
		wsServer.Close()
	}

	cancelMonitor()
	<-monitorDone
	return nil
}

// buildGateway assembles the HTTP API and, when enabled, the WebSocket result
// stream mounted on it.
func buildGateway(cfg *config.Config, sc *SharedComponents, sched *scheduler.Scheduler, logger *slog.Logger) (*httpapi.Gateway, *ws.Server, error) {
	gc := cfg.Gateway
	hc := httpapi.Config{
		ListenAddr:  gc.Addr(),
		EnableDocs:  gc.Docs,
		APIKeys:     gc.APIKeys,
		ReadTimeout: gc.ReadTimeout(),
		RateLimiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: gc.RateLimit,
			Burst:             gc.RateBurst,
		}),
	}
	if obs := sc.Obs; obs != nil {
		hc.HealthChecker = obs.Health
		hc.Metrics = obs.Metrics
		if obs.Metrics != nil {
			hc.MetricsGatherer = obs.Metrics.Registry
		}
		if cfg.Observability.Metrics != nil {
			hc.MetricsPath = cfg.Observability.Metrics.Path
		}
		if obs.Tracer != nil {
			hc.Tracer = obs.SpanTracer()
		}
	}

	deps := httpapi.Deps{
		Tasks:     sc.Orchestrator,
		Directory: sc.Directory,
		Selector:  sc.Selector,
		Store:     sc.Store,
	}
	if sched != nil {
		deps.Cron = sched
	}

	gw, err := httpapi.NewGateway(hc, deps, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing http gateway: %w", err)
	}

	var wsServer *ws.Server
	if gc.WebSocket {
		var clients prometheus.Gauge
		if sc.Obs != nil && sc.Obs.Metrics != nil {
			clients = sc.Obs.Metrics.WebSocketClients
		}
		wsServer = ws.NewServer(sc.Orchestrator, ws.Config{
			APIKeys: gc.APIKeys,
			Clients: clients,
		}, logger)
		sc.Orchestrator.Observe(wsServer.Broadcast)
		gw.WithHandler(gc.WSPath(), wsServer.Handler())
		logger.Debug("websocket result stream mounted", slog.String("path", gc.WSPath()))
	}
	return gw, wsServer, nil
}
