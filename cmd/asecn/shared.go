package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	goutils "github.com/jkaninda/go-utils"

	"github.com/asecn/asecn/internal/config"
	"github.com/asecn/asecn/internal/conversation"
	"github.com/asecn/asecn/internal/dispatch"
	"github.com/asecn/asecn/internal/executor"
	"github.com/asecn/asecn/internal/llm"
	"github.com/asecn/asecn/internal/llm/openai"
	"github.com/asecn/asecn/internal/observability"
	"github.com/asecn/asecn/internal/orchestrator"
	"github.com/asecn/asecn/internal/sandbox"
	"github.com/asecn/asecn/internal/storage"
	filestore "github.com/asecn/asecn/internal/storage/file"
	pgstore "github.com/asecn/asecn/internal/storage/postgres"
	sqlitestore "github.com/asecn/asecn/internal/storage/sqlite"
	"github.com/asecn/asecn/internal/workflow"
)

// SharedComponents holds every initialized subsystem the commands need.
// Built once by initShared, torn down by Cleanup.
type SharedComponents struct {
	Config       *config.Config
	Logger       *slog.Logger
	Obs          *observability.Observability
	Provider     llm.Provider
	Guard        *executor.Guard
	Directory    *workflow.Directory
	Selector     *workflow.Selector
	Store        storage.Store
	Orchestrator *orchestrator.Orchestrator

	cleanups []func()
}

// Cleanup runs all deferred cleanup functions in reverse order.
func (sc *SharedComponents) Cleanup() {
	for i := len(sc.cleanups) - 1; i >= 0; i-- {
		sc.cleanups[i]()
	}
}

func (sc *SharedComponents) addCleanup(fn func()) {
	sc.cleanups = append(sc.cleanups, fn)
}

// loadConfig resolves the config path (ASECN_CONFIG wins over --config) and
// loads it. A missing file at the default path means built-in defaults.
func loadConfig() (*config.Config, error) {
	path := goutils.Env("ASECN_CONFIG", configPath)
	if path == config.DefaultConfigPath() {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}
	return config.Load(path)
}

// newLogger builds the process logger from the logging config. --verbose
// forces debug.
func newLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Format) == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// initShared performs all common initialization. Callers must call
// sc.Cleanup() when done.
func initShared(cfg *config.Config, logger *slog.Logger) (*SharedComponents, error) {
	sc := &SharedComponents{
		Config: cfg,
		Logger: logger,
	}

	// Ensure data directory exists.
	dataDir := cfg.ResolvedDataDir()
	if err := os.MkdirAll(dataDir, 0750); err != nil {
		return nil, fmt.Errorf("creating data directory %s: %w", dataDir, err)
	}
	logger.Debug("data directory initialized", slog.String("path", dataDir))

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing observability: %w", err)
	}
	sc.Obs = obs
	sc.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		obs.Shutdown(shutdownCtx)
	})
	if obs != nil {
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
			slog.Bool("anomaly", obs.Anomaly != nil),
		)
	}

	// LLM provider.
	provider, err := newLLMProvider(cfg, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing LLM provider: %w", err)
	}
	if obs.MetricsOrNil() != nil || obs.TracerOrNil() != nil {
		provider = observability.NewInstrumentedProvider(provider, obs.MetricsOrNil(), obs.TracerOrNil(), obs.AnomalyOrNil())
	}
	sc.Provider = provider
	logger.Debug("llm provider initialized", slog.String("provider", provider.Name()))

	// Workflows.
	dir, err := workflow.NewDirectory(cfg.Agents, cfg.Workflows)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("building workflow directory: %w", err)
	}
	sc.Directory = dir
	sc.Selector = workflow.NewSelector(cfg.Keywords, cfg.ConfiguredWorkflow())

	// Command guard.
	guard, err := executor.NewGuard(cfg.Executor.Denylist, cfg.SafePaths())
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing command guard: %w", err)
	}
	sc.Guard = guard

	// Storage.
	store, err := initStore(cfg, guard, logger)
	if err != nil {
		sc.Cleanup()
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	sc.Store = store
	sc.addCleanup(func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	})
	if obs != nil {
		obs.Health.AddCheck("store", store.Ping)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	// Worker pool, conversation and executor.
	pool := dispatch.NewPool(cfg.WorkerPool.Size)
	clog := conversation.NewLog(cfg.Conversation.MaxEntries)
	chat := conversation.NewGroupChat(provider, dir, clog, conversation.GroupChatConfig{
		MaxRounds:   cfg.Conversation.Rounds(),
		MaxTokens:   cfg.LLM.Tokens(),
		Temperature: cfg.LLM.Temp(),
	}, logger)

	exec, err := buildExecutor(cfg, provider, guard, pool, clog, obs, logger)
	if err != nil {
		pool.Close()
		sc.Cleanup()
		return nil, fmt.Errorf("initializing executor: %w", err)
	}
	logger.Debug("executor initialized", slog.String("mode", cfg.Executor.ExecutorMode()))

	// Orchestrator.
	orch, err := orchestrator.New(orchestrator.Deps{
		Directory:    dir,
		Selector:     sc.Selector,
		Conversation: chat,
		Dispatcher:   dispatch.NewDispatcher(exec, logger),
		Sink:         store,
		Pool:         pool,
		Metrics:      orchestrator.NewMetrics(obs.Registerer()),
		Tracer:       obs.SpanTracer(),
	}, orchestrator.Config{
		Validation:  orchestrator.ValidationPolicy(cfg.Orchestrator.Validation),
		OmitHistory: cfg.Orchestrator.OmitHistory,
	}, logger)
	if err != nil {
		pool.Close()
		sc.Cleanup()
		return nil, fmt.Errorf("initializing orchestrator: %w", err)
	}
	sc.Orchestrator = orch

	// Runs before the store closes: flushes the affinity snapshot and the
	// conversation dump.
	sc.addCleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = orch.Shutdown(shutdownCtx)
	})

	orch.Observe(storage.TaskRecorder(store, func(err error) {
		logger.Error("recording task result", slog.String("error", err.Error()))
	}))
	if anomaly := obs.AnomalyOrNil(); anomaly != nil {
		orch.Observe(observability.TaskObserver(anomaly))
	}

	return sc, nil
}

// newLLMProvider creates the primary model client and, when fallbacks are
// configured, a fallback chain behind it.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	primary := openai.NewClient(cfg.LLM.APIKey, cfg.LLM.ModelName(), logger,
		clientOptions(cfg.LLM, cfg.LLM.BaseURL, "")...,
	)
	if len(cfg.LLM.Fallbacks) == 0 {
		return primary, nil
	}

	providers := []llm.Provider{primary}
	for i, fb := range cfg.LLM.Fallbacks {
		name := fb.Name
		if name == "" {
			name = fmt.Sprintf("fallback-%d", i+1)
		}
		model := fb.Model
		if model == "" {
			model = cfg.LLM.ModelName()
		}
		providers = append(providers, openai.NewClient(fb.APIKey, model, logger,
			clientOptions(cfg.LLM, fb.BaseURL, name)...,
		))
	}
	fb, err := llm.NewFallbackProvider(providers, logger)
	if err != nil {
		return nil, err
	}
	return fb, nil
}

func clientOptions(lc config.LLMConfig, baseURL, name string) []openai.Option {
	opts := []openai.Option{
		openai.WithTimeout(lc.Timeout()),
		openai.WithTemperature(lc.Temp()),
	}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	if name != "" {
		opts = append(opts, openai.WithName(name))
	}
	return opts
}

// initStore creates the storage backend selected by storage.driver.
func initStore(cfg *config.Config, guard *executor.Guard, logger *slog.Logger) (storage.Store, error) {
	switch driver := cfg.Storage.StorageDriver(); driver {
	case storage.DriverFile:
		return filestore.Open(cfg.StorageDir(), guard, logger)
	case storage.DriverSQLite:
		return initSQLiteStore(cfg, logger)
	case storage.DriverPostgres:
		return initPostgresStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

func initSQLiteStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	sqlCfg := sqlitestore.Config{Path: cfg.DatabasePath()}
	if cfg.Storage != nil && cfg.Storage.SQLite != nil {
		sqlCfg.JournalMode = cfg.Storage.SQLite.JournalMode
	}
	store, err := sqlitestore.Open(sqlCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	logger.Info("sqlite store opened", slog.String("path", store.Path()))
	return store, nil
}

func initPostgresStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	if cfg.Storage == nil || cfg.Storage.Postgres == nil {
		return nil, fmt.Errorf("storage.postgres is required when driver is postgres")
	}
	pg := cfg.Storage.Postgres
	db, err := pgstore.Open(pgstore.Config{
		DSN:             pg.DSN,
		MaxOpenConns:    pg.MaxOpenConns,
		MaxIdleConns:    pg.MaxIdleConns,
		ConnMaxLifetime: time.Duration(pg.ConnMaxLifetimeS) * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("opening postgres database: %w", err)
	}
	return pgstore.NewStore(db), nil
}

// initSandbox creates the sandbox used by the shell executor.
func initSandbox(cfg config.SandboxConfig, logger *slog.Logger) (sandbox.Sandbox, error) {
	switch cfg.SandboxType() {
	case "process":
		return sandbox.NewProcessSandbox(sandbox.ProcessConfig{
			DefaultTimeout: cfg.ExecutionTimeout(),
			DefaultLimits: sandbox.Limits{
				MaxCPUSeconds: cfg.MaxCPUSeconds,
				MaxMemoryMB:   cfg.MaxMemoryMB,
			},
		}, logger), nil
	case "docker":
		return sandbox.NewDockerSandbox(sandbox.DockerConfig{
			Image:          cfg.DockerImage,
			DefaultTimeout: cfg.ExecutionTimeout(),
			MemoryMB:       cfg.MaxMemoryMB,
			CPUs:           cfg.DockerCPUs,
			PIDsLimit:      cfg.DockerPIDsLimit,
			Network:        cfg.DockerNetwork,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unsupported sandbox type: %q", cfg.Type)
	}
}

// buildExecutor assembles the sub-action executor for executor.mode.
func buildExecutor(
	cfg *config.Config,
	provider llm.Provider,
	guard *executor.Guard,
	pool *dispatch.Pool,
	clog *conversation.Log,
	obs *observability.Observability,
	logger *slog.Logger,
) (dispatch.Executor, error) {
	instrument := func(inner dispatch.Executor, name string) dispatch.Executor {
		if obs.MetricsOrNil() == nil && obs.TracerOrNil() == nil {
			return inner
		}
		return observability.NewInstrumentedExecutor(inner, name, obs.MetricsOrNil(), obs.TracerOrNil())
	}

	newInterpreter := func() dispatch.Executor {
		return instrument(executor.NewInterpreter(provider, guard, clog, executor.InterpreterConfig{
			SystemPrompt:  cfg.Executor.SystemPrompt,
			MaxTokens:     cfg.LLM.Tokens(),
			Temperature:   cfg.LLM.Temp(),
			HistoryWindow: cfg.Executor.HistoryWindow,
		}, logger), "interpreter")
	}
	newShell := func() (dispatch.Executor, error) {
		sbx, err := initSandbox(cfg.Executor.Sandbox, logger)
		if err != nil {
			return nil, err
		}
		if obs.MetricsOrNil() != nil || obs.TracerOrNil() != nil {
			sbx = observability.NewInstrumentedSandbox(sbx, cfg.Executor.Sandbox.SandboxType(),
				obs.MetricsOrNil(), obs.TracerOrNil(), obs.AnomalyOrNil())
		}
		return instrument(executor.NewShell(sbx, guard, pool, logger), "shell"), nil
	}

	switch mode := cfg.Executor.ExecutorMode(); mode {
	case "interpreter":
		return newInterpreter(), nil
	case "shell":
		return newShell()
	case "router":
		shell, err := newShell()
		if err != nil {
			return nil, err
		}
		return &executor.Router{Shell: shell, Interpreter: newInterpreter()}, nil
	default:
		return nil, fmt.Errorf("unknown executor mode: %q", mode)
	}
}
