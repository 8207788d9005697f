// Package config handles loading and validating ASECN configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/asecn/asecn/internal/workflow"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for ASECN.
type Config struct {
	DataDir         string                `json:"data_dir,omitempty" yaml:"data_dir,omitempty"` // Default: ~/.asecn/data. Override: ASECN_DATA_DIR env var.
	Agents          []workflow.Agent      `json:"agents,omitempty" yaml:"agents,omitempty"`
	Workflows       []workflow.Definition `json:"workflows,omitempty" yaml:"workflows,omitempty"`
	Keywords        []workflow.Keywords   `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	DefaultWorkflow string                `json:"default_workflow,omitempty" yaml:"default_workflow,omitempty"`
	LLM             LLMConfig             `json:"llm" yaml:"llm"`
	Conversation    ConversationConfig    `json:"conversation" yaml:"conversation"`
	Executor        ExecutorConfig        `json:"executor" yaml:"executor"`
	Orchestrator    OrchestratorConfig    `json:"orchestrator" yaml:"orchestrator"`
	WorkerPool      WorkerPoolConfig      `json:"worker_pool" yaml:"worker_pool"`
	Monitor         *MonitorConfig        `json:"monitor,omitempty" yaml:"monitor,omitempty"`             // nil = monitor loop with defaults
	Scheduler       *SchedulerConfig      `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`         // nil = cron scheduler disabled
	Storage         *StorageConfig        `json:"storage,omitempty" yaml:"storage,omitempty"`             // nil = file sink under data_dir
	Observability   *ObservabilityConfig  `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
	Gateway         *GatewayConfig        `json:"gateway,omitempty" yaml:"gateway,omitempty"`             // nil = HTTP gateway disabled
	Logging         LoggingConfig         `json:"logging" yaml:"logging"`
}

// LLMConfig configures the OpenAI-compatible model endpoint used by the
// conversation backend and the interpreter executor.
type LLMConfig struct {
	BaseURL     string        `json:"base_url" yaml:"base_url"` // Default: http://localhost:11434. Override: ASECN_LLM_BASE_URL.
	APIKey      string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model       string        `json:"model" yaml:"model"`             // Default: "local".
	Temperature *float64      `json:"temperature" yaml:"temperature"` // Default: 0.7.
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`   // Default: 2000.
	TimeoutS    int           `json:"timeout_s" yaml:"timeout_s"`     // Default: 600.
	Fallbacks   []LLMEndpoint `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

// LLMEndpoint is an additional endpoint tried when the primary fails.
type LLMEndpoint struct {
	Name    string `json:"name" yaml:"name"`
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model   string `json:"model" yaml:"model"`
}

// ModelName returns the model, defaulting to "local".
func (l LLMConfig) ModelName() string {
	if l.Model != "" {
		return l.Model
	}
	return "local"
}

// Temp returns the sampling temperature. Default: 0.7.
func (l LLMConfig) Temp() float64 {
	if l.Temperature != nil {
		return *l.Temperature
	}
	return 0.7
}

// Tokens returns the completion token cap. Default: 2000.
func (l LLMConfig) Tokens() int {
	if l.MaxTokens > 0 {
		return l.MaxTokens
	}
	return 2000
}

// Timeout returns the per-request timeout. Default: 10m.
func (l LLMConfig) Timeout() time.Duration {
	if l.TimeoutS > 0 {
		return time.Duration(l.TimeoutS) * time.Second
	}
	return 600 * time.Second
}

// ConversationConfig bounds the group chat.
type ConversationConfig struct {
	MaxRounds  int `json:"max_rounds" yaml:"max_rounds"`   // Default: 10.
	MaxEntries int `json:"max_entries" yaml:"max_entries"` // Default: 1000. Retained log entries.
}

// Rounds returns the round cap. Default: 10.
func (c ConversationConfig) Rounds() int {
	if c.MaxRounds > 0 {
		return c.MaxRounds
	}
	return 10
}

// ExecutorConfig selects and tunes the sub-action executor.
type ExecutorConfig struct {
	Mode          string        `json:"mode" yaml:"mode"`                             // "interpreter" (default), "shell", or "router".
	Denylist      []string      `json:"denylist,omitempty" yaml:"denylist,omitempty"` // nil = built-in denylist.
	SafePaths     []string      `json:"safe_paths,omitempty" yaml:"safe_paths,omitempty"`
	SystemPrompt  string        `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`
	HistoryWindow int           `json:"history_window" yaml:"history_window"` // Default: 20.
	Sandbox       SandboxConfig `json:"sandbox" yaml:"sandbox"`
}

// ExecutorMode returns the configured mode, defaulting to "interpreter".
func (e ExecutorConfig) ExecutorMode() string {
	if e.Mode != "" {
		return e.Mode
	}
	return "interpreter"
}

// SandboxConfig configures command isolation for the shell executor.
type SandboxConfig struct {
	Type                string  `json:"type" yaml:"type"` // "process" (default) or "docker".
	MaxCPUSeconds       int     `json:"max_cpu_seconds" yaml:"max_cpu_seconds"`
	MaxMemoryMB         int     `json:"max_memory_mb" yaml:"max_memory_mb"`
	MaxExecutionSeconds int     `json:"max_execution_seconds" yaml:"max_execution_seconds"` // Default: 60.
	DockerImage         string  `json:"docker_image,omitempty" yaml:"docker_image,omitempty"`
	DockerCPUs          float64 `json:"docker_cpus,omitempty" yaml:"docker_cpus,omitempty"`
	DockerPIDsLimit     int     `json:"docker_pids_limit,omitempty" yaml:"docker_pids_limit,omitempty"`
	DockerNetwork       bool    `json:"docker_network,omitempty" yaml:"docker_network,omitempty"`
}

// SandboxType returns the sandbox type, defaulting to "process".
func (s SandboxConfig) SandboxType() string {
	if s.Type != "" {
		return s.Type
	}
	return "process"
}

// ExecutionTimeout returns the per-command timeout. Default: 60s.
func (s SandboxConfig) ExecutionTimeout() time.Duration {
	if s.MaxExecutionSeconds > 0 {
		return time.Duration(s.MaxExecutionSeconds) * time.Second
	}
	return 60 * time.Second
}

// OrchestratorConfig tunes result validation and reporting.
type OrchestratorConfig struct {
	Validation  string `json:"validation" yaml:"validation"` // "warn" (default) or "enforce".
	OmitHistory bool   `json:"omit_history" yaml:"omit_history"`
}

// WorkerPoolConfig bounds concurrent sandboxed commands.
type WorkerPoolConfig struct {
	Size int `json:"size" yaml:"size"` // Default: 4.
}

// MonitorConfig configures the self-monitoring loop.
type MonitorConfig struct {
	Enabled       *bool          `json:"enabled,omitempty" yaml:"enabled,omitempty"` // Default: true.
	Task          string         `json:"task,omitempty" yaml:"task,omitempty"`
	Workflow      string         `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Context       map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
	BaseIntervalS int            `json:"base_interval_s" yaml:"base_interval_s"` // Default: 300.
	FallbackS     int            `json:"fallback_s" yaml:"fallback_s"`           // Default: 60.
}

// IsEnabled reports whether the monitor loop should run. A nil config runs it.
func (m *MonitorConfig) IsEnabled() bool {
	if m == nil || m.Enabled == nil {
		return true
	}
	return *m.Enabled
}

// BaseInterval returns the interval the affinity magnitude scales. Default: 5m.
func (m *MonitorConfig) BaseInterval() time.Duration {
	if m != nil && m.BaseIntervalS > 0 {
		return time.Duration(m.BaseIntervalS) * time.Second
	}
	return 300 * time.Second
}

// Fallback returns the sleep after a failed cycle. Default: 1m.
func (m *MonitorConfig) Fallback() time.Duration {
	if m != nil && m.FallbackS > 0 {
		return time.Duration(m.FallbackS) * time.Second
	}
	return 60 * time.Second
}

// SchedulerConfig configures cron-driven tasks.
type SchedulerConfig struct {
	Enabled bool      `json:"enabled" yaml:"enabled"`
	Jobs    []CronJob `json:"jobs" yaml:"jobs"`
}

// CronJob is one scheduled task.
type CronJob struct {
	Name        string         `json:"name" yaml:"name"`
	Schedule    string         `json:"schedule" yaml:"schedule"` // Standard 5-field cron expression.
	Description string         `json:"description" yaml:"description"`
	Workflow    string         `json:"workflow,omitempty" yaml:"workflow,omitempty"`
	Context     map[string]any `json:"context,omitempty" yaml:"context,omitempty"`
}

// StorageConfig configures where affinity snapshots and conversation dumps go.
type StorageConfig struct {
	Driver   string                 `json:"driver" yaml:"driver"` // "file" (default), "sqlite", or "postgres".
	File     *FileStorageConfig     `json:"file,omitempty" yaml:"file,omitempty"`
	SQLite   *SQLiteStorageConfig   `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
	Postgres *PostgresStorageConfig `json:"postgres,omitempty" yaml:"postgres,omitempty"`
}

// StorageDriver returns the configured driver, defaulting to "file".
func (s *StorageConfig) StorageDriver() string {
	if s != nil && s.Driver != "" {
		return s.Driver
	}
	return "file"
}

// FileStorageConfig holds file sink settings.
type FileStorageConfig struct {
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"` // Default: data_dir.
}

// SQLiteStorageConfig holds SQLite-specific settings.
type SQLiteStorageConfig struct {
	Path        string `json:"path,omitempty" yaml:"path,omitempty"` // Default: <data_dir>/asecn.db.
	JournalMode string `json:"journal_mode" yaml:"journal_mode"`     // "wal" (default), "delete", "truncate", etc.
}

// PostgresStorageConfig holds PostgreSQL-specific settings.
type PostgresStorageConfig struct {
	DSN              string `json:"dsn" yaml:"dsn"`                                 // Override: ASECN_DB_DSN.
	MaxOpenConns     int    `json:"max_open_conns" yaml:"max_open_conns"`           // Default: 25
	MaxIdleConns     int    `json:"max_idle_conns" yaml:"max_idle_conns"`           // Default: 5
	ConnMaxLifetimeS int    `json:"conn_max_lifetime_s" yaml:"conn_max_lifetime_s"` // Default: 1800 (30 min)
}

// ObservabilityConfig configures metrics, tracing, health checks, and anomaly detection.
// When nil, all observability features are disabled.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
	Health  *HealthConfig  `json:"health,omitempty" yaml:"health,omitempty"`
	Anomaly *AnomalyConfig `json:"anomaly,omitempty" yaml:"anomaly,omitempty"`
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics".
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP collector endpoint (e.g. "localhost:4317").
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" (default) or "http".
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "asecn".
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0-1.0. Default: 1.0.
	Insecure    bool    `json:"insecure" yaml:"insecure"`
}

// HealthConfig configures the health and readiness endpoints.
type HealthConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// AnomalyConfig configures error-rate spike detection over task results.
type AnomalyConfig struct {
	Enabled            bool    `json:"enabled" yaml:"enabled"`
	ErrorRateThreshold float64 `json:"error_rate_threshold" yaml:"error_rate_threshold"` // Default: 0.5.
	WindowSeconds      int     `json:"window_seconds" yaml:"window_seconds"`             // Default: 300.
	MinSamples         int     `json:"min_samples" yaml:"min_samples"`                   // Default: 5.
}

// GatewayConfig configures the HTTP, WebSocket, and MCP surfaces.
type GatewayConfig struct {
	Enabled         bool     `json:"enabled" yaml:"enabled"`
	ListenAddr      string   `json:"listen_addr" yaml:"listen_addr"` // Default: ":8080".
	APIKeys         []string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"`
	WebSocket       bool     `json:"websocket" yaml:"websocket"`
	WebSocketPath   string   `json:"websocket_path,omitempty" yaml:"websocket_path,omitempty"` // Default: "/ws/results".
	ReadTimeoutS    int      `json:"read_timeout_s" yaml:"read_timeout_s"`                     // Default: 30.
	ShutdownTimeout int      `json:"shutdown_timeout_s" yaml:"shutdown_timeout_s"`             // Default: 15.
	Docs            bool     `json:"docs" yaml:"docs"`                                         // Serve OpenAPI docs.
	RateLimit       int      `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`       // Task submissions per key. 0 = unlimited.
	RateBurst       int      `json:"rate_burst" yaml:"rate_burst"`                             // Default: rate_limit_per_minute.
}

// Addr returns the listen address, defaulting to ":8080".
func (g *GatewayConfig) Addr() string {
	if g != nil && g.ListenAddr != "" {
		return g.ListenAddr
	}
	return ":8080"
}

// WSPath returns the WebSocket results path.
func (g *GatewayConfig) WSPath() string {
	if g != nil && g.WebSocketPath != "" {
		return g.WebSocketPath
	}
	return "/ws/results"
}

// ReadTimeout returns the HTTP read timeout. Default: 30s.
func (g *GatewayConfig) ReadTimeout() time.Duration {
	if g != nil && g.ReadTimeoutS > 0 {
		return time.Duration(g.ReadTimeoutS) * time.Second
	}
	return 30 * time.Second
}

// ShutdownGrace returns how long shutdown waits for in-flight work. Default: 15s.
func (g *GatewayConfig) ShutdownGrace() time.Duration {
	if g != nil && g.ShutdownTimeout > 0 {
		return time.Duration(g.ShutdownTimeout) * time.Second
	}
	return 15 * time.Second
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`   // debug, info (default), warn, error.
	Format string `json:"format" yaml:"format"` // "json" (default) or "text".
}

// Default returns the built-in configuration: the four ASECN agents plus the
// orchestrator, their workflows, and the keyword table.
func Default() *Config {
	cfg := &Config{
		Agents: []workflow.Agent{
			{
				ID:            "memory_agent",
				Name:          "MemoryAgent",
				SystemMessage: "You are a memory management specialist focusing on ASECN's memory core operations.",
				Modules:       []string{"1_memory-core"},
			},
			{
				ID:            "perception_agent",
				Name:          "PerceptionAgent",
				SystemMessage: "You are a data perception specialist handling ASECN's environmental inputs.",
				Modules:       []string{"2_perception-layer"},
			},
			{
				ID:            "action_agent",
				Name:          "ActionAgent",
				SystemMessage: "You are an action execution specialist managing ASECN's blockchain interactions.",
				Modules:       []string{"3_action-layer"},
			},
			{
				ID:            "evolver_agent",
				Name:          "EvolverAgent",
				SystemMessage: "You are an evolution specialist managing ASECN's self-improvement processes.",
				Modules:       []string{"6_evolver"},
			},
			{
				ID:            workflow.OrchestratorAgent,
				Name:          "Orchestrator",
				SystemMessage: "You are the central orchestrator coordinating all ASECN agents.",
			},
		},
		Workflows: []workflow.Definition{
			{Name: "memory_analysis", AgentIDs: []string{"memory_agent", "orchestrator"}},
			{Name: "environment_perception", AgentIDs: []string{"perception_agent", "orchestrator"}},
			{Name: "action_execution", AgentIDs: []string{"action_agent", "orchestrator"}},
			{Name: "system_evolution", AgentIDs: []string{"evolver_agent", "orchestrator", "memory_agent"}},
		},
		DefaultWorkflow: workflow.DefaultWorkflow,
	}
	cfg.Keywords = make([]workflow.Keywords, len(workflow.DefaultKeywords))
	for i, k := range workflow.DefaultKeywords {
		cfg.Keywords[i] = workflow.Keywords{Workflow: k.Workflow, Words: append([]string(nil), k.Words...)}
	}
	return cfg
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/asecn.yaml"
	}
	return filepath.Join(home, ".asecn", "config.yaml")
}

// Load reads a JSON or YAML config file and returns a validated Config.
// The format is detected by file extension: .yml/.yaml for YAML, everything
// else for JSON. Sections omitted from the file keep the values of Default().
// An empty path skips the file and applies only defaults and environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		resolved, err := resolvePath(path)
		if err != nil {
			return nil, fmt.Errorf("resolving config path %s: %w", path, err)
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", resolved, err)
		}
		if err := decode(resolved, data, cfg); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".asecn", "data")
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing YAML config %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("parsing JSON config %s: %w", path, err)
		}
	}
	return nil
}

// applyEnv applies environment overrides. Env vars take precedence over file values.
func (c *Config) applyEnv() {
	if v := os.Getenv("ASECN_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("ASECN_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	// The ASECN-specific key wins over the generic one.
	if v := os.Getenv("ASECN_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("ASECN_DB_DSN"); v != "" {
		if c.Storage == nil {
			c.Storage = &StorageConfig{Driver: "postgres"}
		}
		if c.Storage.Postgres == nil {
			c.Storage.Postgres = &PostgresStorageConfig{}
		}
		c.Storage.Postgres.DSN = v
	}
}

// resolvePath expands ~ to the user home directory and returns an absolute path.
func resolvePath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}
	return filepath.Abs(path)
}

// ResolvedDataDir returns the data directory, resolving ~ if needed.
func (c *Config) ResolvedDataDir() string {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		return filepath.Join(home, ".asecn", "data")
	}
	resolved, err := resolvePath(c.DataDir)
	if err != nil {
		return c.DataDir
	}
	return resolved
}

// DatabasePath returns the SQLite database path.
func (c *Config) DatabasePath() string {
	if c.Storage != nil && c.Storage.SQLite != nil && c.Storage.SQLite.Path != "" {
		if p, err := resolvePath(c.Storage.SQLite.Path); err == nil {
			return p
		}
		return c.Storage.SQLite.Path
	}
	return filepath.Join(c.ResolvedDataDir(), "asecn.db")
}

// StorageDir returns the directory the file sink writes into.
func (c *Config) StorageDir() string {
	if c.Storage != nil && c.Storage.File != nil && c.Storage.File.Dir != "" {
		if p, err := resolvePath(c.Storage.File.Dir); err == nil {
			return p
		}
		return c.Storage.File.Dir
	}
	return c.ResolvedDataDir()
}

// SafePaths returns the directories writes are allowed under. The storage
// directory is always included.
func (c *Config) SafePaths() []string {
	paths := make([]string, 0, len(c.Executor.SafePaths)+1)
	for _, p := range c.Executor.SafePaths {
		if r, err := resolvePath(p); err == nil {
			p = r
		}
		paths = append(paths, p)
	}
	return append(paths, c.StorageDir())
}

// ConfiguredWorkflow returns the fallback workflow name.
func (c *Config) ConfiguredWorkflow() string {
	if c.DefaultWorkflow != "" {
		return c.DefaultWorkflow
	}
	return workflow.DefaultWorkflow
}

func (c *Config) validate() error {
	if len(c.Workflows) == 0 {
		return fmt.Errorf("at least one workflow is required")
	}
	// Construction of the directory checks ids, duplicates, and references.
	dir, err := workflow.NewDirectory(c.Agents, c.Workflows)
	if err != nil {
		return err
	}
	if _, err := dir.Resolve(c.ConfiguredWorkflow()); err != nil {
		return fmt.Errorf("default_workflow: %w", err)
	}
	for i, k := range c.Keywords {
		if _, err := dir.Resolve(k.Workflow); err != nil {
			return fmt.Errorf("keywords[%d]: %w", i, err)
		}
	}
	if c.Monitor != nil && c.Monitor.Workflow != "" {
		if _, err := dir.Resolve(c.Monitor.Workflow); err != nil {
			return fmt.Errorf("monitor.workflow: %w", err)
		}
	}

	switch c.Executor.ExecutorMode() {
	case "interpreter", "shell", "router":
	default:
		return fmt.Errorf("executor.mode %q is not supported (use interpreter, shell, or router)", c.Executor.Mode)
	}
	switch c.Executor.Sandbox.SandboxType() {
	case "process", "docker":
	default:
		return fmt.Errorf("executor.sandbox.type %q is not supported (use process or docker)", c.Executor.Sandbox.Type)
	}
	if c.Executor.Sandbox.MaxMemoryMB < 0 {
		return fmt.Errorf("executor.sandbox.max_memory_mb must not be negative")
	}
	if c.Executor.Sandbox.MaxExecutionSeconds < 0 {
		return fmt.Errorf("executor.sandbox.max_execution_seconds must not be negative")
	}

	switch c.Orchestrator.Validation {
	case "", "warn", "enforce":
	default:
		return fmt.Errorf("orchestrator.validation %q is not supported (use warn or enforce)", c.Orchestrator.Validation)
	}

	if t := c.LLM.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	for i, fb := range c.LLM.Fallbacks {
		if fb.BaseURL == "" {
			return fmt.Errorf("llm.fallbacks[%d].base_url is required", i)
		}
	}

	switch c.Storage.StorageDriver() {
	case "file", "sqlite":
	case "postgres":
		if c.Storage.Postgres == nil || c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required (set ASECN_DB_DSN env var)")
		}
	default:
		return fmt.Errorf("storage.driver %q is not supported (use file, sqlite, or postgres)", c.Storage.Driver)
	}

	if c.Scheduler != nil && c.Scheduler.Enabled {
		names := make(map[string]bool, len(c.Scheduler.Jobs))
		for i, job := range c.Scheduler.Jobs {
			if job.Name == "" {
				return fmt.Errorf("scheduler.jobs[%d].name is required", i)
			}
			if names[job.Name] {
				return fmt.Errorf("scheduler.jobs[%d]: duplicate job name %q", i, job.Name)
			}
			names[job.Name] = true
			if job.Schedule == "" {
				return fmt.Errorf("scheduler.jobs[%d] (%q): schedule is required", i, job.Name)
			}
			if strings.TrimSpace(job.Description) == "" {
				return fmt.Errorf("scheduler.jobs[%d] (%q): description is required", i, job.Name)
			}
			if job.Workflow != "" {
				if _, err := dir.Resolve(job.Workflow); err != nil {
					return fmt.Errorf("scheduler.jobs[%d] (%q): %w", i, job.Name, err)
				}
			}
		}
	}

	if o := c.Observability; o != nil && o.Tracing != nil && o.Tracing.Enabled {
		switch o.Tracing.Protocol {
		case "", "grpc", "http":
		default:
			return fmt.Errorf("observability.tracing.protocol %q is not supported (use grpc or http)", o.Tracing.Protocol)
		}
		if o.Tracing.SampleRate < 0 || o.Tracing.SampleRate > 1 {
			return fmt.Errorf("observability.tracing.sample_rate must be between 0 and 1")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}
