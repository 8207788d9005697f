package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault_Validates(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if len(cfg.Workflows) != 4 {
		t.Errorf("workflows = %d, want 4", len(cfg.Workflows))
	}
	if len(cfg.Agents) != 5 {
		t.Errorf("agents = %d, want 5", len(cfg.Agents))
	}
	evo := cfg.Workflows[3]
	if evo.Name != "system_evolution" || strings.Join(evo.AgentIDs, ",") != "evolver_agent,orchestrator,memory_agent" {
		t.Errorf("system_evolution = %+v", evo)
	}
}

func TestDefault_KeywordsAreCopied(t *testing.T) {
	a := Default()
	a.Keywords[0].Words[0] = "changed"
	b := Default()
	if b.Keywords[0].Words[0] == "changed" {
		t.Error("Default shares keyword slices between calls")
	}
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	t.Setenv("ASECN_DATA_DIR", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.ModelName() != "local" {
		t.Errorf("model = %q, want local", cfg.LLM.ModelName())
	}
	if cfg.LLM.Temp() != 0.7 || cfg.LLM.Tokens() != 2000 || cfg.LLM.Timeout() != 600*time.Second {
		t.Errorf("llm defaults = %v %v %v", cfg.LLM.Temp(), cfg.LLM.Tokens(), cfg.LLM.Timeout())
	}
	if cfg.Conversation.Rounds() != 10 {
		t.Errorf("rounds = %d, want 10", cfg.Conversation.Rounds())
	}
	if cfg.Storage.StorageDriver() != "file" {
		t.Errorf("driver = %q, want file", cfg.Storage.StorageDriver())
	}
	if !cfg.Monitor.IsEnabled() {
		t.Error("monitor should default to enabled")
	}
	if cfg.Monitor.BaseInterval() != 5*time.Minute || cfg.Monitor.Fallback() != time.Minute {
		t.Errorf("monitor intervals = %v %v", cfg.Monitor.BaseInterval(), cfg.Monitor.Fallback())
	}
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("ASECN_DATA_DIR", t.TempDir())
	path := writeFile(t, "asecn.yaml", `
llm:
  base_url: http://model:8000
  model: mistral
  temperature: 0.2
executor:
  mode: router
monitor:
  base_interval_s: 120
scheduler:
  enabled: true
  jobs:
    - name: nightly
      schedule: "0 3 * * *"
      description: optimize memory layout
      workflow: system_evolution
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.BaseURL != "http://model:8000" || cfg.LLM.ModelName() != "mistral" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.LLM.Temp() != 0.2 {
		t.Errorf("temp = %v, want 0.2", cfg.LLM.Temp())
	}
	if cfg.Executor.ExecutorMode() != "router" {
		t.Errorf("mode = %q", cfg.Executor.ExecutorMode())
	}
	if cfg.Monitor.BaseInterval() != 2*time.Minute {
		t.Errorf("base interval = %v", cfg.Monitor.BaseInterval())
	}
	if len(cfg.Scheduler.Jobs) != 1 || cfg.Scheduler.Jobs[0].Name != "nightly" {
		t.Errorf("jobs = %+v", cfg.Scheduler.Jobs)
	}
	// Sections the file omits keep their defaults.
	if len(cfg.Workflows) != 4 {
		t.Errorf("workflows = %d, want defaults", len(cfg.Workflows))
	}
}

func TestLoad_JSON(t *testing.T) {
	t.Setenv("ASECN_DATA_DIR", t.TempDir())
	path := writeFile(t, "asecn.json", `{
  "agents": [{"id": "solo", "name": "Solo", "system_message": "alone"}],
  "workflows": [{"name": "only", "agents": ["solo"]}],
  "keywords": [{"workflow": "only", "words": ["x"]}],
  "default_workflow": "only"
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Workflows) != 1 || cfg.ConfiguredWorkflow() != "only" {
		t.Errorf("workflows = %+v, default = %q", cfg.Workflows, cfg.ConfiguredWorkflow())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ASECN_DATA_DIR", dir)
	t.Setenv("ASECN_LLM_BASE_URL", "http://env:1234")
	t.Setenv("OPENAI_API_KEY", "generic")
	t.Setenv("ASECN_LLM_API_KEY", "specific")
	t.Setenv("ASECN_DB_DSN", "postgres://u:p@db/asecn")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DataDir != dir {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
	if cfg.LLM.BaseURL != "http://env:1234" {
		t.Errorf("base url = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.APIKey != "specific" {
		t.Errorf("api key = %q, want specific", cfg.LLM.APIKey)
	}
	if cfg.Storage.StorageDriver() != "postgres" || cfg.Storage.Postgres.DSN != "postgres://u:p@db/asecn" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
}

func TestLoad_Missing(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no workflows", func(c *Config) { c.Workflows = nil }, "at least one workflow"},
		{"unknown agent", func(c *Config) { c.Workflows[0].AgentIDs = []string{"ghost"} }, "unknown agent"},
		{"unknown default", func(c *Config) { c.DefaultWorkflow = "nope" }, "default_workflow"},
		{"keyword workflow", func(c *Config) { c.Keywords[0].Workflow = "nope" }, "keywords[0]"},
		{"executor mode", func(c *Config) { c.Executor.Mode = "magic" }, "executor.mode"},
		{"sandbox type", func(c *Config) { c.Executor.Sandbox.Type = "vm" }, "executor.sandbox.type"},
		{"negative memory", func(c *Config) { c.Executor.Sandbox.MaxMemoryMB = -1 }, "max_memory_mb"},
		{"validation policy", func(c *Config) { c.Orchestrator.Validation = "strict" }, "orchestrator.validation"},
		{"storage driver", func(c *Config) { c.Storage = &StorageConfig{Driver: "mongo"} }, "storage.driver"},
		{"postgres dsn", func(c *Config) { c.Storage = &StorageConfig{Driver: "postgres"} }, "storage.postgres.dsn"},
		{"job schedule", func(c *Config) {
			c.Scheduler = &SchedulerConfig{Enabled: true, Jobs: []CronJob{{Name: "a", Description: "x"}}}
		}, "schedule is required"},
		{"duplicate job", func(c *Config) {
			j := CronJob{Name: "a", Schedule: "* * * * *", Description: "x"}
			c.Scheduler = &SchedulerConfig{Enabled: true, Jobs: []CronJob{j, j}}
		}, "duplicate job"},
		{"job workflow", func(c *Config) {
			c.Scheduler = &SchedulerConfig{Enabled: true, Jobs: []CronJob{{Name: "a", Schedule: "* * * * *", Description: "x", Workflow: "nope"}}}
		}, "unknown workflow"},
		{"tracing protocol", func(c *Config) {
			c.Observability = &ObservabilityConfig{Tracing: &TracingConfig{Enabled: true, Protocol: "udp"}}
		}, "tracing.protocol"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want substring %q", err, tt.want)
			}
		})
	}
}

func TestSafePaths_IncludesStorageDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()
	cfg.Executor.SafePaths = []string{"/srv/work"}
	got := cfg.SafePaths()
	if len(got) != 2 || got[0] != "/srv/work" || got[1] != cfg.StorageDir() {
		t.Errorf("SafePaths = %v", got)
	}
}

func TestGatewayDefaults(t *testing.T) {
	var g *GatewayConfig
	if g.Addr() != ":8080" || g.WSPath() != "/ws/results" {
		t.Errorf("nil gateway defaults = %q %q", g.Addr(), g.WSPath())
	}
	if g.ReadTimeout() != 30*time.Second || g.ShutdownGrace() != 15*time.Second {
		t.Errorf("nil gateway timeouts = %v %v", g.ReadTimeout(), g.ShutdownGrace())
	}
}
