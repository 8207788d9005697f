package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/asecn/asecn/internal/config"
	"github.com/asecn/asecn/internal/executor"
	"github.com/asecn/asecn/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestInitShared_Defaults(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()

	sc, err := initShared(cfg, discardLogger())
	if err != nil {
		t.Fatalf("initShared: %v", err)
	}
	defer sc.Cleanup()

	if sc.Store.Driver() != storage.DriverFile {
		t.Errorf("driver = %q, want file", sc.Store.Driver())
	}
	if sc.Orchestrator == nil || sc.Directory == nil || sc.Selector == nil {
		t.Fatal("missing components")
	}
	if sc.Provider.Name() != "openai" {
		t.Errorf("provider = %q, want openai", sc.Provider.Name())
	}
}

func TestInitShared_SQLiteWithFallbacks(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage = &config.StorageConfig{Driver: "sqlite"}
	cfg.LLM.Fallbacks = []config.LLMEndpoint{{BaseURL: "http://backup:8000"}}
	cfg.Observability = &config.ObservabilityConfig{Metrics: &config.MetricsConfig{Enabled: true}}

	sc, err := initShared(cfg, discardLogger())
	if err != nil {
		t.Fatalf("initShared: %v", err)
	}
	defer sc.Cleanup()

	if sc.Store.Driver() != storage.DriverSQLite {
		t.Errorf("driver = %q, want sqlite", sc.Store.Driver())
	}
	if sc.Obs.Registerer() == nil {
		t.Error("metrics registry not created")
	}
}

func TestInitShared_UnknownDriver(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage = &config.StorageConfig{Driver: "mongo"}

	if _, err := initShared(cfg, discardLogger()); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}

func TestBuildExecutor_Modes(t *testing.T) {
	tests := []struct {
		mode    string
		wantErr bool
	}{
		{"interpreter", false},
		{"shell", false},
		{"router", false},
		{"magic", true},
	}
	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			cfg := config.Default()
			cfg.Executor.Mode = tt.mode
			guard, err := executor.NewGuard(nil, nil)
			if err != nil {
				t.Fatal(err)
			}
			exec, err := buildExecutor(cfg, nil, guard, nil, nil, nil, discardLogger())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.mode == "router" {
				if _, ok := exec.(*executor.Router); !ok {
					t.Errorf("router mode built %T", exec)
				}
			}
		})
	}
}

func TestNewLogger_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		l := newLogger(config.LoggingConfig{Level: tt.level, Format: "text"})
		if !l.Enabled(t.Context(), tt.want) {
			t.Errorf("level %q: %v not enabled", tt.level, tt.want)
		}
		if tt.want > slog.LevelDebug && l.Enabled(t.Context(), tt.want-4) {
			t.Errorf("level %q: lower level enabled", tt.level)
		}
	}
}
