package app_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/mockexpect/internal/app"
)

func TestDefaultConfig_HasSensibleValues(t *testing.T) {
	cfg := app.DefaultConfig()

	if cfg.RootDir == "" {
		t.Error("RootDir should not be empty")
	}
	if cfg.Port == 0 {
		t.Error("Port should not be zero")
	}
	if cfg.TraceSize == 0 {
		t.Error("TraceSize should not be zero")
	}
	if cfg.LogLevel == "" {
		t.Error("LogLevel should not be empty")
	}
	if cfg.MaxRawBodyBytes != 10<<20 {
		t.Errorf("MaxRawBodyBytes should default to 10 MiB, got %d", cfg.MaxRawBodyBytes)
	}
	if cfg.UnmatchedStatus != 404 {
		t.Errorf("UnmatchedStatus should default to 404, got %d", cfg.UnmatchedStatus)
	}
	if cfg.WatcherDebounce == 0 {
		t.Error("WatcherDebounce should not be zero")
	}
	if cfg.ReadTimeout == 0 {
		t.Error("ReadTimeout should not be zero")
	}
	if cfg.WriteTimeout == 0 {
		t.Error("WriteTimeout should not be zero")
	}
	if cfg.IdleTimeout == 0 {
		t.Error("IdleTimeout should not be zero")
	}
	if cfg.ShutdownTimeout == 0 {
		t.Error("ShutdownTimeout should not be zero")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadConfigFile_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mockexpect.yaml")
	content := `port: 9090
default_project: default
action_timeout: 250ms
unmatched_status: 501
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := app.DefaultConfig()
	if err := app.LoadConfigFile(path, &cfg); err != nil {
		t.Fatalf("LoadConfigFile failed: %v", err)
	}
	if cfg.Port != 9090 || cfg.DefaultProject != "default" || cfg.UnmatchedStatus != 501 {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.ActionTimeout != 250*time.Millisecond {
		t.Errorf("expected 250ms, got %s", cfg.ActionTimeout)
	}
	if cfg.TraceSize != app.DefaultConfig().TraceSize {
		t.Errorf("absent keys must keep defaults, got trace size %d", cfg.TraceSize)
	}
}

func TestLoadConfigFile_Errors(t *testing.T) {
	cfg := app.DefaultConfig()
	if err := app.LoadConfigFile(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("port: [\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := app.LoadConfigFile(path, &cfg); err == nil {
		t.Error("expected error for malformed file")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.Port = 70000
	cfg.UnmatchedStatus = 42
	cfg.DefaultEngine = "mustache"
	cfg.MaxRawBodyBytes = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"port", "unmatched_status", "default_engine", "max_raw_body_bytes"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}
