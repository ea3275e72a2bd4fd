package app_test

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sophialabs/mockexpect/internal/app"
)

func writeTestExpectation(t *testing.T, dir string) {
	t.Helper()
	projectDir := filepath.Join(dir, "shop")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}
	yaml := `id: test-health
name: Test Health
priority: 10
matchers:
  - kind: method
    value: GET
  - kind: path
    value: /api/health
actions:
  - kind: mock
    mock:
      status: 200
      body: '{"status":"ok"}'
`
	if err := os.WriteFile(filepath.Join(projectDir, "health.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write expectation file: %v", err)
	}
}

func testConfig(t *testing.T, dir string) app.Config {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.RootDir = dir
	cfg.Port = freePort(t)
	cfg.LogLevel = "error"
	cfg.WatcherDebounce = 20 * time.Millisecond
	return cfg
}

func TestNew_Success(t *testing.T) {
	dir := t.TempDir()
	writeTestExpectation(t, dir)

	a, err := app.New(testConfig(t, dir))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if a == nil {
		t.Fatal("expected non-nil App")
	}
}

func TestNew_InvalidRootDir(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.RootDir = "/nonexistent/path/that/does/not/exist"

	if _, err := app.New(cfg); err == nil {
		t.Error("expected error for invalid root directory")
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := app.DefaultConfig()
	cfg.RootDir = t.TempDir()
	cfg.DefaultEngine = "mustache"

	if _, err := app.New(cfg); err == nil {
		t.Error("expected error for unknown default engine")
	}
}

func TestNew_FailsOnDuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	projectDir := filepath.Join(dir, "shop")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}
	yaml := `- id: dup
  matchers:
    - kind: path
      value: /a
- id: dup
  matchers:
    - kind: path
      value: /b
`
	if err := os.WriteFile(filepath.Join(projectDir, "dups.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatalf("failed to write expectation file: %v", err)
	}

	if _, err := app.New(testConfig(t, dir)); err == nil {
		t.Error("expected error for duplicate expectation ids")
	}
}

func TestNew_WithAllLogLevels(t *testing.T) {
	levels := []string{"debug", "info", "warn", "error", "unknown"}

	for _, level := range levels {
		t.Run(level, func(t *testing.T) {
			dir := t.TempDir()
			writeTestExpectation(t, dir)

			cfg := testConfig(t, dir)
			cfg.LogLevel = level

			a, err := app.New(cfg)
			if err != nil {
				t.Fatalf("New failed for log level %q: %v", level, err)
			}
			if a == nil {
				t.Fatalf("expected non-nil App for log level %q", level)
			}
		})
	}
}

func TestRun_ServesAndShutsDownGracefully(t *testing.T) {
	dir := t.TempDir()
	writeTestExpectation(t, dir)
	cfg := testConfig(t, dir)

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	base := fmt.Sprintf("http://localhost:%d", cfg.Port)
	waitForServer(t, base+"/__admin/health", 3*time.Second)

	resp, err := http.Get(base + "/mock/shop/api/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != 200 || string(body) != `{"status":"ok"}` {
		t.Errorf("unexpected response %d %s", resp.StatusCode, body)
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_HotReload(t *testing.T) {
	dir := t.TempDir()
	writeTestExpectation(t, dir)
	cfg := testConfig(t, dir)

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run(ctx)
	}()

	base := fmt.Sprintf("http://localhost:%d", cfg.Port)
	waitForServer(t, base+"/__admin/health", 3*time.Second)

	yaml := `id: pong
matchers:
  - kind: path
    value: /ping
actions:
  - kind: mock
    mock:
      body: pong
`
	if err := os.WriteFile(filepath.Join(dir, "shop", "ping.yaml"), []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(base + "/mock/shop/ping")
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == 200 && strings.TrimSpace(string(body)) == "pong" {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("new expectation file was not picked up")
		}
		time.Sleep(30 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRun_FailsWhenPortIsTaken(t *testing.T) {
	dir := t.TempDir()
	writeTestExpectation(t, dir)

	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	cfg := testConfig(t, dir)
	cfg.Port = l.Addr().(*net.TCPAddr).Port

	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Run(ctx); err == nil {
		t.Error("expected error when the port is in use")
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}
	port := l.Addr().(*net.TCPAddr).Port
	l.Close()
	return port
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("server not ready at %s after %v", url, timeout)
}
