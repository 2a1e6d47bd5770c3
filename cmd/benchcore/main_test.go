package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"benchcore/internal/adapters/httpapi"
	"benchcore/internal/core"
)

func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("BENCHCORE_STORAGE_DRIVER", "memory")
	t.Setenv("BENCHCORE_BLOB_DRIVER", "memory")
	t.Setenv("BENCHCORE_LOG_LEVEL", "error")
}

func TestSweepCommandPrintsReport(t *testing.T) {
	memoryEnv(t)
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"--env-file", "", "sweep"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"created"`) || !strings.Contains(stdout.String(), `"overdue"`) {
		t.Fatalf("unexpected output %q", stdout.String())
	}
}

func TestTraceWritesSpansToStderr(t *testing.T) {
	memoryEnv(t)
	t.Setenv("BENCHCORE_LOG_TRACE", "true")
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"--env-file", "", "sweep"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr.String())
	}
	if !strings.Contains(stderr.String(), `"operation":"sweep"`) || !strings.Contains(stderr.String(), `"outcome":"ok"`) {
		t.Fatalf("expected a sweep span on stderr, got %q", stderr.String())
	}
}

func TestBackupCommandPrintsKey(t *testing.T) {
	memoryEnv(t)
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"--env-file", "", "backup", "--keep", "3"}, &stdout, &stderr); code != 0 {
		t.Fatalf("expected success, got %d: %s", code, stderr.String())
	}
	key := strings.TrimSpace(stdout.String())
	if !strings.HasPrefix(key, "snapshots/") || !strings.HasSuffix(key, ".json") {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestRestoreCommandWithEmptyArchive(t *testing.T) {
	memoryEnv(t)
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"--env-file", "", "restore"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(stderr.String(), "nothing to restore") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestEnvFileFeedsConfiguration(t *testing.T) {
	memoryEnv(t)
	const key = "BENCHCORE_POLICY_LOW_STOCK_THRESHOLD"
	t.Cleanup(func() { _ = os.Unsetenv(key) })
	envFile := filepath.Join(t.TempDir(), "bench.env")
	if err := os.WriteFile(envFile, []byte(key+"=plenty\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"--env-file", envFile, "sweep"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected invalid threshold to fail, got %d", code)
	}
	if !strings.Contains(stderr.String(), "low_stock_threshold") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestUnknownCommandFails(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"launch"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
}

func TestMainUsesExitFunc(t *testing.T) {
	memoryEnv(t)
	var codes []int
	old := exitFunc
	exitFunc = func(code int) { codes = append(codes, code) }
	defer func() { exitFunc = old }()
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"benchcore", "--env-file", "", "sweep"}
	stdout := os.Stdout
	devnull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("open devnull: %v", err)
	}
	os.Stdout = devnull
	main()
	os.Stdout = stdout
	_ = devnull.Close()

	if len(codes) != 1 || codes[0] != 0 {
		t.Fatalf("unexpected exit codes %v", codes)
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), core.WithAuthorizer(httpapi.Authorizer()))
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, httpapi.NewHandler(svc, nil).Echo(), svc, time.Hour, logger) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("get healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not stop")
	}
}
