package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func setConfigEnv(t *testing.T, path string) {
	t.Helper()
	original := os.Getenv("CYNC_LAN_CONFIG")
	t.Cleanup(func() { os.Setenv("CYNC_LAN_CONFIG", original) })
	os.Setenv("CYNC_LAN_CONFIG", path)
}

// TestRun_InvalidConfigPath verifies run fails when the config file does
// not exist.
func TestRun_InvalidConfigPath(t *testing.T) {
	setConfigEnv(t, "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with a nonexistent config path")
	}
}

// TestRun_MissingRosterPath verifies run fails validation when the roster
// path is blank, before any network component is touched.
func TestRun_MissingRosterPath(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
tls:
  cert_file: "` + filepath.Join(tmpDir, "cert.pem") + `"
  key_file: "` + filepath.Join(tmpDir, "key.pem") + `"
roster:
  path: ""
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	setConfigEnv(t, configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with an empty roster path")
	}
}

// TestRun_MissingRosterFile verifies run fails once config is valid but the
// roster file it points at does not exist.
func TestRun_MissingRosterFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
tls:
  cert_file: "` + filepath.Join(tmpDir, "cert.pem") + `"
  key_file: "` + filepath.Join(tmpDir, "key.pem") + `"
roster:
  path: "` + filepath.Join(tmpDir, "roster.yaml") + `"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	setConfigEnv(t, configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail when the roster file does not exist")
	}
}

// TestRun_ContextCancelledBeforeStart checks that run returns, rather than
// blocking, when given an already-cancelled context. run does not check the
// context before starting; with no roster file present it returns the
// roster-load error, and the test accepts either outcome.
func TestRun_ContextCancelledBeforeStart(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
tls:
  cert_file: "` + filepath.Join(tmpDir, "cert.pem") + `"
  key_file: "` + filepath.Join(tmpDir, "key.pem") + `"
roster:
  path: "` + filepath.Join(tmpDir, "roster.yaml") + `"
mqtt:
  host: "127.0.0.1"
  port: 19999
`
	if err := os.WriteFile(configPath, []byte(configContent), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	setConfigEnv(t, configPath)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := run(ctx)
	if err == nil {
		t.Log("run() returned cleanly on an already-cancelled context")
	} else {
		t.Logf("run() returned error on an already-cancelled context (acceptable): %v", err)
	}
}

func TestGetConfigPath_Default(t *testing.T) {
	original := os.Getenv("CYNC_LAN_CONFIG")
	defer os.Setenv("CYNC_LAN_CONFIG", original)
	os.Unsetenv("CYNC_LAN_CONFIG")

	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
}

func TestGetConfigPath_EnvOverride(t *testing.T) {
	setConfigEnv(t, "/custom/path/config.yaml")

	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want %q", got, "/custom/path/config.yaml")
	}
}
