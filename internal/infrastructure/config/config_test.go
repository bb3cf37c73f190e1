package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mqtt:
  host: "localhost"
  port: 1883
  topic_prefix: "cync_lan"
tcp:
  listen_port: 23779
tls:
  cert_file: "/tmp/cert.pem"
  key_file: "/tmp/key.pem"
roster:
  path: "/tmp/roster.yaml"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 23779, cfg.TCP.ListenPort)
	require.Equal(t, "cync_lan", cfg.MQTT.TopicPrefix)
}

func TestLoad_MissingTLSFails(t *testing.T) {
	content := `
mqtt:
  host: "localhost"
tcp:
  listen_port: 23779
roster:
  path: "/tmp/roster.yaml"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestValidate_BadLogFormat(t *testing.T) {
	cfg := defaultConfig()
	cfg.TLS.CertFile = "/tmp/cert.pem"
	cfg.TLS.KeyFile = "/tmp/key.pem"
	cfg.Logging.Format = "xml"
	require.Error(t, cfg.Validate())
}

func TestValidate_RelayRequiresCloudHost(t *testing.T) {
	cfg := defaultConfig()
	cfg.TLS.CertFile = "/tmp/cert.pem"
	cfg.TLS.KeyFile = "/tmp/key.pem"
	cfg.CloudRelay.Enabled = true
	require.Error(t, cfg.Validate())
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CYNC_LAN_MQTT_HOST", "broker.example.com")
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	require.Equal(t, "broker.example.com", cfg.MQTT.Host)
}
