package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		// An explicit path that does not exist is an error; defaults apply
		// only when no path was given.
		cfg, err = LoadConfig("")
	}
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "http://localhost:8001", cfg.Completion.URL)
	assert.Equal(t, 60, cfg.Completion.TimeoutSeconds)
}

func TestLoadConfigFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9090"
log:
  level: debug
completion:
  url: "http://sidecar:8001/"
  timeout_seconds: 30
contacts:
  api_url: "https://contacts.example.com/"
  api_key: "k-123"
tls:
  enable: true
  cert_file: cert.pem
  key_file: key.pem
  hostnames: [localhost, 127.0.0.1]
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 30, cfg.Completion.TimeoutSeconds)
	// Trailing slashes are trimmed so URL joins stay predictable.
	assert.Equal(t, "http://sidecar:8001", cfg.Completion.URL)
	assert.Equal(t, "https://contacts.example.com", cfg.Contacts.APIURL)
	assert.Equal(t, "k-123", cfg.Contacts.APIKey)
	assert.True(t, cfg.TLS.Enable)
	assert.Equal(t, []string{"localhost", "127.0.0.1"}, cfg.TLS.Hostnames)
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [not: valid"), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
