package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/svcforge/internal/config"
)

func isolateUserDirs(t *testing.T) {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())
}

func TestNew(t *testing.T) {
	isolateUserDirs(t)

	a := New(io.Discard, "info", "text")
	require.NotNil(t, a.Config())
	require.NotNil(t, a.Context())
	require.NoError(t, a.Close())

	// First run persists the default configuration document.
	path, err := config.Path()
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestClose_PersistsConfigEdits(t *testing.T) {
	isolateUserDirs(t)

	a := New(io.Discard, "info", "text")
	require.NoError(t, a.Config().Edit("profile.ci.endpoint", "wss://ci.example.com"))
	require.NoError(t, a.Close())

	cfg, err := config.Load(context.Background())
	require.NoError(t, err)
	require.Contains(t, cfg.Profiles, "ci")
	assert.Equal(t, "wss://ci.example.com", cfg.Profiles["ci"].Endpoint)
}

func TestClose_KeepsUnreadableConfigIntact(t *testing.T) {
	isolateUserDirs(t)

	// A config file the TOML parser rejects, holding a credential the user
	// would rather not lose.
	original := "[profiles.local]\nmnemonic = \"my real seed phrase\"\nendpoint = !!broken\n"
	path, err := config.Path()
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(original), 0o600))

	a := New(io.Discard, "info", "text")
	require.NoError(t, a.Close())

	// The run proceeds on defaults, but the file on disk is untouched.
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(after))
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger("info", "json", &buf).Info("ready")

		var line map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
		assert.Equal(t, "ready", line["msg"])
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		newLogger("info", "text", &buf).Info("ready")
		assert.Contains(t, buf.String(), "msg=ready")
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger("warn", "text", &buf)
		logger.Info("hidden")
		logger.Warn("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("unknown level defaults to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newLogger("bogus", "text", &buf)
		logger.Debug("hidden")
		logger.Info("shown")
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})
}
