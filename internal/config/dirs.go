package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

const appDirName = "svcforge"

// Dir returns the per-user configuration directory, honoring
// XDG_CONFIG_HOME on every platform for predictable tooling behavior.
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName), nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName), nil
}

// DataDir returns the per-user data directory (toolchain installs,
// telemetry session logs).
func DataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", appDirName), nil
}

// LoadEnv loads a workspace-level `.env` file, if present, so per-checkout
// settings reach the external build tools. Existing process variables win.
func LoadEnv(workspaceRoot string) error {
	path := filepath.Join(workspaceRoot, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return godotenv.Load(path)
}
