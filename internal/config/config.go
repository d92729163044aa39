// Package config reads and writes the user-level configuration document:
// deployment profiles and telemetry settings, stored as TOML in the user's
// config directory. Commands mutate the in-memory document and the CLI
// saves it once on the way out.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"

	"github.com/vk/svcforge/internal/ctxlog"
)

// Config is the persisted configuration document.
type Config struct {
	Profiles  map[string]*Profile `toml:"profiles"`
	Telemetry Telemetry           `toml:"telemetry"`
}

// Profile holds the connection settings for one deployment environment.
// Mnemonic and PrivateKey are alternative credentials; setting one clears
// the other.
type Profile struct {
	Mnemonic   string `toml:"mnemonic,omitempty"`
	PrivateKey string `toml:"private_key,omitempty"`
	Endpoint   string `toml:"endpoint"`
}

// Telemetry controls the local event log and its upload seam.
type Telemetry struct {
	Enabled  bool   `toml:"enabled"`
	UserID   string `toml:"user_id"`
	Endpoint string `toml:"endpoint,omitempty"`
	// MinFiles is the number of accumulated session logs below which an
	// upload run does nothing.
	MinFiles int `toml:"min_files,omitempty"`
}

// Default returns the configuration written on first run.
func Default() *Config {
	return &Config{
		Profiles: map[string]*Profile{
			"local": {
				Mnemonic: "range drive remove bleak mule satisfy mandate east lion minimum unfold ready",
				Endpoint: "ws://localhost:8546",
			},
			"default": {
				Endpoint: "https://gateway.devnet.forge.dev",
			},
		},
		Telemetry: Telemetry{
			Enabled: false,
			UserID:  uuid.NewString(),
		},
	}
}

// Path returns the configuration file location.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Load reads the configuration, generating and persisting the default
// document when none exists yet.
func Load(ctx context.Context) (*Config, error) {
	logger := ctxlog.FromContext(ctx)
	path, err := Path()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(); err != nil {
			return nil, err
		}
		logger.Info("Created new configuration file.", "path", path)
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read file `%s`: %w", path, err)
	}
	logger.Debug("Loading configuration.", "path", path)
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("could not parse `%s`: %w", path, err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	return &cfg, nil
}

// Save writes the document back to its default path.
func (c *Config) Save() error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Get looks up a dotted configuration key: `profile.<name>.<field>` or
// `telemetry.enabled`.
func (c *Config) Get(key string) (string, bool) {
	parts := strings.Split(key, ".")
	switch {
	case len(parts) == 2 && parts[0] == "telemetry" && parts[1] == "enabled":
		return fmt.Sprintf("%v", c.Telemetry.Enabled), true
	case len(parts) == 3 && parts[0] == "profile":
		profile, ok := c.Profiles[parts[1]]
		if !ok {
			return "", false
		}
		switch parts[2] {
		case "mnemonic":
			return profile.Mnemonic, true
		case "private_key":
			return profile.PrivateKey, true
		case "endpoint":
			return profile.Endpoint, true
		}
	}
	return "", false
}

// Edit sets a dotted configuration key, creating the profile if needed.
func (c *Config) Edit(key, value string) error {
	parts := strings.Split(key, ".")
	switch {
	case len(parts) == 2 && parts[0] == "telemetry" && parts[1] == "enabled":
		c.Telemetry.Enabled = value == "true"
		return nil
	case len(parts) == 3 && parts[0] == "profile":
		profile, ok := c.Profiles[parts[1]]
		if !ok {
			profile = &Profile{}
			c.Profiles[parts[1]] = profile
		}
		switch parts[2] {
		case "mnemonic":
			profile.Mnemonic = value
			profile.PrivateKey = ""
			return nil
		case "private_key":
			profile.PrivateKey = value
			profile.Mnemonic = ""
			return nil
		case "endpoint":
			profile.Endpoint = value
			return nil
		}
	}
	return fmt.Errorf("unknown configuration key: `%s`", key)
}
