// Package config provides YAML configuration loading for trackside.
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the web UI.
	Listen string `yaml:"listen"`

	// GatewayURL is the base URL of the platform API gateway.
	GatewayURL string `yaml:"gateway_url"`

	// IdentityURL is the base URL of the identity provider's token endpoint.
	IdentityURL string `yaml:"identity_url"`

	// ClientId identifies this application to the identity provider.
	ClientId string `yaml:"client_id"`

	// DBPath is the sqlite file holding the catalog cache and subscriptions.
	DBPath string `yaml:"db_path"`

	// TokenFile stores the session tokens, written with 0600 perms.
	TokenFile string `yaml:"token_file"`

	// SyncCron is a cron-style schedule for the periodic catalog sync.
	SyncCron string `yaml:"sync_cron"`

	// AuthFile, if set and present, enables basic auth on the web UI
	// (format: username:argon2id-hash, see the hash-password command).
	AuthFile string `yaml:"auth_file"`
}

func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		GatewayURL:  "https://api.atletiek.app",
		IdentityURL: "https://id.atletiek.app/oauth",
		ClientId:    "trackside",
		DBPath:      "trackside.db",
		TokenFile:   "token.json",
		SyncCron:    "*/30 * * * *",
		AuthFile:    "",
	}
}

// Normalize fills in missing values so partially-filled configs still
// behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.GatewayURL == "" {
		c.GatewayURL = def.GatewayURL
	}
	if c.IdentityURL == "" {
		c.IdentityURL = def.IdentityURL
	}
	if c.ClientId == "" {
		c.ClientId = def.ClientId
	}
	if c.DBPath == "" {
		c.DBPath = def.DBPath
	}
	if c.TokenFile == "" {
		c.TokenFile = def.TokenFile
	}
	if c.SyncCron == "" {
		c.SyncCron = def.SyncCron
	}
}

// Load reads the config from a YAML path. A missing file is a first run:
// the default config is written there and returned.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".trackside-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
