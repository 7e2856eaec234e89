package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"vesper/internal/models"
)

// Config is the single process-wide settings record. It is read once
// at startup and rewritten whenever the model or active session id
// changes.
type Config struct {
	CurrentModel  string `yaml:"current_model"`
	LastSessionID string `yaml:"last_session_id,omitempty"`
}

func Default() Config {
	return Config{CurrentModel: models.DefaultModel().ID}
}

func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "vesper", "config.yml")
}

// DefaultDataDir is where the session database and log file live.
func DefaultDataDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "vesper")
	}
	return filepath.Join(base, "vesper")
}

// Load reads the config file at path. A missing or unreadable file is
// not an error: defaults are returned and the invalid value corrected.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Default(), nil
	}
	if _, _, ok := models.FindModel(cfg.CurrentModel); !ok {
		cfg.CurrentModel = models.DefaultModel().ID
	}
	return cfg, nil
}

func Save(cfg Config, path string) error {
	if path == "" {
		return errors.New("no config path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
