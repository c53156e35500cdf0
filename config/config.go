// Package config loads config.yaml and applies BODYTYPE_* environment
// overrides on top.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"bodytype/artifact"
	bhttp "bodytype/http"
	"bodytype/logging"
	"bodytype/ml"
	"bodytype/trainer"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "BODYTYPE_"

type Config struct {
	Trainer  trainer.Config     `yaml:"trainer" envPrefix:"TRAIN_"`
	Server   bhttp.ServerConfig `yaml:"server" envPrefix:"SERVER_"`
	Serve    ServeConfig        `yaml:"serve" envPrefix:"SERVE_"`
	Store    StoreConfig        `yaml:"store" envPrefix:"STORE_"`
	Database DatabaseConfig     `yaml:"database" envPrefix:"DB_"`
	Log      logging.Config     `yaml:"log" envPrefix:"LOG_"`
}

// ServeConfig controls the inference service around the HTTP server.
type ServeConfig struct {
	CacheSize int  `yaml:"cache_size" env:"CACHE_SIZE"`
	Reload    bool `yaml:"reload" env:"RELOAD"`
	// LabelSource, when set, refuses bundles trained from another source.
	LabelSource string `yaml:"label_source" env:"LABEL_SOURCE"`
}

type StoreConfig struct {
	Root string `yaml:"root" env:"ROOT"`
}

type DatabaseConfig struct {
	Path string `yaml:"path" env:"PATH"`
}

func Default() Config {
	return Config{
		Trainer: trainer.DefaultConfig(),
		Server:  bhttp.DefaultServerConfig(),
		Serve: ServeConfig{
			CacheSize: 1024,
			Reload:    true,
		},
		Store:    StoreConfig{Root: "artifacts"},
		Database: DatabaseConfig{Path: "bodytype.db"},
		Log:      logging.DefaultConfig(),
	}
}

// Load reads path over the defaults, then the environment. An empty path
// skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate checks settings that would otherwise fail deep inside a run.
func (c Config) Validate() error {
	if _, err := ml.ParseLabelSource(c.Trainer.LabelSource); err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	if c.Trainer.TestFraction <= 0 || c.Trainer.TestFraction >= 1 {
		return fmt.Errorf("trainer: test_fraction %v must be in (0, 1)", c.Trainer.TestFraction)
	}
	if c.Trainer.Folds < 2 {
		return fmt.Errorf("trainer: folds %d must be at least 2", c.Trainer.Folds)
	}
	if _, err := c.Trainer.Grid.Expand(c.Trainer.ModelType); err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	if _, err := ml.NewModel(c.Trainer.ModelType, ml.Params{}, 0); err != nil {
		return fmt.Errorf("trainer: %w", err)
	}
	if c.Serve.LabelSource != "" {
		if _, err := ml.ParseLabelSource(c.Serve.LabelSource); err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}
	if c.Server.Addr == "" {
		return errors.New("server: addr is required")
	}
	if c.Store.Root == "" {
		return errors.New("store: root is required")
	}
	return nil
}

// Expectation is what the service requires of a bundle before serving it.
func (c Config) Expectation() artifact.Expectation {
	return artifact.Expectation{
		Features: ml.FeatureSpecVersion,
		Labels:   ml.LabelSource(c.Serve.LabelSource),
	}
}
