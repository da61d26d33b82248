// Package config loads Karta configuration from defaults, an optional YAML
// file and KARTA_ environment overrides.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/kittclouds/karta/internal/engine"
	kerr "github.com/kittclouds/karta/pkg/errors"
)

// Config is the top-level Karta configuration.
type Config struct {
	Storage  StorageConfig  `mapstructure:"storage"`
	Settings SettingsConfig `mapstructure:"settings"`
	Log      LogConfig      `mapstructure:"log"`
	Canvas   CanvasConfig   `mapstructure:"canvas"`
}

// StorageConfig selects the persistence gateway.
type StorageConfig struct {
	Backend string `mapstructure:"backend"`
	DSN     string `mapstructure:"dsn"`
}

// SettingsConfig locates the per-user settings directory.
type SettingsConfig struct {
	Dir string `mapstructure:"dir"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CanvasConfig tunes the context engine.
type CanvasConfig struct {
	NeighborRadius       float64 `mapstructure:"neighbor_radius"`
	MinDimension         float64 `mapstructure:"min_dimension"`
	TransitionMS         int     `mapstructure:"transition_ms"`
	ViewportTransitionMS int     `mapstructure:"viewport_transition_ms"`
	ScreenWidth          float64 `mapstructure:"screen_width"`
	ScreenHeight         float64 `mapstructure:"screen_height"`
	PersistLastContext   bool    `mapstructure:"persist_last_context"`
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides (prefix KARTA_).
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("storage.backend", "sqlite")
	v.SetDefault("storage.dsn", "karta.db")
	v.SetDefault("settings.dir", ".karta")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("canvas.neighbor_radius", 250.0)
	v.SetDefault("canvas.min_dimension", 20.0)
	v.SetDefault("canvas.transition_ms", 400)
	v.SetDefault("canvas.viewport_transition_ms", 500)
	v.SetDefault("canvas.screen_width", 1280.0)
	v.SetDefault("canvas.screen_height", 800.0)
	v.SetDefault("canvas.persist_last_context", true)

	// Environment
	v.SetEnvPrefix("KARTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// File
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, kerr.Errorf(kerr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, kerr.Errorf(kerr.CodeConfigLoadReadFailure, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, kerr.Errorf(kerr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors.
// It returns a slice of all validation errors found, collecting all issues
// rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	errs = append(errs, c.validateStorage()...)
	errs = append(errs, c.validateLog()...)
	errs = append(errs, c.validateCanvas()...)

	return errs
}

func (c *Config) validateStorage() []error {
	var errs []error

	validBackends := map[string]bool{"sqlite": true, "memory": true, "badger": true}
	if !validBackends[c.Storage.Backend] {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: storage.backend must be one of [sqlite, memory, badger], got %q",
			c.Storage.Backend,
		))
	}
	if c.Storage.Backend != "memory" && c.Storage.DSN == "" {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: storage.dsn must not be empty for backend %q", c.Storage.Backend))
	}

	return errs
}

func (c *Config) validateLog() []error {
	var errs []error

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: log.level must be one of [debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: log.format must be one of [text, json], got %q", c.Log.Format))
	}

	return errs
}

func (c *Config) validateCanvas() []error {
	var errs []error

	if c.Canvas.NeighborRadius <= 0 {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: canvas.neighbor_radius must be positive, got %v", c.Canvas.NeighborRadius))
	}
	if c.Canvas.MinDimension <= 0 {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: canvas.min_dimension must be positive, got %v", c.Canvas.MinDimension))
	}
	if c.Canvas.TransitionMS < 0 || c.Canvas.ViewportTransitionMS < 0 {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: canvas transition durations must not be negative"))
	}
	if c.Canvas.ScreenWidth <= 0 || c.Canvas.ScreenHeight <= 0 {
		errs = append(errs, kerr.Errorf(kerr.CodeConfigValidateInvalidValue,
			"config: canvas.screen_width and canvas.screen_height must be positive, got %vx%v",
			c.Canvas.ScreenWidth, c.Canvas.ScreenHeight))
	}

	return errs
}

// EngineOptions maps the canvas section onto engine options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		NeighborRadius:     c.Canvas.NeighborRadius,
		MinDimension:       c.Canvas.MinDimension,
		Transition:         time.Duration(c.Canvas.TransitionMS) * time.Millisecond,
		ViewportTransition: time.Duration(c.Canvas.ViewportTransitionMS) * time.Millisecond,
		ScreenWidth:        c.Canvas.ScreenWidth,
		ScreenHeight:       c.Canvas.ScreenHeight,
		PersistLastContext: c.Canvas.PersistLastContext,
	}
}
