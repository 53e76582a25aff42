// Package config loads formwalk settings: a TOML file, overlaid by a .env
// file and FORMWALK_* environment variables, then validated.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Constraint behaviors.
const (
	OnSwipe    = "on_swipe"
	OnFinalize = "on_finalize"
)

// Config is the complete configuration.
type Config struct {
	Navigation Navigation `toml:"navigation"`
	Storage    Storage    `toml:"storage"`
	Savepoint  Savepoint  `toml:"savepoint"`
	Log        Log        `toml:"log"`
}

// Navigation holds the session navigation settings.
type Navigation struct {
	AllowBackwards     bool   `toml:"allow_backwards"`
	ConstraintBehavior string `toml:"constraint_behavior" validate:"oneof=on_swipe on_finalize"`
}

// ValidateOnSwipe reports whether constraints are checked on every
// forward move rather than only on finalize.
func (n Navigation) ValidateOnSwipe() bool {
	return n.ConstraintBehavior == OnSwipe
}

// Storage locates instance files, savepoints and the database.
type Storage struct {
	InstancesDir string `toml:"instances_dir" validate:"required"`
	CacheDir     string `toml:"cache_dir" validate:"required"`
	Database     string `toml:"database" validate:"required"`
}

// Savepoint configures background savepoint writes.
type Savepoint struct {
	// MinInterval is a Go duration; "0s" writes as fast as saves arrive.
	MinInterval string `toml:"min_interval" validate:"duration"`
}

// Interval returns MinInterval parsed. Validate guarantees it parses.
func (s Savepoint) Interval() time.Duration {
	d, _ := time.ParseDuration(s.MinInterval)
	return d
}

// Log configures the CLI's log handler.
type Log struct {
	Level string `toml:"level" validate:"oneof=debug info warn error"`
	File  string `toml:"file"`
}

// Default returns the configuration used when nothing overrides it. Data
// lives under ~/.formwalk.
func Default() *Config {
	root := ".formwalk"
	if home, err := os.UserHomeDir(); err == nil {
		root = filepath.Join(home, ".formwalk")
	}
	return &Config{
		Navigation: Navigation{AllowBackwards: true, ConstraintBehavior: OnSwipe},
		Storage: Storage{
			InstancesDir: filepath.Join(root, "instances"),
			CacheDir:     filepath.Join(root, "cache"),
			Database:     filepath.Join(root, "formwalk.db"),
		},
		Savepoint: Savepoint{MinInterval: "0s"},
		Log:       Log{Level: "info"},
	}
}

// Load builds the configuration. path names a TOML file; empty uses the
// defaults alone. envFile names a .env file; a missing .env file is not an
// error. Process environment variables win over the .env file.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
		dec := toml.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}

	dotenv := map[string]string{}
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config %s: %w", envFile, err)
		default:
			dotenv = m
		}
	}
	if err := overlay(cfg, func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overlay applies FORMWALK_* variables.
func overlay(cfg *Config, lookup func(string) (string, bool)) error {
	strs := []struct {
		key string
		dst *string
	}{
		{"FORMWALK_CONSTRAINT_BEHAVIOR", &cfg.Navigation.ConstraintBehavior},
		{"FORMWALK_INSTANCES_DIR", &cfg.Storage.InstancesDir},
		{"FORMWALK_CACHE_DIR", &cfg.Storage.CacheDir},
		{"FORMWALK_DATABASE", &cfg.Storage.Database},
		{"FORMWALK_SAVEPOINT_MIN_INTERVAL", &cfg.Savepoint.MinInterval},
		{"FORMWALK_LOG_LEVEL", &cfg.Log.Level},
		{"FORMWALK_LOG_FILE", &cfg.Log.File},
	}
	for _, s := range strs {
		if v, ok := lookup(s.key); ok {
			*s.dst = v
		}
	}
	if v, ok := lookup("FORMWALK_ALLOW_BACKWARDS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: FORMWALK_ALLOW_BACKWARDS: %w", err)
		}
		cfg.Navigation.AllowBackwards = b
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d >= 0
	})
	return v
}

// Validate checks every field.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config: %s: invalid value %q (%s)", fe.Namespace(), fmt.Sprint(fe.Value()), fe.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
