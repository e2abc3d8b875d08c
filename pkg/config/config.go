package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the root application configuration.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	WaniKani WaniKaniConfig `yaml:"wanikani"`
	Alarms   AlarmConfig    `yaml:"alarms"`
	Vocab    VocabConfig    `yaml:"vocab"`
	Log      LogConfig      `yaml:"log"`
}

// DatabaseConfig holds the SQLite location.
type DatabaseConfig struct {
	Path string `yaml:"path" env:"VOCABIFY_DB" env-default:"vocabify.db"`
}

// WaniKaniConfig holds API client settings.
type WaniKaniConfig struct {
	Token    string        `yaml:"api_token" env:"WANIKANI_API_TOKEN"`
	BaseURL  string        `yaml:"base_url"  env:"WANIKANI_BASE_URL"  env-default:"https://api.wanikani.com/v2/"`
	Revision string        `yaml:"revision"  env:"WANIKANI_REVISION"  env-default:"20170710"`
	Timeout  time.Duration `yaml:"timeout"   env:"WANIKANI_TIMEOUT"   env-default:"30s"`
}

// AlarmConfig holds the periodic refresh intervals.
type AlarmConfig struct {
	Assignments time.Duration `yaml:"assignments" env:"VOCABIFY_ASSIGNMENT_INTERVAL" env-default:"1h"`
	Subjects    time.Duration `yaml:"subjects"    env:"VOCABIFY_SUBJECT_INTERVAL"    env-default:"24h"`
	User        time.Duration `yaml:"user"        env:"VOCABIFY_USER_INTERVAL"       env-default:"24h"`
}

// VocabConfig controls table construction.
type VocabConfig struct {
	Readings bool `yaml:"readings" env:"VOCABIFY_READINGS" env-default:"false"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Mode string `yaml:"mode" env:"LOG_MODE" env-default:"development"`
}

// Load reads configuration from a YAML file and environment variables.
// Priority: ENV > YAML > defaults (via env-default tags).
// The YAML file path is determined by CONFIG_PATH env (fallback "./vocabify.yaml").
// If the file does not exist and CONFIG_PATH was not set explicitly,
// configuration is loaded from ENV + defaults only.
func Load() (*Config, error) {
	var cfg Config

	path := os.Getenv("CONFIG_PATH")
	explicitPath := path != ""
	if !explicitPath {
		path = "./vocabify.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	} else if explicitPath {
		return nil, fmt.Errorf("config: file %s: %w", path, err)
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config: read env: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}
	return &cfg, nil
}

// Validate checks values that cleanenv cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.WaniKani.BaseURL == "" {
		errs = append(errs, errors.New("wanikani.base_url is required"))
	}
	if c.WaniKani.Timeout <= 0 {
		errs = append(errs, errors.New("wanikani.timeout must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"alarms.assignments": c.Alarms.Assignments,
		"alarms.subjects":    c.Alarms.Subjects,
		"alarms.user":        c.Alarms.User,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}
