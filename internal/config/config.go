// Package config holds all reasongate configuration. Values come from an
// optional YAML file with environment overrides; GEMINI_API_KEY is required
// and only ever read from the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all reasongate configuration.
type Config struct {
	// Gemini configuration
	Gemini GeminiConfig `yaml:"gemini"`

	// Session lifecycle
	Session SessionConfig `yaml:"session"`

	// Tournament defaults
	Tournament TournamentConfig `yaml:"tournament"`

	// Analysis budgets
	Budget BudgetConfig `yaml:"budget"`

	// Project root for the secure reader. Defaults to the working directory.
	ProjectRoot string `yaml:"project_root"`

	// Debug enables verbose diagnostics and file logging.
	Debug bool `yaml:"debug"`
}

// GeminiConfig configures the remote reasoning service.
type GeminiConfig struct {
	APIKey  string        `yaml:"-"` // env only, never persisted
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig configures the session manager.
type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	TurnCap       int           `yaml:"turn_cap"`
}

// TournamentConfig holds the tournament scheduler defaults.
type TournamentConfig struct {
	MaxHypotheses        int     `yaml:"max_hypotheses"`
	MaxRounds            int     `yaml:"max_rounds"`
	EliminationThreshold float64 `yaml:"elimination_threshold"`
	Parallelism          int     `yaml:"parallelism"`
	CrossPollination     bool    `yaml:"cross_pollination"`
}

// BudgetConfig holds per-request time budgets.
type BudgetConfig struct {
	Default    time.Duration `yaml:"default"`
	Tournament time.Duration `yaml:"tournament"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	cwd, _ = filepath.Abs(cwd)
	return Config{
		Gemini: GeminiConfig{
			Model:   "gemini-2.5-pro",
			Timeout: 2 * time.Minute,
		},
		Session: SessionConfig{
			IdleTimeout:   30 * time.Minute,
			SweepInterval: 5 * time.Minute,
			TurnCap:       50,
		},
		Tournament: TournamentConfig{
			MaxHypotheses:        6,
			MaxRounds:            3,
			EliminationThreshold: 0.3,
			Parallelism:          4,
			CrossPollination:     true,
		},
		Budget: BudgetConfig{
			Default:    60 * time.Second,
			Tournament: 300 * time.Second,
		},
		ProjectRoot: cwd,
	}
}

// Load reads configuration from path (optional) and applies environment
// overrides. A missing file is not an error; a malformed file is.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.Validate()
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.Gemini.APIKey = v
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		cfg.Gemini.Model = v
	}
	if v := os.Getenv("PROJECT_ROOT"); v != "" {
		cfg.ProjectRoot = v
	}
	if v := os.Getenv("DEBUG"); v != "" && v != "0" && v != "false" {
		cfg.Debug = true
	}
}

// Validate checks the invariants the rest of the system assumes.
func (c Config) Validate() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}
	if !filepath.IsAbs(c.ProjectRoot) {
		return fmt.Errorf("project root must be absolute, got %q", c.ProjectRoot)
	}
	if c.Session.TurnCap <= 0 {
		return fmt.Errorf("turn cap must be positive")
	}
	return nil
}
