// Package config loads the instance configuration from config.yaml under
// the genebank home directory, with environment overrides for the
// identity and platform fields.
package config

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/basket/genebank/internal/evaluator"
	"github.com/basket/genebank/internal/otel"
	"github.com/basket/genebank/internal/recorder"
)

// PlatformConfig names the central service this instance syncs with.
type PlatformConfig struct {
	BaseURL        string `yaml:"base_url"`
	Token          string `yaml:"token"`
	RelayURL       string `yaml:"relay_url"` // websocket push relay; empty disables it
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SyncConfig controls the heartbeat.
type SyncConfig struct {
	Cron                string `yaml:"cron"` // 5-field cron expression
	TickIntervalSeconds int    `yaml:"tick_interval_seconds"`
}

// RecorderConfig holds the admission thresholds. Zero values fall back
// to the stock policy.
type RecorderConfig struct {
	MinScore         float64 `yaml:"min_score"`
	DiscardThreshold float64 `yaml:"discard_threshold"`
	WarnThreshold    float64 `yaml:"warn_threshold"`
	ManualScore      float64 `yaml:"manual_score"`
}

// InjectorConfig holds the retrieval defaults.
type InjectorConfig struct {
	MaxGenes   int     `yaml:"max_genes"`
	MinScore   float64 `yaml:"min_score"`
	MaxResults int     `yaml:"max_results"`
	Threshold  float64 `yaml:"threshold"`
}

// HeuristicsConfig carries the evaluator's keyword/regex lists as plain
// strings. Empty lists keep the stock defaults.
type HeuristicsConfig struct {
	TrivialCommands     []string            `yaml:"trivial_commands"`
	EnvironmentPatterns []string            `yaml:"environment_patterns"`
	CategoryTerms       map[string][]string `yaml:"category_terms"`
	Stopwords           []string            `yaml:"stopwords"`
}

type Config struct {
	HomeDir string `yaml:"-"`

	InstanceID  string   `yaml:"instance_id"`
	DisplayName string   `yaml:"display_name"`
	UserID      string   `yaml:"user_id"`
	Roles       []string `yaml:"roles"`
	LogLevel    string   `yaml:"log_level"`

	// StoreDir holds the gene record files; RegistryDB the sqlite
	// instance registry. Both default to paths under HomeDir.
	StoreDir   string `yaml:"store_dir"`
	RegistryDB string `yaml:"registry_db"`

	Platform   PlatformConfig   `yaml:"platform"`
	Sync       SyncConfig       `yaml:"sync"`
	Recorder   RecorderConfig   `yaml:"recorder"`
	Injector   InjectorConfig   `yaml:"injector"`
	Heuristics HeuristicsConfig `yaml:"heuristics"`
	Otel       otel.Config      `yaml:"otel"`
}

// ConfigPath returns the path to config.yaml within the given home directory.
func ConfigPath(homeDir string) string {
	return filepath.Join(homeDir, "config.yaml")
}

// HomeDir returns the genebank home directory, honoring GENEBANK_HOME.
func HomeDir() string {
	if override := os.Getenv("GENEBANK_HOME"); override != "" {
		return override
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = "."
	}
	return filepath.Join(home, ".genebank")
}

func defaultConfig() Config {
	return Config{
		LogLevel: "info",
		Platform: PlatformConfig{
			TimeoutSeconds: int((15 * time.Second).Seconds()),
		},
		Sync: SyncConfig{
			Cron:                "*/15 * * * *",
			TickIntervalSeconds: 60,
		},
	}
}

// Load reads config.yaml from the genebank home, applying defaults and
// environment overrides. A missing file is not an error.
func Load() (Config, error) {
	cfg := defaultConfig()
	cfg.HomeDir = HomeDir()

	if err := os.MkdirAll(cfg.HomeDir, 0o755); err != nil {
		return cfg, fmt.Errorf("create genebank home: %w", err)
	}

	data, err := os.ReadFile(ConfigPath(cfg.HomeDir))
	if err != nil && !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read config.yaml: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config.yaml: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	// First run: mint an instance identity and persist it, so the id is
	// stable across restarts. Env-supplied ids are never written back.
	if cfg.InstanceID == "" {
		cfg.InstanceID = NewInstanceID()
		if len(data) == 0 {
			if err := Save(cfg.HomeDir, Config{InstanceID: cfg.InstanceID}); err != nil {
				return cfg, fmt.Errorf("persist instance identity: %w", err)
			}
		}
	}

	normalize(&cfg)
	return cfg, nil
}

// NewInstanceID mints a fresh instance identity.
func NewInstanceID() string {
	return "inst-" + uuid.NewString()[:8]
}

func normalize(cfg *Config) {
	if cfg.DisplayName == "" {
		cfg.DisplayName = cfg.InstanceID
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.StoreDir == "" {
		cfg.StoreDir = filepath.Join(cfg.HomeDir, "store")
	}
	if cfg.RegistryDB == "" {
		cfg.RegistryDB = filepath.Join(cfg.HomeDir, "genebank.db")
	}
	if cfg.Platform.TimeoutSeconds <= 0 {
		cfg.Platform.TimeoutSeconds = 15
	}
	if cfg.Sync.Cron == "" {
		cfg.Sync.Cron = "*/15 * * * *"
	}
	if cfg.Sync.TickIntervalSeconds <= 0 {
		cfg.Sync.TickIntervalSeconds = 60
	}
}

func applyEnvOverrides(cfg *Config) {
	if raw := os.Getenv("GENEBANK_INSTANCE_ID"); raw != "" {
		cfg.InstanceID = raw
	}
	if raw := os.Getenv("GENEBANK_USER_ID"); raw != "" {
		cfg.UserID = raw
	}
	if raw := os.Getenv("GENEBANK_LOG_LEVEL"); raw != "" {
		cfg.LogLevel = raw
	}
	if raw := os.Getenv("GENEBANK_PLATFORM_URL"); raw != "" {
		cfg.Platform.BaseURL = raw
	}
	if raw := os.Getenv("GENEBANK_PLATFORM_TOKEN"); raw != "" {
		cfg.Platform.Token = raw
	}
	if raw := os.Getenv("GENEBANK_RELAY_URL"); raw != "" {
		cfg.Platform.RelayURL = raw
	}
	if raw := os.Getenv("GENEBANK_SYNC_CRON"); raw != "" {
		cfg.Sync.Cron = raw
	}
	if raw := os.Getenv("GENEBANK_SYNC_TICK_SECONDS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			cfg.Sync.TickIntervalSeconds = v
		}
	}
}

// PlatformTimeout returns the configured request timeout as a duration.
func (c Config) PlatformTimeout() time.Duration {
	return time.Duration(c.Platform.TimeoutSeconds) * time.Second
}

// RecorderConfig maps the yaml thresholds onto the recorder's config.
func (c Config) RecorderConfig() recorder.Config {
	return recorder.Config{
		MinScore:         c.Recorder.MinScore,
		DiscardThreshold: c.Recorder.DiscardThreshold,
		WarnThreshold:    c.Recorder.WarnThreshold,
		ManualScore:      c.Recorder.ManualScore,
	}
}

// EvaluatorConfig compiles the heuristic string lists into the
// evaluator's config. Empty lists keep the stock defaults; an invalid
// pattern is a configuration error.
func (c Config) EvaluatorConfig() (evaluator.Config, error) {
	var out evaluator.Config
	var err error
	if out.TrivialCommands, err = compilePatterns(c.Heuristics.TrivialCommands); err != nil {
		return out, fmt.Errorf("heuristics.trivial_commands: %w", err)
	}
	if out.EnvironmentPatterns, err = compilePatterns(c.Heuristics.EnvironmentPatterns); err != nil {
		return out, fmt.Errorf("heuristics.environment_patterns: %w", err)
	}
	out.CategoryTerms = c.Heuristics.CategoryTerms
	return out, nil
}

func compilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Stopwords returns the configured stopword set, or nil to use the
// built-in defaults.
func (c Config) Stopwords() map[string]bool {
	if len(c.Heuristics.Stopwords) == 0 {
		return nil
	}
	set := make(map[string]bool, len(c.Heuristics.Stopwords))
	for _, w := range c.Heuristics.Stopwords {
		set[w] = true
	}
	return set
}

// Fingerprint returns a stable hash of the active config.
func (c Config) Fingerprint() string {
	h := fnv.New64a()
	fmt.Fprintf(h, "instance=%s|user=%s|log=%s|store=%s|platform=%s|cron=%s",
		c.InstanceID, c.UserID, c.LogLevel, c.StoreDir, c.Platform.BaseURL, c.Sync.Cron)
	return fmt.Sprintf("cfg-%x", h.Sum64())
}

// Save writes the config back to config.yaml in the given home.
func Save(homeDir string, cfg Config) error {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config.yaml: %w", err)
	}
	return os.WriteFile(ConfigPath(homeDir), out, 0o644)
}
