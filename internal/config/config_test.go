package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("GENEBANK_HOME", home)
	return home
}

func TestLoad_DefaultsWhenMissing(t *testing.T) {
	home := withHome(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !strings.HasPrefix(cfg.InstanceID, "inst-") || cfg.LogLevel != "info" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.StoreDir != filepath.Join(home, "store") {
		t.Errorf("store_dir = %q", cfg.StoreDir)
	}
	if cfg.RegistryDB != filepath.Join(home, "genebank.db") {
		t.Errorf("registry_db = %q", cfg.RegistryDB)
	}
	if cfg.Sync.Cron != "*/15 * * * *" {
		t.Errorf("sync.cron = %q", cfg.Sync.Cron)
	}

	// The minted identity is written back and survives a second load.
	again, err := Load()
	if err != nil {
		t.Fatalf("second Load: %v", err)
	}
	if again.InstanceID != cfg.InstanceID {
		t.Errorf("instance id changed across loads: %q then %q", cfg.InstanceID, again.InstanceID)
	}
}

func TestLoad_ReadsYAML(t *testing.T) {
	home := withHome(t)
	yaml := `
instance_id: coder-1
user_id: user-7
roles: [coder, reviewer]
platform:
  base_url: https://genes.example.com
  token: secret-token
recorder:
  min_score: 3.5
heuristics:
  trivial_commands:
    - "^true$"
`
	if err := os.WriteFile(ConfigPath(home), []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstanceID != "coder-1" || cfg.UserID != "user-7" {
		t.Errorf("identity = %q/%q", cfg.InstanceID, cfg.UserID)
	}
	if len(cfg.Roles) != 2 || cfg.Roles[0] != "coder" {
		t.Errorf("roles = %v", cfg.Roles)
	}
	if cfg.Platform.BaseURL != "https://genes.example.com" {
		t.Errorf("platform url = %q", cfg.Platform.BaseURL)
	}
	if cfg.RecorderConfig().MinScore != 3.5 {
		t.Errorf("min_score = %v", cfg.RecorderConfig().MinScore)
	}

	ec, err := cfg.EvaluatorConfig()
	if err != nil {
		t.Fatalf("EvaluatorConfig: %v", err)
	}
	if len(ec.TrivialCommands) != 1 || !ec.TrivialCommands[0].MatchString("true") {
		t.Errorf("trivial commands = %v", ec.TrivialCommands)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	withHome(t)
	t.Setenv("GENEBANK_INSTANCE_ID", "env-inst")
	t.Setenv("GENEBANK_PLATFORM_URL", "https://env.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.InstanceID != "env-inst" {
		t.Errorf("instance_id = %q", cfg.InstanceID)
	}
	if cfg.Platform.BaseURL != "https://env.example.com" {
		t.Errorf("platform url = %q", cfg.Platform.BaseURL)
	}
}

func TestEvaluatorConfig_InvalidPattern(t *testing.T) {
	cfg := Config{Heuristics: HeuristicsConfig{EnvironmentPatterns: []string{"("}}}
	if _, err := cfg.EvaluatorConfig(); err == nil {
		t.Error("expected error for invalid regexp")
	}
}

func TestStopwords(t *testing.T) {
	var cfg Config
	if cfg.Stopwords() != nil {
		t.Error("empty list should return nil for built-in defaults")
	}
	cfg.Heuristics.Stopwords = []string{"foo", "bar"}
	set := cfg.Stopwords()
	if !set["foo"] || !set["bar"] || set["baz"] {
		t.Errorf("stopwords = %v", set)
	}
}

func TestFingerprint_Stable(t *testing.T) {
	a := Config{InstanceID: "x", UserID: "u"}
	b := Config{InstanceID: "x", UserID: "u"}
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("identical configs produced different fingerprints")
	}
	b.UserID = "v"
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("different configs produced identical fingerprints")
	}
}
