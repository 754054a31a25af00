// Package doctor runs local health checks: home directory, gene store
// integrity, registry schema, and platform reachability.
package doctor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/basket/genebank/internal/config"
	"github.com/basket/genebank/internal/persistence"
	"github.com/basket/genebank/internal/store"
)

type CheckResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "PASS", "FAIL", "WARN", "SKIP"
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

type Diagnosis struct {
	Timestamp time.Time     `json:"timestamp"`
	System    SystemInfo    `json:"system"`
	Results   []CheckResult `json:"results"`
}

type SystemInfo struct {
	OS      string `json:"os"`
	Arch    string `json:"arch"`
	Go      string `json:"go_version"`
	Version string `json:"version"`
}

// Healthy reports whether no check failed outright.
func (d *Diagnosis) Healthy() bool {
	for _, r := range d.Results {
		if r.Status == "FAIL" {
			return false
		}
	}
	return true
}

// Run executes all diagnostic checks.
func Run(ctx context.Context, cfg *config.Config, version string) Diagnosis {
	d := Diagnosis{
		Timestamp: time.Now().UTC(),
		System: SystemInfo{
			OS:      runtime.GOOS,
			Arch:    runtime.GOARCH,
			Go:      runtime.Version(),
			Version: version,
		},
	}

	checks := []func(context.Context, *config.Config) CheckResult{
		checkConfig,
		checkPermissions,
		checkStore,
		checkRegistry,
		checkPlatform,
	}

	for _, check := range checks {
		d.Results = append(d.Results, check(ctx, cfg))
	}

	return d
}

func checkConfig(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: "Configuration not loaded"}
	}
	if _, err := cfg.EvaluatorConfig(); err != nil {
		return CheckResult{Name: "Config", Status: "FAIL", Message: fmt.Sprintf("Invalid heuristics: %v", err)}
	}
	return CheckResult{Name: "Config", Status: "PASS", Message: fmt.Sprintf("Loaded from %s", cfg.HomeDir)}
}

func checkPermissions(_ context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Permissions", Status: "SKIP", Message: "Config missing"}
	}
	testFile := filepath.Join(cfg.HomeDir, ".write_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return CheckResult{Name: "Permissions", Status: "FAIL", Message: fmt.Sprintf("Home dir unwritable: %v", err)}
	}
	os.Remove(testFile)
	return CheckResult{Name: "Permissions", Status: "PASS", Message: "Home directory writable"}
}

func checkStore(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Gene Store", Status: "SKIP", Message: "Config missing"}
	}
	st, err := store.Open(cfg.StoreDir, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return CheckResult{Name: "Gene Store", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	report, err := st.Verify(ctx)
	if err != nil {
		return CheckResult{Name: "Gene Store", Status: "FAIL", Message: fmt.Sprintf("Verify failed: %v", err)}
	}
	if !report.Healthy() {
		return CheckResult{
			Name:    "Gene Store",
			Status:  "FAIL",
			Message: fmt.Sprintf("Index references %d missing records", len(report.DanglingIndex)),
			Detail:  fmt.Sprintf("%v", report.DanglingIndex),
		}
	}
	msg := fmt.Sprintf("%d genes indexed", report.Indexed)
	if len(report.DanglingRecords) > 0 {
		return CheckResult{
			Name:    "Gene Store",
			Status:  "WARN",
			Message: msg + fmt.Sprintf(", %d unindexed records", len(report.DanglingRecords)),
			Detail:  fmt.Sprintf("%v", report.DanglingRecords),
		}
	}
	return CheckResult{Name: "Gene Store", Status: "PASS", Message: msg}
}

func checkRegistry(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Registry", Status: "SKIP", Message: "Config missing"}
	}
	registry, err := persistence.Open(cfg.RegistryDB)
	if err != nil {
		return CheckResult{Name: "Registry", Status: "FAIL", Message: fmt.Sprintf("Open failed: %v", err)}
	}
	defer registry.Close()

	if _, err := registry.TotalMessageCount(ctx); err != nil {
		return CheckResult{Name: "Registry", Status: "FAIL", Message: fmt.Sprintf("Query failed: %v", err)}
	}
	instances, err := registry.ListInstances(ctx)
	if err != nil {
		return CheckResult{Name: "Registry", Status: "FAIL", Message: fmt.Sprintf("Query failed: %v", err)}
	}
	return CheckResult{Name: "Registry", Status: "PASS", Message: fmt.Sprintf("Schema valid, %d instances", len(instances))}
}

func checkPlatform(ctx context.Context, cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Name: "Platform", Status: "SKIP", Message: "Config missing"}
	}
	if cfg.Platform.BaseURL == "" {
		return CheckResult{Name: "Platform", Status: "SKIP", Message: "No platform configured (local-only mode)"}
	}

	u, err := url.Parse(cfg.Platform.BaseURL)
	if err != nil || u.Hostname() == "" {
		return CheckResult{Name: "Platform", Status: "FAIL", Message: fmt.Sprintf("Invalid base_url %q", cfg.Platform.BaseURL)}
	}

	status := "PASS"
	detail := ""
	if cfg.Platform.Token == "" {
		status = "WARN"
		detail = "platform.token is empty; authenticated endpoints will reject requests"
	}

	// DNS lookup with timeout.
	lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	start := time.Now()
	addrs, err := net.DefaultResolver.LookupHost(lookupCtx, u.Hostname())
	latency := time.Since(start)
	if err != nil {
		return CheckResult{
			Name:    "Platform",
			Status:  "FAIL",
			Message: fmt.Sprintf("DNS lookup failed for %s: %v", u.Hostname(), err),
			Detail:  fmt.Sprintf("latency=%dms", latency.Milliseconds()),
		}
	}

	return CheckResult{
		Name:    "Platform",
		Status:  status,
		Message: fmt.Sprintf("DNS resolved %s (%d addresses, %dms)", u.Hostname(), len(addrs), latency.Milliseconds()),
		Detail:  detail,
	}
}
