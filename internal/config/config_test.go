package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(envMap(nil))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Store != StorePostgres || cfg.TargetBranch != "master" || cfg.LintCommand != "reuse lint" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.JobTimeout.Std() != 10*time.Minute {
		t.Errorf("unexpected job timeout %v", cfg.JobTimeout.Std())
	}
	if cfg.InlineWorker {
		t.Error("inline worker is off by default for postgres")
	}
}

func TestLoadFrom_Env(t *testing.T) {
	cfg, err := LoadFrom(envMap(map[string]string{
		"STORE":              "memory",
		"TARGET_BRANCH":      "main",
		"JOB_TIMEOUT":        "90s",
		"WORKER_CONCURRENCY": "2",
		"API_PORT":           "9000",
	}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.TargetBranch != "main" || cfg.JobTimeout.Std() != 90*time.Second || cfg.WorkerConcurrency != 2 {
		t.Errorf("env not applied: %+v", cfg)
	}
	if !cfg.InlineWorker {
		t.Error("memory store must force the inline worker")
	}
	if Addr(cfg.APIPort) != ":9000" {
		t.Errorf("unexpected addr %s", Addr(cfg.APIPort))
	}
}

func TestLoadFrom_FileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lintgate.yaml")
	content := `store: postgres
db_url: ${TEST_DB}
workflow_name: REUSE Compliance Check
retention_max_age: 48h
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(envMap(map[string]string{
		"LINTGATE_CONFIG": path,
		"TEST_DB":         "postgres://db/lintgate",
		"WORKFLOW_NAME":   "license",
	}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.DBURL != "postgres://db/lintgate" {
		t.Errorf("file value with ${VAR} expected, got %q", cfg.DBURL)
	}
	if cfg.RetentionMaxAge.Std() != 48*time.Hour {
		t.Errorf("unexpected retention %v", cfg.RetentionMaxAge.Std())
	}
	if cfg.WorkflowName != "license" {
		t.Errorf("env must override file, got %q", cfg.WorkflowName)
	}
}

func TestLoadFrom_Invalid(t *testing.T) {
	tests := map[string]map[string]string{
		"bad store":       {"STORE": "redis"},
		"bad duration":    {"JOB_TIMEOUT": "soon"},
		"bad bool":        {"INLINE_WORKER": "sometimes"},
		"bad concurrency": {"WORKER_CONCURRENCY": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := LoadFrom(envMap(env)); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
