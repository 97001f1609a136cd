// Package config собирает конфигурацию сервисов lintgate.
//
// Источники (по возрастанию приоритета):
//   - значения по умолчанию
//   - YAML-файл из LINTGATE_CONFIG (${VAR} раскрываются из окружения)
//   - переменные окружения
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store — вид хранилища runs.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// ErrInvalidConfig — конфигурация не прошла валидацию.
var ErrInvalidConfig = errors.New("invalid config")

// Config — конфигурация всех бинарников lintgate.
type Config struct {
	// Store — memory (один процесс) или postgres.
	Store string `yaml:"store"`

	DBURL       string `yaml:"db_url"`
	RabbitMQURL string `yaml:"rabbitmq_url"`

	// WorkflowsDir — каталог с YAML workflow. Пустой — только встроенный.
	WorkflowsDir string `yaml:"workflows_dir"`

	// WorkflowName — имя встроенного workflow.
	WorkflowName string `yaml:"workflow_name"`

	// TargetBranch — ветка, на которую реагирует встроенный workflow.
	TargetBranch string `yaml:"target_branch"`

	// RepositoryURL — откуда worker делает checkout.
	RepositoryURL string `yaml:"repository_url"`

	// LintCommand — команда линтера встроенного workflow.
	LintCommand string `yaml:"lint_command"`

	JobTimeout        Duration `yaml:"job_timeout"`
	WorkerConcurrency int      `yaml:"worker_concurrency"`

	// InlineWorker — запускать worker в процессе API.
	InlineWorker bool `yaml:"inline_worker"`

	APIPort       string `yaml:"api_port"`
	WorkerPort    string `yaml:"worker_port"`
	RetentionPort string `yaml:"retention_port"`

	// RetentionCron — расписание janitor'а (cron или @every).
	RetentionCron string `yaml:"retention_cron"`

	// RetentionMaxAge — сколько хранить финальные runs до архивации.
	RetentionMaxAge Duration `yaml:"retention_max_age"`

	// WebhookSecret — секрет подписи GitHub webhook (X-Hub-Signature-256).
	WebhookSecret string `yaml:"github_webhook_secret"`
}

// Default возвращает конфигурацию по умолчанию.
func Default() Config {
	return Config{
		Store:             StorePostgres,
		WorkflowName:      "REUSE",
		TargetBranch:      "master",
		LintCommand:       "reuse lint",
		JobTimeout:        Duration(10 * time.Minute),
		WorkerConcurrency: 4,
		APIPort:           "8080",
		RetentionPort:     "8081",
		WorkerPort:        "8082",
		RetentionCron:     "@every 1h",
		RetentionMaxAge:   Duration(30 * 24 * time.Hour),
	}
}

// Load читает конфигурацию из окружения процесса.
func Load() (Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom читает конфигурацию через getenv (для тестов).
func LoadFrom(getenv func(string) string) (Config, error) {
	cfg := Default()

	if path := getenv("LINTGATE_CONFIG"); path != "" {
		if err := cfg.loadFile(path, getenv); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}

	return cfg, cfg.Validate()
}

func (c *Config) loadFile(path string, getenv func(string) string) error {
	// #nosec G304 -- путь задаёт оператор.
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	expanded := os.Expand(string(raw), getenv)
	expanded = strings.ReplaceAll(expanded, "\r\n", "\n")

	return yaml.Unmarshal([]byte(expanded), c)
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"STORE":                 &c.Store,
		"DB_URL":                &c.DBURL,
		"RABBITMQ_URL":          &c.RabbitMQURL,
		"WORKFLOWS_DIR":         &c.WorkflowsDir,
		"WORKFLOW_NAME":         &c.WorkflowName,
		"TARGET_BRANCH":         &c.TargetBranch,
		"REPOSITORY_URL":        &c.RepositoryURL,
		"LINT_COMMAND":          &c.LintCommand,
		"API_PORT":              &c.APIPort,
		"WORKER_PORT":           &c.WorkerPort,
		"RETENTION_PORT":        &c.RetentionPort,
		"RETENTION_CRON":        &c.RetentionCron,
		"GITHUB_WEBHOOK_SECRET": &c.WebhookSecret,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	durations := map[string]*Duration{
		"JOB_TIMEOUT":       &c.JobTimeout,
		"RETENTION_MAX_AGE": &c.RetentionMaxAge,
	}
	for key, dst := range durations {
		if v := getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
			}
			*dst = Duration(d)
		}
	}

	if v := getenv("WORKER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: WORKER_CONCURRENCY: %v", ErrInvalidConfig, err)
		}
		c.WorkerConcurrency = n
	}

	if v := getenv("INLINE_WORKER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: INLINE_WORKER: %v", ErrInvalidConfig, err)
		}
		c.InlineWorker = b
	}

	return nil
}

// Validate проверяет согласованность настроек.
// Хранилище в памяти видно только своему процессу, поэтому для него
// worker всегда запускается в процессе API.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreMemory:
		c.InlineWorker = true
	case StorePostgres:
	default:
		return fmt.Errorf("%w: store must be %q or %q, got %q", ErrInvalidConfig, StoreMemory, StorePostgres, c.Store)
	}

	if c.WorkflowName == "" {
		return fmt.Errorf("%w: workflow_name is required", ErrInvalidConfig)
	}
	if c.TargetBranch == "" {
		return fmt.Errorf("%w: target_branch is required", ErrInvalidConfig)
	}
	if c.JobTimeout < 0 || c.RetentionMaxAge < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidConfig)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("%w: worker_concurrency must be positive", ErrInvalidConfig)
	}
	return nil
}

// Addr возвращает адрес для net/http по номеру порта.
func Addr(port string) string {
	return ":" + port
}

// Duration — time.Duration, читаемый из YAML строкой ("10m").
type Duration time.Duration

// UnmarshalYAML реализует yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	parsed, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, n.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std возвращает значение как time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}
