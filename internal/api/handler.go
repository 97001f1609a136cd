package api

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
	"github.com/shaiso/lintgate/internal/repo"
)

// Runs — операции supervisor'а, доступные через API.
type Runs interface {
	Admit(ctx context.Context, t domain.Trigger) (*domain.Run, error)
	Start(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	Complete(ctx context.Context, id uuid.UUID, res domain.Result) (*domain.Run, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	List(ctx context.Context, filter repo.RunFilter) ([]*domain.Run, error)
	Active(ctx context.Context, groupKey string) (*domain.Run, error)
}

// Workflows — источник определений workflow.
type Workflows interface {
	Get(name string) (*domain.Workflow, error)
	List() []*domain.Workflow
	Match(t domain.Trigger) []*domain.Workflow
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	runs          Runs
	workflows     Workflows
	webhookSecret []byte
	logger        *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	Runs      Runs
	Workflows Workflows

	// WebhookSecret — секрет X-Hub-Signature-256. Пустой — подпись не проверяется.
	WebhookSecret string

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		runs:          cfg.Runs,
		workflows:     cfg.Workflows,
		webhookSecret: []byte(cfg.WebhookSecret),
		logger:        logger,
	}
}
