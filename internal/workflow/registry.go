package workflow

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
)

// Config — конфигурация Registry.
type Config struct {
	// Dir — каталог с файлами workflow. Пустой — только Default.
	Dir string

	// Default — встроенный workflow, если в Dir нет workflow с таким именем.
	Default *domain.Workflow

	Logger *slog.Logger
}

// Registry — набор загруженных workflow.
//
// Безопасен для конкурентного использования; Reload атомарно
// заменяет набор.
type Registry struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	byName map[string]*domain.Workflow
}

// New создаёт Registry и загружает workflow.
func New(cfg Config) (*Registry, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	r := &Registry{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "workflows"),
		byName: make(map[string]*domain.Workflow),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload перечитывает каталог workflow.
// При ошибке текущий набор не меняется.
func (r *Registry) Reload() error {
	var loaded []*domain.Workflow
	if r.cfg.Dir != "" {
		var err error
		loaded, err = LoadDir(r.cfg.Dir)
		if err != nil {
			return err
		}
	}

	byName := make(map[string]*domain.Workflow, len(loaded)+1)
	for _, wf := range loaded {
		if prev, ok := byName[wf.Name]; ok {
			return fmt.Errorf("%w: %q in %s and %s", ErrDuplicateWorkflow, wf.Name, prev.Path, wf.Path)
		}
		byName[wf.Name] = wf
	}
	if d := r.cfg.Default; d != nil {
		if _, ok := byName[d.Name]; !ok {
			byName[d.Name] = d
		}
	}

	for _, wf := range byName {
		if !wf.Concurrency.CancelInProgress {
			r.logger.Warn("cancel-in-progress: false is ignored, newer triggers always supersede",
				"workflow", wf.Name,
				"path", wf.Path,
			)
		}
	}

	r.mu.Lock()
	r.byName = byName
	r.mu.Unlock()

	r.logger.Info("workflows loaded", "count", len(byName))
	return nil
}

// Get возвращает workflow по имени.
func (r *Registry) Get(name string) (*domain.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	wf, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrWorkflowNotFound, name)
	}
	return wf, nil
}

// List возвращает все workflow, отсортированные по имени.
func (r *Registry) List() []*domain.Workflow {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Workflow, 0, len(r.byName))
	for _, wf := range r.byName {
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Match возвращает workflow, чьи фильтры пропускают trigger.
// Если t.Workflow задан, рассматривается только этот workflow.
func (r *Registry) Match(t domain.Trigger) []*domain.Workflow {
	var out []*domain.Workflow
	for _, wf := range r.List() {
		if t.Workflow != "" && wf.Name != t.Workflow {
			continue
		}
		if Matches(wf, t) {
			out = append(out, wf)
		}
	}
	return out
}

// GroupKey вычисляет ключ группы конкурентности для trigger'а.
//
// Для загруженного workflow вычисляется его concurrency.group.
// Пустой или некорректный ref, как и пустой результат выражения,
// даёт вырожденную группу из одного run.
func (r *Registry) GroupKey(t domain.Trigger, runID uuid.UUID) string {
	if !domain.ValidRef(t.Ref) {
		return domain.DegenerateGroupKey(t.Workflow, runID)
	}

	wf, err := r.Get(t.Workflow)
	if err != nil {
		return domain.GroupKey(t.Workflow, t.Ref, runID)
	}

	key, err := Render(wf.Concurrency.Group, Vars(wf.Name, t))
	if err != nil || strings.TrimSpace(key) == "" {
		r.logger.Warn("concurrency group evaluated to nothing, using single-run group",
			"workflow", wf.Name,
			"ref", t.Ref,
			"error", err,
		)
		return domain.DegenerateGroupKey(t.Workflow, runID)
	}
	return key
}
