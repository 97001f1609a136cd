package workflow

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/nektos/act/pkg/model"
	"gopkg.in/yaml.v3"

	"github.com/shaiso/lintgate/internal/domain"
)

// DefaultGroup — выражение группы для workflow без блока concurrency.
const DefaultGroup = "${{ github.workflow }}" + domain.GroupSeparator + "${{ github.ref }}"

// rawWorkflow — часть workflow, которую читаем напрямую через yaml.v3.
// Блок on разбирается через act, остальное act не раскрывает в нужном виде.
type rawWorkflow struct {
	Concurrency *rawConcurrency   `yaml:"concurrency"`
	Jobs        map[string]rawJob `yaml:"jobs"`
}

type rawJob struct {
	Name           string          `yaml:"name"`
	Concurrency    *rawConcurrency `yaml:"concurrency"`
	TimeoutMinutes int             `yaml:"timeout-minutes"`
	Steps          []rawStep       `yaml:"steps"`
}

type rawStep struct {
	Name string            `yaml:"name"`
	Uses string            `yaml:"uses"`
	Run  string            `yaml:"run"`
	With map[string]string `yaml:"with"`
}

// rawConcurrency допускает обе формы:
//
//	concurrency: my-group
//	concurrency: {group: my-group, cancel-in-progress: true}
type rawConcurrency struct {
	Group            string
	CancelInProgress bool
}

// UnmarshalYAML реализует yaml.Unmarshaler.
func (c *rawConcurrency) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		c.Group = n.Value
		return nil
	}
	var m struct {
		Group            string `yaml:"group"`
		CancelInProgress bool   `yaml:"cancel-in-progress"`
	}
	if err := n.Decode(&m); err != nil {
		return err
	}
	c.Group = m.Group
	c.CancelInProgress = m.CancelInProgress
	return nil
}

// Parse разбирает один файл workflow.
// path используется для имени по умолчанию и в сообщениях об ошибках.
func Parse(path string, content []byte) (*domain.Workflow, error) {
	wf, err := parse(path, content)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return wf, nil
}

func parse(path string, content []byte) (*domain.Workflow, error) {
	actWf, err := model.ReadWorkflow(bytes.NewReader(content), false)
	if err != nil {
		return nil, err
	}

	on := make(map[domain.EventKind]domain.EventFilter)
	for _, evt := range actWf.On() {
		kind := domain.EventKind(evt)
		if !kind.Valid() {
			continue
		}
		on[kind] = parseEventFilter(actWf.OnEvent(evt))
	}
	if len(on) == 0 {
		return nil, ErrNoTriggers
	}

	var raw rawWorkflow
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, err
	}

	switch len(raw.Jobs) {
	case 0:
		return nil, ErrNoJobs
	case 1:
	default:
		return nil, fmt.Errorf("%w: got %d", ErrMultipleJobs, len(raw.Jobs))
	}

	var (
		jobID string
		job   rawJob
	)
	for id, j := range raw.Jobs {
		jobID, job = id, j
	}
	if len(job.Steps) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNoSteps)
	}

	steps := make([]domain.StepDef, 0, len(job.Steps))
	for i, s := range job.Steps {
		def, err := stepDef(s)
		if err != nil {
			return nil, fmt.Errorf("job %s step %d: %w", jobID, i+1, err)
		}
		steps = append(steps, def)
	}
	markLintStep(steps)

	// Job-level concurrency перекрывает workflow-level
	conc := domain.Concurrency{Group: DefaultGroup, CancelInProgress: true}
	switch {
	case job.Concurrency != nil:
		conc = domain.Concurrency(*job.Concurrency)
	case raw.Concurrency != nil:
		conc = domain.Concurrency(*raw.Concurrency)
	}
	if strings.TrimSpace(conc.Group) == "" {
		conc.Group = DefaultGroup
	}
	if _, err := Render(conc.Group, nil); err != nil {
		return nil, fmt.Errorf("concurrency.group: %w", err)
	}

	return &domain.Workflow{
		Name:           workflowName(actWf.Name, path),
		Path:           filepath.ToSlash(path),
		On:             on,
		Concurrency:    conc,
		Job:            jobID,
		Steps:          steps,
		TimeoutMinutes: job.TimeoutMinutes,
	}, nil
}

// stepDef переводит шаг GitHub Actions в шаг worker'а.
func stepDef(s rawStep) (domain.StepDef, error) {
	def := domain.StepDef{Name: s.Name, Uses: s.Uses, With: s.With}

	action, _, _ := strings.Cut(s.Uses, "@")
	switch {
	case action == "actions/checkout":
		def.Kind = domain.StepKindCheckout
	case action == "fsfe/reuse-action":
		args := strings.TrimSpace(s.With["args"])
		if args == "" {
			args = "lint"
		}
		def.Kind = domain.StepKindCommand
		def.Run = "reuse " + args
		def.Lint = true
	case s.Uses == "" && strings.TrimSpace(s.Run) != "":
		def.Kind = domain.StepKindCommand
		def.Run = s.Run
	default:
		return def, fmt.Errorf("%w: %q", ErrUnsupportedStep, s.Uses)
	}

	if def.Name == "" {
		def.Name = stepName(def)
	}
	return def, nil
}

// markLintStep помечает шаг линтера, если workflow не использует
// fsfe/reuse-action: им считается последний шаг command.
func markLintStep(steps []domain.StepDef) {
	for _, s := range steps {
		if s.Lint {
			return
		}
	}
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Kind == domain.StepKindCommand {
			steps[i].Lint = true
			return
		}
	}
}

func stepName(def domain.StepDef) string {
	if def.Uses != "" {
		return def.Uses
	}
	line, _, _ := strings.Cut(strings.TrimSpace(def.Run), "\n")
	return line
}

// parseEventFilter разбирает значение on.<event>.
// Допускает null, список типов, строку и mapping с фильтрами.
func parseEventFilter(raw interface{}) domain.EventFilter {
	var f domain.EventFilter

	switch v := raw.(type) {
	case map[string]interface{}:
		for k, val := range v {
			switch strings.ToLower(k) {
			case "branches":
				f.Branches = asStringSlice(val)
			case "branches-ignore":
				f.BranchesIgnore = asStringSlice(val)
			case "types":
				f.Types = asStringSlice(val)
			}
		}
	case []interface{}:
		f.Types = asStringSlice(v)
	case []string:
		f.Types = append(f.Types, v...)
	case string:
		if s := strings.TrimSpace(v); s != "" {
			f.Types = []string{s}
		}
	}

	return f
}

func asStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{strings.TrimSpace(v)}
	default:
		return []string{fmt.Sprint(v)}
	}
}

func workflowName(name, path string) string {
	if name != "" {
		return name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(strings.TrimSuffix(base, ".yml"), ".yaml")
}

func isWorkflowFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}

// LoadDir загружает все *.yml / *.yaml из каталога (рекурсивно).
// Отсутствующий каталог — не ошибка: возвращается пустой список.
func LoadDir(dir string) ([]*domain.Workflow, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workflows directory: %w", err)
	}

	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !isWorkflowFile(d.Name()) {
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	workflows := make([]*domain.Workflow, 0, len(paths))
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read workflow %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		wf, err := Parse(rel, content)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, wf)
	}

	return workflows, nil
}

// Default строит встроенный workflow: lint лицензий на push и
// pull_request в целевую ветку.
func Default(name, targetBranch, lintCommand string) *domain.Workflow {
	if lintCommand == "" {
		lintCommand = "reuse lint"
	}
	filter := domain.EventFilter{Branches: []string{targetBranch}}
	return &domain.Workflow{
		Name: name,
		On: map[domain.EventKind]domain.EventFilter{
			domain.EventPush:        filter,
			domain.EventPullRequest: filter,
		},
		Concurrency: domain.Concurrency{Group: DefaultGroup, CancelInProgress: true},
		Job:         "lint",
		Steps: []domain.StepDef{
			{Name: "checkout", Kind: domain.StepKindCheckout, Uses: "actions/checkout@v4"},
			{Name: "REUSE Compliance Check", Kind: domain.StepKindCommand, Run: lintCommand, Lint: true},
		},
	}
}
