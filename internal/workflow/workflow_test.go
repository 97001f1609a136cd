package workflow

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
)

const reuseWorkflow = `name: REUSE Compliance Check

on:
  push:
    branches: [master]
  pull_request:
    branches: [master]

concurrency:
  group: ${{ github.workflow }}-${{ github.ref }}
  cancel-in-progress: true

jobs:
  test:
    runs-on: ubuntu-latest
    timeout-minutes: 10
    steps:
      - uses: actions/checkout@v4
      - name: REUSE Compliance Check
        uses: fsfe/reuse-action@v5
`

func TestParse_ReuseWorkflow(t *testing.T) {
	wf, err := Parse("reuse.yml", []byte(reuseWorkflow))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if wf.Name != "REUSE Compliance Check" {
		t.Errorf("unexpected name %q", wf.Name)
	}
	if !wf.Triggers(domain.EventPush) || !wf.Triggers(domain.EventPullRequest) {
		t.Errorf("expected push and pull_request triggers, got %v", wf.On)
	}
	if got := wf.On[domain.EventPush].Branches; len(got) != 1 || got[0] != "master" {
		t.Errorf("unexpected push branches %v", got)
	}
	if !wf.Concurrency.CancelInProgress {
		t.Error("cancel-in-progress should be true")
	}
	if wf.Concurrency.Group != "${{ github.workflow }}-${{ github.ref }}" {
		t.Errorf("unexpected group %q", wf.Concurrency.Group)
	}
	if wf.Job != "test" || wf.TimeoutMinutes != 10 {
		t.Errorf("unexpected job %q timeout %d", wf.Job, wf.TimeoutMinutes)
	}

	if len(wf.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(wf.Steps))
	}
	if wf.Steps[0].Kind != domain.StepKindCheckout {
		t.Errorf("first step should be checkout, got %s", wf.Steps[0].Kind)
	}
	if wf.Steps[1].Kind != domain.StepKindCommand || wf.Steps[1].Run != "reuse lint" {
		t.Errorf("second step should run reuse lint, got %+v", wf.Steps[1])
	}
}

func TestParse_LintStep(t *testing.T) {
	wf, err := Parse("reuse.yml", []byte(reuseWorkflow))
	if err != nil {
		t.Fatal(err)
	}
	if wf.Steps[0].Lint || !wf.Steps[1].Lint {
		t.Errorf("reuse-action step must be the lint step, got %+v", wf.Steps)
	}

	src := `on: [push]
jobs:
  lint:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/checkout@v4
      - run: pip install reuse
      - run: reuse lint
`
	wf, err = Parse("custom.yml", []byte(src))
	if err != nil {
		t.Fatal(err)
	}
	if wf.Steps[1].Lint || !wf.Steps[2].Lint {
		t.Errorf("last command step must be the lint step, got %+v", wf.Steps)
	}

	if d := Default("REUSE", "master", ""); !d.Steps[1].Lint {
		t.Error("built-in lint step must be marked")
	}
}

func TestParse_DefaultsAndShortConcurrency(t *testing.T) {
	src := `on: [push]
concurrency: lint-${{ github.ref }}
jobs:
  lint:
    runs-on: ubuntu-latest
    steps:
      - run: reuse lint --json
`
	wf, err := Parse("dir/license.yaml", []byte(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if wf.Name != "license" {
		t.Errorf("name should fall back to file name, got %q", wf.Name)
	}
	if wf.Concurrency.Group != "lint-${{ github.ref }}" || wf.Concurrency.CancelInProgress {
		t.Errorf("unexpected concurrency %+v", wf.Concurrency)
	}
	if wf.Steps[0].Name != "reuse lint --json" {
		t.Errorf("step name should fall back to command, got %q", wf.Steps[0].Name)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want error
	}{
		{
			name: "no supported triggers",
			src: `on: [workflow_dispatch]
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - run: "true"
`,
			want: ErrNoTriggers,
		},
		{
			name: "two jobs",
			src: `on: [push]
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - run: "true"
  b:
    runs-on: ubuntu-latest
    steps:
      - run: "true"
`,
			want: ErrMultipleJobs,
		},
		{
			name: "unknown action",
			src: `on: [push]
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - uses: actions/setup-go@v5
`,
			want: ErrUnsupportedStep,
		},
		{
			name: "unsupported group expression",
			src: `on: [push]
concurrency:
  group: ${{ format('{0}', github.ref) }}
jobs:
  a:
    runs-on: ubuntu-latest
    steps:
      - run: "true"
`,
			want: ErrUnsupportedExpression,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("w.yml", []byte(tt.src))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			var lErr *LoadError
			if !errors.As(err, &lErr) || lErr.Path != "w.yml" {
				t.Errorf("expected LoadError for w.yml, got %T", err)
			}
		})
	}
}

func TestMatches(t *testing.T) {
	wf := &domain.Workflow{
		Name: "REUSE",
		On: map[domain.EventKind]domain.EventFilter{
			domain.EventPush:        {Branches: []string{"master", "release/**"}},
			domain.EventPullRequest: {Branches: []string{"master"}, Types: []string{"opened", "synchronize"}},
		},
	}

	tests := []struct {
		name    string
		trigger domain.Trigger
		want    bool
	}{
		{"push to target", domain.Trigger{Event: domain.EventPush, Ref: "refs/heads/master"}, true},
		{"push short ref", domain.Trigger{Event: domain.EventPush, Ref: "master"}, true},
		{"push glob", domain.Trigger{Event: domain.EventPush, Ref: "release/1.2"}, true},
		{"push other branch", domain.Trigger{Event: domain.EventPush, Ref: "feature-x"}, false},
		{"push tag with branch filter", domain.Trigger{Event: domain.EventPush, Ref: "refs/tags/v1"}, false},
		{"pr to target", domain.Trigger{Event: domain.EventPullRequest, Ref: "feature-x", BaseRef: "master"}, true},
		{"pr to other base", domain.Trigger{Event: domain.EventPullRequest, Ref: "feature-x", BaseRef: "dev"}, false},
		{"pr filtered action", domain.Trigger{Event: domain.EventPullRequest, Ref: "f", BaseRef: "master", Action: "closed"}, false},
		{"pr allowed action", domain.Trigger{Event: domain.EventPullRequest, Ref: "f", BaseRef: "master", Action: "synchronize"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Matches(wf, tt.trigger); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatches_BranchesIgnore(t *testing.T) {
	wf := &domain.Workflow{
		On: map[domain.EventKind]domain.EventFilter{
			domain.EventPush: {BranchesIgnore: []string{"dependabot/**"}},
		},
	}
	if Matches(wf, domain.Trigger{Event: domain.EventPush, Ref: "dependabot/npm/x"}) {
		t.Error("ignored branch must not match")
	}
	if !Matches(wf, domain.Trigger{Event: domain.EventPush, Ref: "feature-x"}) {
		t.Error("other branches should match")
	}
	if Matches(wf, domain.Trigger{Event: domain.EventPullRequest, Ref: "feature-x"}) {
		t.Error("workflow without pull_request must not match it")
	}
}

func TestRender(t *testing.T) {
	vars := map[string]string{
		"github.workflow": "REUSE",
		"github.ref":      "refs/heads/main",
	}

	tests := []struct {
		tmpl string
		want string
	}{
		{"${{ github.workflow }}-${{ github.ref }}", "REUSE-refs/heads/main"},
		{"${{ github.head_ref || github.ref }}", "refs/heads/main"},
		{"${{ github.head_ref || 'fallback' }}", "fallback"},
		{"${{ 'it''s' }}", "it's"},
		{"${{ 'a || b' }}", "a || b"},
		{"static", "static"},
		{"${{ github.unknown }}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.tmpl, func(t *testing.T) {
			got, err := Render(tt.tmpl, vars)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRender_Unsupported(t *testing.T) {
	for _, tmpl := range []string{
		"${{ contains(github.ref, 'x') }}",
		"${{ 'open }}",
		"${{ github.ref == 'main' }}",
		"${{ }}",
	} {
		if _, err := Render(tmpl, nil); !errors.Is(err, ErrUnsupportedExpression) {
			t.Errorf("%q: expected ErrUnsupportedExpression, got %v", tmpl, err)
		}
	}
}

func TestRegistry_LoadDirAndDefault(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "reuse.yml"), []byte(reuseWorkflow), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a workflow"), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := New(Config{
		Dir:     dir,
		Default: Default("builtin", "main", ""),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	list := reg.List()
	if len(list) != 2 {
		t.Fatalf("expected 2 workflows, got %d", len(list))
	}

	builtin, err := reg.Get("builtin")
	if err != nil {
		t.Fatalf("Get builtin: %v", err)
	}
	if builtin.Steps[1].Run != "reuse lint" {
		t.Errorf("default lint command expected, got %q", builtin.Steps[1].Run)
	}

	if _, err := reg.Get("missing"); !errors.Is(err, ErrWorkflowNotFound) {
		t.Errorf("expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestRegistry_DuplicateName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.yml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(reuseWorkflow), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := New(Config{Dir: dir}); !errors.Is(err, ErrDuplicateWorkflow) {
		t.Fatalf("expected ErrDuplicateWorkflow, got %v", err)
	}
}

func TestRegistry_Match(t *testing.T) {
	reg, err := New(Config{Default: Default("REUSE", "master", "")})
	if err != nil {
		t.Fatal(err)
	}

	matched := reg.Match(domain.Trigger{Event: domain.EventPullRequest, Ref: "feature-x", BaseRef: "master"})
	if len(matched) != 1 || matched[0].Name != "REUSE" {
		t.Fatalf("expected REUSE to match, got %v", matched)
	}

	if m := reg.Match(domain.Trigger{Event: domain.EventPush, Ref: "master", Workflow: "other"}); len(m) != 0 {
		t.Errorf("explicit workflow name must restrict matching, got %d", len(m))
	}
}

func TestRegistry_GroupKey(t *testing.T) {
	reg, err := New(Config{Default: Default("REUSE", "master", "")})
	if err != nil {
		t.Fatal(err)
	}
	id := uuid.New()

	key := reg.GroupKey(domain.Trigger{Event: domain.EventPush, Ref: "feature-x", Workflow: "REUSE"}, id)
	if key != "REUSE:feature-x" {
		t.Errorf("unexpected key %q", key)
	}

	// Совпадает с ключом по умолчанию
	if key != domain.GroupKey("REUSE", "feature-x", id) {
		t.Error("default expression must match the built-in group key")
	}

	// PR и push одной ветки попадают в одну группу
	pr := reg.GroupKey(domain.Trigger{Event: domain.EventPullRequest, Ref: "feature-x", BaseRef: "master", Workflow: "REUSE"}, uuid.New())
	if pr != key {
		t.Errorf("pull_request on same ref should share the group, got %q", pr)
	}

	empty := reg.GroupKey(domain.Trigger{Event: domain.EventPush, Workflow: "REUSE"}, id)
	if !strings.HasSuffix(empty, id.String()) {
		t.Errorf("empty ref should yield degenerate key, got %q", empty)
	}

	unknown := reg.GroupKey(domain.Trigger{Event: domain.EventPush, Ref: "main", Workflow: "adhoc"}, id)
	if unknown != "adhoc:main" {
		t.Errorf("unknown workflow should use plain key, got %q", unknown)
	}
}

func TestRegistry_GroupKeyHyphenatedNames(t *testing.T) {
	license := Default("license", "master", "")
	licenseCheck := Default("license-check", "master", "")

	reg, err := New(Config{Default: license})
	if err != nil {
		t.Fatal(err)
	}
	reg.mu.Lock()
	reg.byName[licenseCheck.Name] = licenseCheck
	reg.mu.Unlock()

	a := reg.GroupKey(domain.Trigger{Event: domain.EventPullRequest, Ref: "check-x", Workflow: "license"}, uuid.New())
	b := reg.GroupKey(domain.Trigger{Event: domain.EventPullRequest, Ref: "x", Workflow: "license-check"}, uuid.New())
	if a == b {
		t.Errorf("different workflows rendered the same key %q", a)
	}
	if a != "license:check-x" || b != "license-check:x" {
		t.Errorf("unexpected keys %q, %q", a, b)
	}
}
