package api

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/lintgate/internal/domain"
	"github.com/shaiso/lintgate/internal/repo"
	"github.com/shaiso/lintgate/internal/supervisor"
	"github.com/shaiso/lintgate/internal/telemetry"
	"github.com/shaiso/lintgate/internal/workflow"
)

const testSecret = "s3cret"

type testServer struct {
	mux *http.ServeMux
	sup *supervisor.Supervisor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	workflows, err := workflow.New(workflow.Config{
		Default: workflow.Default("REUSE", "master", "reuse lint"),
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("workflow.New: %v", err)
	}

	sup := supervisor.New(supervisor.Config{
		Store:   repo.NewMemoryRunRepo(),
		Grouper: workflows,
		Logger:  logger,
	})

	h := NewHandler(Config{
		Runs:          sup,
		Workflows:     workflows,
		WebhookSecret: testSecret,
		Logger:        logger,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	return &testServer{mux: mux, sup: sup}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func decodeData[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var resp struct {
		Data T `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp.Data
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testSecret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestCreateTrigger_SupersedesPreviousRun(t *testing.T) {
	s := newTestServer(t)
	req := TriggerRequest{Event: domain.EventPush, Ref: "refs/heads/master", SHA: "a1"}

	rec := s.do(t, http.MethodPost, "/api/v1/triggers", req, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body)
	}
	first := decodeData[TriggerResponse](t, rec)
	if len(first.Runs) != 1 {
		t.Fatalf("expected one run, got %d", len(first.Runs))
	}
	if first.Runs[0].GroupKey != "REUSE:refs/heads/master" {
		t.Errorf("unexpected group key %q", first.Runs[0].GroupKey)
	}

	req.SHA = "b2"
	second := decodeData[TriggerResponse](t, s.do(t, http.MethodPost, "/api/v1/triggers", req, nil))

	rec = s.do(t, http.MethodGet, "/api/v1/runs/"+first.Runs[0].ID.String(), nil, nil)
	old := decodeData[RunResponse](t, rec)
	if old.Status != domain.RunStatusCancelled {
		t.Errorf("first run should be CANCELLED, got %s", old.Status)
	}
	if old.SupersededBy == nil || *old.SupersededBy != second.Runs[0].ID {
		t.Error("first run should be superseded by the second")
	}
}

func TestCreateTrigger_NoMatchingWorkflow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/triggers",
		TriggerRequest{Event: domain.EventPush, Ref: "refs/heads/feature"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp := decodeData[TriggerResponse](t, rec); len(resp.Runs) != 0 {
		t.Errorf("expected no runs, got %d", len(resp.Runs))
	}
}

func TestCreateTrigger_BadRequests(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"invalid json", []byte("{"), http.StatusBadRequest},
		{"unknown event", TriggerRequest{Event: "release", Ref: "main"}, http.StatusBadRequest},
		{"unknown workflow", TriggerRequest{Event: domain.EventPush, Ref: "master", Workflow: "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := s.do(t, http.MethodPost, "/api/v1/triggers", tt.body, nil); rec.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}

func TestRunLifecycle_StartComplete(t *testing.T) {
	s := newTestServer(t)

	created := decodeData[TriggerResponse](t, s.do(t, http.MethodPost, "/api/v1/triggers",
		TriggerRequest{Event: domain.EventPullRequest, Ref: "feature-x", BaseRef: "master"}, nil))
	id := created.Runs[0].ID.String()

	// Результат до старта — недопустимый переход
	rec := s.do(t, http.MethodPost, "/api/v1/runs/"+id+"/complete", CompleteRunRequest{Outcome: domain.OutcomeSuccess}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("complete before start: expected 409, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/runs/"+id+"/start", nil, nil)
	if run := decodeData[RunResponse](t, rec); run.Status != domain.RunStatusRunning {
		t.Fatalf("expected RUNNING, got %s", run.Status)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/runs/"+id+"/complete", CompleteRunRequest{Outcome: "MAYBE"}, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid outcome: expected 422, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodPost, "/api/v1/runs/"+id+"/complete", CompleteRunRequest{
		Outcome:     domain.OutcomeFailure,
		FailureKind: domain.FailureLint,
		Error:       "missing license header",
	}, nil)
	run := decodeData[RunResponse](t, rec)
	if run.Status != domain.RunStatusCompleted || run.FailureKind != domain.FailureLint {
		t.Errorf("expected COMPLETED/LINT_FAILURE, got %s/%s", run.Status, run.FailureKind)
	}
}

func TestRunEndpoints_Errors(t *testing.T) {
	s := newTestServer(t)

	if rec := s.do(t, http.MethodGet, "/api/v1/runs/not-a-uuid", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid id: expected 400, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/runs/"+uuid.NewString(), nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: expected 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/runs?status=WEIRD", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("invalid status: expected 400, got %d", rec.Code)
	}
}

func TestListRuns_ActiveFilter(t *testing.T) {
	s := newTestServer(t)
	push := TriggerRequest{Event: domain.EventPush, Ref: "refs/heads/master"}

	s.do(t, http.MethodPost, "/api/v1/triggers", push, nil)
	s.do(t, http.MethodPost, "/api/v1/triggers", push, nil)

	var resp struct {
		Data  []RunResponse `json:"data"`
		Total int           `json:"total"`
	}
	rec := s.do(t, http.MethodGet, "/api/v1/runs?active=true", nil, nil)
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].Status != domain.RunStatusPending {
		t.Errorf("expected exactly one active run, got %+v", resp.Data)
	}

	rec = s.do(t, http.MethodGet, "/api/v1/runs?status=CANCELLED", nil, nil)
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 {
		t.Errorf("expected one cancelled run, got %d", len(resp.Data))
	}
}

func TestGitHubWebhook(t *testing.T) {
	s := newTestServer(t)

	pr := []byte(`{"action":"synchronize","pull_request":{"head":{"ref":"feature-x","sha":"abc"},"base":{"ref":"master"}}}`)
	closed := []byte(`{"action":"closed","pull_request":{"head":{"ref":"feature-x","sha":"abc"},"base":{"ref":"master"}}}`)
	push := []byte(`{"ref":"refs/heads/master","after":"def"}`)
	deleted := []byte(`{"ref":"refs/heads/master","after":"000","deleted":true}`)

	tests := []struct {
		name   string
		event  string
		body   []byte
		sig    string
		want   int
		wantGK string
	}{
		{"pull request", "pull_request", pr, sign(pr), http.StatusCreated, "REUSE:feature-x"},
		{"push", "push", push, sign(push), http.StatusCreated, "REUSE:refs/heads/master"},
		{"closed pr ignored", "pull_request", closed, sign(closed), http.StatusNoContent, ""},
		{"branch deletion ignored", "push", deleted, sign(deleted), http.StatusNoContent, ""},
		{"ping ignored", "ping", []byte(`{}`), sign([]byte(`{}`)), http.StatusNoContent, ""},
		{"bad signature", "push", push, "sha256=00", http.StatusUnauthorized, ""},
		{"missing signature", "push", push, "", http.StatusUnauthorized, ""},
		{"bad payload", "push", []byte("{"), sign([]byte("{")), http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/webhooks/github", tt.body, map[string]string{
				"X-GitHub-Event":      tt.event,
				"X-Hub-Signature-256": tt.sig,
			})
			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d: %s", tt.want, rec.Code, rec.Body)
			}
			if tt.wantGK == "" {
				return
			}
			resp := decodeData[TriggerResponse](t, rec)
			if len(resp.Runs) != 1 || resp.Runs[0].GroupKey != tt.wantGK {
				t.Errorf("expected run in group %q, got %+v", tt.wantGK, resp.Runs)
			}
		})
	}
}

func TestListWorkflows(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/workflows", nil, nil)
	workflows := decodeData[[]WorkflowResponse](t, rec)
	if len(workflows) != 1 || workflows[0].Name != "REUSE" || !workflows[0].CancelInProgress {
		t.Fatalf("unexpected workflows %+v", workflows)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/workflows/unknown", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestStoppedSupervisor_Unavailable(t *testing.T) {
	s := newTestServer(t)
	s.sup.Stop()

	rec := s.do(t, http.MethodPost, "/api/v1/triggers",
		TriggerRequest{Event: domain.EventPush, Ref: "refs/heads/master"}, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}

func TestActiveRun(t *testing.T) {
	s := newTestServer(t)
	push := TriggerRequest{Event: domain.EventPush, Ref: "refs/heads/master"}

	s.do(t, http.MethodPost, "/api/v1/triggers", push, nil)
	second := decodeData[TriggerResponse](t, s.do(t, http.MethodPost, "/api/v1/triggers", push, nil))

	path := "/api/v1/runs/active?group=" + url.QueryEscape("REUSE:refs/heads/master")
	rec := s.do(t, http.MethodGet, path, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body)
	}
	if run := decodeData[RunResponse](t, rec); run.ID != second.Runs[0].ID {
		t.Errorf("expected newest run %s, got %s", second.Runs[0].ID, run.ID)
	}

	if rec := s.do(t, http.MethodGet, "/api/v1/runs/active?group=REUSE:other", nil, nil); rec.Code != http.StatusNotFound {
		t.Errorf("idle group: expected 404, got %d", rec.Code)
	}
	if rec := s.do(t, http.MethodGet, "/api/v1/runs/active", nil, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("missing group: expected 400, got %d", rec.Code)
	}
}

func TestLogging_RequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	h := Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		telemetry.FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-GitHub-Delivery", "delivery-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(HeaderRequestID); got != "delivery-1" {
		t.Errorf("expected request id from delivery header, got %q", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %q", buf.String())
	}
	for _, line := range lines {
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatal(err)
		}
		if rec["request_id"] != "delivery-1" {
			t.Errorf("line without request_id: %s", line)
		}
	}
	if !strings.Contains(lines[1], `"status":418`) {
		t.Errorf("status should be logged, got %s", lines[1])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if _, err := uuid.Parse(rec.Header().Get(HeaderRequestID)); err != nil {
		t.Errorf("generated request id should be a uuid: %v", err)
	}
}

// failingRuns отказывает в допуске для одного workflow.
type failingRuns struct {
	*supervisor.Supervisor
	failWorkflow string
}

func (f *failingRuns) Admit(ctx context.Context, t domain.Trigger) (*domain.Run, error) {
	if t.Workflow == f.failWorkflow {
		return nil, errors.New("store unavailable")
	}
	return f.Supervisor.Admit(ctx, t)
}

func TestCreateTrigger_PartialAdmissionIsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	workflows, err := workflow.New(workflow.Config{
		Default: workflow.Default("REUSE", "master", ""),
		Logger:  logger,
	})
	if err != nil {
		t.Fatal(err)
	}
	sup := supervisor.New(supervisor.Config{Store: repo.NewMemoryRunRepo(), Grouper: workflows, Logger: logger})

	h := NewHandler(Config{
		Runs:      &failingRuns{Supervisor: sup, failWorkflow: "second"},
		Workflows: twoWorkflows{},
		Logger:    logger,
	})
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	body, _ := json.Marshal(TriggerRequest{Event: domain.EventPush, Ref: "master"})
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/triggers", bytes.NewReader(body)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	admitted, err := sup.List(context.Background(), repo.RunFilter{Workflow: "first"})
	if err != nil || len(admitted) != 1 {
		t.Fatalf("first workflow should keep its run: %v %v", admitted, err)
	}
	logs := buf.String()
	if !strings.Contains(logs, "trigger partially admitted") || !strings.Contains(logs, admitted[0].ID.String()) {
		t.Errorf("admitted run ids should be logged, got %s", logs)
	}
}

// twoWorkflows — источник, где trigger подходит двум workflow.
type twoWorkflows struct{}

func (twoWorkflows) Get(name string) (*domain.Workflow, error) {
	return nil, workflow.ErrWorkflowNotFound
}

func (twoWorkflows) List() []*domain.Workflow { return nil }

func (twoWorkflows) Match(domain.Trigger) []*domain.Workflow {
	return []*domain.Workflow{
		workflow.Default("first", "master", ""),
		workflow.Default("second", "master", ""),
	}
}
