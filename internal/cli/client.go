package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// StepResult — результат шага job.
type StepResult struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
	ExitCode int    `json:"exit_code"`
	Error    string `json:"error,omitempty"`
	Output   string `json:"output,omitempty"`
}

// RunResponse — run из API.
type RunResponse struct {
	ID           string       `json:"id"`
	Workflow     string       `json:"workflow"`
	GroupKey     string       `json:"group_key"`
	Event        string       `json:"event"`
	Ref          string       `json:"ref"`
	BaseRef      string       `json:"base_ref,omitempty"`
	SHA          string       `json:"sha,omitempty"`
	Status       string       `json:"status"`
	Outcome      string       `json:"outcome,omitempty"`
	FailureKind  string       `json:"failure_kind,omitempty"`
	Error        string       `json:"error,omitempty"`
	SupersededBy string       `json:"superseded_by,omitempty"`
	Steps        []StepResult `json:"steps,omitempty"`
	CreatedAt    string       `json:"created_at"`
	StartedAt    string       `json:"started_at,omitempty"`
	FinishedAt   string       `json:"finished_at,omitempty"`
}

// Result возвращает итог run одной строкой: статус и, для COMPLETED, результат.
func (r RunResponse) Result() string {
	switch {
	case r.FailureKind != "":
		return r.Status + "(" + r.Outcome + ", " + r.FailureKind + ")"
	case r.Outcome != "":
		return r.Status + "(" + r.Outcome + ")"
	default:
		return r.Status
	}
}

// TriggerResponse — runs, допущенные по trigger'у.
type TriggerResponse struct {
	Runs []RunResponse `json:"runs"`
}

// WorkflowResponse — workflow из API.
type WorkflowResponse struct {
	Name             string         `json:"name"`
	Path             string         `json:"path,omitempty"`
	On               map[string]any `json:"on"`
	ConcurrencyGroup string         `json:"concurrency_group"`
	CancelInProgress bool           `json:"cancel_in_progress"`
	Job              string         `json:"job"`
}

// --- Request types ---

// TriggerRequest — допуск trigger'а.
type TriggerRequest struct {
	Event    string `json:"event"`
	Ref      string `json:"ref"`
	BaseRef  string `json:"base_ref,omitempty"`
	SHA      string `json:"sha,omitempty"`
	Action   string `json:"action,omitempty"`
	Workflow string `json:"workflow,omitempty"`
}

// CompleteRunRequest — результат job.
type CompleteRunRequest struct {
	Outcome     string `json:"outcome"`
	FailureKind string `json:"failure_kind,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Status   string
	Workflow string
	Group    string
	Active   bool
	Limit    int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// APIError — ошибка, возвращённая API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для lintgate API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Triggers ---

// Trigger отправляет trigger и возвращает допущенные runs.
func (c *Client) Trigger(req TriggerRequest) (*TriggerResponse, error) {
	var resp TriggerResponse
	err := c.post("/api/v1/triggers", req, &resp)
	return &resp, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Workflow != "" {
		params.Set("workflow", opts.Workflow)
	}
	if opts.Group != "" {
		params.Set("group", opts.Group)
	}
	if opts.Active {
		params.Set("active", "true")
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// ActiveRun возвращает активный run группы.
func (c *Client) ActiveRun(group string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/active?"+url.Values{"group": {group}}.Encode(), &run)
	return &run, err
}

// StartRun переводит run в RUNNING.
func (c *Client) StartRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+id+"/start", nil, &run)
	return &run, err
}

// CompleteRun записывает результат job.
func (c *Client) CompleteRun(id string, req CompleteRunRequest) (*RunResponse, error) {
	var run RunResponse
	err := c.post("/api/v1/runs/"+id+"/complete", req, &run)
	return &run, err
}

// --- Workflows ---

// ListWorkflows возвращает workflow, загруженные сервером.
func (c *Client) ListWorkflows() ([]WorkflowResponse, error) {
	var workflows []WorkflowResponse
	err := c.list("/api/v1/workflows", nil, &workflows)
	return workflows, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: http.StatusText(resp.StatusCode)}
	}

	return &APIError{Status: resp.StatusCode, Code: er.Error.Code, Message: er.Error.Message}
}
