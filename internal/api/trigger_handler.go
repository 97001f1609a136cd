package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/shaiso/lintgate/internal/domain"
	"github.com/shaiso/lintgate/internal/telemetry"
	"github.com/shaiso/lintgate/internal/workflow"
)

// maxWebhookBody — предел размера тела webhook.
const maxWebhookBody = 5 << 20

// Действия pull_request, запускающие проверку.
var pullRequestActions = map[string]bool{
	"opened":      true,
	"synchronize": true,
	"reopened":    true,
}

// CreateTrigger допускает trigger во все подходящие workflow.
// POST /api/v1/triggers
func (h *Handler) CreateTrigger(w http.ResponseWriter, r *http.Request) {
	var req TriggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	t := req.ToDomain()
	if err := t.Validate(); err != nil {
		BadRequest(w, err.Error())
		return
	}

	var workflows []*domain.Workflow
	if req.Workflow != "" {
		wf, err := h.workflows.Get(req.Workflow)
		if HandleError(w, telemetry.FromContext(r.Context()), err) {
			return
		}
		if workflow.Matches(wf, t) {
			workflows = []*domain.Workflow{wf}
		}
	} else {
		workflows = h.workflows.Match(t)
	}

	h.admit(r.Context(), w, t, workflows)
}

// admit допускает trigger в каждый workflow. 201 — есть допущенные runs,
// 200 с пустым списком — событие не интересно ни одному workflow.
//
// Допуск в разные workflow не атомарен: если очередной Admit упал,
// уже допущенные runs остаются и попадают в лог вместе с ошибкой.
func (h *Handler) admit(ctx context.Context, w http.ResponseWriter, t domain.Trigger, workflows []*domain.Workflow) {
	logger := telemetry.FromContext(ctx)
	resp := TriggerResponse{Runs: make([]RunResponse, 0, len(workflows))}

	for _, wf := range workflows {
		t.Workflow = wf.Name
		run, err := h.runs.Admit(ctx, t)
		if err != nil && len(resp.Runs) > 0 {
			admitted := make([]string, len(resp.Runs))
			for i, r := range resp.Runs {
				admitted[i] = r.ID.String()
			}
			logger.Error("trigger partially admitted",
				"failed_workflow", wf.Name,
				"admitted_runs", admitted,
				"error", err,
			)
		}
		if HandleError(w, logger, err) {
			return
		}
		resp.Runs = append(resp.Runs, RunFromDomain(run))
	}

	if len(resp.Runs) == 0 {
		logger.Debug("trigger matched no workflow", "event", t.Event, "ref", t.Ref)
		Success(w, resp)
		return
	}
	Created(w, resp)
}

// GitHubWebhook принимает события push и pull_request от GitHub.
// POST /webhooks/github
func (h *Handler) GitHubWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		BadRequest(w, "failed to read body")
		return
	}

	if !h.verifySignature(r.Header.Get("X-Hub-Signature-256"), body) {
		Unauthorized(w, "invalid signature")
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	t, ok, err := webhookTrigger(event, body)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if !ok {
		telemetry.FromContext(r.Context()).Debug("webhook ignored", "event", event, "delivery", r.Header.Get("X-GitHub-Delivery"))
		NoContent(w)
		return
	}

	h.admit(r.Context(), w, t, h.workflows.Match(t))
}

// webhookTrigger строит trigger из payload. ok=false — событие не запускает проверку.
func webhookTrigger(event string, body []byte) (domain.Trigger, bool, error) {
	switch domain.EventKind(event) {
	case domain.EventPush:
		var p pushEvent
		if err := json.Unmarshal(body, &p); err != nil {
			return domain.Trigger{}, false, errInvalidPayload
		}
		if p.Deleted {
			return domain.Trigger{}, false, nil
		}
		return domain.Trigger{Event: domain.EventPush, Ref: p.Ref, SHA: p.After}, true, nil

	case domain.EventPullRequest:
		var p pullRequestEvent
		if err := json.Unmarshal(body, &p); err != nil {
			return domain.Trigger{}, false, errInvalidPayload
		}
		if !pullRequestActions[p.Action] {
			return domain.Trigger{}, false, nil
		}
		return domain.Trigger{
			Event:   domain.EventPullRequest,
			Ref:     p.PullRequest.Head.Ref,
			BaseRef: p.PullRequest.Base.Ref,
			SHA:     p.PullRequest.Head.SHA,
			Action:  p.Action,
		}, true, nil

	default:
		// ping и прочие события
		return domain.Trigger{}, false, nil
	}
}

// verifySignature проверяет HMAC-SHA256 тела. Без секрета проверка выключена.
func (h *Handler) verifySignature(header string, body []byte) bool {
	if len(h.webhookSecret) == 0 {
		return true
	}

	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, h.webhookSecret)
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}
