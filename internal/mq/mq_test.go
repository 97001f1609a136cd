package mq

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestParsePayload_RunCancelled(t *testing.T) {
	next := uuid.New()
	msg := NewMessage(MessageTypeRunCancelled, RunCancelledPayload{
		RunID:        uuid.New(),
		GroupKey:     "REUSE:main",
		SupersededBy: &next,
	})

	// Как после доставки: payload приходит как map
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var delivered Message
	if err := json.Unmarshal(body, &delivered); err != nil {
		t.Fatal(err)
	}
	if delivered.Type != MessageTypeRunCancelled {
		t.Fatalf("unexpected type %s", delivered.Type)
	}

	payload, err := ParsePayload[RunCancelledPayload](&delivered)
	if err != nil {
		t.Fatalf("ParsePayload: %v", err)
	}
	if payload.GroupKey != "REUSE:main" || payload.SupersededBy == nil || *payload.SupersededBy != next {
		t.Errorf("unexpected payload %+v", payload)
	}
}

func TestNewMessage_UniqueIDs(t *testing.T) {
	a := NewMessage(MessageTypeRunPending, RunPendingPayload{})
	b := NewMessage(MessageTypeRunPending, RunPendingPayload{})
	if a.ID == b.ID {
		t.Error("message IDs must be unique")
	}
	if a.Timestamp.IsZero() {
		t.Error("timestamp must be set")
	}
}

func TestTopologyInfo(t *testing.T) {
	info := TopologyInfo()
	for _, name := range []string{string(ExchangeRuns), string(ExchangeCancel), string(QueueRunsPending)} {
		if !strings.Contains(info, name) {
			t.Errorf("topology info should mention %s", name)
		}
	}
}
