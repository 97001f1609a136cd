package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// ErrUnknownEvent — trigger с неподдерживаемым типом события.
var ErrUnknownEvent = errors.New("unknown trigger event")

// EventKind — тип события, порождающего trigger.
type EventKind string

const (
	EventPush        EventKind = "push"
	EventPullRequest EventKind = "pull_request"
)

// Valid проверяет, что событие распознаётся supervisor'ом.
func (e EventKind) Valid() bool {
	return e == EventPush || e == EventPullRequest
}

// Trigger — внешнее событие (push или обновление pull request).
//
// Trigger неизменяем и потребляется один раз при Admit.
type Trigger struct {
	// Event — push или pull_request.
	Event EventKind `json:"event"`

	// Ref — ссылка на ветку, по которой строится группа конкурентности.
	// Для pull_request — head ref.
	Ref string `json:"ref"`

	// BaseRef — целевая ветка pull request (только для фильтров workflow).
	BaseRef string `json:"base_ref,omitempty"`

	// SHA — коммит для checkout. Пустой — берётся голова Ref.
	SHA string `json:"sha,omitempty"`

	// Workflow — идентичность workflow (часть ключа группы).
	Workflow string `json:"workflow"`

	// Action — действие pull request (opened, synchronize, reopened).
	// Пустое — фильтр types не применяется.
	Action string `json:"action,omitempty"`
}

// Validate проверяет тип события.
// Пустой или некорректный Ref не ошибка: такой trigger получает
// собственную вырожденную группу.
func (t Trigger) Validate() error {
	if !t.Event.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, t.Event)
	}
	return nil
}

// GroupSeparator разделяет workflow и ref в ключе группы.
const GroupSeparator = ":"

// GroupKey вычисляет ключ группы конкурентности: "<workflow>:<ref>".
//
// Сравнение ref — точное совпадение строк. Корректный ref не содержит
// ':', поэтому ключ однозначно делится по последнему ':' и разные пары
// (workflow, ref) не совпадают. Для пустого или некорректного
// ref ключ включает runID, поэтому группа состоит из одного run.
func GroupKey(workflow, ref string, runID uuid.UUID) string {
	if !ValidRef(ref) {
		return DegenerateGroupKey(workflow, runID)
	}
	return workflow + GroupSeparator + ref
}

// DegenerateGroupKey — ключ группы из одного run: "<workflow>:~<run id>".
// '~' в ref запрещён, так что ключ не пересекается с GroupKey.
func DegenerateGroupKey(workflow string, runID uuid.UUID) string {
	return workflow + GroupSeparator + "~" + runID.String()
}

// ValidRef проверяет ref по правилам git check-ref-format.
func ValidRef(ref string) bool {
	if ref == "" || ref == "@" {
		return false
	}
	if strings.HasPrefix(ref, "/") || strings.HasSuffix(ref, "/") ||
		strings.HasSuffix(ref, ".") || strings.HasSuffix(ref, ".lock") {
		return false
	}
	if strings.Contains(ref, "..") || strings.Contains(ref, "//") || strings.Contains(ref, "@{") {
		return false
	}
	for _, r := range ref {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
		switch r {
		case '~', '^', ':', '?', '*', '[', '\\':
			return false
		}
	}
	for _, part := range strings.Split(ref, "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	return true
}

// BranchName возвращает имя ветки без префикса refs/heads/.
func BranchName(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
