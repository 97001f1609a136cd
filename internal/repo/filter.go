package repo

import "github.com/shaiso/lintgate/internal/domain"

// RunFilter — параметры фильтрации runs.
type RunFilter struct {
	Status   domain.RunStatus
	Workflow string
	GroupKey string

	// ActiveOnly — только PENDING и RUNNING.
	ActiveOnly bool

	Limit  int
	Offset int
}

// DefaultListLimit — лимит List, если не задан.
const DefaultListLimit = 100

func (f RunFilter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

// matches проверяет run против фильтра (для MemoryRunRepo).
func (f RunFilter) matches(r *domain.Run) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Workflow != "" && r.Workflow != f.Workflow {
		return false
	}
	if f.GroupKey != "" && r.GroupKey != f.GroupKey {
		return false
	}
	if f.ActiveOnly && !r.Status.IsActive() {
		return false
	}
	return true
}
