package workflow

import (
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/shaiso/lintgate/internal/domain"
)

// Matches возвращает true, если trigger проходит фильтры on.<event> workflow.
//
// push фильтруется по ветке Ref, pull_request — по целевой ветке BaseRef
// и типу действия.
func Matches(wf *domain.Workflow, t domain.Trigger) bool {
	filter, ok := wf.On[t.Event]
	if !ok {
		return false
	}

	switch t.Event {
	case domain.EventPullRequest:
		if !matchesTypes(filter.Types, t.Action) {
			return false
		}
		return matchesBranchFilters(filter.Branches, filter.BranchesIgnore, t.BaseRef)
	case domain.EventPush:
		branch, tag := splitRef(t.Ref)
		if tag != "" {
			// Теги проходят только при отсутствии фильтров веток
			return len(filter.Branches) == 0 && len(filter.BranchesIgnore) == 0
		}
		return matchesBranchFilters(filter.Branches, filter.BranchesIgnore, branch)
	default:
		return false
	}
}

// matchesTypes: пустое действие (trigger из API) фильтр не отсекает.
func matchesTypes(types []string, action string) bool {
	if len(types) == 0 || action == "" {
		return true
	}
	for _, t := range types {
		if strings.EqualFold(strings.TrimSpace(t), action) {
			return true
		}
	}
	return false
}

func matchesBranchFilters(includes, excludes []string, branch string) bool {
	if len(includes) == 0 && len(excludes) == 0 {
		return true
	}
	if branch == "" {
		return false
	}

	if len(includes) > 0 && !matchesBranchPatternList(includes, branch) {
		return false
	}
	if len(excludes) > 0 && matchesBranchPatternList(excludes, branch) {
		return false
	}
	return true
}

func matchesPatternList(patterns []string, candidate string) bool {
	for _, pattern := range patterns {
		norm := strings.TrimSpace(pattern)
		if norm == "" {
			continue
		}
		matched, err := doublestar.Match(norm, candidate)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// matchesBranchPatternList сравнивает и короткое имя, и refs/heads/<имя>:
// в фильтрах встречаются обе формы.
func matchesBranchPatternList(patterns []string, branch string) bool {
	branch = strings.TrimPrefix(branch, "refs/heads/")
	candidates := []string{branch, "refs/heads/" + branch}

	for _, candidate := range candidates {
		if matchesPatternList(patterns, candidate) {
			return true
		}
	}
	return false
}

func splitRef(ref string) (branch string, tag string) {
	if strings.HasPrefix(ref, "refs/heads/") {
		return strings.TrimPrefix(ref, "refs/heads/"), ""
	}
	if strings.HasPrefix(ref, "refs/tags/") {
		return "", strings.TrimPrefix(ref, "refs/tags/")
	}
	return strings.TrimSpace(ref), ""
}
