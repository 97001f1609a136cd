package workflow

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shaiso/lintgate/internal/domain"
)

// exprPattern находит подстановки ${{ ... }}.
var exprPattern = regexp.MustCompile(`\$\{\{(.*?)\}\}`)

// Render вычисляет шаблон вида "${{ github.workflow }}-${{ github.ref }}".
//
// Поддерживаемое подмножество выражений:
//   - контекстные переменные: github.workflow, github.ref, ...
//   - строковые литералы в одинарных кавычках: 'main'
//   - оператор ||: первое непустое значение
//
// Неизвестная переменная вычисляется в пустую строку.
func Render(tmpl string, vars map[string]string) (string, error) {
	var firstErr error

	out := exprPattern.ReplaceAllStringFunc(tmpl, func(m string) string {
		expr := exprPattern.FindStringSubmatch(m)[1]
		val, err := evalExpr(expr, vars)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		return val
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Vars возвращает контекст github.* для trigger'а.
func Vars(workflow string, t domain.Trigger) map[string]string {
	vars := map[string]string{
		"github.workflow":   workflow,
		"github.ref":        t.Ref,
		"github.ref_name":   domain.BranchName(t.Ref),
		"github.event_name": string(t.Event),
		"github.sha":        t.SHA,
	}
	if t.Event == domain.EventPullRequest {
		vars["github.head_ref"] = t.Ref
		vars["github.base_ref"] = t.BaseRef
	}
	return vars
}

// evalExpr вычисляет "a || 'b' || c".
func evalExpr(expr string, vars map[string]string) (string, error) {
	operands, err := splitOr(expr)
	if err != nil {
		return "", err
	}
	for _, op := range operands {
		val, err := evalOperand(op, vars)
		if err != nil {
			return "", err
		}
		if val != "" {
			return val, nil
		}
	}
	return "", nil
}

// splitOr делит выражение по || вне строковых литералов.
func splitOr(expr string) ([]string, error) {
	var (
		parts   []string
		current strings.Builder
		inQuote bool
	)

	for i := 0; i < len(expr); i++ {
		c := expr[i]
		switch {
		case c == '\'':
			inQuote = !inQuote
			current.WriteByte(c)
		case !inQuote && c == '|' && i+1 < len(expr) && expr[i+1] == '|':
			parts = append(parts, current.String())
			current.Reset()
			i++
		default:
			current.WriteByte(c)
		}
	}
	if inQuote {
		return nil, fmt.Errorf("%w: unterminated string in %q", ErrUnsupportedExpression, expr)
	}
	parts = append(parts, current.String())
	return parts, nil
}

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_\-]*(\.[A-Za-z_][A-Za-z0-9_\-]*)*$`)

func evalOperand(op string, vars map[string]string) (string, error) {
	op = strings.TrimSpace(op)
	if op == "" {
		return "", fmt.Errorf("%w: empty operand", ErrUnsupportedExpression)
	}

	if strings.HasPrefix(op, "'") {
		if len(op) < 2 || !strings.HasSuffix(op, "'") {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedExpression, op)
		}
		body := op[1 : len(op)-1]
		// '' внутри литерала — экранированная кавычка
		if strings.Contains(strings.ReplaceAll(body, "''", ""), "'") {
			return "", fmt.Errorf("%w: %q", ErrUnsupportedExpression, op)
		}
		return strings.ReplaceAll(body, "''", "'"), nil
	}

	if !identPattern.MatchString(op) {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExpression, op)
	}
	return vars[op], nil
}
