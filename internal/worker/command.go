package worker

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/shaiso/lintgate/internal/domain"
)

// maxOutput — сколько последних байт вывода команды сохранять в StepResult.
const maxOutput = 4096

// Коды выхода sh: команда не найдена или не исполняемая.
const (
	exitNotExecutable = 126
	exitNotFound      = 127
)

// CommandRunner запускает внешний процесс.
//
// exitCode = -1 и err != nil — процесс не запустился или был прерван.
// Ненулевой exitCode при err == nil — процесс отработал и вернул ошибку.
type CommandRunner interface {
	Run(ctx context.Context, dir, name string, args ...string) (output []byte, exitCode int, err error)
}

// ExecRunner — CommandRunner поверх os/exec.
type ExecRunner struct{}

// Run реализует CommandRunner.
func (ExecRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.WaitDelay = 5 * time.Second

	out, err := cmd.CombinedOutput()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return out, -1, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return out, exitErr.ExitCode(), nil
	}
	if err != nil {
		return out, -1, fmt.Errorf("%w: %v", ErrCommandNotStarted, err)
	}
	return out, 0, nil
}

// CommandExecutor выполняет шаг command через sh -c в рабочем каталоге.
//
// Коды 126 и 127 от shell означают, что программа не запустилась:
// шаг завершается ошибкой ErrCommandNotStarted.
type CommandExecutor struct {
	Runner CommandRunner

	// Shell — интерпретатор (default: sh).
	Shell string
}

// Execute реализует Executor.
func (e *CommandExecutor) Execute(ctx context.Context, job *Job, step domain.StepDef) (domain.StepResult, error) {
	shell := e.Shell
	if shell == "" {
		shell = "sh"
	}

	res := domain.StepResult{Name: step.Name, Kind: step.Kind, StartedAt: time.Now()}
	out, code, err := e.Runner.Run(ctx, job.Dir, shell, "-c", step.Run)
	res.FinishedAt = time.Now()
	res.ExitCode = code
	res.Output = tail(out)

	switch {
	case err != nil:
		res.Status = domain.StepStatusFailed
		res.Error = err.Error()
		return res, err
	case code == exitNotExecutable || code == exitNotFound:
		err = fmt.Errorf("%w: %s: exit status %d", ErrCommandNotStarted, step.Name, code)
		res.Status = domain.StepStatusFailed
		res.Error = err.Error()
		return res, err
	case code != 0:
		res.Status = domain.StepStatusFailed
		res.Error = fmt.Sprintf("exit status %d", code)
	default:
		res.Status = domain.StepStatusSucceeded
	}
	return res, nil
}

// CheckoutExecutor получает снимок дерева на коммите run'а:
// git init + fetch --depth=1 + checkout --detach.
type CheckoutExecutor struct {
	Runner  CommandRunner
	RepoURL string
}

// Execute реализует Executor.
// Любой сбой checkout — инфраструктурный: линтер не запускался.
func (e *CheckoutExecutor) Execute(ctx context.Context, job *Job, step domain.StepDef) (domain.StepResult, error) {
	res := domain.StepResult{Name: step.Name, Kind: step.Kind, StartedAt: time.Now()}

	repoURL := e.RepoURL
	if r := step.With["repository"]; r != "" {
		repoURL = r
	}
	if repoURL == "" {
		res.FinishedAt = time.Now()
		res.Status = domain.StepStatusFailed
		res.ExitCode = -1
		res.Error = ErrNoRepository.Error()
		return res, ErrNoRepository
	}

	target := job.Run.SHA
	if target == "" {
		target = job.Run.Ref
	}

	commands := [][]string{
		{"init", "--quiet"},
		{"fetch", "--quiet", "--depth=1", repoURL, target},
		{"checkout", "--quiet", "--detach", "FETCH_HEAD"},
	}

	var output strings.Builder
	for _, args := range commands {
		out, code, err := e.Runner.Run(ctx, job.Dir, "git", args...)
		output.Write(out)
		res.ExitCode = code

		if err == nil && code != 0 {
			err = fmt.Errorf("%w: git %s: exit status %d", ErrCheckoutFailed, args[0], code)
		}
		if err != nil {
			res.FinishedAt = time.Now()
			res.Status = domain.StepStatusFailed
			res.Error = err.Error()
			res.Output = tail([]byte(output.String()))
			return res, err
		}
	}

	res.FinishedAt = time.Now()
	res.Status = domain.StepStatusSucceeded
	res.Output = tail([]byte(output.String()))
	return res, nil
}

// tail возвращает последние maxOutput байт вывода.
func tail(out []byte) string {
	if len(out) > maxOutput {
		out = out[len(out)-maxOutput:]
	}
	return string(out)
}
