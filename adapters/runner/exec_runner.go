package runner

import (
	"context"
	stderrors "errors"
	"io"
	"os/exec"
	"strings"
	"time"

	"gobandits/domain/arms"
	"gobandits/internal/errors"
	"gobandits/ports"
)

// Exit codes that classify a run
const (
	ExitUninteresting = 0
	ExitInteresting   = 1
)

// ExecRunner runs scripts as child processes.
type ExecRunner struct {
	dir    string
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

var _ ports.ScriptRunner = (*ExecRunner)(nil)

// Option configures an ExecRunner
type Option func(*ExecRunner)

// WithDir runs every command from dir
func WithDir(dir string) Option {
	return func(r *ExecRunner) { r.dir = dir }
}

// WithOutput forwards the child's stdout and stderr
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *ExecRunner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// NewExecRunner creates a runner; child output is discarded unless WithOutput is given
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run splits the command on whitespace, runs it and classifies the exit status:
// 0 is uninteresting, 1 is interesting, anything else only contributes runtime.
func (r *ExecRunner) Run(ctx context.Context, script arms.Script) (arms.Outcome, error) {
	fields := strings.Fields(script.Command)
	if len(fields) == 0 {
		return arms.Outcome{}, errors.RunnerError(script.Name.String(), stderrors.New("empty command"))
	}

	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = r.dir
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	start := r.now()
	err := cmd.Run()
	elapsed := r.now().Sub(start)

	if err != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			return arms.Outcome{}, errors.RunnerError(script.Name.String(), err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return arms.Outcome{}, errors.RunnerError(script.Name.String(), ctxErr)
		}
	}

	return Classify(cmd.ProcessState.ExitCode(), elapsed), nil
}

// Classify turns an exit code and a duration into an outcome.
func Classify(exitCode int, elapsed time.Duration) arms.Outcome {
	outcome := arms.Outcome{Duration: elapsed, ExitCode: exitCode}
	switch exitCode {
	case ExitUninteresting:
		outcome.Uninteresting = 1
	case ExitInteresting:
		outcome.Interesting = 1
	}
	return outcome
}
