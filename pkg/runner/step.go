package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/opnlabs/gantry/pkg/models"
)

// StepRunner executes single steps inside one environment, enforcing the
// per-step timeout and capturing combined output. Nonzero exits, timeouts
// and cancellations are all recorded in the StepResult, never returned as
// errors; the job executor decides what halts the job.
type StepRunner struct {
	env     Environment
	timeout time.Duration
	stdout  io.Writer
	stderr  io.Writer
}

// NewStepRunner wires a runner to an environment. The writers receive live
// output in addition to the per-step capture; either may be nil.
func NewStepRunner(env Environment, timeout time.Duration, stdout, stderr io.Writer) *StepRunner {
	return &StepRunner{
		env:     env,
		timeout: timeout,
		stdout:  stdout,
		stderr:  stderr,
	}
}

func (r *StepRunner) Run(ctx context.Context, step models.Step) models.StepResult {
	var captured bytes.Buffer

	stdout := io.Writer(&captured)
	if r.stdout != nil {
		stdout = io.MultiWriter(&captured, r.stdout)
	}
	stderr := io.Writer(&captured)
	if r.stderr != nil {
		stderr = io.MultiWriter(&captured, r.stderr)
	}

	stepCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	code, err := r.env.Exec(stepCtx, step, stdout, stderr)
	duration := time.Since(start)

	switch {
	case errors.Is(ctx.Err(), context.Canceled):
		code = models.CodeCancelled
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded):
		code = models.CodeTimeout
	case err != nil:
		fmt.Fprintln(&captured, err)
		code = models.CodeExecError
	}

	return models.StepResult{
		Name:     step.Name,
		ExitCode: code,
		Duration: duration,
		Output:   captured.String(),
	}
}
