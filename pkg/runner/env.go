package runner

import (
	"context"
	"fmt"
	"io"

	"github.com/opnlabs/gantry/pkg/models"
)

// ProvisionError marks a toolchain environment that could not be set up.
// It fails the owning job only; sibling jobs keep running.
type ProvisionError struct {
	Job string
	Err error
}

func (e *ProvisionError) Error() string {
	return fmt.Sprintf("provision environment for job %s: %v", e.Job, e.Err)
}

func (e *ProvisionError) Unwrap() error {
	return e.Err
}

// Environment is a fresh, job-exclusive execution context. Environments are
// never shared between jobs and must be closed exactly once.
type Environment interface {
	// ID uniquely names the environment.
	ID() string

	// Exec runs one step inside the environment, streaming its combined
	// output to the given writers, and returns the exit code. A non-nil
	// error means the invocation could not run at all, not that it exited
	// nonzero.
	Exec(ctx context.Context, step models.Step, stdout, stderr io.Writer) (int, error)

	// Export copies a path from the environment's working tree into the
	// dst directory on the host.
	Export(ctx context.Context, path, dst string) error

	// Close releases the environment and everything it holds.
	Close() error
}

// EnvFactory provisions one environment per job.
type EnvFactory interface {
	Provision(ctx context.Context, job models.Job) (Environment, error)
}

// flatten turns the job's variable list into KEY=VALUE form.
func flatten(vars []models.Variable) ([]string, error) {
	variables := make([]string, 0, len(vars))
	for _, v := range vars {
		if len(v) != 1 {
			return nil, fmt.Errorf("variables should be defined as a key value pair")
		}
		for k, val := range v {
			variables = append(variables, fmt.Sprintf("%s=%s", k, val))
		}
	}
	return variables, nil
}
