package runner

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/opnlabs/gantry/pkg/artifacts"
	"github.com/opnlabs/gantry/pkg/models"
)

// JobOptions configure one job execution.
type JobOptions struct {
	StepTimeout time.Duration
	Stdout      io.Writer
	Stderr      io.Writer
	Artifacts   artifacts.Manager
}

// JobExecutor drives one job through a fresh environment: steps run in
// declared order and the first nonzero exit halts the job. The environment
// is released on every exit path.
type JobExecutor struct {
	job     models.Job
	factory EnvFactory
	opts    JobOptions
}

func NewJobExecutor(job models.Job, factory EnvFactory, opts JobOptions) *JobExecutor {
	return &JobExecutor{
		job:     job,
		factory: factory,
		opts:    opts,
	}
}

func (e *JobExecutor) Run(ctx context.Context) models.JobResult {
	result := models.JobResult{
		Name:   e.job.Name,
		Status: models.StatusPassed,
		Steps:  make([]models.StepResult, 0, len(e.job.Steps)),
	}

	env, err := e.factory.Provision(ctx, e.job)
	if err != nil {
		log.Error("could not provision environment", "job", e.job.Name, "err", err)
		result.Status = models.StatusFailed
		result.Error = err.Error()
		return result
	}
	defer env.Close()

	stepRunner := NewStepRunner(env, e.opts.StepTimeout, e.opts.Stdout, e.opts.Stderr)

	for i, step := range e.job.Steps {
		stepResult := stepRunner.Run(ctx, step)
		result.Steps = append(result.Steps, stepResult)

		if stepResult.ExitCode != 0 {
			failed := i
			result.Status = models.StatusFailed
			result.FirstFailure = &failed
			return result
		}
	}

	if e.opts.Artifacts != nil && len(e.job.Artifacts) > 0 {
		if _, err := e.opts.Artifacts.Collect(ctx, env, e.job.Artifacts); err != nil {
			log.Error("could not collect artifacts", "job", e.job.Name, "err", err)
			result.Status = models.StatusFailed
			result.Error = err.Error()
		}
	}

	return result
}
