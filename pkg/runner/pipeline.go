package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/opnlabs/gantry/pkg/artifacts"
	"github.com/opnlabs/gantry/pkg/models"
	"github.com/opnlabs/gantry/pkg/store"
	"github.com/opnlabs/gantry/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// PipelineOptions configure one pipeline run.
type PipelineOptions struct {
	// MaxParallel bounds concurrent jobs. Zero means unbounded.
	MaxParallel int
	// StepTimeout applies to every step. Zero disables it.
	StepTimeout time.Duration
	// PipelineTimeout bounds the whole run. It composes with StepTimeout
	// as the earlier of the two deadlines. Zero disables it.
	PipelineTimeout time.Duration
	// Stdout and Stderr receive live job output, prefixed per job.
	Stdout io.Writer
	Stderr io.Writer
	// Artifacts, when set, collects declared job artifacts.
	Artifacts artifacts.Manager
}

// PipelineRunner fans independent jobs out to concurrent job executors and
// gathers their terminal results. A failing job never cancels its siblings;
// only an external cancel or the pipeline deadline stops jobs early.
type PipelineRunner struct {
	jobs    []models.Job
	factory EnvFactory
	opts    PipelineOptions
}

func NewPipelineRunner(jobs []models.Job, factory EnvFactory, opts PipelineOptions) *PipelineRunner {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &PipelineRunner{
		jobs:    jobs,
		factory: factory,
		opts:    opts,
	}
}

// Run executes every job to a terminal state and returns the results keyed
// by job name. Each job writes its own key exactly once. The error reports
// internal scheduling faults only, never job failures.
func (p *PipelineRunner) Run(ctx context.Context) (map[string]models.JobResult, error) {
	if p.opts.PipelineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.PipelineTimeout)
		defer cancel()
	}

	results := store.NewMemStore()

	var eg errgroup.Group
	if p.opts.MaxParallel > 0 {
		eg.SetLimit(p.opts.MaxParallel)
	}

	for _, job := range p.jobs {
		job := job
		eg.Go(func() error {
			log.Info("starting job", "job", job.Name)

			executor := NewJobExecutor(job, p.factory, JobOptions{
				StepTimeout: p.opts.StepTimeout,
				Stdout:      utils.NewPrefixWriter(job.Name, p.opts.Stdout, true),
				Stderr:      utils.NewPrefixWriter(job.Name, p.opts.Stderr, false),
				Artifacts:   p.opts.Artifacts,
			})
			result := executor.Run(ctx)

			log.Info("job finished", "job", job.Name, "status", result.Status)
			if err := results.Set(job.Name, result); err != nil {
				return fmt.Errorf("record result for job %s: %w", job.Name, err)
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]models.JobResult, len(p.jobs))
	for _, job := range p.jobs {
		v, err := results.Get(job.Name)
		if err != nil {
			// Never scheduled, e.g. the run was aborted first.
			out[job.Name] = models.JobResult{Name: job.Name, Status: models.StatusSkipped}
			continue
		}
		out[job.Name] = v.(models.JobResult)
	}
	return out, nil
}
