// Package report turns per-job results into one pipeline verdict and
// renders it for humans and machines.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/opnlabs/gantry/pkg/models"
)

// Aggregate combines per-job results into a pipeline verdict. Jobs appear
// in declaration order regardless of completion order; jobs with no result
// are reported as skipped. The overall status is failed iff any job failed,
// so re-aggregating the same results always yields the same verdict.
func Aggregate(jobs []models.Job, results map[string]models.JobResult) models.PipelineResult {
	out := models.PipelineResult{
		Status: models.StatusPassed,
		Jobs:   make([]models.JobResult, 0, len(jobs)),
	}

	for _, job := range jobs {
		result, ok := results[job.Name]
		if !ok {
			result = models.JobResult{Name: job.Name, Status: models.StatusSkipped}
		}
		out.Jobs = append(out.Jobs, result)

		if result.Status == models.StatusFailed {
			out.Status = models.StatusFailed
		}
	}

	return out
}

// Render writes a human-readable report. Failed jobs list their first
// failing step with its captured output.
func Render(w io.Writer, result models.PipelineResult) {
	fmt.Fprintf(w, "pipeline: %s\n", result.Status)

	for _, job := range result.Jobs {
		fmt.Fprintf(w, "  %s %s\n", statusMark(job.Status), job.Name)

		if job.Status != models.StatusFailed {
			continue
		}

		if job.FirstFailure != nil {
			step := job.Steps[*job.FirstFailure]
			fmt.Fprintf(w, "    step %q exited with code %d after %s\n", step.Name, step.ExitCode, step.Duration)
			for _, line := range strings.Split(strings.TrimRight(step.Output, "\n"), "\n") {
				fmt.Fprintf(w, "    > %s\n", line)
			}
		}
		if job.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", job.Error)
		}
	}
}

func statusMark(s models.Status) string {
	switch s {
	case models.StatusPassed:
		return "✔"
	case models.StatusFailed:
		return "✗"
	default:
		return "-"
	}
}
