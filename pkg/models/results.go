package models

import "time"

// Status is the terminal state of a job or of the whole pipeline.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Reserved exit codes recorded in a StepResult instead of an error.
const (
	// CodeTimeout marks a step that exceeded its timeout and was killed.
	CodeTimeout = 124
	// CodeCancelled marks a step interrupted by a pipeline cancel signal.
	CodeCancelled = 130
	// CodeExecError marks an invocation that could not be started at all.
	CodeExecError = 126
)

// StepResult captures the outcome of one step invocation.
type StepResult struct {
	Name     string        `json:"name"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Output   string        `json:"output"`
}

// JobResult is the terminal record of one job. Steps holds results only for
// the steps that actually ran. FirstFailure is nil when every step passed.
// Error carries failures outside any step, such as a failed provision.
type JobResult struct {
	Name         string       `json:"name"`
	Status       Status       `json:"status"`
	Steps        []StepResult `json:"steps"`
	FirstFailure *int         `json:"first_failure_index,omitempty"`
	Error        string       `json:"error,omitempty"`
}

// PipelineResult is the aggregated verdict. Jobs appear in declaration
// order regardless of completion order.
type PipelineResult struct {
	Status Status      `json:"status"`
	Jobs   []JobResult `json:"jobs"`
}
