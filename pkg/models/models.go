package models

// EventKind is the kind of repository event that may trigger a pipeline.
type EventKind string

const (
	EventPush        EventKind = "push"
	EventPullRequest EventKind = "pull_request"
)

// Event describes one incoming repository event. It is created once per
// invocation and consumed by the trigger evaluator.
type Event struct {
	Kind   EventKind `yaml:"kind" validate:"required,oneof=push pull_request"`
	Branch string    `yaml:"branch" validate:"required"`
}

// TriggerRule maps an event kind to the branch patterns it may run for.
// Patterns match exactly or as path globs, case-sensitive.
type TriggerRule struct {
	Kind     EventKind `yaml:"kind" validate:"required,oneof=push pull_request"`
	Branches []string  `yaml:"branches" validate:"required,min=1,dive,required"`
}

// Variable is a single KEY=VALUE pair in map form.
type Variable map[string]string

// Step is one tool invocation inside a job. Either Run holds an opaque
// shell script, or Command/Args hold a typed invocation executed directly.
type Step struct {
	Name    string   `yaml:"name" validate:"required"`
	Run     string   `yaml:"run"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

// Shell reports whether the step is the shell-script variant.
func (s Step) Shell() bool {
	return s.Run != ""
}

// Job is an independent unit of pipeline work with an ordered step list.
// Image names the toolchain the environment factory provisions for it.
type Job struct {
	Name      string     `yaml:"name" validate:"required"`
	Image     string     `yaml:"image"`
	Variables []Variable `yaml:"variables"`
	Steps     []Step     `yaml:"steps" validate:"required,min=1,dive"`
	Artifacts []string   `yaml:"artifacts"`
}
