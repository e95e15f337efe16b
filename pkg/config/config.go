// Package config loads and validates the declarative pipeline document.
package config

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/opnlabs/gantry/pkg/models"
	"gopkg.in/yaml.v3"
)

// ConfigError marks a malformed pipeline document. It is fatal and aborts
// the run before any job is scheduled.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Duration wraps time.Duration so values like "10m" can be used in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Checkout names the source the checkout provider fetches before any job.
type Checkout struct {
	Remote string `yaml:"remote"`
	Ref    string `yaml:"ref"`
}

// Settings holds pipeline-wide knobs.
type Settings struct {
	MaxParallel     int      `yaml:"max_parallel" validate:"min=0"`
	StepTimeout     Duration `yaml:"step_timeout"`
	PipelineTimeout Duration `yaml:"pipeline_timeout"`
	StrictUpload    bool     `yaml:"strict_upload"`
	ReportDir       string   `yaml:"report_dir"`
	ReportURL       string   `yaml:"report_url" validate:"omitempty,url"`
}

// Pipeline is the full declarative document: triggers, settings and jobs.
type Pipeline struct {
	Triggers []models.TriggerRule `yaml:"triggers" validate:"required,min=1,dive"`
	Checkout *Checkout            `yaml:"checkout"`
	Settings Settings             `yaml:"settings"`
	Jobs     []models.Job         `yaml:"jobs" validate:"required,min=1,dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads, expands and validates the pipeline document at the given
// path. Every failure is returned as a *ConfigError.
func Load(configPath string) (*Pipeline, error) {
	contents, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return nil, &ConfigError{Path: configPath, Err: err}
	}

	var pipeline Pipeline
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(contents))), &pipeline); err != nil {
		return nil, &ConfigError{Path: configPath, Err: err}
	}

	if err := validate.Struct(pipeline); err != nil {
		return nil, &ConfigError{Path: configPath, Err: err}
	}

	if err := check(&pipeline); err != nil {
		return nil, &ConfigError{Path: configPath, Err: err}
	}

	applyDefaults(&pipeline)
	return &pipeline, nil
}

// check enforces the rules the struct tags cannot express.
func check(p *Pipeline) error {
	for _, rule := range p.Triggers {
		for _, pattern := range rule.Branches {
			if _, err := path.Match(pattern, "branch"); err != nil {
				return fmt.Errorf("trigger %s: malformed branch pattern %q: %w", rule.Kind, pattern, err)
			}
		}
	}

	seen := make(map[string]bool)
	for _, job := range p.Jobs {
		if seen[job.Name] {
			return fmt.Errorf("duplicate job name: %s", job.Name)
		}
		seen[job.Name] = true

		for _, step := range job.Steps {
			if step.Run == "" && step.Command == "" {
				return fmt.Errorf("job %s step %s: needs either run or command", job.Name, step.Name)
			}
			if step.Run != "" && step.Command != "" {
				return fmt.Errorf("job %s step %s: run and command are mutually exclusive", job.Name, step.Name)
			}
		}

		for _, v := range job.Variables {
			if len(v) != 1 {
				return fmt.Errorf("job %s: variables should be defined as a key value pair", job.Name)
			}
		}
	}

	if p.Checkout != nil && p.Checkout.Remote == "" {
		return fmt.Errorf("checkout: remote is required")
	}

	return nil
}

func applyDefaults(p *Pipeline) {
	if p.Settings.StepTimeout == 0 {
		p.Settings.StepTimeout = Duration(10 * time.Minute)
	}
	if p.Settings.ReportDir == "" {
		p.Settings.ReportDir = ".reports"
	}
}
