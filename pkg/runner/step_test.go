package runner

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/opnlabs/gantry/pkg/models"
)

func localTestEnv(t *testing.T) Environment {
	t.Helper()
	env, err := NewLocalEnvFactory("").Provision(context.Background(), models.Job{Name: "step-test"})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { env.Close() })
	return env
}

func TestStepRunnerCapturesOutput(t *testing.T) {
	var live bytes.Buffer
	stepRunner := NewStepRunner(localTestEnv(t), 0, &live, nil)

	result := stepRunner.Run(context.Background(), models.Step{Name: "Greet", Run: "echo hello"})

	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Output, "hello") {
		t.Errorf("captured output missing step output: %q", result.Output)
	}
	if !strings.Contains(live.String(), "hello") {
		t.Errorf("live writer missing step output: %q", live.String())
	}
	if result.Name != "Greet" {
		t.Errorf("expected step name in result, got %q", result.Name)
	}
}

func TestStepRunnerNonZeroExit(t *testing.T) {
	stepRunner := NewStepRunner(localTestEnv(t), 0, nil, nil)

	result := stepRunner.Run(context.Background(), models.Step{Name: "Fail", Run: "echo broken && exit 3"})

	if result.ExitCode != 3 {
		t.Errorf("expected exit code 3, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Output, "broken") {
		t.Errorf("captured output missing step output: %q", result.Output)
	}
}

func TestStepRunnerTypedCommand(t *testing.T) {
	stepRunner := NewStepRunner(localTestEnv(t), 0, nil, nil)

	result := stepRunner.Run(context.Background(), models.Step{Name: "Typed", Command: "echo", Args: []string{"typed", "task"}})

	if result.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", result.ExitCode)
	}
	if !strings.Contains(result.Output, "typed task") {
		t.Errorf("captured output missing command output: %q", result.Output)
	}
}

func TestStepRunnerTimeout(t *testing.T) {
	stepRunner := NewStepRunner(localTestEnv(t), 100*time.Millisecond, nil, nil)

	start := time.Now()
	result := stepRunner.Run(context.Background(), models.Step{Name: "Sleep", Run: "sleep 10"})

	if result.ExitCode != models.CodeTimeout {
		t.Errorf("expected timeout code %d, got %d", models.CodeTimeout, result.ExitCode)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("timeout did not terminate the step")
	}
}

func TestStepRunnerCancelled(t *testing.T) {
	stepRunner := NewStepRunner(localTestEnv(t), time.Minute, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	result := stepRunner.Run(ctx, models.Step{Name: "Sleep", Run: "sleep 10"})

	if result.ExitCode != models.CodeCancelled {
		t.Errorf("expected cancelled code %d, got %d", models.CodeCancelled, result.ExitCode)
	}
}

func TestStepRunnerExecError(t *testing.T) {
	stepRunner := NewStepRunner(localTestEnv(t), 0, nil, nil)

	result := stepRunner.Run(context.Background(), models.Step{Name: "Missing", Command: "gantry-no-such-binary"})

	if result.ExitCode != models.CodeExecError {
		t.Errorf("expected exec error code %d, got %d", models.CodeExecError, result.ExitCode)
	}
	if result.Output == "" {
		t.Error("expected the failure reason in the captured output")
	}
}

func TestLocalEnvVariables(t *testing.T) {
	factory := NewLocalEnvFactory("")
	env, err := factory.Provision(context.Background(), models.Job{
		Name:      "vars",
		Variables: []models.Variable{{"GANTRY_TEST_VAR": "VISIBLE"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer env.Close()

	result := NewStepRunner(env, 0, nil, nil).Run(context.Background(), models.Step{Name: "Env", Run: "echo $GANTRY_TEST_VAR"})

	if !strings.Contains(result.Output, "VISIBLE") {
		t.Errorf("job variable not visible to step: %q", result.Output)
	}
}
