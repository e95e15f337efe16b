package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/opnlabs/gantry/pkg/models"
	"github.com/opnlabs/gantry/pkg/utils"
)

// LocalEnvFactory provisions per-job workspaces on the host itself. Each
// environment is a throwaway directory holding a copy of the source tree,
// so jobs never see each other's changes.
type LocalEnvFactory struct {
	src string
}

// NewLocalEnvFactory returns a factory staging src into every workspace.
// An empty src provisions empty workspaces.
func NewLocalEnvFactory(src string) *LocalEnvFactory {
	return &LocalEnvFactory{src: src}
}

func (f *LocalEnvFactory) Provision(ctx context.Context, job models.Job) (Environment, error) {
	name := slug.Make(job.Name + uuid.NewString())

	workDir, err := os.MkdirTemp("", "gantry-env-"+name)
	if err != nil {
		return nil, &ProvisionError{Job: job.Name, Err: err}
	}

	if f.src != "" {
		if err := utils.TarCopy(f.src, workDir, ""); err != nil {
			os.RemoveAll(workDir)
			return nil, &ProvisionError{Job: job.Name, Err: err}
		}
	}

	env, err := flatten(job.Variables)
	if err != nil {
		os.RemoveAll(workDir)
		return nil, &ProvisionError{Job: job.Name, Err: err}
	}

	return &localEnv{
		id:      name,
		workDir: workDir,
		env:     env,
	}, nil
}

type localEnv struct {
	id      string
	workDir string
	env     []string
}

func (l *localEnv) ID() string {
	return l.id
}

func (l *localEnv) Exec(ctx context.Context, step models.Step, stdout, stderr io.Writer) (int, error) {
	var cmd *exec.Cmd
	if step.Shell() {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", step.Run)
	} else {
		cmd = exec.CommandContext(ctx, step.Command, step.Args...)
	}
	cmd.Dir = l.workDir
	cmd.Env = append(os.Environ(), l.env...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	if ctx.Err() != nil {
		return -1, ctx.Err()
	}
	return -1, err
}

func (l *localEnv) Export(ctx context.Context, path, dst string) error {
	src := filepath.Join(l.workDir, filepath.Clean(path))
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	if info.IsDir() {
		return utils.TarCopy(src, filepath.Join(dst, filepath.Base(src)), "")
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(filepath.Join(dst, filepath.Base(src)), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}

func (l *localEnv) Close() error {
	return os.RemoveAll(l.workDir)
}
