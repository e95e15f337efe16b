package runner

import (
	"archive/tar"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/opnlabs/gantry/pkg/models"
	"github.com/opnlabs/gantry/pkg/utils"
)

const (
	BuildDir   = ".gantry"
	WorkingDir = "/app"
)

// DockerEnvOptions control how container environments are provisioned.
type DockerEnvOptions struct {
	ShowImagePull     bool
	MountDockerSocket bool
	Username          string
	Password          string
	PullOutput        io.Writer
}

// DockerEnvFactory provisions one container per job. The job's image names
// its toolchain, the source tree is staged into a bind mount and every step
// runs as an exec inside the same container.
type DockerEnvFactory struct {
	src  string
	opts DockerEnvOptions
}

func NewDockerEnvFactory(src string, opts DockerEnvOptions) *DockerEnvFactory {
	if opts.PullOutput == nil {
		opts.PullOutput = os.Stdout
	}
	return &DockerEnvFactory{src: src, opts: opts}
}

func (f *DockerEnvFactory) Provision(ctx context.Context, job models.Job) (Environment, error) {
	if job.Image == "" {
		return nil, &ProvisionError{Job: job.Name, Err: fmt.Errorf("job has no image")}
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, &ProvisionError{Job: job.Name, Err: err}
	}

	name := slug.Make(job.Name + uuid.NewString())

	pullOptions := types.ImagePullOptions{}
	if f.opts.Username != "" {
		auth, err := registryAuth(f.opts.Username, f.opts.Password)
		if err != nil {
			cli.Close()
			return nil, &ProvisionError{Job: job.Name, Err: err}
		}
		pullOptions.RegistryAuth = auth
	}

	reader, err := cli.ImagePull(ctx, job.Image, pullOptions)
	if err != nil {
		cli.Close()
		return nil, &ProvisionError{Job: job.Name, Err: fmt.Errorf("pull image %s: %w", job.Image, err)}
	}
	defer reader.Close()

	pullOut := io.Discard
	if f.opts.ShowImagePull {
		pullOut = f.opts.PullOutput
	}
	if _, err := io.Copy(pullOut, reader); err != nil {
		cli.Close()
		return nil, &ProvisionError{Job: job.Name, Err: fmt.Errorf("read image pull logs: %w", err)}
	}

	wd, err := os.Getwd()
	if err != nil {
		cli.Close()
		return nil, &ProvisionError{Job: job.Name, Err: err}
	}

	srcDir := filepath.Join(wd, BuildDir, fmt.Sprintf("src-%s", name))
	if f.src != "" {
		if err := utils.TarCopy(f.src, srcDir, ""); err != nil {
			cli.Close()
			return nil, &ProvisionError{Job: job.Name, Err: fmt.Errorf("stage source: %w", err)}
		}
	} else if err := os.MkdirAll(srcDir, 0755); err != nil {
		cli.Close()
		return nil, &ProvisionError{Job: job.Name, Err: err}
	}

	env, err := flatten(job.Variables)
	if err != nil {
		cli.Close()
		return nil, &ProvisionError{Job: job.Name, Err: err}
	}

	mounts := []mount.Mount{
		{
			Type:   mount.TypeBind,
			Source: srcDir,
			Target: WorkingDir,
		},
	}
	if f.opts.MountDockerSocket {
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: "/var/run/docker.sock",
			Target: "/var/run/docker.sock",
		})
	}

	resp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:      job.Image,
		Env:        env,
		Cmd:        []string{"sleep", "infinity"},
		WorkingDir: WorkingDir,
	}, &container.HostConfig{
		Mounts: mounts,
	}, nil, nil, name)
	if err != nil {
		cli.Close()
		return nil, &ProvisionError{Job: job.Name, Err: fmt.Errorf("create container: %w", err)}
	}

	if err := cli.ContainerStart(ctx, resp.ID, types.ContainerStartOptions{}); err != nil {
		cli.ContainerRemove(context.Background(), resp.ID, types.ContainerRemoveOptions{Force: true})
		cli.Close()
		return nil, &ProvisionError{Job: job.Name, Err: fmt.Errorf("start container: %w", err)}
	}

	return &dockerEnv{
		id:          name,
		cli:         cli,
		containerID: resp.ID,
		srcDir:      srcDir,
		env:         env,
	}, nil
}

type dockerEnv struct {
	id          string
	cli         *client.Client
	containerID string
	srcDir      string
	env         []string
}

func (d *dockerEnv) ID() string {
	return d.id
}

func (d *dockerEnv) Exec(ctx context.Context, step models.Step, stdout, stderr io.Writer) (int, error) {
	cmd := []string{"/bin/sh", "-c", step.Run}
	if !step.Shell() {
		cmd = append([]string{step.Command}, step.Args...)
	}

	created, err := d.cli.ContainerExecCreate(ctx, d.containerID, types.ExecConfig{
		Cmd:          cmd,
		Env:          d.env,
		WorkingDir:   WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return -1, fmt.Errorf("create exec in container %s: %w", d.id, err)
	}

	attach, err := d.cli.ContainerExecAttach(ctx, created.ID, types.ExecStartCheck{})
	if err != nil {
		return -1, fmt.Errorf("attach exec in container %s: %w", d.id, err)
	}
	defer attach.Close()

	if _, err := stdcopy.StdCopy(stdout, stderr, attach.Reader); err != nil {
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		return -1, fmt.Errorf("read exec output from container %s: %w", d.id, err)
	}

	inspect, err := d.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return -1, fmt.Errorf("inspect exec in container %s: %w", d.id, err)
	}
	return inspect.ExitCode, nil
}

func (d *dockerEnv) Export(ctx context.Context, path, dst string) error {
	reader, _, err := d.cli.CopyFromContainer(ctx, d.containerID, filepath.Join(WorkingDir, path))
	if err != nil {
		return fmt.Errorf("copy %s from container %s: %w", path, d.id, err)
	}
	defer reader.Close()

	return untar(reader, dst)
}

func (d *dockerEnv) Close() error {
	defer d.cli.Close()
	defer os.RemoveAll(d.srcDir)

	return d.cli.ContainerRemove(context.Background(), d.containerID, types.ContainerRemoveOptions{Force: true})
}

func registryAuth(username, password string) (string, error) {
	auth, err := json.Marshal(registry.AuthConfig{
		Username: username,
		Password: password,
	})
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(auth), nil
}

// untar extracts a plain tar stream, as produced by the container copy API.
func untar(r io.Reader, baseDir string) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return err
		}

		target := filepath.Join(baseDir, filepath.Clean(header.Name))
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_RDWR|os.O_TRUNC, fs.FileMode(header.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			f.Close()
		}
	}
}
