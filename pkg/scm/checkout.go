// Package scm fetches the source tree a pipeline runs against.
package scm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/opnlabs/gantry/pkg/utils"
)

// CheckoutError marks a failed source checkout. It is fatal and aborts the
// pipeline before any job is scheduled.
type CheckoutError struct {
	Ref string
	Err error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout %s: %v", e.Ref, e.Err)
}

func (e *CheckoutError) Unwrap() error {
	return e.Err
}

// Provider fetches a ref into a fresh working directory.
type Provider interface {
	Checkout(ctx context.Context, ref string) (string, error)
}

// GitProvider clones a remote through the git CLI.
type GitProvider struct {
	remote string
}

func NewGitProvider(remote string) *GitProvider {
	return &GitProvider{remote: remote}
}

func (g *GitProvider) Checkout(ctx context.Context, ref string) (string, error) {
	dir, err := os.MkdirTemp("", "gantry-src-")
	if err != nil {
		return "", &CheckoutError{Ref: ref, Err: err}
	}

	args := []string{"clone", "--depth", "1"}
	if ref != "" {
		args = append(args, "--branch", ref)
	}
	args = append(args, g.remote, dir)

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		os.RemoveAll(dir)
		return "", &CheckoutError{Ref: ref, Err: fmt.Errorf("%w: %s", err, out.String())}
	}

	return dir, nil
}

// LocalProvider stages an existing directory, keeping the original tree
// untouched while jobs work on the copy.
type LocalProvider struct {
	src string
}

func NewLocalProvider(src string) *LocalProvider {
	return &LocalProvider{src: filepath.Clean(src)}
}

func (l *LocalProvider) Checkout(ctx context.Context, ref string) (string, error) {
	if _, err := os.Stat(l.src); err != nil {
		return "", &CheckoutError{Ref: ref, Err: err}
	}

	dir, err := os.MkdirTemp("", "gantry-src-")
	if err != nil {
		return "", &CheckoutError{Ref: ref, Err: err}
	}

	if err := utils.TarCopy(l.src, dir, ""); err != nil {
		os.RemoveAll(dir)
		return "", &CheckoutError{Ref: ref, Err: err}
	}

	return dir, nil
}
