// Package run executes host commands on behalf of provisioning steps.
package run

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Runner is the command surface provisioning steps depend on. Tests inject a
// fake; production code uses Host.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error
	RunDir(ctx context.Context, dir, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) (string, error)
	LookPath(name string) (string, error)
}

// Host runs commands on the local machine. Extra environment entries in Env
// are appended to the process environment for every command.
type Host struct {
	Log *zap.Logger
	Env []string
}

// NewHost returns a Host logging through log (zap.NewNop when nil).
func NewHost(log *zap.Logger, env ...string) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{Log: log, Env: env}
}

func (h *Host) command(ctx context.Context, dir, name string, args ...string) *exec.Cmd {
	c := exec.CommandContext(ctx, name, args...)
	c.Dir = dir
	if len(h.Env) > 0 {
		c.Env = append(os.Environ(), h.Env...)
	}
	return c
}

// Run executes the command and returns an error carrying the tail of the
// combined output on failure.
func (h *Host) Run(ctx context.Context, name string, args ...string) error {
	return h.RunDir(ctx, "", name, args...)
}

// RunDir is Run with an explicit working directory.
func (h *Host) RunDir(ctx context.Context, dir, name string, args ...string) error {
	c := h.command(ctx, dir, name, args...)
	h.Log.Debug("exec", zap.String("cmd", name), zap.Strings("args", args), zap.String("dir", dir))
	out, err := c.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s: %w\n%s", name, strings.Join(args, " "), err, tail(out, 2048))
	}
	return nil
}

// Output executes the command and returns trimmed stdout. Stderr is folded
// into the error on failure and never mixed into the returned output.
func (h *Host) Output(ctx context.Context, name string, args ...string) (string, error) {
	c := h.command(ctx, "", name, args...)
	h.Log.Debug("exec", zap.String("cmd", name), zap.Strings("args", args))
	out, err := c.Output()
	if err != nil {
		var detail []byte
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = exitErr.Stderr
		}
		return "", fmt.Errorf("%s %s: %w\n%s", name, strings.Join(args, " "), err, tail(detail, 2048))
	}
	return strings.TrimSpace(string(out)), nil
}

// LookPath reports where name resolves on PATH.
func (h *Host) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

func tail(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[len(b)-n:]
}
