// Package pyenv bootstraps the Python virtual environment and installs the
// application's dependencies from the requirements manifest.
package pyenv

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/GandemaAR/pideploy/internal/fsio"
	"github.com/GandemaAR/pideploy/internal/run"
)

// Venv is a directory-scoped Python environment. Commands run through pip's
// absolute path; the Runner is expected to carry the VIRTUAL_ENV activation
// marker and a venv-first PATH in its environment.
type Venv struct {
	Dir    string
	Python string
	Run    run.Runner
	Log    *zap.Logger
}

// NewVenv returns a Venv driven by python3.
func NewVenv(dir string, r run.Runner, log *zap.Logger) *Venv {
	if log == nil {
		log = zap.NewNop()
	}
	return &Venv{Dir: dir, Python: "python3", Run: r, Log: log}
}

// Exists reports whether the environment has been created; the check is the
// presence of the activation script.
func (v *Venv) Exists() bool {
	return fsio.Exists(filepath.Join(v.Dir, "bin", "activate"))
}

// Ensure creates the environment when missing and reports whether it did.
func (v *Venv) Ensure(ctx context.Context) (bool, error) {
	if v.Exists() {
		v.Log.Debug("virtual environment present", zap.String("dir", v.Dir))
		return false, nil
	}
	v.Log.Info("creating virtual environment", zap.String("dir", v.Dir))
	if err := v.Run.Run(ctx, v.Python, "-m", "venv", v.Dir); err != nil {
		return false, fmt.Errorf("create venv %s: %w", v.Dir, err)
	}
	if !v.Exists() {
		return false, fmt.Errorf("venv %s missing activation script after create", v.Dir)
	}
	return true, nil
}

// Pip returns the environment's pip binary path.
func (v *Venv) Pip() string {
	return filepath.Join(v.Dir, "bin", "pip")
}

// BinDir returns the environment's bin directory.
func (v *Venv) BinDir() string {
	return filepath.Join(v.Dir, "bin")
}

// UpgradePip brings the environment's installer up to date.
func (v *Venv) UpgradePip(ctx context.Context) error {
	return v.Run.Run(ctx, v.Pip(), "install", "--upgrade", "pip")
}

// InstallSpecs installs the given requirement specifiers.
func (v *Venv) InstallSpecs(ctx context.Context, specs ...string) error {
	args := append([]string{"install"}, specs...)
	return v.Run.Run(ctx, v.Pip(), args...)
}

// InstallManifest installs from a requirements file.
func (v *Venv) InstallManifest(ctx context.Context, path string) error {
	return v.Run.Run(ctx, v.Pip(), "install", "-r", path)
}

// Freeze returns pip's frozen requirement list.
func (v *Venv) Freeze(ctx context.Context) (string, error) {
	return v.Run.Output(ctx, v.Pip(), "freeze")
}

// Show reports whether the named distribution is installed.
func (v *Venv) Show(ctx context.Context, name string) bool {
	_, err := v.Run.Output(ctx, v.Pip(), "show", name)
	return err == nil
}
