// Package pkgmgr installs OS packages through apt and resolves the
// pkg-config dependency with its fallback cascade.
package pkgmgr

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/GandemaAR/pideploy/internal/run"
)

// Package is one apt package to install. Optional packages downgrade any
// install failure to a warning.
type Package struct {
	Name     string
	Optional bool
}

// Manager wraps the host's apt frontend.
type Manager struct {
	Run run.Runner
	Log *zap.Logger
}

// NewManager returns a Manager logging through log (zap.NewNop when nil).
func NewManager(r run.Runner, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{Run: r, Log: log}
}

// Update refreshes the package indices.
func (m *Manager) Update(ctx context.Context) error {
	m.Log.Info("updating package indices")
	return m.Run.Run(ctx, "apt-get", "update", "-y")
}

// Upgrade applies pending package upgrades.
func (m *Manager) Upgrade(ctx context.Context) error {
	m.Log.Info("upgrading installed packages")
	return m.Run.Run(ctx, "apt-get", "upgrade", "-y")
}

// Available reports whether name exists in the configured repositories.
func (m *Manager) Available(ctx context.Context, name string) bool {
	_, err := m.Run.Output(ctx, "apt-cache", "show", name)
	return err == nil
}

// Installed reports whether name is installed according to dpkg.
func (m *Manager) Installed(ctx context.Context, name string) bool {
	out, err := m.Run.Output(ctx, "dpkg-query", "-W", "-f=${Status}", name)
	return err == nil && strings.Contains(out, "install ok installed")
}

// Install ensures pkg is installed. For optional packages every failure is
// logged as a warning and nil is returned; for required packages a missing
// repository entry or a failed post-install verification is an error.
func (m *Manager) Install(ctx context.Context, pkg Package) error {
	if m.Installed(ctx, pkg.Name) {
		m.Log.Debug("package already installed", zap.String("package", pkg.Name))
		return nil
	}
	if !m.Available(ctx, pkg.Name) {
		if pkg.Optional {
			m.Log.Warn("optional package not in repository, skipping", zap.String("package", pkg.Name))
			return nil
		}
		return fmt.Errorf("package %s not found in repository", pkg.Name)
	}
	m.Log.Info("installing package", zap.String("package", pkg.Name), zap.Bool("optional", pkg.Optional))
	if err := m.Run.Run(ctx, "apt-get", "install", "-y", pkg.Name); err != nil {
		if pkg.Optional {
			m.Log.Warn("optional package failed to install", zap.String("package", pkg.Name), zap.Error(err))
			return nil
		}
		return fmt.Errorf("install %s: %w", pkg.Name, err)
	}
	if !m.Installed(ctx, pkg.Name) {
		if pkg.Optional {
			m.Log.Warn("optional package missing after install", zap.String("package", pkg.Name))
			return nil
		}
		return fmt.Errorf("package %s missing after install", pkg.Name)
	}
	return nil
}

// InstallAll installs packages in order. It stops at the first required
// failure and returns the names of optional packages that did not make it.
func (m *Manager) InstallAll(ctx context.Context, pkgs []Package) (skipped []string, err error) {
	for _, pkg := range pkgs {
		wasInstalled := m.Installed(ctx, pkg.Name)
		if installErr := m.Install(ctx, pkg); installErr != nil {
			return skipped, installErr
		}
		if pkg.Optional && !wasInstalled && !m.Installed(ctx, pkg.Name) {
			skipped = append(skipped, pkg.Name)
		}
	}
	return skipped, nil
}
