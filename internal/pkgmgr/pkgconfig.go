package pkgmgr

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/GandemaAR/pideploy/internal/run"
)

// PkgConfigVersion is the source release built when no repository package
// can be installed.
const PkgConfigVersion = "0.29.2"

// pkgConfigAlternates are the repository names tried in order before
// falling back to a source build.
var pkgConfigAlternates = []string{"pkgconf", "pkg-config", "pkgconfig"}

// PkgConfigResolver makes a pkg-config binary available, best effort:
// already on PATH, alternate repository packages, then a pinned source
// build. Callers treat any returned error as a warning.
type PkgConfigResolver struct {
	Apt      *Manager
	Run      run.Runner
	Log      *zap.Logger
	Version  string
	BuildDir string
}

// NewPkgConfigResolver returns a resolver with the pinned version and /tmp
// as the build scratch directory.
func NewPkgConfigResolver(apt *Manager, r run.Runner, log *zap.Logger) *PkgConfigResolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &PkgConfigResolver{Apt: apt, Run: r, Log: log, Version: PkgConfigVersion, BuildDir: "/tmp"}
}

// Ensure runs the cascade. A nil error means a pkg-config binary resolves
// on PATH afterwards.
func (p *PkgConfigResolver) Ensure(ctx context.Context) error {
	if path, err := p.Run.LookPath("pkg-config"); err == nil {
		p.Log.Debug("pkg-config already present", zap.String("path", path))
		return nil
	}

	for _, alt := range pkgConfigAlternates {
		if !p.Apt.Available(ctx, alt) {
			continue
		}
		if err := p.Apt.Install(ctx, Package{Name: alt}); err != nil {
			p.Log.Warn("alternate package install failed", zap.String("package", alt), zap.Error(err))
			continue
		}
		if _, err := p.Run.LookPath("pkg-config"); err == nil {
			p.Log.Info("pkg-config resolved from repository", zap.String("package", alt))
			return nil
		}
	}

	p.Log.Info("building pkg-config from source", zap.String("version", p.Version))
	if err := p.buildFromSource(ctx); err != nil {
		return fmt.Errorf("pkg-config source build: %w", err)
	}
	if _, err := p.Run.LookPath("pkg-config"); err != nil {
		return fmt.Errorf("pkg-config still missing after source build")
	}
	return nil
}

func (p *PkgConfigResolver) buildFromSource(ctx context.Context) error {
	toolchain := []Package{
		{Name: "build-essential"},
		{Name: "curl"},
	}
	for _, pkg := range toolchain {
		if err := p.Apt.Install(ctx, pkg); err != nil {
			return err
		}
	}

	tarball := filepath.Join(p.BuildDir, fmt.Sprintf("pkg-config-%s.tar.gz", p.Version))
	url := fmt.Sprintf("https://pkgconfig.freedesktop.org/releases/pkg-config-%s.tar.gz", p.Version)
	if err := p.Run.Run(ctx, "curl", "-fsSL", "-o", tarball, url); err != nil {
		return err
	}
	if err := p.Run.Run(ctx, "tar", "-xzf", tarball, "-C", p.BuildDir); err != nil {
		return err
	}

	srcDir := filepath.Join(p.BuildDir, "pkg-config-"+p.Version)
	if err := p.Run.RunDir(ctx, srcDir, "./configure", "--with-internal-glib"); err != nil {
		return err
	}
	if err := p.Run.RunDir(ctx, srcDir, "make"); err != nil {
		return err
	}
	return p.Run.RunDir(ctx, srcDir, "make", "install")
}
