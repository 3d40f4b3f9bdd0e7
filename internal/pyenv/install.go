package pyenv

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/GandemaAR/pideploy/internal/fsio"
)

// Installer drives the dependency flow: ensure the environment, install
// from the manifest (or defaults plus a freeze), verify every declared
// requirement, retry failures individually, and force-install the critical
// dependencies.
type Installer struct {
	Venv         *Venv
	ManifestPath string
	Critical     []string
	Log          *zap.Logger
}

// Report summarizes one run of the installer. Failed entries are
// verification failures only; they never abort provisioning.
type Report struct {
	VenvCreated  bool
	FromManifest bool
	Verified     []string
	Failed       []string
	Retried      []string
}

// NewInstaller wires an installer with flask and gunicorn as the critical
// dependencies.
func NewInstaller(venv *Venv, manifestPath string, log *zap.Logger) *Installer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Installer{
		Venv:         venv,
		ManifestPath: manifestPath,
		Critical:     []string{"flask", "gunicorn"},
		Log:          log,
	}
}

// Ensure runs the full flow. The returned error covers infrastructure
// failures (venv creation, a failed bulk install); per-requirement
// verification failures are reported through Report.Failed.
func (i *Installer) Ensure(ctx context.Context) (*Report, error) {
	report := &Report{}

	created, err := i.Venv.Ensure(ctx)
	if err != nil {
		return report, err
	}
	report.VenvCreated = created

	if err := i.Venv.UpgradePip(ctx); err != nil {
		i.Log.Warn("pip self-upgrade failed", zap.Error(err))
	}

	reqs, err := ReadManifest(i.ManifestPath)
	if err != nil {
		return report, fmt.Errorf("read manifest %s: %w", i.ManifestPath, err)
	}

	if len(reqs) > 0 {
		report.FromManifest = true
		i.Log.Info("installing from manifest",
			zap.String("manifest", i.ManifestPath), zap.Int("requirements", len(reqs)))
		if err := i.Venv.InstallManifest(ctx, i.ManifestPath); err != nil {
			// Individual retries below may still recover some of them.
			i.Log.Warn("bulk manifest install failed", zap.Error(err))
		}
	} else {
		reqs = DefaultRequirements()
		i.Log.Info("no manifest, installing defaults", zap.String("manifest", i.ManifestPath))
		specs := make([]string, len(reqs))
		for n, r := range reqs {
			specs[n] = r.Spec
		}
		if err := i.Venv.InstallSpecs(ctx, specs...); err != nil {
			return report, fmt.Errorf("install default dependencies: %w", err)
		}
		if err := i.freeze(ctx); err != nil {
			i.Log.Warn("could not freeze manifest", zap.Error(err))
		}
	}

	// Verification pass, then one individual retry for each failure.
	var failed []Requirement
	for _, r := range reqs {
		if i.Venv.Show(ctx, r.Name) {
			report.Verified = append(report.Verified, r.Name)
		} else {
			failed = append(failed, r)
		}
	}
	for _, r := range failed {
		i.Log.Warn("requirement missing, retrying individually", zap.String("requirement", r.Spec))
		report.Retried = append(report.Retried, r.Name)
		if err := i.Venv.InstallSpecs(ctx, r.Spec); err != nil {
			i.Log.Warn("individual install failed", zap.String("requirement", r.Spec), zap.Error(err))
		}
		if i.Venv.Show(ctx, r.Name) {
			report.Verified = append(report.Verified, r.Name)
		} else {
			report.Failed = append(report.Failed, r.Name)
		}
	}

	// Critical dependencies get one forced pass regardless of the manifest
	// outcome.
	for _, name := range i.Critical {
		if containsName(report.Verified, name) {
			continue
		}
		i.Log.Info("forcing critical dependency install", zap.String("dependency", name))
		if err := i.Venv.InstallSpecs(ctx, name); err != nil {
			i.Log.Warn("critical dependency install failed", zap.String("dependency", name), zap.Error(err))
		}
		if i.Venv.Show(ctx, name) {
			report.Verified = append(report.Verified, name)
			report.Failed = removeName(report.Failed, name)
		} else if !containsName(report.Failed, name) {
			report.Failed = append(report.Failed, name)
		}
	}

	return report, nil
}

// freeze writes the current environment state as the manifest, unless one
// already exists.
func (i *Installer) freeze(ctx context.Context) error {
	if fsio.Exists(i.ManifestPath) {
		return nil
	}
	frozen, err := i.Venv.Freeze(ctx)
	if err != nil {
		return err
	}
	_, err = fsio.WriteFileIfChanged(i.ManifestPath, []byte(frozen+"\n"), 0o644)
	return err
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if strings.EqualFold(n, want) {
			return true
		}
	}
	return false
}

func removeName(names []string, drop string) []string {
	out := names[:0]
	for _, n := range names {
		if !strings.EqualFold(n, drop) {
			out = append(out, n)
		}
	}
	return out
}
