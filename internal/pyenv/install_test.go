package pyenv

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// pipRunner simulates python3 and the venv's pip against a real temp
// directory, so the activation-script existence check stays honest.
type pipRunner struct {
	installed map[string]bool
	failSpecs map[string]bool
	bulkNames []string
	freezeOut string
	cmds      [][]string
}

func newPipRunner() *pipRunner {
	return &pipRunner{
		installed: map[string]bool{},
		failSpecs: map[string]bool{},
		freezeOut: "flask==3.0.2\ngunicorn==21.2.0",
	}
}

func (f *pipRunner) record(name string, args ...string) {
	f.cmds = append(f.cmds, append([]string{name}, args...))
}

func (f *pipRunner) Run(ctx context.Context, name string, args ...string) error {
	f.record(name, args...)
	switch {
	case name == "python3" && len(args) == 3 && args[0] == "-m" && args[1] == "venv":
		binDir := filepath.Join(args[2], "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(binDir, "activate"), []byte("# venv\n"), 0o644)
	case strings.HasSuffix(name, "/pip") && len(args) > 0 && args[0] == "install":
		rest := args[1:]
		if len(rest) == 2 && rest[0] == "--upgrade" && rest[1] == "pip" {
			return nil
		}
		if len(rest) == 2 && rest[0] == "-r" {
			for _, n := range f.bulkNames {
				f.installed[n] = true
			}
			return nil
		}
		for _, spec := range rest {
			if f.failSpecs[spec] {
				continue
			}
			f.installed[specName(spec)] = true
		}
		return nil
	}
	return fmt.Errorf("unexpected command %s %v", name, args)
}

func (f *pipRunner) RunDir(ctx context.Context, dir, name string, args ...string) error {
	return f.Run(ctx, name, args...)
}

func (f *pipRunner) Output(ctx context.Context, name string, args ...string) (string, error) {
	f.record(name, args...)
	if strings.HasSuffix(name, "/pip") && len(args) == 2 && args[0] == "show" {
		if f.installed[args[1]] {
			return "Name: " + args[1], nil
		}
		return "", fmt.Errorf("pip show %s: not installed", args[1])
	}
	if strings.HasSuffix(name, "/pip") && len(args) == 1 && args[0] == "freeze" {
		return f.freezeOut, nil
	}
	return "", fmt.Errorf("unexpected command %s %v", name, args)
}

func (f *pipRunner) LookPath(name string) (string, error) {
	return "/usr/bin/" + name, nil
}

func TestInstallerDefaultsWhenManifestMissing(t *testing.T) {
	dir := t.TempDir()
	fake := newPipRunner()
	venv := NewVenv(filepath.Join(dir, "venv"), fake, nil)
	manifest := filepath.Join(dir, "requirements.txt")
	inst := NewInstaller(venv, manifest, nil)

	report, err := inst.Ensure(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.VenvCreated {
		t.Fatalf("expected venv creation")
	}
	if report.FromManifest {
		t.Fatalf("expected the defaults path, not the manifest path")
	}
	for _, want := range []string{"flask", "gunicorn"} {
		if !containsName(report.Verified, want) {
			t.Fatalf("expected %s in verified set, got %v", want, report.Verified)
		}
	}
	data, err := os.ReadFile(manifest)
	if err != nil {
		t.Fatalf("expected frozen manifest to be written: %v", err)
	}
	if !strings.Contains(string(data), "flask==") {
		t.Fatalf("frozen manifest missing flask pin: %q", data)
	}
}

func TestInstallerManifestFlow(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(manifest, []byte("flask==3.0.2\nmarkupsafe==2.1.5\ngunicorn\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	fake := newPipRunner()
	fake.bulkNames = []string{"flask", "markupsafe", "gunicorn"}
	venv := NewVenv(filepath.Join(dir, "venv"), fake, nil)
	inst := NewInstaller(venv, manifest, nil)

	report, err := inst.Ensure(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.FromManifest {
		t.Fatalf("expected manifest install path")
	}
	if len(report.Verified) != 3 {
		t.Fatalf("got %d verified, want 3: %v", len(report.Verified), report.Verified)
	}
	if len(report.Failed) != 0 {
		t.Fatalf("expected no failures, got %v", report.Failed)
	}
}

func TestInstallerRetriesAndForcesCritical(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "requirements.txt")
	if err := os.WriteFile(manifest, []byte("flask\nbrokenpkg\n"), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	fake := newPipRunner()
	fake.bulkNames = []string{"flask"}
	fake.failSpecs["brokenpkg"] = true
	venv := NewVenv(filepath.Join(dir, "venv"), fake, nil)
	inst := NewInstaller(venv, manifest, nil)

	report, err := inst.Ensure(context.Background())
	if err != nil {
		t.Fatalf("verification failures must not abort the run: %v", err)
	}
	if !containsName(report.Retried, "brokenpkg") {
		t.Fatalf("expected brokenpkg to be retried, got %v", report.Retried)
	}
	if !containsName(report.Failed, "brokenpkg") {
		t.Fatalf("expected brokenpkg in failed set, got %v", report.Failed)
	}
	// gunicorn is not in the manifest but is critical, so it gets forced in.
	if !containsName(report.Verified, "gunicorn") {
		t.Fatalf("expected gunicorn to be force-installed, got %v", report.Verified)
	}
}
