package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "config"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config for a missing file")
	}
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pideploy", "config")
	in := &Config{
		CurrentSite: "bangre",
		Sites: map[string]*Site{
			"bangre": {Domain: "pi.local", BackendPort: 5001, Workers: 4},
		},
	}
	if err := in.Save(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out == nil || out.CurrentSite != "bangre" {
		t.Fatalf("unexpected config: %+v", out)
	}
	site := out.Sites["bangre"]
	if site == nil || site.Domain != "pi.local" || site.BackendPort != 5001 || site.Workers != 4 {
		t.Fatalf("unexpected site: %+v", site)
	}
}

func TestResolveNilConfigUsesDefaults(t *testing.T) {
	var cfg *Config
	site, name, err := cfg.Resolve("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "app" {
		t.Fatalf("got name %q, want app", name)
	}
	if site.ListenPort != 80 || site.BackendHost != "127.0.0.1" || site.BackendPort != 5000 {
		t.Fatalf("unexpected defaults: %+v", site)
	}
	if site.User != "dietpi" || site.AppDir != "/home/dietpi/app" {
		t.Fatalf("unexpected defaults: %+v", site)
	}
}

func TestResolveCurrentSite(t *testing.T) {
	cfg := &Config{
		CurrentSite: "bangre",
		Sites: map[string]*Site{
			"bangre": {BackendPort: 5001},
			"other":  {},
		},
	}
	site, name, err := cfg.Resolve("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "bangre" || site.BackendPort != 5001 {
		t.Fatalf("resolved %q %+v", name, site)
	}
}

func TestResolveSingleSiteFallback(t *testing.T) {
	cfg := &Config{Sites: map[string]*Site{"solo": {}}}
	_, name, err := cfg.Resolve("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if name != "solo" {
		t.Fatalf("got name %q, want solo", name)
	}
}

func TestResolveUnknownSite(t *testing.T) {
	cfg := &Config{Sites: map[string]*Site{"bangre": {}}}
	_, _, err := cfg.Resolve("nope")
	if !errors.Is(err, ErrSiteNotFound) {
		t.Fatalf("expected ErrSiteNotFound, got %v", err)
	}
}

func TestResolveNoSelection(t *testing.T) {
	cfg := &Config{Sites: map[string]*Site{"a": {}, "b": {}}}
	_, _, err := cfg.Resolve("")
	if err == nil {
		t.Fatalf("expected error when no site is selected")
	}
}

func TestApplyDefaultsDerivedPaths(t *testing.T) {
	site := ApplyDefaults("bangre", &Site{User: "pi"})
	if site.AppDir != "/home/pi/bangre" {
		t.Fatalf("unexpected app dir %q", site.AppDir)
	}
	if site.VenvDir != "/home/pi/bangre/venv" {
		t.Fatalf("unexpected venv dir %q", site.VenvDir)
	}
	if site.Requirements != "/home/pi/bangre/requirements.txt" {
		t.Fatalf("unexpected requirements path %q", site.Requirements)
	}
	if site.LogDir != "/home/pi/logs" {
		t.Fatalf("unexpected log dir %q", site.LogDir)
	}
	if len(site.Critical) != 2 || site.Critical[0] != "flask" {
		t.Fatalf("unexpected critical set %v", site.Critical)
	}
	if len(site.Packages) == 0 {
		t.Fatalf("expected default package list")
	}
}

func TestExpandPathHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	got, err := expandPath("~/x/config")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != filepath.Join(home, "x", "config") {
		t.Fatalf("got %q", got)
	}
}
