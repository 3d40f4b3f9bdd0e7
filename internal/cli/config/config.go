package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config models the pideploy config file: a currentSite pointer plus a map
// of named site definitions.
type Config struct {
	CurrentSite string           `yaml:"currentSite"`
	Sites       map[string]*Site `yaml:"sites"`
}

// Site holds every knob for provisioning one application.
type Site struct {
	Domain         string `yaml:"domain"`
	ListenPort     int    `yaml:"listenPort"`
	BackendHost    string `yaml:"backendHost"`
	BackendPort    int    `yaml:"backendPort"`
	TimeoutSeconds int    `yaml:"timeoutSeconds"`
	MaxBodySize    string `yaml:"maxBodySize"`

	User       string `yaml:"user"`
	AppDir     string `yaml:"appDir"`
	VenvDir    string `yaml:"venvDir"`
	EntryPoint string `yaml:"entryPoint"`
	WSGIApp    string `yaml:"wsgiApp"`
	Workers    int    `yaml:"workers"`
	LogDir     string `yaml:"logDir"`

	Requirements string        `yaml:"requirements"`
	Critical     []string      `yaml:"critical"`
	Packages     []SitePackage `yaml:"packages"`
}

// SitePackage is one OS package entry from the config.
type SitePackage struct {
	Name     string `yaml:"name"`
	Optional bool   `yaml:"optional"`
}

// ErrSiteNotFound indicates the requested site is missing.
var ErrSiteNotFound = errors.New("site not found")

// Load decodes the config file. Missing files return (nil, nil).
func Load(path string) (*Config, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	expanded, err := expandPath(trimmed)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to disk, creating parent directories if needed.
func (c *Config) Save(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config path is required")
	}
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return err
	}
	return os.WriteFile(expanded, data, 0o600)
}

// Resolve picks a site either by explicit name or the currentSite value.
// A nil config resolves every name to a defaulted site.
func (c *Config) Resolve(name string) (*Site, string, error) {
	siteName := strings.TrimSpace(name)
	if c == nil {
		if siteName == "" {
			siteName = "app"
		}
		return ApplyDefaults(siteName, nil), siteName, nil
	}
	if siteName == "" {
		siteName = c.CurrentSite
	}
	if siteName == "" {
		if len(c.Sites) == 1 {
			for k, v := range c.Sites {
				return ApplyDefaults(k, v), k, nil
			}
		}
		return nil, "", fmt.Errorf("no site selected: set currentSite or pass --site")
	}
	site, ok := c.Sites[siteName]
	if !ok {
		return nil, siteName, fmt.Errorf("%w: %s", ErrSiteNotFound, siteName)
	}
	return ApplyDefaults(siteName, site), siteName, nil
}

// ApplyDefaults fills the zero fields of site with the stock deployment
// values (DietPi host, port 80 in front of 127.0.0.1:5000).
func ApplyDefaults(name string, site *Site) *Site {
	out := &Site{}
	if site != nil {
		*out = *site
	}
	if out.Domain == "" {
		out.Domain = "_"
	}
	if out.ListenPort == 0 {
		out.ListenPort = 80
	}
	if out.BackendHost == "" {
		out.BackendHost = "127.0.0.1"
	}
	if out.BackendPort == 0 {
		out.BackendPort = 5000
	}
	if out.TimeoutSeconds == 0 {
		out.TimeoutSeconds = 300
	}
	if out.MaxBodySize == "" {
		out.MaxBodySize = "500M"
	}
	if out.User == "" {
		out.User = "dietpi"
	}
	if out.AppDir == "" {
		out.AppDir = filepath.Join("/home", out.User, name)
	}
	if out.VenvDir == "" {
		out.VenvDir = filepath.Join(out.AppDir, "venv")
	}
	if out.EntryPoint == "" {
		out.EntryPoint = "app.py"
	}
	if out.WSGIApp == "" {
		out.WSGIApp = "app:app"
	}
	if out.Workers == 0 {
		out.Workers = 2
	}
	if out.LogDir == "" {
		out.LogDir = filepath.Join("/home", out.User, "logs")
	}
	if out.Requirements == "" {
		out.Requirements = filepath.Join(out.AppDir, "requirements.txt")
	}
	if len(out.Critical) == 0 {
		out.Critical = []string{"flask", "gunicorn"}
	}
	if len(out.Packages) == 0 {
		out.Packages = DefaultPackages()
	}
	return out
}

// DefaultPackages is the stock OS package list.
func DefaultPackages() []SitePackage {
	return []SitePackage{
		{Name: "nginx"},
		{Name: "python3"},
		{Name: "python3-venv"},
		{Name: "python3-pip"},
		{Name: "curl"},
		{Name: "python3-dev", Optional: true},
		{Name: "build-essential", Optional: true},
		{Name: "git", Optional: true},
	}
}

func expandPath(path string) (string, error) {
	switch {
	case strings.HasPrefix(path, "~/"):
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	case path == "~":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	case filepath.IsAbs(path):
		return path, nil
	default:
		cwd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		return filepath.Join(cwd, path), nil
	}
}
