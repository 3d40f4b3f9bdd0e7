package nginx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/GandemaAR/pideploy/internal/fsio"
	"github.com/GandemaAR/pideploy/internal/run"
)

const (
	// DefaultAvailableDir is where site files are written.
	DefaultAvailableDir = "/etc/nginx/sites-available"
	// DefaultEnabledDir holds the enabling symlinks.
	DefaultEnabledDir = "/etc/nginx/sites-enabled"
)

// Deployer writes site files and drives the nginx service. Reload always
// goes through a config test first, so a broken rendering leaves the
// previous configuration serving.
type Deployer struct {
	Run          run.Runner
	Log          *zap.Logger
	AvailableDir string
	EnabledDir   string
}

// NewDeployer returns a Deployer using the standard Debian layout.
func NewDeployer(r run.Runner, log *zap.Logger) *Deployer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Deployer{
		Run:          r,
		Log:          log,
		AvailableDir: DefaultAvailableDir,
		EnabledDir:   DefaultEnabledDir,
	}
}

// SitePath returns the sites-available path for name.
func (d *Deployer) SitePath(name string) string {
	return filepath.Join(d.AvailableDir, name)
}

// Install renders the site and writes it only when content changed.
func (d *Deployer) Install(site Site) (bool, error) {
	data, err := site.Render()
	if err != nil {
		return false, err
	}
	path := d.SitePath(site.Name)
	changed, err := fsio.WriteFileIfChanged(path, data, 0o644)
	if err != nil {
		return false, fmt.Errorf("write site %s: %w", path, err)
	}
	if changed {
		d.Log.Info("wrote site configuration", zap.String("path", path))
	} else {
		d.Log.Debug("site configuration unchanged", zap.String("path", path))
	}
	return changed, nil
}

// Enable symlinks the site into sites-enabled.
func (d *Deployer) Enable(name string) (bool, error) {
	target := d.SitePath(name)
	link := filepath.Join(d.EnabledDir, name)
	changed, err := fsio.EnsureSymlink(target, link)
	if err != nil {
		return false, fmt.Errorf("enable site %s: %w", name, err)
	}
	if changed {
		d.Log.Info("enabled site", zap.String("link", link))
	}
	return changed, nil
}

// DisableDefault removes the distribution's default enabled site. Lstat is
// the existence check so a dangling symlink is removed too.
func (d *Deployer) DisableDefault() error {
	link := filepath.Join(d.EnabledDir, "default")
	if _, err := os.Lstat(link); err != nil {
		return nil
	}
	d.Log.Info("disabling default site", zap.String("link", link))
	return fsio.Remove(link)
}

// Test runs nginx -t against the live configuration.
func (d *Deployer) Test(ctx context.Context) error {
	return d.Run.Run(ctx, "nginx", "-t")
}

// Reload validates the configuration, then reloads nginx, falling back to a
// restart when reload fails.
func (d *Deployer) Reload(ctx context.Context) error {
	if err := d.Test(ctx); err != nil {
		return fmt.Errorf("configuration test failed, not reloading: %w", err)
	}
	if err := d.Run.Run(ctx, "systemctl", "reload", "nginx"); err != nil {
		d.Log.Warn("reload failed, restarting nginx", zap.Error(err))
		if err := d.Run.Run(ctx, "systemctl", "restart", "nginx"); err != nil {
			return fmt.Errorf("restart nginx: %w", err)
		}
	}
	return nil
}
