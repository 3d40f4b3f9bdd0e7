package provision

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/GandemaAR/pideploy/internal/backup"
	"github.com/GandemaAR/pideploy/internal/cli/config"
	"github.com/GandemaAR/pideploy/internal/nginx"
	"github.com/GandemaAR/pideploy/internal/pkgmgr"
	"github.com/GandemaAR/pideploy/internal/pyenv"
	"github.com/GandemaAR/pideploy/internal/run"
	"github.com/GandemaAR/pideploy/internal/scaffold"
	"github.com/GandemaAR/pideploy/internal/sysd"
)

// Options tune a provisioning run.
type Options struct {
	Upgrade      bool
	SkipPackages bool
	SkipBackup   bool
	SettleDelay  time.Duration
	JournalLines int
}

// Provisioner assembles the pipeline for one site.
type Provisioner struct {
	SiteName string
	Site     *config.Site
	Log      *zap.Logger
	Out      io.Writer
	Opts     Options

	host run.Runner

	apt      *pkgmgr.Manager
	pkgcfg   *pkgmgr.PkgConfigResolver
	web      *nginx.Deployer
	units    *sysd.Manager
	archiver *backup.Archiver
}

// NewProvisioner wires the components for site. The apt frontend always
// runs non-interactive.
func NewProvisioner(name string, site *config.Site, log *zap.Logger, out io.Writer, opts Options) *Provisioner {
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	host := run.NewHost(log, "DEBIAN_FRONTEND=noninteractive")

	apt := pkgmgr.NewManager(host, log)
	units := sysd.NewManager(host, log)
	if opts.SettleDelay > 0 {
		units.SettleDelay = opts.SettleDelay
	}

	return &Provisioner{
		SiteName: name,
		Site:     site,
		Log:      log,
		Out:      out,
		Opts:     opts,
		host:     host,
		apt:      apt,
		pkgcfg:   pkgmgr.NewPkgConfigResolver(apt, host, log),
		web:      nginx.NewDeployer(host, log),
		units:    units,
		archiver: backup.NewArchiver(log),
	}
}

// EnvFilePath returns the unit's environment file location.
func (p *Provisioner) EnvFilePath() string {
	return filepath.Join("/etc/default", p.SiteName)
}

// NginxSite returns the rendered-site input for the provisioned app.
func (p *Provisioner) NginxSite() nginx.Site {
	return nginx.Site{
		Name:           p.SiteName,
		ServerName:     p.Site.Domain,
		ListenPort:     p.Site.ListenPort,
		BackendHost:    p.Site.BackendHost,
		BackendPort:    p.Site.BackendPort,
		TimeoutSeconds: p.Site.TimeoutSeconds,
		MaxBodySize:    p.Site.MaxBodySize,
	}
}

// AppUnit returns the systemd unit description for the provisioned app.
func (p *Provisioner) AppUnit() sysd.AppUnit {
	gunicorn := filepath.Join(p.Site.VenvDir, "bin", "gunicorn")
	gunicornCfg := filepath.Join(p.Site.AppDir, "gunicorn_config.py")
	return sysd.AppUnit{
		Name:            p.SiteName,
		Description:     fmt.Sprintf("%s web application (gunicorn)", p.SiteName),
		User:            p.Site.User,
		WorkingDir:      p.Site.AppDir,
		EnvironmentFile: p.EnvFilePath(),
		ExecStart:       fmt.Sprintf("%s --config %s %s", gunicorn, gunicornCfg, p.Site.WSGIApp),
		RestartSec:      10,
		StdoutPath:      filepath.Join(p.Site.LogDir, p.SiteName+".out.log"),
		StderrPath:      filepath.Join(p.Site.LogDir, p.SiteName+".err.log"),
	}
}

// App returns the scaffold description for the provisioned application.
func (p *Provisioner) App() scaffold.App {
	return scaffold.App{
		Name:        p.SiteName,
		Dir:         p.Site.AppDir,
		EntryPoint:  p.Site.EntryPoint,
		BackendHost: p.Site.BackendHost,
		BackendPort: p.Site.BackendPort,
		Workers:     p.Site.Workers,
		LogDir:      p.Site.LogDir,
		Log:         p.Log,
	}
}

// Pipeline builds the full step sequence.
func (p *Provisioner) Pipeline() *Pipeline {
	pipe := NewPipeline(p.Log, p.Out)

	pipe.Add("preflight", true, p.stepPreflight)
	if !p.Opts.SkipPackages {
		pipe.Add("install OS packages", true, p.stepPackages)
		pipe.Add("resolve pkg-config", false, p.stepPkgConfig)
	}
	if !p.Opts.SkipBackup {
		pipe.Add("snapshot existing config", false, p.stepSnapshot)
	}
	pipe.Add("write nginx site", true, p.stepNginx)
	pipe.Add("write systemd unit", true, p.stepUnit)
	pipe.Add("scaffold application", true, p.stepScaffold)
	pipe.Add("install python dependencies", true, p.stepPython)
	pipe.Add("activate services", true, p.stepActivate)

	return pipe
}

func (p *Provisioner) stepPreflight(ctx context.Context) (string, []string, error) {
	if _, err := p.host.LookPath("apt-get"); err != nil {
		return "", nil, fmt.Errorf("apt-get not found, unsupported distribution")
	}
	info, err := DetectHost(ctx, p.host)
	if err != nil {
		return "", nil, err
	}
	var warnings []string
	if !info.IsDebianLike() {
		warnings = append(warnings, fmt.Sprintf("untested distribution %q, continuing anyway", info.PrettyName))
	}
	if err := p.apt.Update(ctx); err != nil {
		return "", warnings, err
	}
	if p.Opts.Upgrade {
		if err := p.apt.Upgrade(ctx); err != nil {
			warnings = append(warnings, fmt.Sprintf("package upgrade failed: %v", err))
		}
	}
	return fmt.Sprintf("%s (%s)", info.PrettyName, info.Arch), warnings, nil
}

func (p *Provisioner) stepPackages(ctx context.Context) (string, []string, error) {
	pkgs := make([]pkgmgr.Package, 0, len(p.Site.Packages))
	for _, sp := range p.Site.Packages {
		pkgs = append(pkgs, pkgmgr.Package{Name: sp.Name, Optional: sp.Optional})
	}
	skipped, err := p.apt.InstallAll(ctx, pkgs)
	if err != nil {
		return "", nil, err
	}
	var warnings []string
	for _, name := range skipped {
		warnings = append(warnings, "optional package not installed: "+name)
	}
	return fmt.Sprintf("%d packages", len(pkgs)), warnings, nil
}

func (p *Provisioner) stepPkgConfig(ctx context.Context) (string, []string, error) {
	if err := p.pkgcfg.Ensure(ctx); err != nil {
		return "", nil, err
	}
	return "pkg-config available", nil, nil
}

func (p *Provisioner) stepSnapshot(ctx context.Context) (string, []string, error) {
	label := fmt.Sprintf("%s-%d", p.SiteName, time.Now().Unix())
	archive, err := p.archiver.Snapshot(label, []string{
		p.web.SitePath(p.SiteName),
		filepath.Join(p.web.EnabledDir, p.SiteName),
		p.units.UnitPath(p.AppUnit()),
		p.EnvFilePath(),
	})
	if err != nil {
		return "", nil, err
	}
	if archive == "" {
		return "nothing to snapshot", nil, nil
	}
	return archive, nil, nil
}

func (p *Provisioner) stepNginx(ctx context.Context) (string, []string, error) {
	changed, err := p.web.Install(p.NginxSite())
	if err != nil {
		return "", nil, err
	}
	if err := p.web.DisableDefault(); err != nil {
		return "", nil, err
	}
	enabled, err := p.web.Enable(p.SiteName)
	if err != nil {
		return "", nil, err
	}
	if !changed && !enabled {
		return "unchanged", nil, nil
	}
	return "site updated", nil, nil
}

func (p *Provisioner) stepUnit(ctx context.Context) (string, []string, error) {
	changed, err := p.units.WriteUnit(p.AppUnit())
	if err != nil {
		return "", nil, err
	}
	envChanged, err := scaffold.WriteEnvFile(p.EnvFilePath(), map[string]string{
		"PYTHONUNBUFFERED": "1",
		"FLASK_ENV":        "production",
	})
	if err != nil {
		return "", nil, err
	}
	if !changed && !envChanged {
		return "unchanged", nil, nil
	}
	return "unit updated", nil, nil
}

func (p *Provisioner) stepScaffold(ctx context.Context) (string, []string, error) {
	app := p.App()
	if err := app.EnsureDirs(); err != nil {
		return "", nil, err
	}
	created, err := app.EnsureEntryPoint()
	if err != nil {
		return "", nil, err
	}
	if _, err := app.EnsureGunicornConfig(); err != nil {
		return "", nil, err
	}
	var warnings []string
	if p.Site.User != "" {
		if err := p.host.Run(ctx, "chown", "-R", p.Site.User+":"+p.Site.User, p.Site.AppDir, p.Site.LogDir); err != nil {
			warnings = append(warnings, fmt.Sprintf("chown to %s failed: %v", p.Site.User, err))
		}
	}
	if created {
		return "placeholder app written", warnings, nil
	}
	return "entry point present", warnings, nil
}

func (p *Provisioner) stepPython(ctx context.Context) (string, []string, error) {
	// pip runs with the activation marker set and the venv first on PATH.
	pipHost := run.NewHost(p.Log,
		"VIRTUAL_ENV="+p.Site.VenvDir,
		"PATH="+filepath.Join(p.Site.VenvDir, "bin")+":"+defaultPath(),
	)
	venv := pyenv.NewVenv(p.Site.VenvDir, pipHost, p.Log)
	installer := pyenv.NewInstaller(venv, p.Site.Requirements, p.Log)
	installer.Critical = p.Site.Critical

	report, err := installer.Ensure(ctx)
	if err != nil {
		return "", nil, err
	}
	var warnings []string
	for _, name := range report.Failed {
		warnings = append(warnings, "dependency not installed: "+name)
	}
	return fmt.Sprintf("%d dependencies verified", len(report.Verified)), warnings, nil
}

func (p *Provisioner) stepActivate(ctx context.Context) (string, []string, error) {
	if err := p.web.Reload(ctx); err != nil {
		return "", nil, err
	}
	unitName := p.AppUnit().UnitName()
	if err := p.units.EnableAndRestart(ctx, unitName); err != nil {
		return "", nil, err
	}
	if err := p.units.WaitActive(ctx, unitName); err != nil {
		diag := p.units.Diagnose(ctx, unitName, p.Opts.JournalLines)
		if diag != "" {
			fmt.Fprintln(p.Out, strings.TrimRight(diag, "\n"))
		}
		return "", nil, err
	}
	return unitName + " active", nil, nil
}

func defaultPath() string {
	return "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
}
