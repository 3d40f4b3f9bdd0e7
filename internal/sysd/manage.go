package sysd

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"
	"github.com/coreos/go-systemd/v22/util"
	"go.uber.org/zap"

	"github.com/GandemaAR/pideploy/internal/fsio"
	"github.com/GandemaAR/pideploy/internal/run"
)

// DBusAPI is the subset of the systemd D-Bus connection the manager needs.
// Tests substitute a stub through the factory.
type DBusAPI interface {
	Reload() error
	EnableUnitFiles(files []string, runtime bool, force bool) (bool, []dbus.EnableUnitFileChange, error)
	RestartUnit(name string, mode string, ch chan<- string) (int, error)
	ListUnits() ([]dbus.UnitStatus, error)
	Close()
}

// NewDBusAPI is the production D-Bus connection factory.
var NewDBusAPI = func() (DBusAPI, error) {
	return dbus.New()
}

// Manager installs and activates the application unit.
type Manager struct {
	UnitDir     string
	Run         run.Runner
	Log         *zap.Logger
	NewDBus     func() (DBusAPI, error)
	SettleDelay time.Duration
}

// NewManager returns a Manager with the standard unit directory and a 3s
// settle delay before the activation poll.
func NewManager(r run.Runner, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		UnitDir:     DefaultUnitDir,
		Run:         r,
		Log:         log,
		NewDBus:     NewDBusAPI,
		SettleDelay: 3 * time.Second,
	}
}

// UnitPath returns where u's unit file is installed.
func (m *Manager) UnitPath(u AppUnit) string {
	return filepath.Join(m.UnitDir, u.UnitName())
}

// WriteUnit renders u and writes it only when content changed.
func (m *Manager) WriteUnit(u AppUnit) (bool, error) {
	data, err := u.Render()
	if err != nil {
		return false, err
	}
	path := m.UnitPath(u)
	changed, err := fsio.WriteFileIfChanged(path, data, 0o644)
	if err != nil {
		return false, fmt.Errorf("write unit %s: %w", path, err)
	}
	if changed {
		m.Log.Info("wrote unit file", zap.String("path", path))
	} else {
		m.Log.Debug("unit file unchanged", zap.String("path", path))
	}
	return changed, nil
}

// dbusAvailable reports whether systemd is the running init and a bus
// connection can be made.
func (m *Manager) dbusAvailable() bool {
	return util.IsRunningSystemd()
}

// EnableAndRestart enables the unit, reloads the daemon and restarts the
// service, over D-Bus when possible and through systemctl otherwise.
func (m *Manager) EnableAndRestart(ctx context.Context, unitName string) error {
	if !m.dbusAvailable() {
		return m.enableAndRestartCmdline(ctx, unitName)
	}
	conn, err := m.NewDBus()
	if err != nil {
		m.Log.Warn("dbus unavailable, falling back to systemctl", zap.Error(err))
		return m.enableAndRestartCmdline(ctx, unitName)
	}
	defer conn.Close()

	if err := conn.Reload(); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	unitPath := filepath.Join(m.UnitDir, unitName)
	if _, _, err := conn.EnableUnitFiles([]string{unitPath}, false, true); err != nil {
		return fmt.Errorf("enable %s: %w", unitName, err)
	}
	if err := conn.Reload(); err != nil {
		return fmt.Errorf("post-enable daemon-reload: %w", err)
	}

	statusCh := make(chan string, 1)
	if _, err := conn.RestartUnit(unitName, "replace", statusCh); err != nil {
		return fmt.Errorf("restart %s: %w", unitName, err)
	}
	if status := <-statusCh; status != "done" {
		return fmt.Errorf("restart %s finished with status %q", unitName, status)
	}
	return nil
}

func (m *Manager) enableAndRestartCmdline(ctx context.Context, unitName string) error {
	if err := m.Run.Run(ctx, "systemctl", "daemon-reload"); err != nil {
		return fmt.Errorf("daemon-reload: %w", err)
	}
	if err := m.Run.Run(ctx, "systemctl", "enable", unitName); err != nil {
		return fmt.Errorf("enable %s: %w", unitName, err)
	}
	if err := m.Run.Run(ctx, "systemctl", "restart", unitName); err != nil {
		return fmt.Errorf("restart %s: %w", unitName, err)
	}
	return nil
}

// ActiveState returns the unit's active state ("active", "failed", ...).
func (m *Manager) ActiveState(ctx context.Context, unitName string) (string, error) {
	if m.dbusAvailable() {
		if conn, err := m.NewDBus(); err == nil {
			defer conn.Close()
			units, err := conn.ListUnits()
			if err == nil {
				for _, u := range units {
					if u.Name == unitName {
						return u.ActiveState, nil
					}
				}
				return "inactive", nil
			}
			m.Log.Warn("dbus unit listing failed", zap.Error(err))
		}
	}
	// show exits zero even for inactive units, unlike is-active.
	out, err := m.Run.Output(ctx, "systemctl", "show", "-p", "ActiveState", "--value", unitName)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// WaitActive sleeps the settle delay, then polls the unit state once and a
// few more times across the remaining delay budget before giving up.
func (m *Manager) WaitActive(ctx context.Context, unitName string) error {
	timer := time.NewTimer(m.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	var state string
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		state, err = m.ActiveState(ctx, unitName)
		if err == nil && state == "active" {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		return fmt.Errorf("unit %s state unknown: %w", unitName, err)
	}
	return fmt.Errorf("unit %s is %s, expected active", unitName, state)
}

// Diagnose collects systemctl status and a journal tail for the unit.
func (m *Manager) Diagnose(ctx context.Context, unitName string, journalLines int) string {
	if journalLines <= 0 {
		journalLines = 50
	}
	var b strings.Builder
	if out, err := m.Run.Output(ctx, "systemctl", "status", unitName, "--no-pager", "-n", "20"); err == nil {
		b.WriteString(out)
		b.WriteString("\n")
	} else {
		fmt.Fprintf(&b, "systemctl status %s failed: %v\n", unitName, err)
	}
	if _, err := m.Run.LookPath("journalctl"); err == nil {
		if out, err := m.Run.Output(ctx, "journalctl", "-u", unitName, "--no-pager", "-n", strconv.Itoa(journalLines)); err == nil {
			b.WriteString(out)
			b.WriteString("\n")
		}
	}
	return b.String()
}
