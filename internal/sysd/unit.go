// Package sysd writes the application's systemd unit and drives it over
// D-Bus, with a systemctl fallback for hosts where the bus is unreachable.
package sysd

import (
	"fmt"
	"io"
	"strconv"

	"github.com/coreos/go-systemd/v22/unit"
)

// DefaultUnitDir is where unit files are installed.
const DefaultUnitDir = "/etc/systemd/system"

// AppUnit describes the service launching the application server.
type AppUnit struct {
	Name            string
	Description     string
	User            string
	WorkingDir      string
	EnvironmentFile string
	ExecStart       string
	RestartSec      int
	StdoutPath      string
	StderrPath      string
}

// UnitName returns the full unit file name.
func (u AppUnit) UnitName() string {
	return u.Name + ".service"
}

// Render serializes the unit file.
func (u AppUnit) Render() ([]byte, error) {
	if u.Name == "" {
		return nil, fmt.Errorf("unit name is required")
	}
	if u.ExecStart == "" {
		return nil, fmt.Errorf("unit %s: ExecStart is required", u.Name)
	}
	restartSec := u.RestartSec
	if restartSec == 0 {
		restartSec = 10
	}

	opts := []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", u.Description),
		unit.NewUnitOption("Unit", "After", "network.target"),
		unit.NewUnitOption("Service", "Type", "simple"),
	}
	if u.User != "" {
		opts = append(opts, unit.NewUnitOption("Service", "User", u.User))
	}
	if u.WorkingDir != "" {
		opts = append(opts, unit.NewUnitOption("Service", "WorkingDirectory", u.WorkingDir))
	}
	if u.EnvironmentFile != "" {
		opts = append(opts, unit.NewUnitOption("Service", "EnvironmentFile", "-"+u.EnvironmentFile))
	}
	opts = append(opts,
		unit.NewUnitOption("Service", "ExecStart", u.ExecStart),
		unit.NewUnitOption("Service", "Restart", "always"),
		unit.NewUnitOption("Service", "RestartSec", strconv.Itoa(restartSec)),
	)
	if u.StdoutPath != "" {
		opts = append(opts, unit.NewUnitOption("Service", "StandardOutput", "append:"+u.StdoutPath))
	}
	if u.StderrPath != "" {
		opts = append(opts, unit.NewUnitOption("Service", "StandardError", "append:"+u.StderrPath))
	}
	opts = append(opts, unit.NewUnitOption("Install", "WantedBy", "multi-user.target"))

	return io.ReadAll(unit.Serialize(opts))
}
