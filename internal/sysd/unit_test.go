package sysd

import (
	"strings"
	"testing"
)

func testUnit() AppUnit {
	return AppUnit{
		Name:            "bangre",
		Description:     "bangre web application (gunicorn)",
		User:            "dietpi",
		WorkingDir:      "/home/dietpi/bangre",
		EnvironmentFile: "/etc/default/bangre",
		ExecStart:       "/home/dietpi/bangre/venv/bin/gunicorn --config /home/dietpi/bangre/gunicorn_config.py app:app",
		StdoutPath:      "/home/dietpi/logs/bangre.out.log",
		StderrPath:      "/home/dietpi/logs/bangre.err.log",
	}
}

func TestAppUnitRender(t *testing.T) {
	data, err := testUnit().Render()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := string(data)
	for _, want := range []string{
		"[Unit]",
		"After=network.target",
		"[Service]",
		"Type=simple",
		"User=dietpi",
		"WorkingDirectory=/home/dietpi/bangre",
		"EnvironmentFile=-/etc/default/bangre",
		"Restart=always",
		"RestartSec=10",
		"StandardOutput=append:/home/dietpi/logs/bangre.out.log",
		"StandardError=append:/home/dietpi/logs/bangre.err.log",
		"[Install]",
		"WantedBy=multi-user.target",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("rendered unit missing %q:\n%s", want, out)
		}
	}
}

func TestAppUnitRenderOmitsEmptySettings(t *testing.T) {
	u := AppUnit{Name: "app", ExecStart: "/usr/bin/true"}
	data, err := u.Render()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := string(data)
	for _, unwanted := range []string{"User=", "WorkingDirectory=", "EnvironmentFile=", "StandardOutput="} {
		if strings.Contains(out, unwanted) {
			t.Fatalf("rendered unit has unexpected %q:\n%s", unwanted, out)
		}
	}
}

func TestAppUnitRenderValidation(t *testing.T) {
	if _, err := (AppUnit{ExecStart: "/usr/bin/true"}).Render(); err == nil {
		t.Fatalf("expected error for a missing unit name")
	}
	if _, err := (AppUnit{Name: "app"}).Render(); err == nil {
		t.Fatalf("expected error for a missing ExecStart")
	}
}

func TestUnitName(t *testing.T) {
	if got := testUnit().UnitName(); got != "bangre.service" {
		t.Fatalf("got %q, want bangre.service", got)
	}
}
