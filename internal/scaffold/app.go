// Package scaffold writes the application-side files: a placeholder entry
// point when none exists, the generated gunicorn configuration, and the
// service environment file.
package scaffold

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/GandemaAR/pideploy/internal/fsio"
)

// App collects the values rendered into the scaffold files.
type App struct {
	Name        string
	Dir         string
	EntryPoint  string
	BackendHost string
	BackendPort int
	Workers     int
	LogDir      string
	Log         *zap.Logger
}

func (a App) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

// EntryPointPath returns the absolute entry-point path.
func (a App) EntryPointPath() string {
	entry := a.EntryPoint
	if entry == "" {
		entry = "app.py"
	}
	return filepath.Join(a.Dir, entry)
}

// GunicornConfigPath returns where the generated gunicorn config lives.
func (a App) GunicornConfigPath() string {
	return filepath.Join(a.Dir, "gunicorn_config.py")
}

// EnsureDirs creates the application and log directories.
func (a App) EnsureDirs() error {
	for _, dir := range []string{a.Dir, a.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// EnsureEntryPoint writes a minimal placeholder web app when the entry
// point is missing. An existing file is never touched.
func (a App) EnsureEntryPoint() (bool, error) {
	path := a.EntryPointPath()
	if fsio.Exists(path) {
		a.logger().Debug("entry point present", zap.String("path", path))
		return false, nil
	}
	a.logger().Info("writing placeholder application", zap.String("path", path))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, a.placeholderApp(), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func (a App) placeholderApp() []byte {
	port := a.BackendPort
	if port == 0 {
		port = 5000
	}
	var b bytes.Buffer
	fmt.Fprintf(&b, `from flask import Flask

app = Flask(__name__)


@app.route("/")
def index():
    return "%s is running"


if __name__ == "__main__":
    app.run(host="0.0.0.0", port=%d)
`, a.Name, port)
	return b.Bytes()
}

// GunicornConfig renders the gunicorn configuration file contents.
func (a App) GunicornConfig() []byte {
	host := a.BackendHost
	if host == "" {
		host = "127.0.0.1"
	}
	port := a.BackendPort
	if port == 0 {
		port = 5000
	}
	workers := a.Workers
	if workers == 0 {
		workers = 2
	}
	logDir := a.LogDir
	if logDir == "" {
		logDir = a.Dir
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "bind = %q\n", fmt.Sprintf("%s:%d", host, port))
	fmt.Fprintf(&b, "workers = %d\n", workers)
	b.WriteString("worker_class = \"sync\"\n")
	b.WriteString("timeout = 120\n")
	fmt.Fprintf(&b, "accesslog = %q\n", filepath.Join(logDir, "gunicorn_access.log"))
	fmt.Fprintf(&b, "errorlog = %q\n", filepath.Join(logDir, "gunicorn_error.log"))
	b.WriteString("capture_output = True\n")
	b.WriteString("loglevel = \"info\"\n")
	return b.Bytes()
}

// EnsureGunicornConfig reconciles the generated gunicorn configuration and
// reports whether it changed.
func (a App) EnsureGunicornConfig() (bool, error) {
	changed, err := fsio.WriteFileIfChanged(a.GunicornConfigPath(), a.GunicornConfig(), 0o644)
	if err != nil {
		return false, err
	}
	if changed {
		a.logger().Info("wrote gunicorn configuration", zap.String("path", a.GunicornConfigPath()))
	}
	return changed, nil
}

// WriteEnvFile reconciles a KEY=VALUE environment file, overlaying the
// managed keys while preserving any operator-added entries.
func WriteEnvFile(path string, managed map[string]string) (bool, error) {
	merged := map[string]string{}
	if data, err := os.ReadFile(path); err == nil {
		existing, perr := godotenv.Parse(bytes.NewReader(data))
		if perr != nil {
			return false, fmt.Errorf("parse env file %s: %w", path, perr)
		}
		for k, v := range existing {
			merged[k] = v
		}
	}
	for k, v := range managed {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, merged[k])
	}
	return fsio.WriteFileIfChanged(path, []byte(b.String()), 0o644)
}
