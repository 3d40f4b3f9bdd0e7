package pyenv

import (
	"errors"
	"os"
	"strings"
)

// Requirement is one parsed manifest line.
type Requirement struct {
	// Spec is the full specifier as written ("flask==3.0.2").
	Spec string
	// Name is the bare distribution name used for verification.
	Name string
}

// DefaultRequirements is what gets installed when no manifest exists.
func DefaultRequirements() []Requirement {
	return []Requirement{
		{Spec: "flask", Name: "flask"},
		{Spec: "gunicorn", Name: "gunicorn"},
	}
}

// ParseManifest reads requirement specifiers, one per line. Blank lines and
// #-comments are ignored; inline comments are stripped.
func ParseManifest(data []byte) []Requirement {
	var reqs []Requirement
	for _, raw := range strings.Split(string(data), "\n") {
		line := strings.TrimSpace(strings.TrimSuffix(raw, "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" {
			continue
		}
		reqs = append(reqs, Requirement{Spec: line, Name: specName(line)})
	}
	return reqs
}

// ReadManifest parses the manifest at path. A missing file returns
// (nil, nil).
func ReadManifest(path string) ([]Requirement, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ParseManifest(data), nil
}

// specName extracts the distribution name from a specifier, dropping
// version constraints, extras and environment markers.
func specName(spec string) string {
	name := spec
	if i := strings.Index(name, ";"); i >= 0 {
		name = name[:i]
	}
	for _, op := range []string{"==", ">=", "<=", "~=", "!=", ">", "<", "==="} {
		if i := strings.Index(name, op); i >= 0 {
			name = name[:i]
		}
	}
	if i := strings.Index(name, "["); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(strings.TrimSpace(name))
}
