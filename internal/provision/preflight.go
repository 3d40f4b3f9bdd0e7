package provision

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"

	"github.com/GandemaAR/pideploy/internal/run"
)

// osReleasePath is overridable in tests.
var osReleasePath = "/etc/os-release"

// HostInfo identifies the machine being provisioned.
type HostInfo struct {
	ID         string
	IDLike     string
	PrettyName string
	VersionID  string
	Arch       string
}

// DetectHost reads /etc/os-release and the machine architecture.
func DetectHost(ctx context.Context, r run.Runner) (*HostInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, fmt.Errorf("unsupported OS %s, Linux required", runtime.GOOS)
	}

	info := &HostInfo{}
	data, err := os.ReadFile(osReleasePath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", osReleasePath, err)
	}
	fields, err := godotenv.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", osReleasePath, err)
	}
	info.ID = fields["ID"]
	info.IDLike = fields["ID_LIKE"]
	info.PrettyName = fields["PRETTY_NAME"]
	info.VersionID = fields["VERSION_ID"]

	if arch, err := r.Output(ctx, "uname", "-m"); err == nil {
		info.Arch = arch
	} else {
		info.Arch = runtime.GOARCH
	}
	return info, nil
}

// IsDebianLike reports whether apt is the expected package manager.
func (h *HostInfo) IsDebianLike() bool {
	if h == nil {
		return false
	}
	ids := h.ID + " " + h.IDLike
	for _, id := range []string{"debian", "raspbian", "ubuntu", "dietpi"} {
		if strings.Contains(ids, id) {
			return true
		}
	}
	return false
}
