// Package backup snapshots the configuration files a provisioning run is
// about to replace, one zstd-compressed tarball per run.
package backup

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

// DefaultDir is where snapshots are kept.
const DefaultDir = "/var/lib/pideploy/backup"

// Archiver writes snapshots under Dir.
type Archiver struct {
	Dir string
	Log *zap.Logger
}

func (a *Archiver) logger() *zap.Logger {
	if a.Log == nil {
		return zap.NewNop()
	}
	return a.Log
}

// NewArchiver returns an Archiver rooted at the default state directory.
func NewArchiver(log *zap.Logger) *Archiver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Archiver{Dir: DefaultDir, Log: log}
}

// Snapshot archives every existing path into <dir>/<label>.tar.zst. Paths
// that do not exist are skipped. It returns the archive path, or "" when
// nothing existed to snapshot.
func (a *Archiver) Snapshot(label string, paths []string) (string, error) {
	var present []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			present = append(present, p)
		}
	}
	if len(present) == 0 {
		a.logger().Debug("nothing to snapshot")
		return "", nil
	}

	if err := os.MkdirAll(a.Dir, 0o700); err != nil {
		return "", err
	}
	out := filepath.Join(a.Dir, label+".tar.zst")
	f, err := os.OpenFile(out, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return "", err
	}
	tw := tar.NewWriter(zw)

	for _, p := range present {
		if err := addFile(tw, p); err != nil {
			tw.Close()
			zw.Close()
			return "", fmt.Errorf("snapshot %s: %w", p, err)
		}
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	a.logger().Info("snapshot written", zap.String("archive", out), zap.Int("files", len(present)))
	return out, nil
}

func addFile(tw *tar.Writer, path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		// Symlinks (enabled sites) are stored as links.
		if info.Mode()&os.ModeSymlink == 0 {
			return errors.New("not a regular file or symlink")
		}
		target, err := os.Readlink(path)
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, target)
		if err != nil {
			return err
		}
		hdr.Name = archiveName(path)
		return tw.WriteHeader(hdr)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = archiveName(path)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	_, err = io.Copy(tw, in)
	return err
}

func archiveName(path string) string {
	return strings.TrimPrefix(filepath.ToSlash(path), "/")
}
