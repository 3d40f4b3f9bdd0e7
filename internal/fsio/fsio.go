// Package fsio has the small filesystem primitives shared by the config
// writers: content-compared writes, symlink reconciliation.
package fsio

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
)

// Exists reports whether path exists at all.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteFileIfChanged writes data to path only when the current content
// differs, creating parent directories as needed. It reports whether the
// file was written.
func WriteFileIfChanged(path string, data []byte, mode os.FileMode) (bool, error) {
	current, err := os.ReadFile(path)
	if err == nil && bytes.Equal(current, data) {
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, mode); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureSymlink makes link point at target, replacing a wrong or dangling
// link. It reports whether anything changed.
func EnsureSymlink(target, link string) (bool, error) {
	current, err := os.Readlink(link)
	if err == nil && current == target {
		return false, nil
	}
	if _, lerr := os.Lstat(link); lerr == nil {
		if rerr := os.Remove(link); rerr != nil {
			return false, rerr
		}
	}
	if err := os.MkdirAll(filepath.Dir(link), 0o755); err != nil {
		return false, err
	}
	if err := os.Symlink(target, link); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes path, treating a missing file as success.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
