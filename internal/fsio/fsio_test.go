package fsio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileIfChangedCreatesAndSkips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "site.conf")

	changed, err := WriteFileIfChanged(path, []byte("server {}\n"), 0o644)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatalf("expected first write to report a change")
	}

	changed, err = WriteFileIfChanged(path, []byte("server {}\n"), 0o644)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatalf("expected identical content to be skipped")
	}

	changed, err = WriteFileIfChanged(path, []byte("server { listen 80; }\n"), 0o644)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatalf("expected new content to be written")
	}
}

func TestEnsureSymlinkCreatesAndRetargets(t *testing.T) {
	dir := t.TempDir()
	target1 := filepath.Join(dir, "a")
	target2 := filepath.Join(dir, "b")
	link := filepath.Join(dir, "enabled", "site")

	changed, err := EnsureSymlink(target1, link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatalf("expected link creation to report a change")
	}

	changed, err = EnsureSymlink(target1, link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if changed {
		t.Fatalf("expected correct link to be left alone")
	}

	changed, err = EnsureSymlink(target2, link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatalf("expected retarget to report a change")
	}
	got, err := os.Readlink(link)
	if err != nil {
		t.Fatalf("readlink: %v", err)
	}
	if got != target2 {
		t.Fatalf("link points at %q, want %q", got, target2)
	}
}

func TestEnsureSymlinkReplacesRegularFile(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "site")
	if err := os.WriteFile(link, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	changed, err := EnsureSymlink(filepath.Join(dir, "target"), link)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !changed {
		t.Fatalf("expected replacement to report a change")
	}
	if _, err := os.Readlink(link); err != nil {
		t.Fatalf("expected %s to be a symlink: %v", link, err)
	}
}

func TestRemoveMissingIsNotAnError(t *testing.T) {
	if err := Remove(filepath.Join(t.TempDir(), "gone")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
