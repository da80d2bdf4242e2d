package tmparea

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestResolveWithoutPlaceholderIsLazy(t *testing.T) {
	base := filepath.Join(t.TempDir(), "tmp_area")
	m := New(base)

	got, err := m.Resolve("/etc/hosts")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/etc/hosts" {
		t.Errorf("got %q", got)
	}
	if m.Created() {
		t.Error("run directory should not exist before first placeholder use")
	}
	if _, err := os.Stat(base); !os.IsNotExist(err) {
		t.Error("base directory should not be created eagerly")
	}
}

func TestResolveSharesOneDirectory(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "tmp_area"))

	first, err := m.Resolve("<tmp>/a.txt")
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Resolve("<tmp>/b.txt")
	if err != nil {
		t.Fatal(err)
	}

	if filepath.Dir(first) != filepath.Dir(second) {
		t.Errorf("resolutions landed in different directories: %q vs %q", first, second)
	}
	if strings.Contains(first, "<tmp>") {
		t.Errorf("placeholder survived: %q", first)
	}
	info, err := os.Stat(filepath.Dir(first))
	if err != nil {
		t.Fatal(err)
	}
	if !info.IsDir() {
		t.Error("run directory is not a directory")
	}
}

func TestResolveReplacesAllOccurrences(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "tmp_area"))

	got, err := m.Resolve("cp <tmp>/a <tmp>/b")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(got, "<tmp>") {
		t.Errorf("placeholder survived: %q", got)
	}
}

func TestCleanup(t *testing.T) {
	m := New(filepath.Join(t.TempDir(), "tmp_area"))

	if err := m.Cleanup(); err != nil {
		t.Fatalf("cleanup before use: %v", err)
	}

	p, err := m.Resolve("<tmp>/x")
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Dir(p)
	if err := m.Cleanup(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("run directory should be removed")
	}
	if m.Created() {
		t.Error("manager should report not created after cleanup")
	}
}
