package scripts

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestCheckFileMissing(t *testing.T) {
	res := checkFile(context.Background(), map[string]any{
		"file_path": filepath.Join(t.TempDir(), "absent.txt"),
	})
	if res.ReturnCode != CodeFailed {
		t.Fatalf("returncode = %d, want %d", res.ReturnCode, CodeFailed)
	}
	if !strings.Contains(res.Stderr, "does not exist") {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestCheckFilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not faithful on windows")
	}
	p := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	res := checkFile(context.Background(), map[string]any{
		"file_path":           p,
		"expected_permission": "644",
	})
	if res.ReturnCode != CodeOK {
		t.Fatalf("returncode = %d, want 0 (stderr: %s)", res.ReturnCode, res.Stderr)
	}

	res = checkFile(context.Background(), map[string]any{
		"file_path":           p,
		"expected_permission": "600",
	})
	if res.ReturnCode != CodeFailed {
		t.Fatalf("returncode = %d, want %d", res.ReturnCode, CodeFailed)
	}
	if !strings.Contains(res.Stderr, "Permission mismatch") {
		t.Errorf("stderr = %q", res.Stderr)
	}
}

func TestCreateFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "sub", "out.txt")

	res := createFile(context.Background(), map[string]any{
		"file_path": p,
		"content":   "hello",
	})
	if res.ReturnCode != CodeOK {
		t.Fatalf("returncode = %d (stderr: %s, exception: %s)", res.ReturnCode, res.Stderr, res.Exception)
	}
	data, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("content = %q", data)
	}
}

func TestCreateFileWithPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits are not faithful on windows")
	}
	p := filepath.Join(t.TempDir(), "locked.txt")

	res := createFile(context.Background(), map[string]any{
		"file_path":   p,
		"permissions": "600",
	})
	if res.ReturnCode != CodeOK {
		t.Fatalf("returncode = %d (stderr: %s)", res.ReturnCode, res.Stderr)
	}
	info, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %o, want 600", info.Mode().Perm())
	}
}

func TestCreateFileBadPermissionString(t *testing.T) {
	res := createFile(context.Background(), map[string]any{
		"file_path":   filepath.Join(t.TempDir(), "f.txt"),
		"permissions": "not-octal",
	})
	if res.ReturnCode != CodeParamError {
		t.Fatalf("returncode = %d, want %d", res.ReturnCode, CodeParamError)
	}
}
