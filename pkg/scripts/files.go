package scripts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// registerFiles adds the files/ script group: existence, permission and
// ownership checks plus file creation.
func registerFiles(r *Registry) {
	r.Register(&Entry{
		Script:      "files/check_files",
		Function:    "check_file",
		Description: "Check that a file exists and optionally verify its permissions, owner, and group",
		Params: []ParamSpec{
			{Name: "file_path", Required: true, Description: "Path of the file to check"},
			{Name: "expected_permission", Description: "Octal permission string, e.g. 644"},
			{Name: "expected_owner", Description: "Expected owning user (unix only)"},
			{Name: "expected_group", Description: "Expected owning group (unix only)"},
		},
		Fn: checkFile,
	})
	r.Register(&Entry{
		Script:      "files/create_file",
		Function:    "create_file",
		Description: "Create a file with optional content and permissions, supporting <tmp> locations",
		Params: []ParamSpec{
			{Name: "file_path", Required: true, Description: "Path where the file is created"},
			{Name: "content", Description: "Content to write"},
			{Name: "permissions", Description: "Octal permission string, e.g. 600"},
			{Name: "ensure_parent_dirs", Description: "Create missing parent directories (default true)"},
		},
		Fn: createFile,
	})
}

func checkFile(ctx context.Context, params map[string]any) *Result {
	filePath, _ := stringParam(params, "file_path")

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Result{
				Stderr:     fmt.Sprintf("File does not exist: %s", filePath),
				ReturnCode: CodeFailed,
			}
		}
		return execError(err)
	}

	if want, ok := stringParam(params, "expected_permission"); ok && want != "" {
		actual := strconv.FormatUint(uint64(info.Mode().Perm()), 8)
		// Left-pad to three digits so 0o44 compares as "044".
		for len(actual) < 3 {
			actual = "0" + actual
		}
		if actual != want {
			return &Result{
				Stderr:     fmt.Sprintf("Permission mismatch. Expected: %s, Actual: %s", want, actual),
				ReturnCode: CodeFailed,
			}
		}
	}

	owner, group, err := fileOwnership(info)
	if err != nil {
		return execError(err)
	}
	if want, ok := stringParam(params, "expected_owner"); ok && want != "" {
		if owner != want {
			return &Result{
				Stderr:     fmt.Sprintf("Owner mismatch. Expected: %s, Actual: %s", want, owner),
				ReturnCode: CodeFailed,
			}
		}
	}
	if want, ok := stringParam(params, "expected_group"); ok && want != "" {
		if group != want {
			return &Result{
				Stderr:     fmt.Sprintf("Group mismatch. Expected: %s, Actual: %s", want, group),
				ReturnCode: CodeFailed,
			}
		}
	}

	out := fmt.Sprintf("File check passed: %s", filePath)
	if p, ok := stringParam(params, "expected_permission"); ok && p != "" {
		out += fmt.Sprintf(" (permissions: %s)", p)
	}
	if o, ok := stringParam(params, "expected_owner"); ok && o != "" {
		out += fmt.Sprintf(" (owner: %s)", o)
	}
	if g, ok := stringParam(params, "expected_group"); ok && g != "" {
		out += fmt.Sprintf(" (group: %s)", g)
	}
	return &Result{Stdout: out, ReturnCode: CodeOK}
}

func createFile(ctx context.Context, params map[string]any) *Result {
	filePath, _ := stringParam(params, "file_path")
	content, _ := stringParam(params, "content")

	ensureParents, err := boolParam(params, "ensure_parent_dirs", true)
	if err != nil {
		return paramError("%v", err)
	}

	if ensureParents {
		if dir := filepath.Dir(filePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return &Result{
					Stderr:     fmt.Sprintf("Failed to create file %s: %v", filePath, err),
					Exception:  err.Error(),
					ReturnCode: CodeError,
				}
			}
		}
	}

	if err := os.WriteFile(filePath, []byte(content), 0o644); err != nil {
		return &Result{
			Stderr:     fmt.Sprintf("Failed to create file %s: %v", filePath, err),
			Exception:  err.Error(),
			ReturnCode: CodeError,
		}
	}

	out := fmt.Sprintf("File created: %s", filePath)
	if perm, ok := stringParam(params, "permissions"); ok && perm != "" {
		mode, err := strconv.ParseUint(perm, 8, 32)
		if err != nil {
			return paramError("parameter %q is not an octal mode: %q", "permissions", perm)
		}
		if err := os.Chmod(filePath, os.FileMode(mode)); err != nil {
			return &Result{
				Stderr:     fmt.Sprintf("Failed to set permissions on %s: %v", filePath, err),
				Exception:  err.Error(),
				ReturnCode: CodeError,
			}
		}
		out = fmt.Sprintf("File created with permissions %s: %s", perm, filePath)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return execError(err)
	}
	out += fmt.Sprintf(" (size: %d bytes)", info.Size())
	if content != "" {
		out += fmt.Sprintf(" with content: '%s'", content)
	}
	return &Result{Stdout: out, ReturnCode: CodeOK}
}
