package scripts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

func registerProcess(r *Registry) {
	r.Register(&Entry{
		Script:      "process/execute_command",
		Function:    "execute_command",
		Description: "Execute a local shell command with optional working directory, timeout, and output search",
		Params: []ParamSpec{
			{Name: "command", Required: true, Description: "Command line to execute"},
			{Name: "run_location", Description: "Working directory for the command"},
			{Name: "timeout", Description: "Timeout in seconds (default 30)"},
			{Name: "search_string", Description: "String that must appear in stdout or stderr"},
		},
		Fn: executeCommand,
	})
}

// shellCommand picks the platform shell. PowerShell on Windows, bash elsewhere.
func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "powershell", "-Command", command)
	}
	return exec.CommandContext(ctx, "bash", "-c", command)
}

func executeCommand(ctx context.Context, params map[string]any) *Result {
	command, _ := stringParam(params, "command")
	if command == "" {
		return &Result{Stderr: "Command parameter is required", ReturnCode: CodeParamError}
	}

	timeoutSec, err := intParam(params, "timeout", 30)
	if err != nil {
		return paramError("%v", err)
	}
	if timeoutSec <= 0 {
		timeoutSec = 30
	}

	var workDir string
	if loc, ok := stringParam(params, "run_location"); ok && loc != "" && loc != "None" {
		info, err := os.Stat(loc)
		if err != nil {
			return &Result{
				Stderr:     fmt.Sprintf("Working directory does not exist: %s", loc),
				ReturnCode: CodeParamError,
			}
		}
		if !info.IsDir() {
			return &Result{
				Stderr:     fmt.Sprintf("Working directory is not a directory: %s", loc),
				ReturnCode: CodeParamError,
			}
		}
		workDir = loc
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutSec)*time.Second)
	defer cancel()

	cmd := shellCommand(runCtx, command)
	cmd.Dir = workDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	res := &Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if runErr != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return &Result{
				Exception:  fmt.Sprintf("Command timed out after %d seconds", timeoutSec),
				ReturnCode: CodeError,
			}
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ReturnCode = exitErr.ExitCode()
		} else if errors.Is(runErr, exec.ErrNotFound) {
			return &Result{
				Exception:  fmt.Sprintf("Command or shell not found: %v", runErr),
				ReturnCode: CodeError,
			}
		} else {
			return &Result{Exception: runErr.Error(), ReturnCode: CodeError}
		}
	}

	searchString, _ := stringParam(params, "search_string")
	found := false
	if searchString != "" {
		normalize := func(s string) string {
			s = strings.TrimSpace(s)
			s = strings.ReplaceAll(s, "\r\n", " ")
			return strings.ReplaceAll(s, "\n", " ")
		}
		needle := strings.TrimSpace(searchString)
		found = strings.Contains(normalize(res.Stdout), needle) ||
			strings.Contains(normalize(res.Stderr), needle)
		if !found {
			res.Stderr += fmt.Sprintf("\nSearch string '%s' not found in output", searchString)
			res.ReturnCode = CodeFailed
		}
	}

	if res.ReturnCode == 0 && (searchString == "" || found) {
		res.Stdout = fmt.Sprintf("Command executed successfully: %s", command)
		if searchString != "" {
			res.Stdout += fmt.Sprintf(" (search string '%s' found)", searchString)
		}
	}
	return res
}
