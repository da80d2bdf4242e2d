package scripts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var gitAuthParams = []ParamSpec{
	{Name: "clear_git_configs", Description: "Unset GIT_CONFIG_GLOBAL/GIT_CONFIG_SYSTEM for the operation"},
	{Name: "auth_username", Description: "Username for HTTP basic authentication"},
	{Name: "auth_password", Description: "Password for HTTP basic authentication"},
	{Name: "auth_type", Description: "none or basic"},
}

func registerGit(r *Registry) {
	r.Register(&Entry{
		Script:      "git/git_operations",
		Function:    "git_clone",
		Description: "Clone a Git repository, optionally with HTTP basic authentication",
		Params: append([]ParamSpec{
			{Name: "repo_url", Required: true, Description: "Repository URL to clone"},
			{Name: "target_dir", Required: true, Description: "Directory to clone into"},
		}, gitAuthParams...),
		Fn: gitClone,
	})
	r.Register(&Entry{
		Script:      "git/git_operations",
		Function:    "git_validate_connectivity",
		Description: "Validate connectivity to a Git repository with ls-remote",
		Params: append([]ParamSpec{
			{Name: "repo_url", Required: true, Description: "Repository URL to probe"},
		}, gitAuthParams...),
		Fn: gitValidateConnectivity,
	})
	r.Register(&Entry{
		Script:      "git/git_operations",
		Function:    "git_push_file",
		Description: "Add, commit, and push a file in a Git repository",
		Params: append([]ParamSpec{
			{Name: "repo_dir", Required: true, Description: "Path to the repository working tree"},
			{Name: "file_path", Required: true, Description: "File to add, relative to repo_dir or absolute"},
			{Name: "commit_message", Required: true, Description: "Commit message"},
		}, gitAuthParams...),
		Fn: gitPushFile,
	})
	r.Register(&Entry{
		Script:      "git/git_operations",
		Function:    "git_delete_file",
		Description: "Remove a file from a Git repository and push the deletion",
		Params: append([]ParamSpec{
			{Name: "repo_dir", Required: true, Description: "Path to the repository working tree"},
			{Name: "file_path", Required: true, Description: "File to remove"},
			{Name: "commit_message", Required: true, Description: "Commit message"},
		}, gitAuthParams...),
		Fn: gitDeleteFile,
	})
}

// authenticatedURL embeds basic credentials into an https remote URL.
// Non-https URLs pass through unchanged.
func authenticatedURL(repoURL string, params map[string]any) string {
	authType, _ := stringParam(params, "auth_type")
	username, _ := stringParam(params, "auth_username")
	password, _ := stringParam(params, "auth_password")
	if authType != "basic" || username == "" || password == "" {
		return repoURL
	}
	if !strings.HasPrefix(repoURL, "https://") {
		return repoURL
	}
	return fmt.Sprintf("https://%s:%s@%s", username, password, strings.TrimPrefix(repoURL, "https://"))
}

// scrubCredentials removes an embedded password from command output so
// step records never carry secrets.
func scrubCredentials(s, password string) string {
	if password == "" {
		return s
	}
	return strings.ReplaceAll(s, password, "***")
}

// withClearedGitConfigs runs fn with GIT_CONFIG_GLOBAL and
// GIT_CONFIG_SYSTEM unset when requested, restoring them afterwards.
func withClearedGitConfigs(params map[string]any, fn func() *Result) *Result {
	clearConfigs, err := boolParam(params, "clear_git_configs", false)
	if err != nil {
		return paramError("%v", err)
	}
	if !clearConfigs {
		return fn()
	}
	savedGlobal, hadGlobal := os.LookupEnv("GIT_CONFIG_GLOBAL")
	savedSystem, hadSystem := os.LookupEnv("GIT_CONFIG_SYSTEM")
	os.Unsetenv("GIT_CONFIG_GLOBAL")
	os.Unsetenv("GIT_CONFIG_SYSTEM")
	defer func() {
		if hadGlobal {
			os.Setenv("GIT_CONFIG_GLOBAL", savedGlobal)
		}
		if hadSystem {
			os.Setenv("GIT_CONFIG_SYSTEM", savedSystem)
		}
	}()
	return fn()
}

// runGit delegates to executeCommand so shell selection and timeout
// handling stay in one place.
func runGit(ctx context.Context, command, runLocation string, timeoutSec int) *Result {
	params := map[string]any{
		"command": command,
		"timeout": timeoutSec,
	}
	if runLocation != "" {
		params["run_location"] = runLocation
	}
	return executeCommand(ctx, params)
}

func gitClone(ctx context.Context, params map[string]any) *Result {
	repoURL, _ := stringParam(params, "repo_url")
	targetDir, _ := stringParam(params, "target_dir")
	password, _ := stringParam(params, "auth_password")

	return withClearedGitConfigs(params, func() *Result {
		if err := os.MkdirAll(targetDir, 0o755); err != nil {
			return execError(err)
		}
		cmd := fmt.Sprintf(`git clone "%s" "%s"`, authenticatedURL(repoURL, params), targetDir)
		res := runGit(ctx, cmd, "", 300)
		res.Stdout = scrubCredentials(res.Stdout, password)
		res.Stderr = scrubCredentials(res.Stderr, password)
		res.Exception = scrubCredentials(res.Exception, password)
		if res.ReturnCode != 0 && res.Exception == "" {
			res.ReturnCode = CodeFailed
		}
		return res
	})
}

func gitValidateConnectivity(ctx context.Context, params map[string]any) *Result {
	repoURL, _ := stringParam(params, "repo_url")
	password, _ := stringParam(params, "auth_password")

	return withClearedGitConfigs(params, func() *Result {
		cmd := fmt.Sprintf(`git ls-remote "%s"`, authenticatedURL(repoURL, params))
		res := runGit(ctx, cmd, "", 60)
		res.Stdout = scrubCredentials(res.Stdout, password)
		res.Stderr = scrubCredentials(res.Stderr, password)
		res.Exception = scrubCredentials(res.Exception, password)
		if res.ReturnCode != 0 && res.Exception == "" {
			res.ReturnCode = CodeFailed
		}
		return res
	})
}

func gitPushFile(ctx context.Context, params map[string]any) *Result {
	repoDir, _ := stringParam(params, "repo_dir")
	filePath, _ := stringParam(params, "file_path")
	message, _ := stringParam(params, "commit_message")

	return withClearedGitConfigs(params, func() *Result {
		if _, err := os.Stat(filepath.Join(repoDir, ".git")); err != nil {
			return &Result{
				Stderr:     fmt.Sprintf("Not a Git repository: %s", repoDir),
				ReturnCode: CodeFailed,
			}
		}
		abs := filePath
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(repoDir, filePath)
		}
		if _, err := os.Stat(abs); err != nil {
			return &Result{
				Stderr:     fmt.Sprintf("File does not exist: %s", abs),
				ReturnCode: CodeFailed,
			}
		}

		add := runGit(ctx, fmt.Sprintf(`git add "%s"`, filePath), repoDir, 60)
		if add.ReturnCode != 0 {
			return &Result{
				Stderr:     fmt.Sprintf("Failed to add file: %s", add.Stderr),
				ReturnCode: CodeFailed,
			}
		}
		commit := runGit(ctx, fmt.Sprintf(`git commit -m "%s"`, message), repoDir, 60)
		if commit.ReturnCode != 0 {
			return &Result{
				Stderr:     fmt.Sprintf("Failed to commit: %s", commit.Stderr),
				ReturnCode: CodeFailed,
			}
		}
		push := runGit(ctx, "git push", repoDir, 120)

		res := &Result{
			Stdout:    fmt.Sprintf("Add: %s\nCommit: %s\nPush: %s", add.Stdout, commit.Stdout, push.Stdout),
			Stderr:    fmt.Sprintf("Add: %s\nCommit: %s\nPush: %s", add.Stderr, commit.Stderr, push.Stderr),
			Exception: push.Exception,
		}
		if push.ReturnCode != 0 {
			res.ReturnCode = CodeFailed
		}
		return res
	})
}

func gitDeleteFile(ctx context.Context, params map[string]any) *Result {
	repoDir, _ := stringParam(params, "repo_dir")
	filePath, _ := stringParam(params, "file_path")
	message, _ := stringParam(params, "commit_message")

	return withClearedGitConfigs(params, func() *Result {
		if _, err := os.Stat(filepath.Join(repoDir, ".git")); err != nil {
			return &Result{
				Stderr:     fmt.Sprintf("Not a Git repository: %s", repoDir),
				ReturnCode: CodeFailed,
			}
		}

		remove := runGit(ctx, fmt.Sprintf(`git rm "%s"`, filePath), repoDir, 60)
		if remove.ReturnCode != 0 {
			return &Result{
				Stderr:     fmt.Sprintf("Failed to remove file: %s", remove.Stderr),
				ReturnCode: CodeFailed,
			}
		}
		commit := runGit(ctx, fmt.Sprintf(`git commit -m "%s"`, message), repoDir, 60)
		if commit.ReturnCode != 0 {
			return &Result{
				Stderr:     fmt.Sprintf("Failed to commit: %s", commit.Stderr),
				ReturnCode: CodeFailed,
			}
		}
		push := runGit(ctx, "git push", repoDir, 120)

		res := &Result{
			Stdout:    fmt.Sprintf("Remove: %s\nCommit: %s\nPush: %s", remove.Stdout, commit.Stdout, push.Stdout),
			Stderr:    fmt.Sprintf("Remove: %s\nCommit: %s\nPush: %s", remove.Stderr, commit.Stderr, push.Stderr),
			Exception: push.Exception,
		}
		if push.ReturnCode != 0 {
			res.ReturnCode = CodeFailed
		}
		return res
	})
}
