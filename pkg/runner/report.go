package runner

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// sanitizeName makes a plan name safe for use in a filename. Spaces
// become underscores and the remaining unsafe characters are dropped.
func sanitizeName(name string) string {
	s := strings.ReplaceAll(name, " ", "_")
	s = unsafeNameChars.ReplaceAllString(s, "")
	if s == "" {
		s = "unnamed"
	}
	return s
}

// ReportFilename builds the timestamped report name for a run.
func ReportFilename(now time.Time) string {
	return fmt.Sprintf("test_execution_report_%s.json", now.Format("20060102_150405"))
}

// LogFilename builds the historical log name for a plan run.
func LogFilename(planName string, now time.Time) string {
	return fmt.Sprintf("log_%s_%s.json", sanitizeName(planName), now.Format("2006-01-02_15_04"))
}

// WriteReport persists one or more plan reports as a single run report
// file and returns its path. Report files are immutable once written.
func WriteReport(dir string, reports []*PlanReport) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, ReportFilename(time.Now()))

	data, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}

// NewExecutionLog wraps a plan report with run identity metadata.
func NewExecutionLog(report *PlanReport, startedAt time.Time, commandLine string) *ExecutionLog {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	return &ExecutionLog{
		ExecutionID: uuid.NewString(),
		CurrentUser: username,
		CommandLine: commandLine,
		StartedAt:   startedAt,
		Duration:    time.Since(startedAt).String(),
		PlanReport:  *report,
	}
}

// WriteExecutionLog persists the historical log entry for one plan run.
func WriteExecutionLog(dir string, log *ExecutionLog) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, LogFilename(log.PlanName, log.StartedAt))

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode execution log: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("write execution log: %w", err)
	}
	return path, nil
}
