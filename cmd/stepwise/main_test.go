package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stepwise-qa/stepwise/pkg/config"
	"github.com/stepwise-qa/stepwise/pkg/runner"
)

func TestPersistRunWritesReportAndLog(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ReportDir = filepath.Join(dir, "reports")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	reports := []*runner.PlanReport{{
		PlanName:  "My Plan",
		State:     runner.StateCompleted,
		Timestamp: time.Now(),
	}}

	reportPath, logPath, err := persistRun(cfg, &runner.Console{W: os.Stderr}, reports, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(reportPath); err != nil {
		t.Errorf("report file missing: %v", err)
	}
	if _, err := os.Stat(logPath); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestPersistRunFailsOnUnwritableReportDir(t *testing.T) {
	dir := t.TempDir()
	blocked := filepath.Join(dir, "reports")
	if err := os.WriteFile(blocked, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Paths.ReportDir = blocked
	cfg.Paths.LogDir = filepath.Join(dir, "logs")

	reports := []*runner.PlanReport{{
		PlanName:  "My Plan",
		State:     runner.StateCompleted,
		Timestamp: time.Now(),
	}}

	_, _, err := persistRun(cfg, &runner.Console{W: os.Stderr}, reports, time.Now())
	if err == nil {
		t.Fatal("expected an error when the report directory cannot be created")
	}
}
