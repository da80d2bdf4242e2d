// Package runner orchestrates test-plan execution: validation, parameter
// and credential resolution, function dispatch, result aggregation, and
// report/log output.
package runner

import (
	"time"

	"github.com/stepwise-qa/stepwise/pkg/scripts"
)

// Plan states reported in run output.
const (
	StateCompleted = "COMPLETED"
	StateAborted   = "ABORTED"
)

// StepRecord is one executed step's outcome. Parameters holds the values
// as declared in the plan, before placeholder resolution and credential
// injection, so reports never carry resolved secrets.
type StepRecord struct {
	TestCase     string          `json:"test_case"`
	TestCaseID   any             `json:"test_case_id"`
	StepNumber   any             `json:"step_number"`
	TestScript   string          `json:"test_script"`
	TestFunction string          `json:"test_function"`
	Parameters   map[string]any  `json:"parameters"`
	Timestamp    time.Time       `json:"timestamp"`
	Result       *scripts.Result `json:"result"`
}

// Passed reports whether the step's result classifies as PASSED.
func (r *StepRecord) Passed() bool {
	return r.Result != nil && r.Result.ReturnCode == 0
}

// Summary aggregates pass/fail counts for one plan run.
type Summary struct {
	TotalSteps  int     `json:"total_steps"`
	PassedSteps int     `json:"passed_steps"`
	FailedSteps int     `json:"failed_steps"`
	SuccessRate float64 `json:"success_rate"`
}

// summarize computes the aggregate from a record list. An empty run has
// a zero success rate, not a division error.
func summarize(records []*StepRecord) Summary {
	s := Summary{TotalSteps: len(records)}
	for _, r := range records {
		if r.Passed() {
			s.PassedSteps++
		} else {
			s.FailedSteps++
		}
	}
	if s.TotalSteps > 0 {
		s.SuccessRate = float64(s.PassedSteps) / float64(s.TotalSteps) * 100
	}
	return s
}

// PlanReport is the per-run execution report, one file per run.
type PlanReport struct {
	PlanName  string        `json:"plan_name"`
	PlanPath  string        `json:"plan_path"`
	State     string        `json:"state"`
	Timestamp time.Time     `json:"timestamp"`
	Summary   Summary       `json:"summary"`
	Steps     []*StepRecord `json:"steps"`
	Errors    []string      `json:"validation_errors,omitempty"`
}

// ExecutionLog is the historical record: the report plus run identity
// and environment metadata.
type ExecutionLog struct {
	ExecutionID string    `json:"execution_id"`
	CurrentUser string    `json:"current_user"`
	CommandLine string    `json:"command_line"`
	StartedAt   time.Time `json:"started_at"`
	Duration    string    `json:"duration"`
	PlanReport
}
