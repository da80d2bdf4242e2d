package runner

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/stepwise-qa/stepwise/pkg/schema"
	"github.com/stepwise-qa/stepwise/pkg/scripts"
)

// Debug levels for interactive output. They control only what is echoed
// to the console; reports and logs always carry full step detail.
const (
	DebugOff    = 0 // status line only
	DebugOnFail = 1 // details for failed steps
	DebugAlways = 2 // details for every step
)

// Console renders run progress. A nil writer silences it.
type Console struct {
	W     io.Writer
	Level int
}

func (c *Console) printf(format string, args ...any) {
	if c == nil || c.W == nil {
		return
	}
	fmt.Fprintf(c.W, format, args...)
}

func (c *Console) PlanStart(plan *schema.TestPlan) {
	c.printf("\n%s\n", strings.Repeat("=", 60))
	c.printf("Executing Test Plan: %s\n", plan.Name)
	c.printf("Description: %s\n", plan.Description)
	c.printf("Timestamp: %s\n", time.Now().Format(time.RFC3339))
	c.printf("%s\n", strings.Repeat("=", 60))
}

func (c *Console) CaseStart(tc *schema.TestCase) {
	c.printf("\nExecuting Test Case: %s\n", tc.Name)
	c.printf("Description: %s\n", tc.Description)
}

func (c *Console) StepDone(rec *StepRecord) {
	status := "FAILED"
	if rec.Passed() {
		status = "PASSED"
	}
	c.printf("  Step %s: %s\n", schema.IDText(rec.StepNumber), status)

	if c == nil || !c.showDetail(rec.Result) {
		return
	}
	if out := strings.TrimSpace(rec.Result.Stdout); out != "" {
		c.printf("    STDOUT: %s\n", out)
	}
	if errOut := strings.TrimSpace(rec.Result.Stderr); errOut != "" {
		c.printf("    STDERR: %s\n", errOut)
	}
	if exc := strings.TrimSpace(rec.Result.Exception); exc != "" {
		c.printf("    EXCEPTION: %s\n", exc)
	}
	c.printf("    RETURNCODE: %d\n", rec.Result.ReturnCode)
}

func (c *Console) showDetail(res *scripts.Result) bool {
	switch c.Level {
	case DebugOnFail:
		return res.ReturnCode != 0
	case DebugAlways:
		return true
	default:
		return false
	}
}

func (c *Console) ValidationFailed(path string, errs []*schema.ValidationError) {
	c.printf("\nTest plan validation failed: %s\n", path)
	for _, e := range errs {
		c.printf("  %s\n", e)
	}
}

func (c *Console) PlanSummary(report *PlanReport) {
	c.printf("\n%s\n", strings.Repeat("=", 60))
	c.printf("Test Plan Summary: %s\n", report.PlanName)
	c.printf("Total Steps: %d\n", report.Summary.TotalSteps)
	c.printf("Passed: %d\n", report.Summary.PassedSteps)
	c.printf("Failed: %d\n", report.Summary.FailedSteps)
	if report.Summary.TotalSteps > 0 {
		c.printf("Success Rate: %.1f%%\n", report.Summary.SuccessRate)
	} else {
		c.printf("Success Rate: N/A\n")
	}
	c.printf("%s\n", strings.Repeat("=", 60))
}

func (c *Console) FinalReport(reports []*PlanReport, reportPath, logPath string) {
	c.printf("\n%s\n", strings.Repeat("#", 80))
	c.printf("# FINAL EXECUTION REPORT\n")
	c.printf("%s\n", strings.Repeat("#", 80))

	var total, passed int
	for _, r := range reports {
		total += r.Summary.TotalSteps
		passed += r.Summary.PassedSteps
	}
	c.printf("Total Test Plans Executed: %d\n", len(reports))
	c.printf("Total Test Steps Executed: %d\n", total)
	c.printf("Total Steps Passed: %d\n", passed)
	c.printf("Total Steps Failed: %d\n", total-passed)
	if total > 0 {
		c.printf("Overall Success Rate: %.1f%%\n", float64(passed)/float64(total)*100)
	}
	c.printf("%s\n", strings.Repeat("#", 80))
	if reportPath != "" {
		c.printf("Detailed report saved to: %s\n", reportPath)
	}
	if logPath != "" {
		c.printf("Execution log saved to: %s\n", logPath)
	}
}
