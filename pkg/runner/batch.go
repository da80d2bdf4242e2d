package runner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

// ErrNoPlans reports an empty plan directory in batch mode. The CLI
// maps it to its own exit code.
var ErrNoPlans = errors.New("no test plans found")

// RunAll executes every *.json plan in dir in name order. A plan that
// fails validation is recorded as ABORTED and the batch continues;
// only filesystem-level failures stop the run.
func (e *Engine) RunAll(ctx context.Context, dir string) ([]*PlanReport, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan plan dir: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoPlans, dir)
	}
	sort.Strings(matches)

	var reports []*PlanReport
	for _, path := range matches {
		report, err := e.RunPlan(ctx, path, "")
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}
