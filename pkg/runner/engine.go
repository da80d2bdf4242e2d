package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/stepwise-qa/stepwise/pkg/params"
	"github.com/stepwise-qa/stepwise/pkg/schema"
	"github.com/stepwise-qa/stepwise/pkg/scripts"
)

// CredentialResolver resolves a step's authentication block into the
// injected auth_* parameter keys. pkg/creds.Manager implements it.
type CredentialResolver interface {
	Resolve(authType, authName string) (map[string]string, error)
}

// Engine executes validated test plans step by step. Steps run strictly
// in document order; a failing step records its outcome and execution
// moves on. Only validation failure aborts a plan.
type Engine struct {
	Registry *scripts.Registry
	Params   *params.Resolver
	Creds    CredentialResolver
	Console  *Console
}

// RunPlan validates and executes one plan file. caseFilter, when
// non-empty, selects a single test case by id text; all other cases are
// skipped and do not appear in the report. The returned error is
// reserved for framework-level failures; validation problems surface as
// an ABORTED report.
func (e *Engine) RunPlan(ctx context.Context, path, caseFilter string) (*PlanReport, error) {
	report := &PlanReport{
		PlanPath:  path,
		State:     StateCompleted,
		Timestamp: time.Now(),
	}

	plan, errs := schema.ValidateFile(path)
	if len(errs) > 0 {
		report.State = StateAborted
		for _, ve := range errs {
			report.Errors = append(report.Errors, ve.Error())
		}
		if plan != nil {
			report.PlanName = plan.Name
		}
		e.Console.ValidationFailed(path, errs)
		return report, nil
	}
	report.PlanName = plan.Name

	e.Console.PlanStart(plan)

cases:
	for i := range plan.TestCases {
		tc := &plan.TestCases[i]
		if caseFilter != "" && schema.IDText(tc.ID) != caseFilter {
			continue
		}
		e.Console.CaseStart(tc)
		for j := range tc.Steps {
			if err := ctx.Err(); err != nil {
				report.State = StateAborted
				report.Errors = append(report.Errors, fmt.Sprintf("execution cancelled: %v", err))
				break cases
			}
			rec := e.runStep(ctx, tc, &tc.Steps[j])
			report.Steps = append(report.Steps, rec)
			e.Console.StepDone(rec)
		}
	}

	report.Summary = summarize(report.Steps)
	e.Console.PlanSummary(report)
	return report, nil
}

// runStep executes one step through the full pipeline: placeholder
// resolution, credential injection, function lookup, invocation. Every
// failure mode lands in the record's Result; nothing escapes.
func (e *Engine) runStep(ctx context.Context, tc *schema.TestCase, step *schema.TestStep) *StepRecord {
	rec := &StepRecord{
		TestCase:     tc.Name,
		TestCaseID:   tc.ID,
		StepNumber:   step.StepNumber,
		TestScript:   step.TestScript,
		TestFunction: step.TestFunction,
		Parameters:   step.Parameters,
		Timestamp:    time.Now(),
	}

	resolved, err := e.Params.ResolveMap(step.Parameters)
	if err != nil {
		rec.Result = &scripts.Result{
			Stderr:     fmt.Sprintf("Parameter resolution failed: %v", err),
			Exception:  err.Error(),
			ReturnCode: scripts.CodeError,
		}
		return rec
	}
	if resolved == nil {
		resolved = map[string]any{}
	}

	if step.Authentication != nil {
		injected, err := e.resolveCredentials(step.Authentication)
		if err != nil {
			rec.Result = &scripts.Result{
				Stderr:     fmt.Sprintf("Credential resolution failed: %v", err),
				Exception:  err.Error(),
				ReturnCode: scripts.CodeError,
			}
			return rec
		}
		// Explicit plan parameters win over injected keys.
		for k, v := range injected {
			if _, present := resolved[k]; !present {
				resolved[k] = v
			}
		}
	}

	fn, err := e.Registry.Resolve(step.TestScript, step.TestFunction)
	if err != nil {
		rec.Result = &scripts.Result{
			Stderr:     fmt.Sprintf("Failed to import function %s", step.TestFunction),
			Exception:  err.Error(),
			ReturnCode: scripts.CodeLoadError,
		}
		return rec
	}

	rec.Result = execute(ctx, fn, step.TestFunction, resolved)
	return rec
}

func (e *Engine) resolveCredentials(auth *schema.Authentication) (map[string]string, error) {
	if e.Creds == nil {
		return nil, fmt.Errorf("no credential store configured for %s", auth.AuthenticationName)
	}
	return e.Creds.Resolve(auth.AuthenticationType, auth.AuthenticationName)
}
