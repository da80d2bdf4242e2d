package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stepwise-qa/stepwise/pkg/creds"
	"github.com/stepwise-qa/stepwise/pkg/params"
	"github.com/stepwise-qa/stepwise/pkg/scripts"
	"github.com/stepwise-qa/stepwise/pkg/tmparea"
)

// writePlan stores a plan document and returns its path.
func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// testRegistry builds a registry with controllable functions.
func testRegistry() *scripts.Registry {
	r := scripts.NewRegistry()
	r.Register(&scripts.Entry{
		Script:   "demo/ok",
		Function: "pass",
		Params:   []scripts.ParamSpec{{Name: "file_path"}, {Name: "echo"}},
		Fn: func(ctx context.Context, p map[string]any) *scripts.Result {
			out := "ok"
			if v, ok := p["echo"].(string); ok {
				out = v
			}
			return &scripts.Result{Stdout: out, ReturnCode: 0}
		},
	})
	r.Register(&scripts.Entry{
		Script:   "demo/bad",
		Function: "boom",
		Fn: func(ctx context.Context, p map[string]any) *scripts.Result {
			panic("kaboom")
		},
	})
	r.Register(&scripts.Entry{
		Script:   "demo/bad",
		Function: "nilresult",
		Fn: func(ctx context.Context, p map[string]any) *scripts.Result {
			return nil
		},
	})
	return r
}

func newTestEngine(t *testing.T, creds CredentialResolver) *Engine {
	t.Helper()
	return &Engine{
		Registry: testRegistry(),
		Params: &params.Resolver{
			Variables: map[string]string{"GREETING": "hello"},
			Tmp:       tmparea.New(filepath.Join(t.TempDir(), "tmp_area")),
		},
		Creds: creds,
	}
}

type stubCreds struct {
	resolved map[string]string
	err      error
	calls    int
}

func (s *stubCreds) Resolve(authType, authName string) (map[string]string, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.resolved, nil
}

const passingPlan = `{
	"name": "P", "description": "d",
	"test_cases": [{
		"id": 1, "name": "c1", "description": "d1",
		"steps": [{
			"step_number": 1,
			"test_script": "demo/ok",
			"test_function": "pass",
			"parameters": {"file_path": "/etc/hosts"}
		}]
	}]
}`

func TestRunPlanAllPassed(t *testing.T) {
	e := newTestEngine(t, nil)

	report, err := e.RunPlan(context.Background(), writePlan(t, passingPlan), "")
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateCompleted {
		t.Errorf("state = %q", report.State)
	}
	s := report.Summary
	if s.TotalSteps != 1 || s.PassedSteps != 1 || s.FailedSteps != 0 {
		t.Errorf("summary = %+v", s)
	}
	if s.SuccessRate != 100.0 {
		t.Errorf("success rate = %v", s.SuccessRate)
	}
}

func TestRunPlanPanicDoesNotAbort(t *testing.T) {
	plan := `{
		"name": "P", "description": "d",
		"test_cases": [{
			"id": 1, "name": "c1", "description": "d1",
			"steps": [
				{"step_number": 1, "test_script": "demo/bad", "test_function": "boom", "parameters": {}},
				{"step_number": 2, "test_script": "demo/ok", "test_function": "pass", "parameters": {}}
			]
		}]
	}`
	e := newTestEngine(t, nil)

	report, err := e.RunPlan(context.Background(), writePlan(t, plan), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(report.Steps))
	}
	first := report.Steps[0].Result
	if first.ReturnCode != scripts.CodeError {
		t.Errorf("returncode = %d, want 2", first.ReturnCode)
	}
	if !strings.Contains(first.Exception, "kaboom") {
		t.Errorf("exception = %q", first.Exception)
	}
	if !report.Steps[1].Passed() {
		t.Error("second step should still run and pass")
	}
}

func TestRunPlanUnknownScript(t *testing.T) {
	plan := `{
		"name": "P", "description": "d",
		"test_cases": [{
			"id": 1, "name": "c1", "description": "d1",
			"steps": [
				{"step_number": 1, "test_script": "nope/missing", "test_function": "f", "parameters": {}},
				{"step_number": 2, "test_script": "demo/ok", "test_function": "pass", "parameters": {}}
			]
		}]
	}`
	e := newTestEngine(t, nil)

	report, err := e.RunPlan(context.Background(), writePlan(t, plan), "")
	if err != nil {
		t.Fatal(err)
	}
	first := report.Steps[0].Result
	if first.ReturnCode != scripts.CodeLoadError {
		t.Errorf("returncode = %d, want 3", first.ReturnCode)
	}
	if !strings.Contains(first.Exception, "nope/missing") {
		t.Errorf("exception should name the script: %q", first.Exception)
	}
	if !report.Steps[1].Passed() {
		t.Error("later step should still execute")
	}
}

func TestRunPlanInvalidPlanAborts(t *testing.T) {
	e := newTestEngine(t, nil)

	report, err := e.RunPlan(context.Background(), writePlan(t, `{"name": "P"}`), "")
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateAborted {
		t.Errorf("state = %q", report.State)
	}
	if len(report.Steps) != 0 {
		t.Errorf("steps executed on invalid plan: %d", len(report.Steps))
	}
	if len(report.Errors) == 0 {
		t.Error("validation errors missing from report")
	}
}

func TestRunPlanCaseFilter(t *testing.T) {
	plan := `{
		"name": "P", "description": "d",
		"test_cases": [
			{"id": 1, "name": "c1", "description": "d", "steps": [
				{"step_number": 1, "test_script": "demo/ok", "test_function": "pass", "parameters": {}}
			]},
			{"id": 2, "name": "c2", "description": "d", "steps": [
				{"step_number": 1, "test_script": "demo/ok", "test_function": "pass", "parameters": {}},
				{"step_number": 2, "test_script": "demo/ok", "test_function": "pass", "parameters": {}}
			]},
			{"id": 3, "name": "c3", "description": "d", "steps": [
				{"step_number": 1, "test_script": "demo/ok", "test_function": "pass", "parameters": {}}
			]}
		]
	}`
	e := newTestEngine(t, nil)

	report, err := e.RunPlan(context.Background(), writePlan(t, plan), "2")
	if err != nil {
		t.Fatal(err)
	}
	if report.Summary.TotalSteps != 2 {
		t.Errorf("total = %d, want only case 2's steps", report.Summary.TotalSteps)
	}
	for _, rec := range report.Steps {
		if rec.TestCase != "c2" {
			t.Errorf("unexpected case in report: %q", rec.TestCase)
		}
	}
}

func TestRunPlanVariableResolution(t *testing.T) {
	plan := `{
		"name": "P", "description": "d",
		"test_cases": [{
			"id": 1, "name": "c1", "description": "d",
			"steps": [{
				"step_number": 1, "test_script": "demo/ok", "test_function": "pass",
				"parameters": {"echo": "<var:GREETING> world"}
			}]
		}]
	}`
	e := newTestEngine(t, nil)

	report, err := e.RunPlan(context.Background(), writePlan(t, plan), "")
	if err != nil {
		t.Fatal(err)
	}
	rec := report.Steps[0]
	if rec.Result.Stdout != "hello world" {
		t.Errorf("stdout = %q", rec.Result.Stdout)
	}
	// The record keeps the declared parameter, not the resolved one.
	if rec.Parameters["echo"] != "<var:GREETING> world" {
		t.Errorf("declared parameter was rewritten: %q", rec.Parameters["echo"])
	}
}

func TestRunPlanSharedTmpWithinRun(t *testing.T) {
	plan := `{
		"name": "P", "description": "d",
		"test_cases": [{
			"id": 1, "name": "c1", "description": "d",
			"steps": [
				{"step_number": 1, "test_script": "demo/ok", "test_function": "pass",
				 "parameters": {"echo": "<tmp>/a"}},
				{"step_number": 2, "test_script": "demo/ok", "test_function": "pass",
				 "parameters": {"echo": "<tmp>/b"}}
			]
		}]
	}`
	e := newTestEngine(t, nil)

	report, err := e.RunPlan(context.Background(), writePlan(t, plan), "")
	if err != nil {
		t.Fatal(err)
	}
	dirA := filepath.Dir(report.Steps[0].Result.Stdout)
	dirB := filepath.Dir(report.Steps[1].Result.Stdout)
	if dirA != dirB {
		t.Errorf("steps saw different tmp areas: %q vs %q", dirA, dirB)
	}
	if strings.Contains(report.Steps[0].Result.Stdout, "<tmp>") {
		t.Errorf("placeholder survived: %q", report.Steps[0].Result.Stdout)
	}
}

const authedPlan = `{
	"name": "P", "description": "d",
	"test_cases": [{
		"id": 1, "name": "c1", "description": "d",
		"steps": [{
			"step_number": 1, "test_script": "demo/ok", "test_function": "pass",
			"parameters": {"echo": "x"},
			"authentication": {"authentication_type": "basic", "authentication_name": "db"}
		}]
	}]
}`

func TestRunPlanCredentialInjection(t *testing.T) {
	var got map[string]any
	r := scripts.NewRegistry()
	r.Register(&scripts.Entry{
		Script:   "demo/ok",
		Function: "pass",
		Params:   []scripts.ParamSpec{{Name: "echo"}},
		Fn: func(ctx context.Context, p map[string]any) *scripts.Result {
			got = p
			return &scripts.Result{ReturnCode: 0}
		},
	})
	creds := &stubCreds{resolved: map[string]string{
		"auth_username": "alice",
		"auth_password": "pw",
		"auth_type":     "basic",
	}}
	e := &Engine{
		Registry: r,
		Params:   &params.Resolver{},
		Creds:    creds,
	}

	report, err := e.RunPlan(context.Background(), writePlan(t, authedPlan), "")
	if err != nil {
		t.Fatal(err)
	}
	if !report.Steps[0].Passed() {
		t.Fatalf("step failed: %+v", report.Steps[0].Result)
	}
	if got["auth_username"] != "alice" {
		t.Errorf("auth_username = %v", got["auth_username"])
	}
	// Declared parameters never carry injected keys.
	if _, leaked := report.Steps[0].Parameters["auth_password"]; leaked {
		t.Error("injected secret leaked into the step record")
	}
}

func TestRunPlanExplicitParamBeatsInjected(t *testing.T) {
	plan := `{
		"name": "P", "description": "d",
		"test_cases": [{
			"id": 1, "name": "c1", "description": "d",
			"steps": [{
				"step_number": 1, "test_script": "demo/ok", "test_function": "pass",
				"parameters": {"auth_username": "explicit"},
				"authentication": {"authentication_type": "basic", "authentication_name": "db"}
			}]
		}]
	}`
	var got map[string]any
	r := scripts.NewRegistry()
	r.Register(&scripts.Entry{
		Script:   "demo/ok",
		Function: "pass",
		Fn: func(ctx context.Context, p map[string]any) *scripts.Result {
			got = p
			return &scripts.Result{ReturnCode: 0}
		},
	})
	e := &Engine{
		Registry: r,
		Params:   &params.Resolver{},
		Creds:    &stubCreds{resolved: map[string]string{"auth_username": "injected"}},
	}

	if _, err := e.RunPlan(context.Background(), writePlan(t, plan), ""); err != nil {
		t.Fatal(err)
	}
	if got["auth_username"] != "explicit" {
		t.Errorf("auth_username = %v, want the plan's explicit value", got["auth_username"])
	}
}

func TestRunPlanCredentialFailureIsolatedToStep(t *testing.T) {
	plan := `{
		"name": "P", "description": "d",
		"test_cases": [{
			"id": 1, "name": "c1", "description": "d",
			"steps": [
				{"step_number": 1, "test_script": "demo/ok", "test_function": "pass",
				 "parameters": {},
				 "authentication": {"authentication_type": "token", "authentication_name": "gone"}},
				{"step_number": 2, "test_script": "demo/ok", "test_function": "pass", "parameters": {}}
			]
		}]
	}`
	e := newTestEngine(t, &stubCreds{err: errors.New("store unavailable")})

	report, err := e.RunPlan(context.Background(), writePlan(t, plan), "")
	if err != nil {
		t.Fatal(err)
	}
	if report.Steps[0].Result.ReturnCode != scripts.CodeError {
		t.Errorf("returncode = %d, want 2", report.Steps[0].Result.ReturnCode)
	}
	if !report.Steps[1].Passed() {
		t.Error("later step should still execute")
	}
}

// mapKeyring backs a real creds.Manager in engine tests.
type mapKeyring map[string]string

func (m mapKeyring) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", creds.ErrNotFound
	}
	return v, nil
}

func (m mapKeyring) Set(service, key, value string) error {
	m[service+"/"+key] = value
	return nil
}

func (m mapKeyring) Delete(service, key string) error {
	delete(m, service+"/"+key)
	return nil
}

func TestRunPlanUnknownAuthTypeFailsOnlyThatStep(t *testing.T) {
	plan := `{
		"name": "P", "description": "d",
		"test_cases": [{
			"id": 1, "name": "c1", "description": "d",
			"steps": [
				{"step_number": 1, "test_script": "demo/ok", "test_function": "pass", "parameters": {}},
				{"step_number": 2, "test_script": "demo/ok", "test_function": "pass",
				 "parameters": {},
				 "authentication": {"authentication_type": "ntlm", "authentication_name": "legacy"}}
			]
		}]
	}`
	e := newTestEngine(t, creds.NewManager(mapKeyring{}, nil))

	report, err := e.RunPlan(context.Background(), writePlan(t, plan), "")
	if err != nil {
		t.Fatal(err)
	}
	if report.State != StateCompleted {
		t.Fatalf("state = %q, unknown auth type must not abort the plan", report.State)
	}
	if len(report.Steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(report.Steps))
	}
	if !report.Steps[0].Passed() {
		t.Error("first step should pass")
	}
	second := report.Steps[1].Result
	if second.ReturnCode != scripts.CodeError {
		t.Errorf("returncode = %d, want 2", second.ReturnCode)
	}
	if !strings.Contains(second.Exception, "unsupported authentication type") {
		t.Errorf("exception = %q", second.Exception)
	}
}

func TestRunPlanStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := scripts.NewRegistry()
	r.Register(&scripts.Entry{
		Script:   "demo/ok",
		Function: "pass",
		Fn: func(ctx context.Context, p map[string]any) *scripts.Result {
			cancel()
			return &scripts.Result{ReturnCode: 0}
		},
	})
	plan := `{
		"name": "P", "description": "d",
		"test_cases": [{
			"id": 1, "name": "c1", "description": "d",
			"steps": [
				{"step_number": 1, "test_script": "demo/ok", "test_function": "pass", "parameters": {}},
				{"step_number": 2, "test_script": "demo/ok", "test_function": "pass", "parameters": {}}
			]
		}]
	}`
	e := &Engine{Registry: r, Params: &params.Resolver{}}

	report, err := e.RunPlan(ctx, writePlan(t, plan), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Steps) != 1 {
		t.Fatalf("steps = %d, cancellation should stop the run after the first step", len(report.Steps))
	}
	if report.State != StateAborted {
		t.Errorf("state = %q", report.State)
	}
	found := false
	for _, msg := range report.Errors {
		if strings.Contains(msg, "cancelled") {
			found = true
		}
	}
	if !found {
		t.Errorf("cancellation not recorded: %v", report.Errors)
	}
}

func TestExecuteNilResult(t *testing.T) {
	e := newTestEngine(t, nil)
	plan := `{
		"name": "P", "description": "d",
		"test_cases": [{
			"id": 1, "name": "c1", "description": "d",
			"steps": [{"step_number": 1, "test_script": "demo/bad", "test_function": "nilresult", "parameters": {}}]
		}]
	}`

	report, err := e.RunPlan(context.Background(), writePlan(t, plan), "")
	if err != nil {
		t.Fatal(err)
	}
	res := report.Steps[0].Result
	if res.ReturnCode != scripts.CodeError {
		t.Errorf("returncode = %d", res.ReturnCode)
	}
	if res.Exception != "Invalid result structure from nilresult" {
		t.Errorf("exception = %q", res.Exception)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := summarize(nil)
	if s.TotalSteps != 0 || s.SuccessRate != 0 {
		t.Errorf("summary = %+v", s)
	}
}

func TestRunAll(t *testing.T) {
	dir := t.TempDir()
	good := passingPlan
	bad := `{"name": "broken"}`
	if err := os.WriteFile(filepath.Join(dir, "a_good.json"), []byte(good), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b_bad.json"), []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	e := newTestEngine(t, nil)

	reports, err := e.RunAll(context.Background(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 {
		t.Fatalf("reports = %d", len(reports))
	}
	if reports[0].State != StateCompleted {
		t.Errorf("first plan state = %q", reports[0].State)
	}
	if reports[1].State != StateAborted {
		t.Errorf("invalid plan should be ABORTED, got %q", reports[1].State)
	}
}

func TestRunAllEmptyDir(t *testing.T) {
	e := newTestEngine(t, nil)

	_, err := e.RunAll(context.Background(), t.TempDir())
	if !errors.Is(err, ErrNoPlans) {
		t.Errorf("err = %v, want ErrNoPlans", err)
	}
}
