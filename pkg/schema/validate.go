package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "test_cases[0].steps[1]")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// ValidateFile performs the full 3-phase validation pipeline on a plan file.
// Phase 1: Structural (JSON decode)
// Phase 2: Semantic (JSON Schema validation)
// Phase 3: Domain (custom Go rules)
func ValidateFile(path string) (*TestPlan, []*ValidationError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	return Validate(data)
}

// Validate runs the pipeline over raw plan bytes.
func Validate(data []byte) (*TestPlan, []*ValidationError) {
	var allErrors []*ValidationError

	// Phase 1: Structural — JSON decode into the typed plan and a raw
	// document. The raw form keeps key presence for domain checks.
	plan, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}
	raw, err := loadRaw(data)
	if err != nil {
		return nil, []*ValidationError{{
			Phase:    "structural",
			Message:  err.Error(),
			Severity: "error",
		}}
	}

	// Phase 2: Semantic — JSON Schema validation
	allErrors = append(allErrors, validateSemantic(raw)...)

	// Phase 3: Domain — custom Go rules
	allErrors = append(allErrors, ValidateDomain(raw)...)

	if len(allErrors) > 0 {
		return plan, allErrors
	}
	return plan, nil
}

// validateSemantic validates the raw document against the generated
// JSON Schema.
func validateSemantic(doc map[string]any) []*ValidationError {
	schemaJSON, err := GenerateJSONSchema()
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("generate schema: %v", err),
			Severity: "error",
		}}
	}

	var schemaDoc any
	if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("unmarshal schema: %v", err),
			Severity: "error",
		}}
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource("testplan-v1.json", schemaDoc); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("add schema resource: %v", err),
			Severity: "error",
		}}
	}
	sch, err := c.Compile("testplan-v1.json")
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("compile schema: %v", err),
			Severity: "error",
		}}
	}

	// The compiled validator expects plain decoded values, so round-trip
	// the document to drop json.Number.
	rendered, err := json.Marshal(doc)
	if err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("marshal document: %v", err),
			Severity: "error",
		}}
	}
	var plain any
	if err := json.Unmarshal(rendered, &plain); err != nil {
		return []*ValidationError{{
			Phase:    "semantic",
			Message:  fmt.Sprintf("unmarshal document: %v", err),
			Severity: "error",
		}}
	}

	if err := sch.Validate(plain); err != nil {
		var errs []*ValidationError
		if ve, ok := err.(*sjsonschema.ValidationError); ok {
			for _, cause := range flattenValidationErrors(ve) {
				errs = append(errs, &ValidationError{
					Phase:    "semantic",
					Path:     strings.Join(cause.InstanceLocation, "/"),
					Message:  fmt.Sprintf("%v", cause.ErrorKind),
					Severity: "error",
				})
			}
		} else {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Message:  err.Error(),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain performs Phase 3 domain-level validation over the raw
// document. It works on the generic form so a missing key and an empty
// value produce distinct messages.
func ValidateDomain(doc map[string]any) []*ValidationError {
	var errs []*ValidationError

	addMissing := func(path, field string) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  fmt.Sprintf("missing field: %s", field),
			Severity: "error",
		})
	}

	for _, field := range []string{"name", "description", "test_cases"} {
		if empty(doc[field]) {
			addMissing("", field)
		}
	}

	cases, _ := doc["test_cases"].([]any)
	seen := make(map[string][]int)
	for i, rawCase := range cases {
		casePath := fmt.Sprintf("test_cases[%d]", i)
		tc, ok := rawCase.(map[string]any)
		if !ok {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     casePath,
				Message:  "test case must be an object",
				Severity: "error",
			})
			continue
		}

		for _, field := range []string{"id", "name", "description", "steps"} {
			if _, present := tc[field]; !present {
				addMissing(casePath, field)
			}
		}

		if id, present := tc["id"]; present {
			key := fmt.Sprintf("%T:%s", id, IDText(id))
			seen[key] = append(seen[key], i)
		}

		steps, _ := tc["steps"].([]any)
		for j, rawStep := range steps {
			stepPath := fmt.Sprintf("%s.steps[%d]", casePath, j)
			step, ok := rawStep.(map[string]any)
			if !ok {
				errs = append(errs, &ValidationError{
					Phase:    "domain",
					Path:     stepPath,
					Message:  "step must be an object",
					Severity: "error",
				})
				continue
			}
			for _, field := range []string{"step_number", "test_script", "test_function", "parameters"} {
				if _, present := step[field]; !present {
					addMissing(stepPath, field)
				}
			}
			if auth, present := step["authentication"]; present {
				errs = append(errs, validateAuthBlock(stepPath, auth)...)
			}
		}
	}

	for _, indexes := range seen {
		if len(indexes) > 1 {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     fmt.Sprintf("test_cases[%d].id", indexes[1]),
				Message:  "duplicate test case id",
				Severity: "error",
			})
		}
	}

	return errs
}

func validateAuthBlock(stepPath string, raw any) []*ValidationError {
	auth, ok := raw.(map[string]any)
	if !ok {
		return []*ValidationError{{
			Phase:    "domain",
			Path:     stepPath + ".authentication",
			Message:  "authentication must be an object",
			Severity: "error",
		}}
	}
	var errs []*ValidationError
	for _, field := range []string{"authentication_type", "authentication_name"} {
		if empty(auth[field]) {
			errs = append(errs, &ValidationError{
				Phase:    "domain",
				Path:     stepPath + ".authentication",
				Message:  fmt.Sprintf("missing field: %s", field),
				Severity: "error",
			})
		}
	}
	// The type value itself is not checked here. An unrecognized kind
	// fails credential resolution for that step at run time instead of
	// aborting the whole plan.
	return errs
}

// empty reports whether a field is absent or has no usable content.
func empty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	default:
		return false
	}
}

// HasErrors reports whether any entry carries error severity.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity == "error" {
			return true
		}
	}
	return false
}
