// Package schema defines the Go struct types for the test-plan JSON
// documents and provides parsing plus the validation pipeline.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// TestPlan is the top-level document describing one executable plan.
type TestPlan struct {
	Name        string     `json:"name" jsonschema:"required"`
	Description string     `json:"description" jsonschema:"required"`
	Version     string     `json:"version,omitempty"`
	Author      string     `json:"author,omitempty"`
	CreatedDate string     `json:"created_date,omitempty"`
	TestCases   []TestCase `json:"test_cases" jsonschema:"required,minItems=1"`
}

// TestCase groups ordered steps under an identifier. ID is string or
// number as written in the plan; it is compared as given, never coerced.
type TestCase struct {
	ID          any        `json:"id" jsonschema:"required"`
	Name        string     `json:"name" jsonschema:"required"`
	Description string     `json:"description" jsonschema:"required"`
	Steps       []TestStep `json:"steps"`
}

// TestStep names one function invocation with its parameters.
type TestStep struct {
	StepNumber     any             `json:"step_number" jsonschema:"required"`
	TestScript     string          `json:"test_script" jsonschema:"required"`
	TestFunction   string          `json:"test_function" jsonschema:"required"`
	Authentication *Authentication `json:"authentication,omitempty"`
	Parameters     map[string]any  `json:"parameters"`
}

// Authentication references stored credentials to inject into the step.
type Authentication struct {
	AuthenticationType string `json:"authentication_type" jsonschema:"required"`
	AuthenticationName string `json:"authentication_name" jsonschema:"required"`
}

// IDText renders a case id or step number the way the plan wrote it.
// json numbers keep their literal text, so 7 and 7.0 stay distinct.
func IDText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// LoadFile reads and parses a test plan JSON file.
func LoadFile(path string) (*TestPlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open test plan: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load parses a test plan from an io.Reader. Numbers decode as
// json.Number so ids and parameter values keep their written form.
func Load(r io.Reader) (*TestPlan, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var plan TestPlan
	if err := dec.Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode test plan: %w", err)
	}
	return &plan, nil
}

// loadRaw parses the same document generically, preserving which keys
// are actually present. Domain validation needs the distinction between
// a missing field and a zero value.
func loadRaw(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode test plan: %w", err)
	}
	return doc, nil
}
