package params

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type fakeTmp struct{ dir string }

func (f fakeTmp) Resolve(s string) (string, error) {
	return strings.ReplaceAll(s, "<tmp>", f.dir), nil
}

func TestResolveMapVariables(t *testing.T) {
	r := &Resolver{Variables: map[string]string{"HOST": "db01", "PORT": "5432"}}

	got, err := r.ResolveMap(map[string]any{
		"url":   "postgres://<var:HOST>:<var:PORT>/app",
		"count": 3,
	})
	if err != nil {
		t.Fatal(err)
	}
	if got["url"] != "postgres://db01:5432/app" {
		t.Errorf("url = %q", got["url"])
	}
	if got["count"] != 3 {
		t.Errorf("non-string value changed: %v", got["count"])
	}
}

func TestResolveMapUnknownVariableStaysLiteral(t *testing.T) {
	r := &Resolver{Variables: map[string]string{}}

	got, err := r.ResolveMap(map[string]any{"path": "/data/<var:NOPE>/x"})
	if err != nil {
		t.Fatal(err)
	}
	if got["path"] != "/data/<var:NOPE>/x" {
		t.Errorf("unknown variable should remain literal, got %q", got["path"])
	}
}

func TestResolveMapNested(t *testing.T) {
	r := &Resolver{
		Variables: map[string]string{"NAME": "widget"},
		Tmp:       fakeTmp{dir: "/scratch/run1"},
	}

	got, err := r.ResolveMap(map[string]any{
		"headers": map[string]any{"X-Item": "<var:NAME>"},
		"files":   []any{"<tmp>/a.txt", "<tmp>/b.txt"},
	})
	if err != nil {
		t.Fatal(err)
	}
	headers := got["headers"].(map[string]any)
	if headers["X-Item"] != "widget" {
		t.Errorf("nested map value = %q", headers["X-Item"])
	}
	files := got["files"].([]any)
	if files[0] != "/scratch/run1/a.txt" || files[1] != "/scratch/run1/b.txt" {
		t.Errorf("list values = %v", files)
	}
}

func TestResolveMapDoesNotMutateInput(t *testing.T) {
	r := &Resolver{Variables: map[string]string{"V": "resolved"}}
	in := map[string]any{"key": "<var:V>"}

	if _, err := r.ResolveMap(in); err != nil {
		t.Fatal(err)
	}
	if in["key"] != "<var:V>" {
		t.Errorf("input mutated: %q", in["key"])
	}
}

func TestLoadVariablesListShape(t *testing.T) {
	p := filepath.Join(t.TempDir(), "variables.json")
	content := `{"variables": [
		{"name": "HOST", "value": "db01", "description": "database host"},
		{"name": "PORT", "value": "5432"}
	]}`
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	vars, err := LoadVariables(p)
	if err != nil {
		t.Fatal(err)
	}
	if vars["HOST"] != "db01" || vars["PORT"] != "5432" {
		t.Errorf("vars = %v", vars)
	}
}

func TestLoadVariablesFlatShape(t *testing.T) {
	p := filepath.Join(t.TempDir(), "variables.json")
	if err := os.WriteFile(p, []byte(`{"HOST": "db01"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	vars, err := LoadVariables(p)
	if err != nil {
		t.Fatal(err)
	}
	if vars["HOST"] != "db01" {
		t.Errorf("vars = %v", vars)
	}
}

func TestLoadVariablesMissingFile(t *testing.T) {
	vars, err := LoadVariables(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if len(vars) != 0 {
		t.Errorf("vars = %v", vars)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "variables.json")
	err := SaveVariables(p, []Variable{
		{Name: "B", Value: "2"},
		{Name: "A", Value: "1", Description: "first"},
	})
	if err != nil {
		t.Fatal(err)
	}

	vars, err := LoadVariables(p)
	if err != nil {
		t.Fatal(err)
	}
	if vars["A"] != "1" || vars["B"] != "2" {
		t.Errorf("vars = %v", vars)
	}
}
