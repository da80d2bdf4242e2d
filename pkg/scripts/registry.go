// Package scripts provides the built-in test function catalog and the
// registry that resolves a (script, function) reference to a callable.
//
// Every callable honors one contract: it receives the step's resolved
// parameter map and returns the four-field Result envelope. The engine
// never sees any other shape.
package scripts

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Result is the standardized outcome of one test function invocation.
// ReturnCode zero means the step passed; any other value means it failed,
// with the sentinel codes below distinguishing the failure class.
type Result struct {
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	Exception  string `json:"exception"`
	ReturnCode int    `json:"returncode"`
}

// Sentinel return codes shared by every test function and the engine.
const (
	CodeOK         = 0 // step passed
	CodeFailed     = 1 // expected failure (assertion not met)
	CodeError      = 2 // unexpected execution error
	CodeLoadError  = 3 // script or function could not be resolved
	CodeParamError = 4 // parameter validation failed
)

// Func is the callable every registered test function implements.
type Func func(ctx context.Context, params map[string]any) *Result

// ParamSpec describes one parameter a test function accepts.
type ParamSpec struct {
	Name        string `json:"name"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// Entry is one catalog record: a named function inside a script, its
// parameter contract, and the callable itself.
type Entry struct {
	Script      string      `json:"script"`
	Function    string      `json:"function"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"parameters"`
	Fn          Func        `json:"-"`
}

// Resolution errors. The engine maps both to return code 3.
var (
	ErrScriptNotFound   = errors.New("script not found")
	ErrFunctionNotFound = errors.New("function not found")
)

// Registry maps (script, function) references to callables. It is built
// once at startup; Resolve is safe for concurrent readers.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]map[string]*Entry // script → function → entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]map[string]*Entry)}
}

// Builtin returns a registry pre-populated with the shipped script catalog.
func Builtin() *Registry {
	r := NewRegistry()
	registerFiles(r)
	registerProcess(r)
	registerHTTP(r)
	registerGit(r)
	return r
}

// NormalizeScript canonicalizes a plan's test_script reference. Plans may
// carry a leading slash, a scripts/ directory prefix, backslashes, or a
// .py suffix inherited from old catalogs; all resolve to the same
// registry key.
func NormalizeScript(script string) string {
	s := strings.ReplaceAll(script, "\\", "/")
	s = strings.TrimSuffix(s, ".py")
	s = path.Clean(s)
	s = strings.TrimPrefix(s, "/")
	return strings.TrimPrefix(s, "scripts/")
}

// Register adds an entry to the registry, keyed by its normalized script
// path and function name. Later registrations replace earlier ones.
func (r *Registry) Register(e *Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := NormalizeScript(e.Script)
	if r.entries[key] == nil {
		r.entries[key] = make(map[string]*Entry)
	}
	r.entries[key][e.Function] = e
}

// Resolve looks up a callable by script path and function name. The
// returned Func is wrapped with the entry's parameter contract: missing
// required parameters or undeclared parameters yield a CodeParamError
// result instead of reaching the function body.
func (r *Registry) Resolve(script, function string) (Func, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fns, ok := r.entries[NormalizeScript(script)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, script)
	}
	e, ok := fns[function]
	if !ok {
		return nil, fmt.Errorf("%w: %q in %s", ErrFunctionNotFound, function, script)
	}
	return e.guarded(), nil
}

// Catalog returns all entries ordered by script then function, for the
// web admin catalog endpoint and the CLI catalog listing.
func (r *Registry) Catalog() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*Entry
	for _, fns := range r.entries {
		for _, e := range fns {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Script != out[j].Script {
			return out[i].Script < out[j].Script
		}
		return out[i].Function < out[j].Function
	})
	return out
}

// guarded wraps the entry's callable with parameter-contract checks.
func (e *Entry) guarded() Func {
	return func(ctx context.Context, params map[string]any) *Result {
		declared := make(map[string]bool, len(e.Params))
		for _, p := range e.Params {
			declared[p.Name] = true
			if p.Required {
				if _, ok := params[p.Name]; !ok {
					return &Result{
						Stderr:     fmt.Sprintf("missing required parameter %q for %s", p.Name, e.Function),
						ReturnCode: CodeParamError,
					}
				}
			}
		}
		for name := range params {
			// Injected credential keys are always accepted: functions
			// that ignore them simply never read them.
			if strings.HasPrefix(name, "auth_") {
				continue
			}
			if !declared[name] {
				return &Result{
					Stderr:     fmt.Sprintf("unexpected parameter %q for %s", name, e.Function),
					ReturnCode: CodeParamError,
				}
			}
		}
		return e.Fn(ctx, params)
	}
}
