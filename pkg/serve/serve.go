// Package serve implements the web admin API: REST CRUD over test plans,
// the function catalog, variables, and execution logs, plus a websocket
// channel that runs a plan and streams its output live.
package serve

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stepwise-qa/stepwise/pkg/config"
	"github.com/stepwise-qa/stepwise/pkg/creds"
	"github.com/stepwise-qa/stepwise/pkg/params"
	"github.com/stepwise-qa/stepwise/pkg/schema"
	"github.com/stepwise-qa/stepwise/pkg/scripts"
)

// Server is the web admin server wrapping the execution engine.
type Server struct {
	cfg      *config.Config
	registry *scripts.Registry
	creds    *creds.Manager

	// mu serializes plan and variables file writes.
	mu sync.Mutex
}

// New creates a server over the given configuration and function registry.
func New(cfg *config.Config, registry *scripts.Registry, credMgr *creds.Manager) *Server {
	return &Server{cfg: cfg, registry: registry, creds: credMgr}
}

// Handler builds the HTTP route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /api/test-plans", s.handleListPlans)
	mux.HandleFunc("POST /api/test-plans", s.handleCreatePlan)
	mux.HandleFunc("GET /api/test-plans/{id}", s.handleGetPlan)
	mux.HandleFunc("PUT /api/test-plans/{id}", s.handleUpdatePlan)
	mux.HandleFunc("DELETE /api/test-plans/{id}", s.handleDeletePlan)
	mux.HandleFunc("GET /api/test-catalog", s.handleCatalog)
	mux.HandleFunc("GET /api/variables", s.handleGetVariables)
	mux.HandleFunc("PUT /api/variables", s.handlePutVariables)
	mux.HandleFunc("GET /api/execution-logs", s.handleListLogs)
	mux.HandleFunc("GET /api/execution-logs/{name}", s.handleGetLog)
	mux.HandleFunc("GET /ws/execute", s.handleExecuteWS)

	return s.cors(mux)
}

// ListenAndServe runs the server on the configured address.
func (s *Server) ListenAndServe() error {
	fmt.Printf("stepwise admin listening on %s\n", s.cfg.Serve.Addr)
	return http.ListenAndServe(s.cfg.Serve.Addr, s.Handler())
}

// cors applies the configured allowed origins to every response.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Serve.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, map[string]string{"detail": fmt.Sprintf(format, args...)})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Stepwise Admin API",
		"status":  "running",
	})
}

// planPath maps a plan id (filename without extension) to its file.
// The id is restricted to a bare name so requests cannot escape the
// plan directory.
func (s *Server) planPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", errors.New("invalid test plan id")
	}
	return filepath.Join(s.cfg.Paths.PlanDir, id+".json"), nil
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.Paths.PlanDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeError(w, http.StatusInternalServerError, "Error reading test plans: %v", err)
		return
	}

	plans := []map[string]any{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.cfg.Paths.PlanDir, entry.Name()))
		if err != nil {
			continue
		}
		var doc map[string]any
		if err := json.Unmarshal(data, &doc); err != nil {
			continue
		}
		doc["id"] = strings.TrimSuffix(entry.Name(), ".json")
		plans = append(plans, doc)
	}
	writeJSON(w, http.StatusOK, plans)
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	path, err := s.planPath(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "Test plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error reading test plan: %v", err)
		return
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		writeError(w, http.StatusInternalServerError, "Error reading test plan: %v", err)
		return
	}
	doc["id"] = r.PathValue("id")
	writeJSON(w, http.StatusOK, doc)
}

// decodeAndValidatePlan reads a plan body and runs the validation
// pipeline. CRUD rejects structurally broken plans at the door.
func decodeAndValidatePlan(r *http.Request) ([]byte, []*schema.ValidationError, error) {
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPlanBytes))
	if err != nil {
		return nil, nil, err
	}
	_, errs := schema.Validate(data)
	return data, errs, nil
}

// maxPlanBytes bounds uploaded plan documents.
const maxPlanBytes = 4 << 20

func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	s.upsertPlan(w, r, false)
}

func (s *Server) handleUpdatePlan(w http.ResponseWriter, r *http.Request) {
	s.upsertPlan(w, r, true)
}

func (s *Server) upsertPlan(w http.ResponseWriter, r *http.Request, mustExist bool) {
	data, errs, err := decodeAndValidatePlan(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: %v", err)
		return
	}
	if schema.HasErrors(errs) {
		messages := make([]string, len(errs))
		for i, e := range errs {
			messages[i] = e.Error()
		}
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"detail": "test plan failed validation",
			"errors": messages,
		})
		return
	}

	id := r.PathValue("id")
	if id == "" {
		// POST derives the id from the plan name.
		plan, _ := schema.Validate(data)
		id = sanitizePlanID(plan.Name)
	}
	path, err := s.planPath(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, statErr := os.Stat(path); mustExist && os.IsNotExist(statErr) {
		writeError(w, http.StatusNotFound, "Test plan not found")
		return
	}
	if err := os.MkdirAll(s.cfg.Paths.PlanDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "Error writing test plan: %v", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, "Error writing test plan: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func sanitizePlanID(name string) string {
	id := strings.ToLower(strings.ReplaceAll(name, " ", "_"))
	var b strings.Builder
	for _, r := range id {
		if r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unnamed"
	}
	return b.String()
}

func (s *Server) handleDeletePlan(w http.ResponseWriter, r *http.Request) {
	path, err := s.planPath(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "%v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "Test plan not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error deleting test plan: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": r.PathValue("id")})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Catalog())
}

func (s *Server) handleGetVariables(w http.ResponseWriter, r *http.Request) {
	vars, err := params.LoadVariables(s.cfg.Paths.VariablesFile)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Error reading variables: %v", err)
		return
	}
	list := make([]params.Variable, 0, len(vars))
	for name, value := range vars {
		list = append(list, params.Variable{Name: name, Value: value})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	writeJSON(w, http.StatusOK, map[string]any{"variables": list})
}

func (s *Server) handlePutVariables(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var body struct {
		Variables []params.Variable `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "decode variables: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.cfg.Paths.VariablesFile); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			writeError(w, http.StatusInternalServerError, "Error writing variables: %v", err)
			return
		}
	}
	if err := params.SaveVariables(s.cfg.Paths.VariablesFile, body.Variables); err != nil {
		writeError(w, http.StatusInternalServerError, "Error writing variables: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"saved": len(body.Variables)})
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(s.cfg.Paths.LogDir)
	if err != nil {
		if os.IsNotExist(err) {
			writeJSON(w, http.StatusOK, []any{})
			return
		}
		writeError(w, http.StatusInternalServerError, "Error reading execution logs: %v", err)
		return
	}

	names := []string{}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), "log_") && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		writeError(w, http.StatusBadRequest, "invalid log name")
		return
	}
	data, err := os.ReadFile(filepath.Join(s.cfg.Paths.LogDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			writeError(w, http.StatusNotFound, "Execution log not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Error reading execution log: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}
