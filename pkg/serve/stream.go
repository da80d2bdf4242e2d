package serve

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/stepwise-qa/stepwise/pkg/params"
	"github.com/stepwise-qa/stepwise/pkg/runner"
	"github.com/stepwise-qa/stepwise/pkg/tmparea"
)

// executeRequest is the first message a client sends on /ws/execute.
type executeRequest struct {
	TestPlan   string `json:"test_plan"`
	TestCaseID string `json:"test_case_id"`
	DebugLevel int    `json:"debug_level"`
}

// wsClient serializes writes to one websocket connection. The console
// writer and the status messages come from the same goroutine, but the
// disconnect watcher may race a close against them.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *wsClient) sendStatus(status, message string) {
	c.send(map[string]any{
		"type":      "STATUS",
		"status":    status,
		"message":   message,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (c *wsClient) sendOutput(stream, line string) {
	c.send(map[string]any{
		"type":      "OUTPUT",
		"stream":    stream,
		"line":      line,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (c *wsClient) sendError(message string) {
	c.send(map[string]any{
		"type":      "ERROR",
		"message":   message,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (c *wsClient) sendLogLink(url, filename string) {
	c.send(map[string]any{
		"type":      "LOG_LINK",
		"url":       url,
		"filename":  filename,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// lineWriter buffers console output and forwards complete lines as
// OUTPUT messages.
type lineWriter struct {
	client *wsClient
	stream string
	buf    strings.Builder
}

func (w *lineWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' {
			w.client.sendOutput(w.stream, w.buf.String())
			w.buf.Reset()
			continue
		}
		w.buf.WriteByte(b)
	}
	return len(p), nil
}

func (w *lineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.client.sendOutput(w.stream, w.buf.String())
		w.buf.Reset()
	}
}

// handleExecuteWS runs one test plan and streams its progress. The
// client sends a single request message, then receives STATUS, OUTPUT,
// ERROR and LOG_LINK messages until the run ends. Closing the socket
// cancels the run.
func (s *Server) handleExecuteWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.originAllowed(origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	client := &wsClient{conn: conn}

	var req executeRequest
	if err := conn.ReadJSON(&req); err != nil {
		client.sendError(fmt.Sprintf("invalid execution request: %v", err))
		return
	}

	path, err := s.planPath(req.TestPlan)
	if err != nil {
		client.sendError(err.Error())
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Any further read means the client went away or sent something
	// unexpected; either way the run stops.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	s.runPlanStream(ctx, client, path, &req)
}

func (s *Server) runPlanStream(ctx context.Context, client *wsClient, path string, req *executeRequest) {
	client.sendStatus("started", fmt.Sprintf("Executing test plan: %s", req.TestPlan))
	startedAt := time.Now()

	vars, err := params.LoadVariables(s.cfg.Paths.VariablesFile)
	if err != nil {
		client.sendError(fmt.Sprintf("load variables: %v", err))
		client.sendStatus("failed", "Execution failed")
		return
	}

	out := &lineWriter{client: client, stream: "stdout"}
	defer out.Flush()

	engine := &runner.Engine{
		Registry: s.registry,
		Params: &params.Resolver{
			Variables: vars,
			Tmp:       tmparea.New(s.cfg.TmpBase()),
		},
		Console: &runner.Console{W: out, Level: req.DebugLevel},
	}
	if s.creds != nil {
		engine.Creds = s.creds
	}

	report, err := engine.RunPlan(ctx, path, req.TestCaseID)
	out.Flush()
	if err != nil {
		client.sendError(fmt.Sprintf("execution error: %v", err))
		client.sendStatus("failed", "Execution failed")
		return
	}

	if report.State == runner.StateAborted {
		for _, msg := range report.Errors {
			client.sendError(msg)
		}
		client.sendStatus("failed", "Test plan validation failed")
		return
	}

	commandLine := fmt.Sprintf("ws /ws/execute test_plan=%s", req.TestPlan)
	if req.TestCaseID != "" {
		commandLine += " test_case_id=" + req.TestCaseID
	}
	execLog := runner.NewExecutionLog(report, startedAt, commandLine)
	logPath, err := runner.WriteExecutionLog(s.cfg.Paths.LogDir, execLog)
	if err != nil {
		client.sendError(fmt.Sprintf("write execution log: %v", err))
	} else {
		filename := filepath.Base(logPath)
		client.sendLogLink("/api/execution-logs/"+filename, filename)
	}

	client.sendStatus("completed", fmt.Sprintf(
		"Execution finished: %d/%d steps passed",
		report.Summary.PassedSteps, report.Summary.TotalSteps))
}
