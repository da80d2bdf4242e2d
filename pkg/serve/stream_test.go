package serve

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dialExecute(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/execute"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

// collectMessages reads until the socket yields a terminal STATUS or the
// deadline passes.
func collectMessages(t *testing.T, conn *websocket.Conn) []map[string]any {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var messages []map[string]any
	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read message: %v (got %d so far)", err, len(messages))
		}
		messages = append(messages, msg)
		if msg["type"] == "STATUS" {
			if status := msg["status"]; status == "completed" || status == "failed" {
				return messages
			}
		}
	}
}

func messagesOfType(messages []map[string]any, typ string) []map[string]any {
	var out []map[string]any
	for _, m := range messages {
		if m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func TestExecuteWSRunsPlan(t *testing.T) {
	srv, ts := newTestServer(t)

	target := filepath.Join(t.TempDir(), "present.txt")
	if err := os.WriteFile(target, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	plan := strings.Replace(validPlanBody, "/tmp/example.txt", target, 1)
	if err := os.MkdirAll(srv.cfg.Paths.PlanDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srv.cfg.Paths.PlanDir, "smoke.json"), []byte(plan), 0o644); err != nil {
		t.Fatal(err)
	}

	conn := dialExecute(t, ts.URL)
	if err := conn.WriteJSON(map[string]any{"test_plan": "smoke", "debug_level": 2}); err != nil {
		t.Fatal(err)
	}
	messages := collectMessages(t, conn)

	statuses := messagesOfType(messages, "STATUS")
	if len(statuses) < 2 {
		t.Fatalf("want started and completed STATUS, got %v", statuses)
	}
	if statuses[0]["status"] != "started" {
		t.Errorf("first status = %v", statuses[0]["status"])
	}
	last := statuses[len(statuses)-1]
	if last["status"] != "completed" {
		t.Fatalf("final status = %v: %v", last["status"], last["message"])
	}
	if msg, _ := last["message"].(string); !strings.Contains(msg, "1/1 steps passed") {
		t.Errorf("final message = %q", msg)
	}

	outputs := messagesOfType(messages, "OUTPUT")
	if len(outputs) == 0 {
		t.Fatal("no OUTPUT messages")
	}
	var sawStepLine bool
	for _, m := range outputs {
		if m["stream"] != "stdout" {
			t.Errorf("stream = %v", m["stream"])
		}
		if line, _ := m["line"].(string); strings.Contains(line, "Step 1: PASSED") {
			sawStepLine = true
		}
	}
	if !sawStepLine {
		t.Error("step result line not streamed")
	}

	links := messagesOfType(messages, "LOG_LINK")
	if len(links) != 1 {
		t.Fatalf("want one LOG_LINK, got %d", len(links))
	}
	filename, _ := links[0]["filename"].(string)
	if !strings.HasPrefix(filename, "log_") || !strings.HasSuffix(filename, ".json") {
		t.Errorf("log filename = %q", filename)
	}
	if url, _ := links[0]["url"].(string); url != "/api/execution-logs/"+filename {
		t.Errorf("log url = %q", url)
	}
	if _, err := os.Stat(filepath.Join(srv.cfg.Paths.LogDir, filename)); err != nil {
		t.Errorf("execution log not written: %v", err)
	}
}

func TestExecuteWSUnknownPlan(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dialExecute(t, ts.URL)
	if err := conn.WriteJSON(map[string]any{"test_plan": "missing"}); err != nil {
		t.Fatal(err)
	}
	messages := collectMessages(t, conn)

	if errs := messagesOfType(messages, "ERROR"); len(errs) == 0 {
		t.Fatal("expected ERROR messages for missing plan")
	}
	last := messages[len(messages)-1]
	if last["type"] != "STATUS" || last["status"] != "failed" {
		t.Errorf("final message = %v", last)
	}
}

func TestExecuteWSRejectsBadPlanID(t *testing.T) {
	_, ts := newTestServer(t)

	conn := dialExecute(t, ts.URL)
	if err := conn.WriteJSON(map[string]any{"test_plan": "../escape"}); err != nil {
		t.Fatal(err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatal(err)
	}
	if msg["type"] != "ERROR" {
		t.Fatalf("message type = %v, want ERROR", msg["type"])
	}
}
