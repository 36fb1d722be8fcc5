package memworker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/seantiz/botrunner/internal/model"
	"github.com/seantiz/botrunner/internal/workflow"
)

func newTestWorker(t *testing.T) *Worker {
	t.Helper()
	w := New(slog.New(slog.NewJSONHandler(io.Discard, nil)))
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return start }
	return w
}

func run(w *Worker, taskType string, params map[string]any) model.TaskResult {
	return w.Handle(context.Background(), model.Task{ID: "t", Type: taskType, Params: params})
}

func errCode(r model.TaskResult) any {
	return r.Error["code"]
}

func TestLifecycle(t *testing.T) {
	w := newTestWorker(t)
	alice := map[string]any{"user_id": "alice", "bot_id": "echo", "deployment_mode": "simple", "entrypoint": "bot.py"}

	res := run(w, workflow.TaskStartBot, alice)
	if !res.Succeeded() || res.Data["status"] != "running" {
		t.Fatalf("start = %+v", res)
	}
	pid := res.Data["pid"]

	if res := run(w, workflow.TaskStartBot, alice); res.Succeeded() || errCode(res) != CodeAlreadyRunning {
		t.Errorf("second start = %+v, want %s", res, CodeAlreadyRunning)
	}

	res = run(w, workflow.TaskCheckStatus, alice)
	if !res.Succeeded() || res.Data["pid"] != pid || res.Data["deployment_mode"] != "simple" {
		t.Errorf("status = %+v", res)
	}

	res = run(w, workflow.TaskGetLogs, map[string]any{"user_id": "alice", "bot_id": "echo", "lines": 2.0})
	logs, _ := res.Data["logs"].([]any)
	if !res.Succeeded() || len(logs) != 2 || logs[1] != "bot ready" {
		t.Errorf("logs = %+v", res)
	}

	res = run(w, workflow.TaskStopBot, alice)
	if !res.Succeeded() || res.Data["status"] != "stopped" {
		t.Errorf("stop = %+v", res)
	}

	for _, tt := range []string{workflow.TaskStopBot, workflow.TaskCheckStatus, workflow.TaskGetLogs} {
		if res := run(w, tt, alice); res.Succeeded() || errCode(res) != CodeNotFound {
			t.Errorf("%s after stop = %+v, want %s", tt, res, CodeNotFound)
		}
	}
}

func TestListIsPerUser(t *testing.T) {
	w := newTestWorker(t)
	for _, p := range []map[string]any{
		{"user_id": "alice", "bot_id": "zeta"},
		{"user_id": "alice", "bot_id": "alpha"},
		{"user_id": "bob", "bot_id": "alpha"},
	} {
		if res := run(w, workflow.TaskStartBot, p); !res.Succeeded() {
			t.Fatalf("start %v: %+v", p, res)
		}
	}

	res := run(w, workflow.TaskListBots, map[string]any{"user_id": "alice"})
	bots, _ := res.Data["bots"].([]any)
	if len(bots) != 2 {
		t.Fatalf("alice has %d bots, want 2", len(bots))
	}
	first, _ := bots[0].(map[string]any)
	if first["bot_id"] != "alpha" {
		t.Errorf("bots not sorted: first = %v", first["bot_id"])
	}

	res = run(w, workflow.TaskListBots, map[string]any{"user_id": "carol"})
	if bots, _ := res.Data["bots"].([]any); bots == nil || len(bots) != 0 {
		t.Errorf("carol bots = %#v, want empty list", res.Data["bots"])
	}
}

func TestUnknownTask(t *testing.T) {
	w := newTestWorker(t)
	res := run(w, "reboot_bot", nil)
	if res.Succeeded() || errCode(res) != CodeUnknownTask {
		t.Errorf("unknown task = %+v", res)
	}
}

func TestLineCount(t *testing.T) {
	tests := []struct {
		in   any
		want int
	}{
		{nil, workflow.DefaultLogLines},
		{5, 5},
		{7.0, 7},
		{"9", workflow.DefaultLogLines},
	}
	for _, tt := range tests {
		if got := lineCount(tt.in); got != tt.want {
			t.Errorf("lineCount(%#v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestTailCapsRequest(t *testing.T) {
	lines := make([]string, maxLogLines+500)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}
	tests := []struct {
		n    int
		want int
	}{
		{10, 10},
		{0, maxLogLines},
		{maxLogLines * 5, maxLogLines},
	}
	for _, tt := range tests {
		got := tail(lines, tt.n)
		if len(got) != tt.want {
			t.Errorf("tail(n=%d) = %d lines, want %d", tt.n, len(got), tt.want)
		}
		if got[len(got)-1] != lines[len(lines)-1] {
			t.Errorf("tail(n=%d) last = %v, want newest line", tt.n, got[len(got)-1])
		}
	}
}
