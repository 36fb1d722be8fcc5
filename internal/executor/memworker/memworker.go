// Package memworker is an in-memory stand-in for the bot worker. It keeps a
// table of "running" bots per user and answers the five bot tasks with
// plausible results, so the service can be exercised end to end without a
// real runtime.
package memworker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/seantiz/botrunner/internal/model"
	"github.com/seantiz/botrunner/internal/workflow"
)

// Failure codes reported by the worker.
const (
	CodeAlreadyRunning = "BOT_ALREADY_RUNNING"
	CodeNotFound       = "BOT_NOT_FOUND"
	CodeUnknownTask    = "UNKNOWN_TASK"
)

// maxLogLines caps how many lines one get_logs request returns.
const maxLogLines = 1000

// TaskTypes lists the task types the worker answers.
var TaskTypes = []string{
	workflow.TaskStartBot,
	workflow.TaskStopBot,
	workflow.TaskGetLogs,
	workflow.TaskListBots,
	workflow.TaskCheckStatus,
}

type bot struct {
	id        string
	mode      string
	pid       int
	startedAt time.Time
	logs      []string
}

type botKey struct {
	user string
	bot  string
}

// Worker holds the simulated bots. It is safe for concurrent use.
type Worker struct {
	mu      sync.Mutex
	bots    map[botKey]*bot
	nextPID int
	logger  *slog.Logger
	now     func() time.Time
}

// New creates an empty worker.
func New(logger *slog.Logger) *Worker {
	return &Worker{
		bots:    make(map[botKey]*bot),
		nextPID: 1000,
		logger:  logger,
		now:     time.Now,
	}
}

// Handle answers one task. It matches executor.HandlerFunc.
func (w *Worker) Handle(_ context.Context, task model.Task) model.TaskResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	user := str(task.Params["user_id"])
	key := botKey{user: user, bot: str(task.Params["bot_id"])}
	w.logger.Debug("handle task", "task_id", task.ID, "type", task.Type, "user_id", user, "bot_id", key.bot)

	switch task.Type {
	case workflow.TaskStartBot:
		return w.start(key, task.Params)
	case workflow.TaskStopBot:
		b, ok := w.bots[key]
		if !ok {
			return notFound(key.bot)
		}
		delete(w.bots, key)
		return succeed(map[string]any{"bot_id": b.id, "pid": b.pid, "status": "stopped"})
	case workflow.TaskGetLogs:
		b, ok := w.bots[key]
		if !ok {
			return notFound(key.bot)
		}
		return succeed(map[string]any{"bot_id": b.id, "logs": tail(b.logs, lineCount(task.Params["lines"]))})
	case workflow.TaskListBots:
		return succeed(map[string]any{"bots": w.list(user)})
	case workflow.TaskCheckStatus:
		b, ok := w.bots[key]
		if !ok {
			return notFound(key.bot)
		}
		return succeed(w.describe(b))
	}
	return *model.FailureResult(CodeUnknownTask, fmt.Sprintf("unknown task type %q", task.Type))
}

func (w *Worker) start(key botKey, params map[string]any) model.TaskResult {
	if _, ok := w.bots[key]; ok {
		return *model.FailureResult(CodeAlreadyRunning, fmt.Sprintf("Bot '%s' is already running", key.bot))
	}
	w.nextPID++
	b := &bot{
		id:        key.bot,
		mode:      str(params["deployment_mode"]),
		pid:       w.nextPID,
		startedAt: w.now(),
	}
	b.logs = append(b.logs,
		fmt.Sprintf("starting %s bot %s", b.mode, b.id),
		fmt.Sprintf("entrypoint %v", params["entrypoint"]),
		"bot ready",
	)
	w.bots[key] = b
	return succeed(map[string]any{"bot_id": b.id, "pid": b.pid, "status": "running"})
}

func (w *Worker) list(user string) []any {
	var owned []*bot
	for k, b := range w.bots {
		if k.user == user {
			owned = append(owned, b)
		}
	}
	sort.Slice(owned, func(i, j int) bool { return owned[i].id < owned[j].id })

	out := make([]any, 0, len(owned))
	for _, b := range owned {
		out = append(out, w.describe(b))
	}
	return out
}

func (w *Worker) describe(b *bot) map[string]any {
	return map[string]any{
		"bot_id":          b.id,
		"pid":             b.pid,
		"status":          "running",
		"deployment_mode": b.mode,
		"uptime_s":        int(w.now().Sub(b.startedAt).Seconds()),
	}
}

func succeed(data map[string]any) model.TaskResult {
	return model.TaskResult{Status: model.TaskSuccess, Data: data}
}

func notFound(botID string) model.TaskResult {
	return *model.FailureResult(CodeNotFound, fmt.Sprintf("Bot '%s' not found", botID))
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

// lineCount reads the lines parameter, which arrives as a JSON number.
func lineCount(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	}
	return workflow.DefaultLogLines
}

func tail(lines []string, n int) []any {
	if n <= 0 || n > maxLogLines {
		n = maxLogLines
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	out := make([]any, len(lines))
	for i, l := range lines {
		out[i] = l
	}
	return out
}
