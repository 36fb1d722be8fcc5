package redisexec

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/seantiz/botrunner/internal/model"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestKeys(t *testing.T) {
	if got := TaskQueue("bots", "start_bot"); got != "bots:tasks:start_bot" {
		t.Errorf("TaskQueue = %q", got)
	}
	if got := ResultKey("bots", "abc"); got != "bots:results:abc" {
		t.Errorf("ResultKey = %q", got)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient("not a url"); err == nil {
		t.Error("NewClient accepted a malformed URL")
	}
}

func TestExecuteRoundTrip(t *testing.T) {
	_, rdb := newTestClient(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	served := make(chan error, 1)
	go func() {
		served <- Serve(ctx, rdb, "bots", []string{"stop_bot"}, func(_ context.Context, task model.Task) model.TaskResult {
			if task.Params["bot_id"] == "ghost" {
				return model.TaskResult{Error: map[string]any{"message": "not found"}}
			}
			return model.TaskResult{Data: map[string]any{"stopped": task.Params["bot_id"], "type": task.Type}}
		}, logger)
	}()

	exec := New(rdb, "bots")

	callCtx, callCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer callCancel()
	res, err := exec.Execute(callCtx, model.Task{ID: "t1", Type: "stop_bot", Params: map[string]any{"bot_id": "echo"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Succeeded() || res.Data["stopped"] != "echo" || res.Data["type"] != "stop_bot" {
		t.Errorf("result = %+v", res)
	}

	res, err = exec.Execute(callCtx, model.Task{ID: "t2", Type: "stop_bot", Params: map[string]any{"bot_id": "ghost"}})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Succeeded() || res.Error["message"] != "not found" {
		t.Errorf("result = %+v, want not found failure", res)
	}

	cancel()
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("Serve did not stop after cancel")
	}
}

func TestExecuteTimesOutWithoutWorker(t *testing.T) {
	mr, rdb := newTestClient(t)
	exec := New(rdb, "")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := exec.Execute(ctx, model.Task{ID: "t1", Type: "get_logs"})
	if err == nil {
		t.Fatal("Execute succeeded with no worker")
	}
	if !errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		t.Errorf("Execute error = %v, want deadline", err)
	}

	queued, err := mr.List(TaskQueue(DefaultPrefix, "get_logs"))
	if err != nil && !errors.Is(err, miniredis.ErrKeyNotFound) {
		t.Fatalf("List: %v", err)
	}
	if len(queued) != 0 {
		t.Errorf("queued = %v, want timed-out task withdrawn", queued)
	}
}

func TestLateWorkerSkipsTimedOutTask(t *testing.T) {
	_, rdb := newTestClient(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	exec := New(rdb, "bots")

	callCtx, callCancel := context.WithTimeout(context.Background(), time.Second)
	defer callCancel()
	if _, err := exec.Execute(callCtx, model.Task{ID: "t1", Type: "start_bot"}); err == nil {
		t.Fatal("Execute succeeded with no worker")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ran []string
	err := Serve(ctx, rdb, "bots", []string{"start_bot"}, func(_ context.Context, task model.Task) model.TaskResult {
		ran = append(ran, task.ID)
		return model.TaskResult{Data: map[string]any{}}
	}, logger)
	if err != nil {
		t.Fatalf("Serve: %v", err)
	}
	if len(ran) != 0 {
		t.Errorf("worker ran %v after the requester timed out", ran)
	}
}

func TestServeDropsExpiredTask(t *testing.T) {
	_, rdb := newTestClient(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	stale, _ := json.Marshal(model.Task{ID: "old", Deadline: time.Now().Add(-time.Minute)})
	fresh, _ := json.Marshal(model.Task{ID: "new", Deadline: time.Now().Add(time.Minute)})
	queue := TaskQueue("bots", "check_status")
	if err := rdb.RPush(context.Background(), queue, stale, fresh).Err(); err != nil {
		t.Fatalf("RPush: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ran []string
	_ = Serve(ctx, rdb, "bots", []string{"check_status"}, func(_ context.Context, task model.Task) model.TaskResult {
		ran = append(ran, task.ID)
		return model.TaskResult{Data: map[string]any{}}
	}, logger)

	if len(ran) != 1 || ran[0] != "new" {
		t.Errorf("ran = %v, want [new]", ran)
	}
	n, err := rdb.LLen(context.Background(), ResultKey("bots", "old")).Result()
	if err != nil {
		t.Fatalf("LLen: %v", err)
	}
	if n != 0 {
		t.Errorf("expired task got %d results, want none", n)
	}
}

func TestBlockForRoundsUp(t *testing.T) {
	tests := []struct {
		name string
		left time.Duration
		want time.Duration
	}{
		{"sub-second", 200 * time.Millisecond, time.Second},
		{"just over a second", 1300 * time.Millisecond, 2 * time.Second},
		{"whole seconds plus slack", 4600 * time.Millisecond, 5 * time.Second},
		{"already past", -time.Second, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := blockFor(time.Now().Add(tt.left), true)
			if got != tt.want {
				t.Errorf("blockFor(+%s) = %s, want %s", tt.left, got, tt.want)
			}
		})
	}
	if got := blockFor(time.Time{}, false); got != time.Second {
		t.Errorf("blockFor(no deadline) = %s, want 1s", got)
	}
}
