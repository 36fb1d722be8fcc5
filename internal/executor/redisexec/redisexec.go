// Package redisexec carries tasks to bot workers through Redis lists. A task
// is pushed onto "<prefix>:tasks:<type>"; the worker pushes its result onto
// "<prefix>:results:<task id>", where the requester is blocked in BLPOP.
package redisexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seantiz/botrunner/internal/executor"
	"github.com/seantiz/botrunner/internal/model"
)

const (
	// DefaultPrefix is the key prefix used when none is configured.
	DefaultPrefix = "botrunner"

	// resultTTL bounds how long an unclaimed result lingers.
	resultTTL = 5 * time.Minute

	// pollInterval is how long a worker blocks before rechecking ctx.
	pollInterval = time.Second

	withdrawTimeout = 2 * time.Second
)

// TaskQueue returns the list key tasks of taskType are pushed onto.
func TaskQueue(prefix, taskType string) string {
	return prefix + ":tasks:" + taskType
}

// ResultKey returns the list key a task's result is pushed onto.
func ResultKey(prefix, taskID string) string {
	return prefix + ":results:" + taskID
}

// NewClient parses a redis:// URL into a client.
func NewClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opt), nil
}

// Compile-time interface satisfaction check.
var _ executor.Executor = (*Executor)(nil)

// Executor queues tasks in Redis and waits for their results.
type Executor struct {
	rdb    *redis.Client
	prefix string
}

// New creates an executor on rdb.
func New(rdb *redis.Client, prefix string) *Executor {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Executor{rdb: rdb, prefix: prefix}
}

// Execute enqueues the task and blocks for its result until ctx expires. A
// task still queued when ctx expires is withdrawn so no worker starts it late.
func (e *Executor) Execute(ctx context.Context, task model.Task) (model.TaskResult, error) {
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && task.Deadline.IsZero() {
		task.Deadline = deadline.UTC()
	}
	data, err := json.Marshal(task)
	if err != nil {
		return model.TaskResult{}, fmt.Errorf("encode task: %w", err)
	}
	queue := TaskQueue(e.prefix, task.Type)
	if err := e.rdb.RPush(ctx, queue, data).Err(); err != nil {
		return model.TaskResult{}, fmt.Errorf("enqueue %s: %w", task.Type, err)
	}

	vals, err := e.rdb.BLPop(ctx, blockFor(deadline, hasDeadline), ResultKey(e.prefix, task.ID)).Result()
	if errors.Is(err, redis.Nil) || (err != nil && ctx.Err() != nil) {
		e.withdraw(queue, data, task.ID)
		return model.TaskResult{}, fmt.Errorf("wait for %s result: %w", task.Type, context.DeadlineExceeded)
	}
	if err != nil {
		return model.TaskResult{}, fmt.Errorf("wait for %s result: %w", task.Type, err)
	}
	if len(vals) != 2 {
		return model.TaskResult{}, fmt.Errorf("wait for %s result: unexpected reply %v", task.Type, vals)
	}

	var res model.TaskResult
	if err := json.Unmarshal([]byte(vals[1]), &res); err != nil {
		return model.TaskResult{}, fmt.Errorf("decode task result: %w", err)
	}
	return res, nil
}

// blockFor converts the time left before deadline into a BLPOP timeout.
// BLPOP has one-second resolution and zero blocks forever, so the wait is
// rounded up and never below a second.
func blockFor(deadline time.Time, ok bool) time.Duration {
	if !ok {
		return time.Second
	}
	wait := (time.Until(deadline) + time.Second - 1).Truncate(time.Second)
	return max(wait, time.Second)
}

// withdraw removes a timed-out task from its queue if no worker took it.
func (e *Executor) withdraw(queue string, data []byte, taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), withdrawTimeout)
	defer cancel()
	if err := e.rdb.LRem(ctx, queue, 1, data).Err(); err != nil {
		slog.Default().Warn("withdraw timed-out task", "queue", queue, "task_id", taskID, "error", err)
	}
}

// Capabilities implements executor.Executor.
func (e *Executor) Capabilities() executor.Capabilities {
	return executor.Capabilities{Name: "redis", Transport: "redis " + e.prefix + ":tasks:*"}
}

// Serve pops tasks of the given types and answers them with h until ctx is
// cancelled. It returns nil on cancellation.
func Serve(ctx context.Context, rdb *redis.Client, prefix string, taskTypes []string, h executor.HandlerFunc, logger *slog.Logger) error {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	queues := make([]string, len(taskTypes))
	for i, tt := range taskTypes {
		queues[i] = TaskQueue(prefix, tt)
	}

	for {
		vals, err := rdb.BLPop(ctx, pollInterval, queues...).Result()
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("pop task: %w", err)
		}

		queue, payload := vals[0], vals[1]
		var task model.Task
		if err := json.Unmarshal([]byte(payload), &task); err != nil {
			// Without an id there is nowhere to send a result.
			logger.Error("drop malformed task", "queue", queue, "error", err)
			continue
		}
		task.Type = strings.TrimPrefix(queue, prefix+":tasks:")
		if task.Expired(time.Now()) {
			// The requester has given up and failed the job.
			logger.Warn("drop expired task", "task_id", task.ID, "task_type", task.Type, "deadline", task.Deadline)
			continue
		}

		res := h(ctx, task)
		out, err := json.Marshal(res)
		if err != nil {
			logger.Error("encode task result", "task_id", task.ID, "error", err)
			continue
		}
		key := ResultKey(prefix, task.ID)
		if _, err := rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.RPush(ctx, key, out)
			pipe.Expire(ctx, key, resultTTL)
			return nil
		}); err != nil {
			logger.Error("push task result", "task_id", task.ID, "error", err)
		}
	}
}
