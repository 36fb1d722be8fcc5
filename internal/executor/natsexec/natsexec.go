// Package natsexec carries tasks to bot workers over NATS request/reply.
// Each task is published on "<prefix>.<task type>" and the first worker in
// the queue group answers with a JSON TaskResult.
package natsexec

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/seantiz/botrunner/internal/executor"
	"github.com/seantiz/botrunner/internal/model"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "botrunner.tasks"

// Config holds connection settings.
type Config struct {
	URL    string
	Prefix string
	Name   string
}

// Connect dials NATS with unlimited reconnects.
func Connect(cfg Config) (*nats.Conn, error) {
	url := cfg.URL
	if url == "" {
		url = nats.DefaultURL
	}
	name := cfg.Name
	if name == "" {
		name = "botrunner"
	}
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	return nc, nil
}

// Subject returns the subject a task type is published on.
func Subject(prefix, taskType string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + taskType
}

// Compile-time interface satisfaction check.
var _ executor.Executor = (*Executor)(nil)

// Executor sends tasks as NATS requests.
type Executor struct {
	nc     *nats.Conn
	prefix string
}

// New creates an executor on an established connection.
func New(nc *nats.Conn, prefix string) *Executor {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Executor{nc: nc, prefix: prefix}
}

// Execute publishes the task and waits for a reply until ctx expires.
func (e *Executor) Execute(ctx context.Context, task model.Task) (model.TaskResult, error) {
	data, err := json.Marshal(task)
	if err != nil {
		return model.TaskResult{}, fmt.Errorf("encode task: %w", err)
	}

	msg, err := e.nc.RequestWithContext(ctx, Subject(e.prefix, task.Type), data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return model.TaskResult{}, fmt.Errorf("no workers subscribed for %s: %w", task.Type, err)
		}
		return model.TaskResult{}, fmt.Errorf("request %s: %w", task.Type, err)
	}
	return decodeResult(msg.Data)
}

// Capabilities implements executor.Executor.
func (e *Executor) Capabilities() executor.Capabilities {
	return executor.Capabilities{Name: "nats", Transport: "nats " + e.prefix + ".>"}
}

func decodeResult(data []byte) (model.TaskResult, error) {
	var res model.TaskResult
	if err := json.Unmarshal(data, &res); err != nil {
		return model.TaskResult{}, fmt.Errorf("decode task result: %w", err)
	}
	return res, nil
}

// Serve answers tasks on "<prefix>.>" with h until ctx is cancelled. Workers
// sharing queue split the load. Malformed tasks are answered with a failure
// result rather than dropped so the requester does not wait out its timeout.
func Serve(ctx context.Context, nc *nats.Conn, prefix, queue string, h executor.HandlerFunc, logger *slog.Logger) (*nats.Subscription, error) {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	sub, err := nc.QueueSubscribe(prefix+".>", queue, func(msg *nats.Msg) {
		res := handleMessage(ctx, prefix, msg.Subject, msg.Data, h)
		out, err := json.Marshal(res)
		if err != nil {
			logger.Error("encode task result", "subject", msg.Subject, "error", err)
			return
		}
		if err := msg.Respond(out); err != nil {
			logger.Error("respond to task", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s.>: %w", prefix, err)
	}

	go func() {
		<-ctx.Done()
		_ = sub.Drain()
	}()
	return sub, nil
}

// handleMessage decodes a task request and runs it. The task type always
// comes from the subject so a worker cannot be tricked into another handler.
func handleMessage(ctx context.Context, prefix, subject string, data []byte, h executor.HandlerFunc) model.TaskResult {
	var task model.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return *model.FailureResult("MALFORMED_TASK", err.Error())
	}
	task.Type = strings.TrimPrefix(subject, prefix+".")
	if task.Expired(time.Now()) {
		return *model.FailureResult("TASK_EXPIRED", "task deadline passed before a worker took it")
	}
	return h(ctx, task)
}
