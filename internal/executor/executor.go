package executor

import (
	"context"

	"github.com/seantiz/botrunner/internal/model"
)

// Executor is the interface that all task transports must implement.
type Executor interface {
	// Execute delivers a task and waits for its result. The context carries
	// the dispatch deadline; implementations must return once it expires.
	// A returned error means no result was obtained; a failed task is
	// reported through TaskResult.Error instead.
	Execute(ctx context.Context, task model.Task) (model.TaskResult, error)

	// Capabilities reports what this executor serves.
	Capabilities() Capabilities
}

// Capabilities describes an executor.
type Capabilities struct {
	Name      string   `json:"name"`
	Transport string   `json:"transport"`
	TaskTypes []string `json:"task_types,omitempty"`
}

// HandlerFunc performs a task on the worker side and reports its outcome.
type HandlerFunc func(ctx context.Context, task model.Task) model.TaskResult

// Local runs tasks in-process through a HandlerFunc. It backs development
// setups and tests that have no broker.
type Local struct {
	name    string
	handler HandlerFunc
}

// NewLocal creates an in-process executor.
func NewLocal(name string, h HandlerFunc) *Local {
	return &Local{name: name, handler: h}
}

// Execute runs the handler, giving up when ctx expires first.
func (l *Local) Execute(ctx context.Context, task model.Task) (model.TaskResult, error) {
	done := make(chan model.TaskResult, 1)
	go func() {
		done <- l.handler(ctx, task)
	}()
	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return model.TaskResult{}, ctx.Err()
	}
}

// Capabilities implements Executor.
func (l *Local) Capabilities() Capabilities {
	return Capabilities{Name: l.name, Transport: "local"}
}
