package model

import "time"

// Task result statuses an executor may report explicitly.
const (
	TaskSuccess = "success"
	TaskFailure = "failure"
)

// Task is one unit of work dispatched to an external executor.
type Task struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	JobID    string         `json:"job_id"`
	Params   map[string]any `json:"params"`
	TimeoutS int            `json:"timeout_s"`
	// Deadline is when the requester stops waiting for a result. Workers
	// must not start a task after it.
	Deadline time.Time `json:"deadline,omitzero"`
}

// Expired reports whether the task's deadline has passed at now.
func (t Task) Expired(now time.Time) bool {
	return !t.Deadline.IsZero() && now.After(t.Deadline)
}

// TaskResult is what an executor reports back for a Task: a data payload on
// success or an error payload on failure. Status is optional; when it is
// empty, the presence of Error decides the outcome.
type TaskResult struct {
	Status string         `json:"status,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	Error  map[string]any `json:"error,omitempty"`
}

// Succeeded reports whether the result should take the success branch.
func (r *TaskResult) Succeeded() bool {
	if r.Status != "" {
		return r.Status == TaskSuccess
	}
	return r.Error == nil
}

// FailureResult builds a failed TaskResult with the given code and message.
func FailureResult(code, message string) *TaskResult {
	return &TaskResult{
		Status: TaskFailure,
		Error:  map[string]any{"code": code, "message": message},
	}
}
