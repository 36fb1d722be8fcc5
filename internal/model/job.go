package model

import "time"

// Job status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusWaiting   = "waiting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job event kinds.
const (
	EventEnter    = "enter"
	EventDispatch = "dispatch"
	EventResult   = "result"
	EventFinish   = "finish"
)

// validTransitions maps each status to the set of statuses it may transition to.
// A job alternates between running and waiting while it dispatches tasks.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning: true,
		StatusFailed:  true,
	},
	StatusRunning: {
		StatusRunning:   true,
		StatusWaiting:   true,
		StatusCompleted: true,
		StatusFailed:    true,
	},
	StatusWaiting: {
		StatusRunning: true,
		StatusFailed:  true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status ends a job.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Job is one execution of a workflow blueprint.
type Job struct {
	ID         string         `json:"id"`
	Blueprint  string         `json:"blueprint"`
	State      string         `json:"state"`
	Status     string         `json:"status"`
	Client     string         `json:"client,omitempty"`
	Data       map[string]any `json:"data"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// JobEvent is a persisted record of one step a job took.
type JobEvent struct {
	ID        int64     `json:"id"`
	JobID     string    `json:"job_id"`
	Seq       int       `json:"seq"`
	Kind      string    `json:"kind"`
	State     string    `json:"state"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
