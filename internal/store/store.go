package store

import (
	"context"
	"errors"

	"github.com/seantiz/botrunner/internal/model"
)

// ErrInvalidTransition is returned when a job status transition is not allowed.
var ErrInvalidTransition = errors.New("invalid status transition")

// JobStats holds aggregate job statistics.
type JobStats struct {
	Total            int            `json:"total"`
	CountByStatus    map[string]int `json:"count_by_status"`
	CountByBlueprint map[string]int `json:"count_by_blueprint"`
	CountByAction    map[string]int `json:"count_by_action"`
}

// Store defines the persistence operations for jobs.
type Store interface {
	CreateJob(ctx context.Context, j *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, limit, offset int) ([]*model.Job, int, error)
	UpdateJob(ctx context.Context, j *model.Job) error
	GetJobStats(ctx context.Context) (*JobStats, error)
	InsertEvent(ctx context.Context, ev *model.JobEvent) error
	GetEvents(ctx context.Context, jobID string) ([]model.JobEvent, error)
	Close() error
}
