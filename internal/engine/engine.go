package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seantiz/botrunner/internal/executor"
	"github.com/seantiz/botrunner/internal/model"
	"github.com/seantiz/botrunner/internal/store"
	"github.com/seantiz/botrunner/internal/workflow"
)

// MaxSteps bounds how many handler invocations a single job may take.
const MaxSteps = 64

// Failure codes the engine writes into a job's error when it, rather than a
// state handler, decides the outcome.
const (
	CodeTaskTimeout   = "TASK_TIMEOUT"
	CodeDispatchError = "DISPATCH_ERROR"
	CodeStepLimit     = "STEP_LIMIT_EXCEEDED"
	CodeIllegalStep   = "ILLEGAL_STEP"
	CodeInternal      = "INTERNAL_ERROR"
)

// ErrUnknownBlueprint is returned by Submit for a job naming an unregistered
// blueprint.
var ErrUnknownBlueprint = errors.New("unknown blueprint")

// Engine orchestrates asynchronous job execution.
type Engine struct {
	store     store.Store
	executors *executor.Registry
	logger    *slog.Logger
	wg        sync.WaitGroup
	broker    *EventBroker

	mu         sync.RWMutex
	blueprints map[string]*workflow.Blueprint
}

// NewEngine creates a new execution engine.
func NewEngine(s store.Store, reg *executor.Registry, logger *slog.Logger) *Engine {
	return &Engine{
		store:      s,
		executors:  reg,
		logger:     logger,
		broker:     NewEventBroker(),
		blueprints: make(map[string]*workflow.Blueprint),
	}
}

// Register adds a blueprint after checking that its state table is complete.
func (e *Engine) Register(bp *workflow.Blueprint) error {
	if err := bp.Check(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.blueprints[bp.Name]; ok {
		return fmt.Errorf("blueprint %q already registered", bp.Name)
	}
	e.blueprints[bp.Name] = bp
	initJobMetrics(bp.Name)
	return nil
}

// Blueprint returns the registered blueprint with the given name.
func (e *Engine) Blueprint(name string) (*workflow.Blueprint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	bp, ok := e.blueprints[name]
	return bp, ok
}

// Blueprints returns all registered blueprints sorted by name.
func (e *Engine) Blueprints() []*workflow.Blueprint {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*workflow.Blueprint, 0, len(e.blueprints))
	for _, bp := range e.blueprints {
		out = append(out, bp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Broker returns the engine's event broker for SSE subscription.
func (e *Engine) Broker() *EventBroker {
	return e.broker
}

// Submit creates a job record in its blueprint's initial state and launches
// execution in a goroutine. The job is stored with status "pending" before
// returning. The goroutine works on its own deep copy of the job data so the
// caller may keep reading j.
func (e *Engine) Submit(ctx context.Context, j *model.Job) error {
	bp, ok := e.Blueprint(j.Blueprint)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownBlueprint, j.Blueprint)
	}

	if j.ID == "" {
		j.ID = model.NewID()
	}
	now := time.Now().UTC()
	j.State = string(bp.Initial)
	j.Status = model.StatusPending
	j.CreatedAt = now
	j.UpdatedAt = now
	j.FinishedAt = nil
	if j.Data == nil {
		j.Data = map[string]any{}
	}

	if err := e.store.CreateJob(ctx, j); err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	run := *j
	run.Data = cloneMap(j.Data)
	e.wg.Go(func() {
		e.execute(bp, &run)
	})

	return nil
}

// Wait blocks until all in-flight job goroutines complete.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// jobRun is the mutable state of one executing job.
type jobRun struct {
	bp  *workflow.Blueprint
	job *model.Job
	jc  *workflow.JobContext
	seq int
	log *slog.Logger
}

// execute drives a job from its initial state to a terminal state.
func (e *Engine) execute(bp *workflow.Blueprint, j *model.Job) {
	defer e.broker.Close(j.ID)
	activeJobs.Inc()
	defer activeJobs.Dec()

	r := &jobRun{
		bp:  bp,
		job: j,
		jc:  &workflow.JobContext{JobID: j.ID, Data: j.Data},
		log: e.logger.With("job_id", j.ID, "blueprint", bp.Name),
	}
	if j.Client != "" {
		r.jc.Client = &workflow.Client{Name: j.Client}
	}

	if !e.moveTo(r, bp.Initial, model.StatusRunning) {
		return
	}

	state := bp.Initial
	var result *model.TaskResult
	for steps := 0; ; steps++ {
		if steps >= MaxSteps {
			e.abort(r, CodeStepLimit, fmt.Sprintf("job exceeded %d steps", MaxSteps))
			return
		}

		step, err := bp.Handle(state, r.jc, result)
		result = nil
		if err != nil {
			e.abort(r, CodeIllegalStep, err.Error())
			return
		}

		switch step.Kind {
		case workflow.StepEnd:
			e.finish(r, state)
			return

		case workflow.StepGoto:
			state = step.Next
			if !e.moveTo(r, state, model.StatusRunning) {
				return
			}

		case workflow.StepDispatch:
			d := step.Dispatch
			j.Status = model.StatusWaiting
			if !e.save(r) {
				return
			}
			taskID := uuid.NewString()
			e.record(r, model.EventDispatch, string(state), fmt.Sprintf("%s task %s", d.TaskType, taskID))

			result = e.dispatch(r, taskID, d)

			state = d.OnFailure
			outcome := outcomeFailure
			if result.Succeeded() {
				state = d.OnSuccess
				outcome = outcomeSuccess
			}
			e.record(r, model.EventResult, string(j.State), fmt.Sprintf("%s %s", d.TaskType, outcome))
			if !e.moveTo(r, state, model.StatusRunning) {
				return
			}
		}
	}
}

// dispatch sends one task and waits for its result under the dispatch
// timeout. Timeouts and transport failures become failure results so the
// blueprint's failure branch handles them.
func (e *Engine) dispatch(r *jobRun, taskID string, d *workflow.Dispatch) *model.TaskResult {
	ex, err := e.executors.Resolve(d.TaskType)
	if err != nil {
		dispatchTotal.WithLabelValues(d.TaskType, outcomeError).Inc()
		r.log.Error("resolve executor", "task_type", d.TaskType, "error", err)
		return model.FailureResult(CodeDispatchError, err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.Timeout)
	defer cancel()
	deadline, _ := ctx.Deadline()

	task := model.Task{
		ID:       taskID,
		Type:     d.TaskType,
		JobID:    r.job.ID,
		Params:   d.Params,
		TimeoutS: max(int(d.Timeout/time.Second), 1),
		Deadline: deadline.UTC(),
	}

	start := time.Now()
	res, err := ex.Execute(ctx, task)
	dispatchDuration.WithLabelValues(d.TaskType).Observe(time.Since(start).Seconds())

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
			dispatchTotal.WithLabelValues(d.TaskType, outcomeTimeout).Inc()
			r.log.Warn("task timed out", "task_type", d.TaskType, "task_id", taskID, "timeout", d.Timeout)
			return model.FailureResult(CodeTaskTimeout,
				fmt.Sprintf("%s timed out after %s", d.TaskType, d.Timeout))
		}
		dispatchTotal.WithLabelValues(d.TaskType, outcomeError).Inc()
		r.log.Error("dispatch task", "task_type", d.TaskType, "task_id", taskID, "error", err)
		return model.FailureResult(CodeDispatchError, err.Error())
	}

	outcome := outcomeFailure
	if res.Succeeded() {
		outcome = outcomeSuccess
	}
	dispatchTotal.WithLabelValues(d.TaskType, outcome).Inc()
	r.log.Debug("task result", "task_type", d.TaskType, "task_id", taskID, "outcome", outcome)
	return &res
}

// moveTo enters state with the given status and records the entry. It
// reports whether the job can continue.
func (e *Engine) moveTo(r *jobRun, state workflow.State, status string) bool {
	r.job.State = string(state)
	r.job.Status = status
	if !e.save(r) {
		return false
	}
	e.record(r, model.EventEnter, string(state), "")
	return true
}

// finish marks the job with the outcome of its terminal state.
func (e *Engine) finish(r *jobRun, state workflow.State) {
	status := r.bp.Outcome(state)
	r.job.State = string(state)
	r.job.Status = status
	if err := e.store.UpdateJob(context.Background(), r.job); err != nil {
		r.log.Error("failed to persist finished job", "error", err)
	}
	e.record(r, model.EventFinish, string(state), status)
	jobsTotal.WithLabelValues(r.bp.Name, status).Inc()
	r.log.Info("job finished", "state", state, "status", status)
}

// abort fails the job in the blueprint's failure state when the engine, not
// a handler, ends it.
func (e *Engine) abort(r *jobRun, code, message string) {
	r.log.Error("job aborted", "state", r.job.State, "code", code, "error", message)
	r.jc.Data["error"] = map[string]any{"code": code, "message": message}

	state, ok := r.bp.FailureState()
	if !ok {
		state = workflow.State(r.job.State)
	}
	r.job.State = string(state)
	r.job.Status = model.StatusFailed
	if err := e.store.UpdateJob(context.Background(), r.job); err != nil {
		r.log.Error("failed to persist aborted job", "error", err)
	}
	e.record(r, model.EventFinish, string(state), code)
	jobsTotal.WithLabelValues(r.bp.Name, model.StatusFailed).Inc()
}

// save persists the job and aborts it if that fails.
func (e *Engine) save(r *jobRun) bool {
	if err := e.store.UpdateJob(context.Background(), r.job); err != nil {
		r.log.Error("failed to persist job", "state", r.job.State, "status", r.job.Status, "error", err)
		e.abort(r, CodeInternal, fmt.Sprintf("persist job: %v", err))
		return false
	}
	return true
}

// record persists an event and publishes it to live subscribers.
func (e *Engine) record(r *jobRun, kind, state, detail string) {
	ev := &model.JobEvent{
		JobID:     r.job.ID,
		Seq:       r.seq,
		Kind:      kind,
		State:     state,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	r.seq++
	if err := e.store.InsertEvent(context.Background(), ev); err != nil {
		r.log.Error("failed to persist job event", "seq", ev.Seq, "kind", kind, "error", err)
	}
	e.broker.Publish(*ev)
}

// cloneMap deep-copies the JSON-shaped values of a job's data.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, s := range t {
			out[k] = s
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
