package workflow

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/seantiz/botrunner/internal/model"
)

// ErrIllegalStep is returned when a handler asks for a transition its state
// did not declare.
var ErrIllegalStep = errors.New("illegal step")

// ErrUnknownState is returned when a blueprint is asked to run a state it
// does not define.
var ErrUnknownState = errors.New("unknown state")

// State names a node in a blueprint.
type State string

// Client identifies the caller that submitted a job.
type Client struct {
	Name string
}

// JobContext is the per-job view handed to state handlers. Data is owned by
// the single running job; handlers read the request from it and record
// user_id, result, error and message into it.
type JobContext struct {
	JobID  string
	Client *Client
	Data   map[string]any
}

// StepKind selects what the engine does after a handler returns.
type StepKind int

// Step kinds.
const (
	StepGoto StepKind = iota
	StepDispatch
	StepEnd
)

// Dispatch asks the engine to send a task to an executor and resume at
// OnSuccess or OnFailure. The engine maps a timeout to OnFailure.
type Dispatch struct {
	TaskType  string
	Params    map[string]any
	OnSuccess State
	OnFailure State
	Timeout   time.Duration
}

// Step is the decision a handler returns.
type Step struct {
	Kind     StepKind
	Next     State
	Dispatch *Dispatch
}

// Goto moves the job to next without waiting.
func Goto(next State) Step {
	return Step{Kind: StepGoto, Next: next}
}

// Send suspends the job on an asynchronous task.
func Send(d Dispatch) Step {
	return Step{Kind: StepDispatch, Dispatch: &d}
}

// End finishes the job in the current (terminal) state.
func End() Step {
	return Step{Kind: StepEnd}
}

// Handler runs one state. result is the outcome of the dispatch that led to
// this state, or nil if the state was entered by Goto.
type Handler func(jc *JobContext, result *model.TaskResult) Step

type stateDef struct {
	handler    Handler
	successors []State
	terminal   bool
	succeeded  bool
}

// Blueprint is the state table for one workflow type.
type Blueprint struct {
	Name     string
	Endpoint string
	Initial  State

	states map[State]*stateDef
	order  []State
}

// NewBlueprint creates an empty blueprint.
func NewBlueprint(name, endpoint string, initial State) *Blueprint {
	return &Blueprint{
		Name:     name,
		Endpoint: endpoint,
		Initial:  initial,
		states:   make(map[State]*stateDef),
	}
}

// State declares a transient state with its handler and legal successors.
func (b *Blueprint) State(name State, h Handler, successors ...State) {
	b.add(name, &stateDef{handler: h, successors: successors})
}

// Terminal declares a terminal state. succeeded selects whether a job ending
// there is reported completed or failed.
func (b *Blueprint) Terminal(name State, succeeded bool) {
	b.add(name, &stateDef{terminal: true, succeeded: succeeded})
}

func (b *Blueprint) add(name State, def *stateDef) {
	if _, exists := b.states[name]; !exists {
		b.order = append(b.order, name)
	}
	b.states[name] = def
}

// States returns the declared states in declaration order.
func (b *Blueprint) States() []State {
	return slices.Clone(b.order)
}

// Successors returns the declared successors of name.
func (b *Blueprint) Successors(name State) []State {
	def, ok := b.states[name]
	if !ok {
		return nil
	}
	return slices.Clone(def.successors)
}

// IsTerminal reports whether name is a declared terminal state.
func (b *Blueprint) IsTerminal(name State) bool {
	def, ok := b.states[name]
	return ok && def.terminal
}

// Outcome returns the job status for a terminal state.
func (b *Blueprint) Outcome(name State) string {
	def, ok := b.states[name]
	if ok && def.terminal && def.succeeded {
		return model.StatusCompleted
	}
	return model.StatusFailed
}

// FailureState returns the first declared failing terminal state, used when
// the engine itself has to abort a job.
func (b *Blueprint) FailureState() (State, bool) {
	for _, name := range b.order {
		def := b.states[name]
		if def.terminal && !def.succeeded {
			return name, true
		}
	}
	return "", false
}

// Check verifies the table is complete: the initial state exists, every
// successor is declared, terminal states have no handler or successors,
// transient states have both, and every state is reachable from Initial.
func (b *Blueprint) Check() error {
	var errs []error
	if _, ok := b.states[b.Initial]; !ok {
		errs = append(errs, fmt.Errorf("initial state %q is not declared", b.Initial))
	}

	for _, name := range b.order {
		def := b.states[name]
		if def.terminal {
			continue
		}
		if def.handler == nil {
			errs = append(errs, fmt.Errorf("state %q has no handler", name))
		}
		if len(def.successors) == 0 {
			errs = append(errs, fmt.Errorf("state %q has no successors", name))
		}
		for _, next := range def.successors {
			if _, ok := b.states[next]; !ok {
				errs = append(errs, fmt.Errorf("state %q: successor %q is not declared", name, next))
			}
		}
	}

	if _, ok := b.FailureState(); !ok {
		errs = append(errs, errors.New("no failing terminal state declared"))
	}

	reached := b.reachable()
	for _, name := range b.order {
		if !reached[name] {
			errs = append(errs, fmt.Errorf("state %q is unreachable from %q", name, b.Initial))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("blueprint %s: %w", b.Name, errors.Join(errs...))
	}
	return nil
}

func (b *Blueprint) reachable() map[State]bool {
	seen := map[State]bool{}
	queue := []State{b.Initial}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if seen[cur] {
			continue
		}
		def, ok := b.states[cur]
		if !ok {
			continue
		}
		seen[cur] = true
		queue = append(queue, def.successors...)
	}
	return seen
}

// Handle runs the handler for name and checks that the returned step only
// targets declared successors. Terminal states always yield End.
func (b *Blueprint) Handle(name State, jc *JobContext, result *model.TaskResult) (Step, error) {
	def, ok := b.states[name]
	if !ok {
		return Step{}, fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	if def.terminal {
		return End(), nil
	}

	step := def.handler(jc, result)
	switch step.Kind {
	case StepGoto:
		if !slices.Contains(def.successors, step.Next) {
			return Step{}, fmt.Errorf("%w: %q -> %q", ErrIllegalStep, name, step.Next)
		}
	case StepDispatch:
		d := step.Dispatch
		if d == nil {
			return Step{}, fmt.Errorf("%w: %q dispatched nothing", ErrIllegalStep, name)
		}
		for _, next := range []State{d.OnSuccess, d.OnFailure} {
			if !slices.Contains(def.successors, next) {
				return Step{}, fmt.Errorf("%w: %q -> %q", ErrIllegalStep, name, next)
			}
		}
		if d.Timeout <= 0 {
			return Step{}, fmt.Errorf("%w: %q dispatched %s without a timeout", ErrIllegalStep, name, d.TaskType)
		}
	default:
		return Step{}, fmt.Errorf("%w: %q returned End from a transient state", ErrIllegalStep, name)
	}
	return step, nil
}
