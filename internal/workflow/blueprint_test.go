package workflow

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/botrunner/internal/model"
)

func noop(next State) Handler {
	return func(*JobContext, *model.TaskResult) Step { return Goto(next) }
}

func TestBotRunnerBlueprintIsComplete(t *testing.T) {
	if err := BotRunner().Check(); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestBotRunnerTerminalStates(t *testing.T) {
	b := BotRunner()

	var terminals []State
	for _, s := range b.States() {
		if b.IsTerminal(s) {
			terminals = append(terminals, s)
			if len(b.Successors(s)) != 0 {
				t.Errorf("terminal %q has successors %v", s, b.Successors(s))
			}
		}
	}
	if !slices.Equal(terminals, []State{StateCompleted, StateFailed}) {
		t.Errorf("terminal states = %v, want [completed failed]", terminals)
	}
	if b.Outcome(StateCompleted) != model.StatusCompleted {
		t.Errorf("Outcome(completed) = %q", b.Outcome(StateCompleted))
	}
	if b.Outcome(StateFailed) != model.StatusFailed {
		t.Errorf("Outcome(failed) = %q", b.Outcome(StateFailed))
	}
	if fs, ok := b.FailureState(); !ok || fs != StateFailed {
		t.Errorf("FailureState() = %q, %v", fs, ok)
	}
}

func TestBotRunnerBranchTransitions(t *testing.T) {
	b := BotRunner()
	tests := []struct {
		state      State
		successors []State
	}{
		{StateStartBot, []State{StateBotStarted, StateStartFailed}},
		{StateStopBot, []State{StateBotStopped, StateStopFailed}},
		{StateGetLogs, []State{StateLogsReceived, StateLogsFailed}},
		{StateListBots, []State{StateListReceived, StateListFailed}},
		{StateCheckStatus, []State{StateStatusReceived, StateStatusFailed}},
		{StateValidationFailed, []State{StateFailed}},
		{StateBotStarted, []State{StateCompleted}},
		{StateStatusFailed, []State{StateFailed}},
	}
	for _, tt := range tests {
		if got := b.Successors(tt.state); !slices.Equal(got, tt.successors) {
			t.Errorf("Successors(%q) = %v, want %v", tt.state, got, tt.successors)
		}
	}
}

func TestCheckReportsProblems(t *testing.T) {
	tests := []struct {
		name  string
		build func() *Blueprint
		want  string
	}{
		{
			name: "missing initial",
			build: func() *Blueprint {
				b := NewBlueprint("x", "/x", "start")
				b.Terminal("done", false)
				return b
			},
			want: `initial state "start" is not declared`,
		},
		{
			name: "undeclared successor",
			build: func() *Blueprint {
				b := NewBlueprint("x", "/x", "a")
				b.State("a", noop("b"), "b", "done")
				b.Terminal("done", false)
				return b
			},
			want: `successor "b" is not declared`,
		},
		{
			name: "no successors",
			build: func() *Blueprint {
				b := NewBlueprint("x", "/x", "a")
				b.State("a", noop("a"))
				b.Terminal("done", false)
				return b
			},
			want: `state "a" has no successors`,
		},
		{
			name: "unreachable",
			build: func() *Blueprint {
				b := NewBlueprint("x", "/x", "a")
				b.State("a", noop("done"), "done")
				b.State("orphan", noop("done"), "done")
				b.Terminal("done", false)
				return b
			},
			want: `state "orphan" is unreachable`,
		},
		{
			name: "no failure terminal",
			build: func() *Blueprint {
				b := NewBlueprint("x", "/x", "a")
				b.State("a", noop("done"), "done")
				b.Terminal("done", true)
				return b
			},
			want: "no failing terminal state",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Check()
			if err == nil {
				t.Fatal("Check() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Check() = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestHandleRejectsUndeclaredTransitions(t *testing.T) {
	b := NewBlueprint("x", "/x", "a")
	b.State("a", noop("elsewhere"), "done")
	b.State("d", func(*JobContext, *model.TaskResult) Step {
		return Send(Dispatch{TaskType: "t", OnSuccess: "done", OnFailure: "nowhere", Timeout: time.Second})
	}, "done")
	b.State("e", func(*JobContext, *model.TaskResult) Step { return End() }, "done")
	b.State("z", func(*JobContext, *model.TaskResult) Step {
		return Send(Dispatch{TaskType: "t", OnSuccess: "done", OnFailure: "done"})
	}, "done")
	b.Terminal("done", false)

	jc := &JobContext{JobID: "j", Data: map[string]any{}}
	for _, s := range []State{"a", "d", "e", "z"} {
		if _, err := b.Handle(s, jc, nil); !errors.Is(err, ErrIllegalStep) {
			t.Errorf("Handle(%q) error = %v, want ErrIllegalStep", s, err)
		}
	}
	if _, err := b.Handle("missing", jc, nil); !errors.Is(err, ErrUnknownState) {
		t.Errorf("Handle(missing) error = %v, want ErrUnknownState", err)
	}
	step, err := b.Handle("done", jc, nil)
	if err != nil || step.Kind != StepEnd {
		t.Errorf("Handle(done) = %+v, %v; want End", step, err)
	}
}
