package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/seantiz/botrunner/internal/model"
	"github.com/seantiz/botrunner/internal/validate"
)

// Bot runner blueprint identity.
const (
	BotRunnerName     = "bot_runner"
	BotRunnerEndpoint = "/jobs/bot_runner"
)

// Bot runner states.
const (
	StateInit             State = "init"
	StateValidationFailed State = "validation_failed"

	StateStartBot    State = "start_bot"
	StateStopBot     State = "stop_bot"
	StateGetLogs     State = "get_logs"
	StateListBots    State = "list_bots"
	StateCheckStatus State = "check_status"

	StateBotStarted     State = "bot_started"
	StateBotStopped     State = "bot_stopped"
	StateLogsReceived   State = "logs_received"
	StateListReceived   State = "list_received"
	StateStatusReceived State = "status_received"

	StateStartFailed  State = "start_failed"
	StateStopFailed   State = "stop_failed"
	StateLogsFailed   State = "logs_failed"
	StateListFailed   State = "list_failed"
	StateStatusFailed State = "status_failed"

	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Task types understood by the bot runner worker.
const (
	TaskStartBot    = "start_bot"
	TaskStopBot     = "stop_bot"
	TaskGetLogs     = "get_logs"
	TaskListBots    = "list_bots"
	TaskCheckStatus = "check_status"
)

// Per-action dispatch timeouts. Building an image and starting a bot is far
// slower than querying one.
const (
	StartTimeout  = 300 * time.Second
	StopTimeout   = 30 * time.Second
	LogsTimeout   = 10 * time.Second
	ListTimeout   = 10 * time.Second
	StatusTimeout = 10 * time.Second
)

// Request defaults forwarded to the worker.
const (
	DefaultEntrypoint = "bot.py"
	DefaultGitBranch  = "main"
	DefaultLogLines   = 100
)

// BotRunner builds the bot lifecycle blueprint.
func BotRunner() *Blueprint {
	b := NewBlueprint(BotRunnerName, BotRunnerEndpoint, StateInit)

	b.State(StateInit, initHandler,
		StateValidationFailed, StateStartBot, StateStopBot, StateGetLogs,
		StateListBots, StateCheckStatus, StateFailed)

	b.State(StateStartBot, startBotHandler, StateBotStarted, StateStartFailed)
	b.State(StateStopBot, stopBotHandler, StateBotStopped, StateStopFailed)
	b.State(StateGetLogs, getLogsHandler, StateLogsReceived, StateLogsFailed)
	b.State(StateListBots, listBotsHandler, StateListReceived, StateListFailed)
	b.State(StateCheckStatus, checkStatusHandler, StateStatusReceived, StateStatusFailed)

	b.State(StateBotStarted, received(func(data map[string]any) string {
		return fmt.Sprintf("Bot '%v' started successfully", data["bot_id"])
	}), StateCompleted)
	b.State(StateBotStopped, received(func(data map[string]any) string {
		return fmt.Sprintf("Bot '%v' stopped", data["bot_id"])
	}), StateCompleted)
	b.State(StateLogsReceived, received(nil), StateCompleted)
	b.State(StateListReceived, received(nil), StateCompleted)
	b.State(StateStatusReceived, received(nil), StateCompleted)

	b.State(StateValidationFailed, func(*JobContext, *model.TaskResult) Step {
		return Goto(StateFailed)
	}, StateFailed)
	for _, s := range []State{StateStartFailed, StateStopFailed, StateLogsFailed, StateListFailed, StateStatusFailed} {
		b.State(s, taskFailed, StateFailed)
	}

	b.Terminal(StateCompleted, true)
	b.Terminal(StateFailed, false)
	return b
}

func initHandler(jc *JobContext, _ *model.TaskResult) Step {
	if err := validate.Request(jc.Data); err != nil {
		var verr *validate.Error
		if errors.As(err, &verr) {
			jc.Data["error"] = verr.ToMap()
		} else {
			jc.Data["error"] = map[string]any{"message": err.Error()}
		}
		return Goto(StateValidationFailed)
	}

	ensureUserID(jc)

	raw, _ := jc.Data["action"].(string)
	action, _ := model.ParseAction(raw)
	switch action {
	case model.ActionStart:
		return Goto(StateStartBot)
	case model.ActionStop:
		return Goto(StateStopBot)
	case model.ActionLogs:
		return Goto(StateGetLogs)
	case model.ActionList:
		return Goto(StateListBots)
	case model.ActionStatus:
		return Goto(StateCheckStatus)
	}
	jc.Data["error"] = map[string]any{"message": fmt.Sprintf("Unknown action: %v", jc.Data["action"])}
	return Goto(StateFailed)
}

// ensureUserID fills an absent user_id from the caller's identity, falling
// back to an anonymous id derived from the job id. Null and "" count as
// absent; any other value, string or not, is kept as given.
func ensureUserID(jc *JobContext) {
	if id, ok := jc.Data["user_id"]; ok && id != nil && id != "" {
		return
	}
	if jc.Client != nil && jc.Client.Name != "" {
		jc.Data["user_id"] = jc.Client.Name
		return
	}
	short := jc.JobID
	if len(short) > 8 {
		short = short[:8]
	}
	jc.Data["user_id"] = "anonymous_" + short
}

func startBotHandler(jc *JobContext, _ *model.TaskResult) Step {
	d := jc.Data
	return Send(Dispatch{
		TaskType: TaskStartBot,
		Params: map[string]any{
			"user_id":         d["user_id"],
			"bot_id":          d["bot_id"],
			"deployment_mode": d["deployment_mode"],

			"code":         d["code"],
			"files":        d["files"],
			"requirements": orDefault(d["requirements"], []any{}),
			"entrypoint":   orDefault(d["entrypoint"], DefaultEntrypoint),

			"archive":     d["archive"],
			"archive_url": d["archive_url"],
			"git_repo":    d["git_repo"],
			"git_branch":  orDefault(d["git_branch"], DefaultGitBranch),
			"git_subdir":  d["git_subdir"],

			"docker_image":  d["docker_image"],
			"registry_auth": d["registry_auth"],

			"env_vars":        orDefault(d["env_vars"], map[string]any{}),
			"resource_limits": d["resource_limits"],
		},
		OnSuccess: StateBotStarted,
		OnFailure: StateStartFailed,
		Timeout:   StartTimeout,
	})
}

func stopBotHandler(jc *JobContext, _ *model.TaskResult) Step {
	return Send(Dispatch{
		TaskType:  TaskStopBot,
		Params:    map[string]any{"user_id": jc.Data["user_id"], "bot_id": jc.Data["bot_id"]},
		OnSuccess: StateBotStopped,
		OnFailure: StateStopFailed,
		Timeout:   StopTimeout,
	})
}

func getLogsHandler(jc *JobContext, _ *model.TaskResult) Step {
	return Send(Dispatch{
		TaskType: TaskGetLogs,
		Params: map[string]any{
			"user_id": jc.Data["user_id"],
			"bot_id":  jc.Data["bot_id"],
			"lines":   orDefault(jc.Data["lines"], DefaultLogLines),
		},
		OnSuccess: StateLogsReceived,
		OnFailure: StateLogsFailed,
		Timeout:   LogsTimeout,
	})
}

func listBotsHandler(jc *JobContext, _ *model.TaskResult) Step {
	return Send(Dispatch{
		TaskType:  TaskListBots,
		Params:    map[string]any{"user_id": jc.Data["user_id"]},
		OnSuccess: StateListReceived,
		OnFailure: StateListFailed,
		Timeout:   ListTimeout,
	})
}

func checkStatusHandler(jc *JobContext, _ *model.TaskResult) Step {
	return Send(Dispatch{
		TaskType:  TaskCheckStatus,
		Params:    map[string]any{"user_id": jc.Data["user_id"], "bot_id": jc.Data["bot_id"]},
		OnSuccess: StateStatusReceived,
		OnFailure: StateStatusFailed,
		Timeout:   StatusTimeout,
	})
}

// received stores the executor's data as the job result and, when message is
// non-nil, a human-readable summary.
func received(message func(data map[string]any) string) Handler {
	return func(jc *JobContext, result *model.TaskResult) Step {
		if result != nil {
			data := result.Data
			if data == nil {
				data = map[string]any{}
			}
			jc.Data["result"] = data
			if message != nil {
				jc.Data["message"] = message(jc.Data)
			}
		}
		return Goto(StateCompleted)
	}
}

// taskFailed copies the executor's error verbatim into the job.
func taskFailed(jc *JobContext, result *model.TaskResult) Step {
	if result != nil && result.Error != nil {
		jc.Data["error"] = result.Error
	} else {
		jc.Data["error"] = map[string]any{"message": "Unknown error"}
	}
	return Goto(StateFailed)
}

func orDefault(v, def any) any {
	if v == nil {
		return def
	}
	return v
}
