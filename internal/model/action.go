package model

// Action is a bot lifecycle operation requested by a caller.
type Action string

// Supported actions.
const (
	ActionStart  Action = "start"
	ActionStop   Action = "stop"
	ActionLogs   Action = "logs"
	ActionList   Action = "list"
	ActionStatus Action = "status"
)

// Actions lists every supported action in presentation order.
var Actions = []Action{ActionStart, ActionStop, ActionLogs, ActionList, ActionStatus}

// ParseAction returns the Action named by s, reporting false if s is not one
// of the supported actions.
func ParseAction(s string) (Action, bool) {
	for _, a := range Actions {
		if string(a) == s {
			return a, true
		}
	}
	return "", false
}

// NeedsBotID reports whether the action targets a single bot.
func (a Action) NeedsBotID() bool {
	return a != ActionList
}

// DeploymentMode selects how a bot's code is provisioned on start.
type DeploymentMode string

// Supported deployment modes.
const (
	ModeSimple DeploymentMode = "simple"
	ModeCustom DeploymentMode = "custom"
	ModeImage  DeploymentMode = "image"
)

// DeploymentModes lists every supported deployment mode.
var DeploymentModes = []DeploymentMode{ModeSimple, ModeCustom, ModeImage}

// ParseDeploymentMode returns the DeploymentMode named by s.
func ParseDeploymentMode(s string) (DeploymentMode, bool) {
	for _, m := range DeploymentModes {
		if string(m) == s {
			return m, true
		}
	}
	return "", false
}
