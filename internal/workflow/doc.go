// Package workflow defines blueprints: explicit state tables that map each
// named state to its handler and the successors it may move to. The bot
// runner blueprint routes a validated request to one of five dispatch
// branches and converges every job on the completed or failed terminal state.
package workflow
