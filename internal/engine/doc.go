// Package engine runs workflow blueprints. It persists each job, drives it
// one state at a time, dispatches tasks to executors resolved through the
// registry under per-dispatch context deadlines, and records every step in
// the store and on a live event broker.
package engine
