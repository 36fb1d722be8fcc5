// Package executor defines the interface that task executors must implement
// and a registry that routes task types to them. Executors carry tasks to
// the workers that build images, start and stop bot processes, and read logs.
package executor
