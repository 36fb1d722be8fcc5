package executor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNoExecutor is returned when no executor serves a task type.
var ErrNoExecutor = errors.New("no executor for task type")

// Info pairs an executor name with its capabilities and routed task types.
type Info struct {
	Name         string       `json:"name"`
	Default      bool         `json:"default"`
	Routes       []string     `json:"routes,omitempty"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds registered executors and resolves which one handles a task
// type: an explicit route wins, otherwise the default executor is used.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
	routes    map[string]string
	fallback  string
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
		routes:    make(map[string]string),
	}
}

// Register adds an executor under the given name. The first executor
// registered becomes the default.
func (r *Registry) Register(name string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[name] = e
	if r.fallback == "" {
		r.fallback = name
	}
}

// SetDefault selects the executor used for task types without a route.
func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executors[name]; !ok {
		return fmt.Errorf("executor %q is not registered", name)
	}
	r.fallback = name
	return nil
}

// Route sends every task of taskType to the named executor.
func (r *Registry) Route(taskType, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.executors[name]; !ok {
		return fmt.Errorf("executor %q is not registered", name)
	}
	r.routes[taskType] = name
	return nil
}

// Resolve returns the executor for taskType.
func (r *Registry) Resolve(taskType string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.routes[taskType]
	if !ok {
		name = r.fallback
	}
	e, ok := r.executors[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrNoExecutor, taskType)
	}
	return e, nil
}

// List returns information about all registered executors, sorted by name
// for a stable API response.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]string)
	for taskType, name := range r.routes {
		routes[name] = append(routes[name], taskType)
	}

	infos := make([]Info, 0, len(r.executors))
	for name, e := range r.executors {
		rs := routes[name]
		sort.Strings(rs)
		infos = append(infos, Info{
			Name:         name,
			Default:      name == r.fallback,
			Routes:       rs,
			Capabilities: e.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Name < infos[j].Name
	})
	return infos
}
