package task

import (
	"fmt"
	"sync"
)

// Registry tracks tasks handed out to the host.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Track registers a started task and reports whether it was tracked.
// A task that was never started is refused, since nothing would ever
// remove it. Finalized tasks are removed automatically.
func (r *Registry) Track(t *Task) bool {
	if t.State() == StatePending {
		return false
	}

	r.mu.Lock()
	r.tasks[t.ID] = t
	r.mu.Unlock()

	go func() {
		<-t.Done()
		r.mu.Lock()
		delete(r.tasks, t.ID)
		r.mu.Unlock()
	}()
	return true
}

// Get returns a task by ID.
func (r *Registry) Get(id string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	return t, ok
}

// List returns all tracked tasks.
func (r *Registry) List() []*Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		result = append(result, t)
	}
	return result
}

// Count returns the number of tracked tasks.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// Cancel cancels a task by ID.
func (r *Registry) Cancel(id string) error {
	t, ok := r.Get(id)
	if !ok {
		return fmt.Errorf("task not found: %s", id)
	}
	t.Cancel()
	return nil
}

// CancelAll cancels all running tasks and returns how many accepted.
func (r *Registry) CancelAll() int {
	n := 0
	for _, t := range r.List() {
		if t.Cancel() {
			n++
		}
	}
	return n
}
