package executor

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
)

// ErrOutputNotFound is returned when reading a slot no task has written.
var ErrOutputNotFound = errors.New("output not found")

// State is the lifecycle of a run.
type State int

const (
	Idle State = iota
	Running
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Run holds the outputs of one pipeline run.
type Run struct {
	ID string

	mu      sync.RWMutex
	outputs map[string]any
	state   State
	current int
}

// NewRun creates an idle run.
func NewRun(id string) *Run {
	return &Run{ID: id, outputs: make(map[string]any)}
}

// Output returns the value stored under name.
func (r *Run) Output(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.outputs[name]
	return v, ok
}

// ReadOutput returns the value stored under name or ErrOutputNotFound.
func (r *Run) ReadOutput(name string) (any, error) {
	v, ok := r.Output(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrOutputNotFound, name)
	}
	return v, nil
}

// Outputs returns a copy of every stored slot.
func (r *Run) Outputs() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.outputs))
	for k, v := range r.outputs {
		out[k] = v
	}
	return out
}

// State returns the current lifecycle state.
func (r *Run) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Current returns the index of the task being executed or last executed.
func (r *Run) Current() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Reset clears every output and returns the run to Idle.
func (r *Run) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs = make(map[string]any)
	r.state = Idle
	r.current = 0
}

func (r *Run) store(name string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outputs[name] = v
}

func (r *Run) transition(s State, index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = s
	r.current = index
}

// absent reports values that are not published: nil, nil pointers, maps and
// slices, and the empty string. Empty but non-nil collections are stored.
func absent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	case reflect.String:
		return rv.Len() == 0
	}
	return false
}
