package executor

import (
	"context"

	"github.com/mohammad-safakhou/climarisk/internal/planner"
)

// Handler executes one task type. Handlers narrow their own arguments and
// read upstream results through the Run.
type Handler interface {
	Type() planner.TaskType
	Execute(ctx context.Context, run *Run, args planner.Args) (any, error)
}

// HandlerFunc is the function form of Handler.Execute.
type HandlerFunc func(ctx context.Context, run *Run, args planner.Args) (any, error)

type tagged struct {
	typ planner.TaskType
	fn  HandlerFunc
}

func (t tagged) Type() planner.TaskType { return t.typ }

func (t tagged) Execute(ctx context.Context, run *Run, args planner.Args) (any, error) {
	return t.fn(ctx, run, args)
}

// Tagged binds fn to a task type.
func Tagged(typ planner.TaskType, fn HandlerFunc) Handler {
	return tagged{typ: typ, fn: fn}
}

// Registry maps task types to handlers. It is populated once at startup and
// read-only afterwards.
type Registry struct {
	handlers map[planner.TaskType]Handler
	order    []planner.TaskType
}

// NewRegistry registers every handler.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[planner.TaskType]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds h. It panics when h is nil or carries no task type; a later
// registration for the same type replaces the earlier one.
func (r *Registry) Register(h Handler) {
	if h == nil {
		panic("executor: register nil handler")
	}
	typ := h.Type()
	if typ == "" {
		panic("executor: handler has no task type")
	}
	if _, exists := r.handlers[typ]; !exists {
		r.order = append(r.order, typ)
	}
	r.handlers[typ] = h
}

// Lookup returns the handler for typ.
func (r *Registry) Lookup(typ planner.TaskType) (Handler, bool) {
	h, ok := r.handlers[typ]
	return h, ok
}

// Knows reports whether typ has a handler.
func (r *Registry) Knows(typ planner.TaskType) bool {
	_, ok := r.handlers[typ]
	return ok
}

// Types lists the registered task types in registration order.
func (r *Registry) Types() []planner.TaskType {
	return append([]planner.TaskType(nil), r.order...)
}
