package engine

import (
	"fmt"
	"sort"
	"strings"
)

// Registry maps action type strings to handlers. When two handlers claim
// the same type, the one with the strictly higher priority wins; equal
// priority is a registration conflict.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler. A handler displaces an existing registration
// for its type only when its priority is strictly higher.
func (r *Registry) Register(handler Handler) error {
	actionType := strings.TrimSpace(handler.Type())
	if actionType == "" {
		return fmt.Errorf("handler has empty action type")
	}
	existing, ok := r.handlers[actionType]
	if !ok {
		r.handlers[actionType] = handler
		return nil
	}
	if handler.Priority() == existing.Priority() {
		return fmt.Errorf("action type %s already registered at priority %d", actionType, existing.Priority())
	}
	if handler.Priority() > existing.Priority() {
		r.handlers[actionType] = handler
	}
	return nil
}

// Handler returns the handler for an action type.
func (r *Registry) Handler(actionType string) (Handler, bool) {
	handler, ok := r.handlers[actionType]
	return handler, ok
}

// Types returns the registered action types in sorted order.
func (r *Registry) Types() []string {
	types := make([]string, 0, len(r.handlers))
	for actionType := range r.handlers {
		types = append(types, actionType)
	}
	sort.Strings(types)
	return types
}
