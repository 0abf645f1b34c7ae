// Package dispatch routes invoked message actions to their handlers.
package dispatch

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/user/composablestudio/internal/compose"
	"github.com/user/composablestudio/internal/types"
)

// Invocation is one click (or submit) of a MessageAction.
type Invocation struct {
	CompositionID types.CompositionID `json:"composition_id"`
	MessageID     types.MessageID     `json:"message_id"`
	Action        types.MessageAction `json:"action"`
	// Input carries the text typed into an input action.
	Input string `json:"input,omitempty"`
}

// Handler runs a command. arg is the part of the command after the prefix.
type Handler func(ctx context.Context, inv Invocation, arg string) error

// Registry routes action commands to handlers based on command prefix
// (e.g. "advance:", "disambiguate:").
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler for commands starting with prefix, replacing any
// previous handler for the same prefix.
func (r *Registry) Register(prefix string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[prefix] = handler
}

// Prefixes lists the registered prefixes in sorted order.
func (r *Registry) Prefixes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for p := range r.handlers {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Resolve finds the handler for command. The longest matching prefix wins.
func (r *Registry) Resolve(command string) (Handler, string, error) {
	if strings.TrimSpace(command) == "" {
		return nil, "", &compose.ValidationError{Field: "command", Reason: "empty"}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	best := ""
	var handler Handler
	for prefix, h := range r.handlers {
		if strings.HasPrefix(command, prefix) && len(prefix) > len(best) {
			best, handler = prefix, h
		}
	}
	if handler == nil {
		return nil, "", &compose.ValidationError{Field: "command", Value: command, Reason: "no handler registered"}
	}
	return handler, strings.TrimPrefix(command, best), nil
}

// Dispatch runs the handler matching the action's command. Actions without
// a command fall back to their value.
func (r *Registry) Dispatch(ctx context.Context, inv Invocation) error {
	command := inv.Action.Command
	if command == "" {
		command = inv.Action.Value
	}
	handler, arg, err := r.Resolve(command)
	if err != nil {
		return err
	}
	return handler(ctx, inv, arg)
}
