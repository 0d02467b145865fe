// Package mcp exposes registered tools over the Model Context Protocol's JSON-RPC envelope.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"call-assistant/internal/apperr"
)

// Handler runs a tool with validated, default-filled arguments.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

type Tool struct {
	Name        string
	Description string
	InputSchema Schema
	Handler     Handler
}

// ToolInfo is the listing form of a tool.
type ToolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema Schema `json:"inputSchema"`
}

// Invocation reports one finished tool call to observers.
type Invocation struct {
	Tool     string
	Args     json.RawMessage
	Result   any
	Err      error
	Duration time.Duration
}

type Observer func(ctx context.Context, inv Invocation)

var ErrDuplicateTool = errors.New("mcp: tool already registered")

// Dispatcher validates arguments and runs tool handlers. Registration happens at startup;
// Invoke is safe for concurrent use.
type Dispatcher struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	order     []string
	observers []Observer
	log       *slog.Logger
}

type Option func(*Dispatcher)

func WithObserver(o Observer) Option {
	return func(d *Dispatcher) { d.observers = append(d.observers, o) }
}

func NewDispatcher(log *slog.Logger, opts ...Option) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{tools: make(map[string]Tool), log: log.With("component", "mcp")}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Register(t Tool) error {
	if t.Name == "" || t.Handler == nil {
		return fmt.Errorf("mcp: tool needs a name and a handler")
	}
	if t.InputSchema.Type == "" {
		t.InputSchema.Type = TypeObject
	}
	if t.InputSchema.Properties == nil {
		t.InputSchema.Properties = map[string]Property{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.tools[t.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, t.Name)
	}
	d.tools[t.Name] = t
	d.order = append(d.order, t.Name)
	return nil
}

// Tools lists tools in registration order.
func (d *Dispatcher) Tools() []ToolInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ToolInfo, 0, len(d.order))
	for _, name := range d.order {
		t := d.tools[name]
		out = append(out, ToolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out
}

// Invoke validates raw against the tool's schema and runs its handler. Handler failures come back as
// ToolExecutionFailed with the original error still reachable through errors.Is.
func (d *Dispatcher) Invoke(ctx context.Context, name string, raw json.RawMessage) (result any, err error) {
	d.mu.RLock()
	t, ok := d.tools[name]
	d.mu.RUnlock()
	if !ok {
		return nil, apperr.New(apperr.KindUnknownTool, "Unknown tool: %s", name)
	}

	args, err := t.InputSchema.Validate(raw)
	if err != nil {
		d.notify(ctx, Invocation{Tool: name, Args: raw, Err: err})
		return nil, err
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("tool panicked", "tool", name, "panic", r)
			result = nil
			err = apperr.New(apperr.KindToolExecutionFailed, "Tool '%s' failed: internal error", name)
		}
		d.notify(ctx, Invocation{Tool: name, Args: args, Result: result, Err: err, Duration: time.Since(start)})
	}()

	result, err = t.Handler(ctx, args)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindToolExecutionFailed, fmt.Errorf("%s: %w", name, err), "Tool '%s' failed: %s", name, message(err))
	}
	return result, nil
}

func (d *Dispatcher) notify(ctx context.Context, inv Invocation) {
	for _, o := range d.observers {
		o(ctx, inv)
	}
}

// message is the agent-facing text of err.
func message(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
