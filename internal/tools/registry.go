package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/renderinc/briefing/internal/metrics"
)

// Registry holds tools by name and validates arguments before execution
type Registry struct {
	mu        sync.RWMutex
	tools     map[string]Tool
	validator *Validator
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// RegistryOption configures a Registry
type RegistryOption func(*Registry)

// WithRegistryLogger sets the logger used for tool call failures
func WithRegistryLogger(l *log.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.logger = l.WithPrefix("tools")
		}
	}
}

// WithRegistryMetrics counts tool calls
func WithRegistryMetrics(m *metrics.Metrics) RegistryOption {
	return func(r *Registry) {
		r.metrics = m
	}
}

// NewRegistry creates an empty registry
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		tools:     make(map[string]Tool),
		validator: NewValidator(),
		logger:    log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds t, replacing any tool with the same name
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

// Get returns the named tool
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Definitions lists every tool, sorted by name
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, Definition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute validates args against the tool schema and runs it.
// Unknown tools and invalid arguments come back as error results.
func (r *Registry) Execute(ctx context.Context, name, args string) (Result, error) {
	t, ok := r.Get(name)
	if !ok {
		return Result{Error: fmt.Sprintf("unknown tool: %s", name)}, nil
	}

	if strings.TrimSpace(args) == "" {
		args = "{}"
	}

	start := time.Now()
	if err := r.validator.Validate(t.Parameters(), args); err != nil {
		r.logger.Warn("Rejected tool arguments", "tool", name, "error", err)
		r.metrics.Observe("tool_"+name, err, time.Since(start))
		return Result{Error: err.Error()}, nil
	}

	res, err := t.Execute(ctx, args)
	if err == nil && res.Error != "" {
		r.logger.Warn("Tool returned an error", "tool", name, "error", res.Error)
	}
	r.metrics.Observe("tool_"+name, toolErr(res, err), time.Since(start))
	return res, err
}

func toolErr(res Result, err error) error {
	if err != nil {
		return err
	}
	if res.Error != "" {
		return errors.New(res.Error)
	}
	return nil
}
