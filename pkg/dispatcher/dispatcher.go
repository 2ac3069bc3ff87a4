// Package dispatcher routes agent-issued tool calls to registered handlers
// and converts every outcome (including panics, timeouts, and unknown tool
// names) into exactly one structured Result.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/iasted/iasted/internal/metrics"
)

// DefaultTimeout bounds a single dispatch when the config does not say
// otherwise.
const DefaultTimeout = 30 * time.Second

// Parameter describes one tool argument for schema validation.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	Enum        []string    `json:"enum,omitempty"`
}

// Handler executes one tool call. Returning an error is equivalent to
// returning Fail(err.Error()); the error never crosses the dispatcher
// boundary.
type Handler func(ctx context.Context, args map[string]interface{}) (Result, error)

// Definition declares a tool's name, argument schema, and handler.
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Invocation is one agent-issued tool call. It lives only for the duration of
// the dispatch.
type Invocation struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// Dispatcher maps tool names to handlers. Dispatch is total over the declared
// vocabulary: unknown names go to the fallback handler so newly introduced
// provider tools degrade gracefully.
type Dispatcher struct {
	timeout time.Duration
	metrics *metrics.Metrics

	mu       sync.RWMutex
	tools    map[string]*Definition
	schemas  map[string]*gojsonschema.Schema
	fallback Handler
}

// New creates a dispatcher. A zero timeout uses DefaultTimeout; metrics may be
// nil.
func New(timeout time.Duration, m *metrics.Metrics) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		timeout: timeout,
		metrics: m,
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool. Registering a name twice is an error.
func (d *Dispatcher) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := buildSchema(def)
	if err != nil {
		return fmt.Errorf("failed to build schema for %s: %w", def.Name, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tools[def.Name]; exists {
		return fmt.Errorf("tool %q already registered", def.Name)
	}
	d.tools[def.Name] = &def
	d.schemas[def.Name] = schema

	log.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// SetFallback installs the handler for tool names outside the registered
// vocabulary.
func (d *Dispatcher) SetFallback(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fallback = h
}

// Names returns the registered tool names.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	return names
}

// Definitions returns the registered tool definitions, for advertising the
// vocabulary to the agent at connection time.
func (d *Dispatcher) Definitions() []Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()

	defs := make([]Definition, 0, len(d.tools))
	for _, def := range d.tools {
		defs = append(defs, *def)
	}
	return defs
}

// Dispatch executes one invocation and always returns a Result. The caller
// observes a single logical completion per invocation, never an error or a
// panic.
func (d *Dispatcher) Dispatch(ctx context.Context, inv Invocation) Result {
	start := time.Now()
	if inv.Arguments == nil {
		inv.Arguments = map[string]interface{}{}
	}

	d.mu.RLock()
	def := d.tools[inv.Name]
	schema := d.schemas[inv.Name]
	fallback := d.fallback
	d.mu.RUnlock()

	if d.metrics != nil {
		d.metrics.ToolCallsInFlight.Inc()
		defer d.metrics.ToolCallsInFlight.Dec()
	}

	if def == nil {
		log.Info().Str("tool", inv.Name).Msg("Unknown tool routed to fallback")
		if d.metrics != nil {
			d.metrics.UnknownToolsTotal.Inc()
		}
		if fallback == nil {
			return Fail(fmt.Sprintf("outil inconnu: %s", inv.Name))
		}
		result := d.run(ctx, inv, fallback)
		d.record(inv.Name, result, start)
		return result
	}

	if err := validateArguments(schema, inv.Arguments); err != nil {
		log.Warn().Str("tool", inv.Name).Err(err).Msg("Argument validation failed")
		result := Fail(fmt.Sprintf("arguments invalides pour %s: %v", inv.Name, err))
		d.record(inv.Name, result, start)
		return result
	}

	log.Debug().Str("tool", inv.Name).Str("call_id", inv.ID).Msg("Dispatching tool call")

	result := d.run(ctx, inv, def.Handler)
	d.record(inv.Name, result, start)

	log.Debug().
		Str("tool", inv.Name).
		Bool("success", result.Success).
		Dur("duration", time.Since(start)).
		Msg("Tool call completed")

	return result
}

// run executes a handler under the dispatch timeout, containing errors and
// panics.
func (d *Dispatcher) run(ctx context.Context, inv Invocation, h Handler) Result {
	timeoutCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resultChan := make(chan Result, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Str("tool", inv.Name).Interface("panic", r).Msg("Tool handler panicked")
				resultChan <- Fail(fmt.Sprintf("erreur interne de l'outil %s", inv.Name))
			}
		}()

		result, err := h(timeoutCtx, inv.Arguments)
		if err != nil {
			log.Warn().Str("tool", inv.Name).Err(err).Msg("Tool handler failed")
			resultChan <- Fail(err.Error())
			return
		}
		resultChan <- result
	}()

	select {
	case result := <-resultChan:
		return result
	case <-timeoutCtx.Done():
		log.Error().Str("tool", inv.Name).Dur("timeout", d.timeout).Msg("Tool dispatch timeout")
		if d.metrics != nil {
			d.metrics.DispatchTimeoutsTotal.Inc()
		}
		return Fail(fmt.Sprintf("l'outil %s n'a pas répondu à temps", inv.Name))
	}
}

func (d *Dispatcher) record(tool string, result Result, start time.Time) {
	if d.metrics == nil {
		return
	}
	status := "success"
	if !result.Success {
		status = "failure"
	}
	d.metrics.ToolDispatchesTotal.WithLabelValues(tool, status).Inc()
	d.metrics.ToolDispatchDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
	}
	return nil
}

// buildSchema generates the JSON schema for a tool's arguments. Additional
// properties are allowed: the agent provider may attach keys the application
// does not know yet, and handlers validate what they actually read.
func buildSchema(def Definition) (*gojsonschema.Schema, error) {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		paramSchema := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			paramSchema["default"] = param.Default
		}
		if len(param.Enum) > 0 {
			paramSchema["enum"] = param.Enum
		}
		properties[param.Name] = paramSchema
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schemaMap := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": true,
		"properties":           properties,
	}
	if len(required) > 0 {
		schemaMap["required"] = required
	}

	return gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
}

func validateArguments(schema *gojsonschema.Schema, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("validation errors: %v", msgs)
	}
	return nil
}
