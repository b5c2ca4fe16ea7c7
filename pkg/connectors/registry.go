package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/edonhq/gateway/pkg/credential"
	"github.com/edonhq/gateway/pkg/types"
	"github.com/xeipuuv/gojsonschema"
)

// DefaultDispatchTimeout bounds a single connector execution.
const DefaultDispatchTimeout = 30 * time.Second

// Registry maps tool names to connectors. All registration happens at process
// start; afterwards the registry is read-only, so concurrent lookups need no
// locking.
type Registry struct {
	entries map[string]*entry
	timeout time.Duration
}

type entry struct {
	conn    Connector
	schemas map[string]*gojsonschema.Schema // op → compiled params schema
}

// NewRegistry creates an empty connector registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		timeout: DefaultDispatchTimeout,
	}
}

// SetTimeout overrides the per-dispatch timeout.
func (r *Registry) SetTimeout(d time.Duration) { r.timeout = d }

// Register adds a connector, compiling its op schemas. It panics on a
// duplicate tool or an invalid schema: both are programmer errors that must
// fail at start-up, not at dispatch time.
func (r *Registry) Register(c Connector) {
	desc := c.Descriptor()
	if desc.Tool == "" {
		panic("connectors: Register with empty tool name")
	}
	if _, dup := r.entries[desc.Tool]; dup {
		panic(fmt.Sprintf("connectors: duplicate registration for %q", desc.Tool))
	}

	e := &entry{conn: c, schemas: make(map[string]*gojsonschema.Schema)}
	for op, spec := range desc.Ops {
		if spec.ParamSchema == "" {
			continue
		}
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(spec.ParamSchema))
		if err != nil {
			panic(fmt.Sprintf("connectors: invalid schema for %s.%s: %v", desc.Tool, op, err))
		}
		e.schemas[op] = schema
	}
	r.entries[desc.Tool] = e
}

// Lookup returns the connector for tool.
func (r *Registry) Lookup(tool string) (Connector, error) {
	e, ok := r.entries[tool]
	if !ok {
		return nil, types.ErrUnknownTool(tool)
	}
	return e.conn, nil
}

// Tools lists the registered tool names.
func (r *Registry) Tools() []string {
	out := make([]string, 0, len(r.entries))
	for tool := range r.entries {
		out = append(out, tool)
	}
	return out
}

// Dispatch validates op and params, then invokes the connector's executor
// under a bounded timeout.
func (r *Registry) Dispatch(ctx context.Context, action types.Action, cred credential.Credential) (json.RawMessage, error) {
	e, ok := r.entries[action.Tool]
	if !ok {
		return nil, types.ErrUnknownTool(action.Tool)
	}
	desc := e.conn.Descriptor()
	if _, ok := desc.Ops[action.Op]; !ok {
		return nil, types.ErrUnknownOp(action.Tool, action.Op)
	}

	if err := r.validateParams(e, action); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	data, err := e.conn.Execute(ctx, action.Op, action.Params, cred)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, types.ErrTimeout(action.Tool)
		}
		return nil, err
	}
	return data, nil
}

func (r *Registry) validateParams(e *entry, action types.Action) error {
	schema, ok := e.schemas[action.Op]
	if !ok {
		return nil
	}
	params := action.Params
	if params == nil {
		params = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return types.ErrMalformedAction("params is not a JSON object")
	}
	if result.Valid() {
		return nil
	}
	first := result.Errors()[0]
	field := first.Field()
	if field == "(root)" {
		if prop, ok := first.Details()["property"].(string); ok {
			field = prop
		}
	}
	return types.ErrParamValidation(field, first.Description())
}
