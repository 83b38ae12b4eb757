package agent

import (
	"context"
	"sort"
)

// Param describes a single tool parameter. A parameter with a nil Default is
// required.
type Param struct {
	Type        string
	Description string
	Enum        []string
	Default     any
}

// Tool is a named capability the model can invoke. Implementations hold no
// per-call state and must be safe for concurrent use across agent runs.
//
// Execute performs the tool's work and returns a result map that should
// include a "success" boolean. A tool that is handed unusable arguments
// should return {"success": false, "error": ...} rather than an error; the
// error return is for unexpected internal failures, which the agent loop
// converts into an error ToolResult.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]Param
	Execute(ctx context.Context, args map[string]any) (map[string]any, error)
}

// ToolSchema is the declarative shape a tool is advertised to the model in.
type ToolSchema struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema is a JSON Schema object describing a tool's parameters.
type InputSchema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required"`
}

// Property is one parameter entry in an InputSchema.
type Property struct {
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Enum        []string `json:"enum,omitempty"`
}

// RequiredParameters returns the sorted names of parameters without a
// default value.
func RequiredParameters(params map[string]Param) []string {
	required := make([]string, 0, len(params))
	for name, p := range params {
		if p.Default == nil {
			required = append(required, name)
		}
	}
	sort.Strings(required)
	return required
}

// SchemaFor projects a tool's declared name, description and parameters into
// the wire shape the model gateway expects. Pure function of the declaration:
// calling it twice yields identical output.
func SchemaFor(t Tool) ToolSchema {
	params := t.Parameters()
	properties := make(map[string]Property, len(params))
	for name, p := range params {
		properties[name] = Property{
			Type:        p.Type,
			Description: p.Description,
			Enum:        p.Enum,
		}
	}
	return ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: InputSchema{
			Type:       "object",
			Properties: properties,
			Required:   RequiredParameters(params),
		},
	}
}

// GetString extracts a string argument from the args map.
func GetString(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetStringDefault extracts a string argument with a default value.
func GetStringDefault(args map[string]any, key, defaultVal string) string {
	if val, ok := GetString(args, key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetInt extracts an integer argument from the args map. JSON numbers arrive
// as float64, so those are accepted too.
func GetInt(args map[string]any, key string) (int, bool) {
	val, ok := args[key]
	if !ok {
		return 0, false
	}
	switch v := val.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// GetIntDefault extracts an integer argument with a default value.
func GetIntDefault(args map[string]any, key string, defaultVal int) int {
	if val, ok := GetInt(args, key); ok {
		return val
	}
	return defaultVal
}
