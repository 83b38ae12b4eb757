package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLastRegistrationWins(t *testing.T) {
	first := &fakeTool{
		name: "probe",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"version": 1}, nil
		},
	}
	second := &fakeTool{
		name: "probe",
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"version": 2}, nil
		},
	}

	registry := NewRegistry()
	registry.Register(first)
	registry.Register(second)

	out, err := registry.Execute(context.Background(), "probe", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, out["version"])
	assert.Len(t, registry.List(), 1)
}

func TestRegistryExecuteUnknownTool(t *testing.T) {
	registry := NewRegistry()
	_, err := registry.Execute(context.Background(), "missing", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestRegistryModelSchemas(t *testing.T) {
	tool := &fakeTool{
		name: "get_weather_forecast",
		params: map[string]Param{
			"city":  {Type: "string", Description: "City name"},
			"units": {Type: "string", Enum: []string{"metric", "imperial"}, Default: "metric"},
		},
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return map[string]any{"success": true}, nil
		},
	}
	registry := NewRegistry()
	registry.Register(tool)

	schemas := registry.ModelSchemas()
	require.Len(t, schemas, 1)

	s := schemas[0]
	assert.Equal(t, "get_weather_forecast", s.Name)
	assert.Equal(t, "object", s.InputSchema.Type)
	assert.Equal(t, []string{"city"}, s.InputSchema.Required)
	assert.Equal(t, []string{"metric", "imperial"}, s.InputSchema.Properties["units"].Enum)
}

func TestSchemaForIsIdempotent(t *testing.T) {
	tool := &fakeTool{
		name: "probe",
		params: map[string]Param{
			"a": {Type: "string"},
			"b": {Type: "integer", Default: 5},
			"c": {Type: "string"},
		},
		fn: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			return nil, nil
		},
	}
	assert.Equal(t, SchemaFor(tool), SchemaFor(tool))
	assert.Equal(t, []string{"a", "c"}, SchemaFor(tool).InputSchema.Required)
}

func TestArgHelpers(t *testing.T) {
	args := map[string]any{
		"name":  "Seoul",
		"empty": "",
		"count": float64(3), // JSON numbers decode as float64
		"exact": 7,
	}

	v, ok := GetString(args, "name")
	assert.True(t, ok)
	assert.Equal(t, "Seoul", v)

	_, ok = GetString(args, "count")
	assert.False(t, ok)

	assert.Equal(t, "fallback", GetStringDefault(args, "missing", "fallback"))
	assert.Equal(t, "fallback", GetStringDefault(args, "empty", "fallback"))
	assert.Equal(t, "Seoul", GetStringDefault(args, "name", "fallback"))

	n, ok := GetInt(args, "count")
	assert.True(t, ok)
	assert.Equal(t, 3, n)

	n, ok = GetInt(args, "exact")
	assert.True(t, ok)
	assert.Equal(t, 7, n)

	assert.Equal(t, 9, GetIntDefault(args, "missing", 9))
	assert.Equal(t, 3, GetIntDefault(args, "count", 9))
}
