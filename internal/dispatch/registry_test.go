package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datavis-labs/lightdash-mcp-server/internal/apierrors"
	"github.com/datavis-labs/lightdash-mcp-server/internal/cache"
	"github.com/datavis-labs/lightdash-mcp-server/internal/client"
)

func buildNoop(map[string]any) (*client.Request, error) {
	return &client.Request{Method: "GET", Path: "/api/v1/org/projects"}, nil
}

func localNoop(context.Context, map[string]any) (any, error) {
	return nil, nil
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&Operation{Name: "list_projects", Build: buildNoop}))

	op, ok := r.Get("list_projects")
	require.True(t, ok)
	assert.Equal(t, "list_projects", op.Name)

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestRegistry_RegisterRejectsInvalid(t *testing.T) {
	r := NewRegistry()

	assert.Error(t, r.Register(&Operation{Build: buildNoop}), "unnamed")
	assert.Error(t, r.Register(&Operation{Name: "a"}), "neither Build nor Local")
	assert.Error(t, r.Register(&Operation{Name: "b", Build: buildNoop, Local: localNoop}), "both Build and Local")
	assert.Error(t, r.Register(&Operation{Name: "c", Local: localNoop, Class: cache.ClassSchema}), "cached local op")

	require.NoError(t, r.Register(&Operation{Name: "dup", Build: buildNoop}))
	assert.Error(t, r.Register(&Operation{Name: "dup", Build: buildNoop}), "duplicate name")
}

func TestRegistry_RegisterLocalOperation(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&Operation{Name: "a", Local: localNoop}), "zero-value class")
	require.NoError(t, r.Register(&Operation{Name: "b", Local: localNoop, Class: cache.ClassNone}))
}

func TestRegistry_NamesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"run_query", "list_projects", "get_explore"} {
		require.NoError(t, r.Register(&Operation{Name: name, Build: buildNoop}))
	}

	assert.Equal(t, []string{"get_explore", "list_projects", "run_query"}, r.Names())

	ops := r.Operations()
	require.Len(t, ops, 3)
	assert.Equal(t, "get_explore", ops[0].Name)
}

func TestValidateArgs(t *testing.T) {
	specs := []ArgSpec{
		{Name: "project_uuid", Type: ArgString, Required: true},
		{Name: "limit", Type: ArgNumber},
		{Name: "include_hidden", Type: ArgBool},
		{Name: "filters", Type: ArgObject},
		{Name: "dimensions", Type: ArgArray},
		{Name: "chart_type", Type: ArgString, Enum: []string{"bar", "line", "table"}},
	}

	tests := []struct {
		name      string
		args      map[string]any
		wantError string
	}{
		{
			name: "valid full",
			args: map[string]any{
				"project_uuid":   "abc",
				"limit":          float64(50),
				"include_hidden": true,
				"filters":        map[string]any{},
				"dimensions":     []any{"orders_status"},
				"chart_type":     "bar",
			},
		},
		{
			name: "valid minimal",
			args: map[string]any{"project_uuid": "abc"},
		},
		{
			name:      "missing required",
			args:      map[string]any{"limit": float64(1)},
			wantError: "project_uuid",
		},
		{
			name:      "wrong string type",
			args:      map[string]any{"project_uuid": 42},
			wantError: "must be a string",
		},
		{
			name:      "wrong number type",
			args:      map[string]any{"project_uuid": "abc", "limit": "ten"},
			wantError: "must be a number",
		},
		{
			name:      "wrong bool type",
			args:      map[string]any{"project_uuid": "abc", "include_hidden": "yes"},
			wantError: "must be a boolean",
		},
		{
			name:      "wrong object type",
			args:      map[string]any{"project_uuid": "abc", "filters": []any{}},
			wantError: "must be an object",
		},
		{
			name:      "wrong array type",
			args:      map[string]any{"project_uuid": "abc", "dimensions": "orders_status"},
			wantError: "must be an array",
		},
		{
			name:      "enum violation",
			args:      map[string]any{"project_uuid": "abc", "chart_type": "pie3d"},
			wantError: "must be one of",
		},
		{
			name:      "unknown argument",
			args:      map[string]any{"project_uuid": "abc", "bogus": 1},
			wantError: `unknown argument "bogus"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArgs(specs, tt.args)
			if tt.wantError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, apierrors.KindInvalidArgument, apierrors.KindOf(err))
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

func TestValidateArgs_Deterministic(t *testing.T) {
	specs := []ArgSpec{
		{Name: "a", Type: ArgString, Required: true},
		{Name: "b", Type: ArgString, Required: true},
	}

	// Both required arguments are missing; the first declared spec wins
	// every time.
	for i := 0; i < 10; i++ {
		err := ValidateArgs(specs, map[string]any{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"a"`)
	}

	// Multiple unknown arguments report the lexicographically first.
	for i := 0; i < 10; i++ {
		err := ValidateArgs(nil, map[string]any{"zed": 1, "alpha": 2, "mid": 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"alpha"`)
	}
}
