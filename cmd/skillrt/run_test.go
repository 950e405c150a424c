package main

import (
	"testing"

	"github.com/jingkaihe/skillrt/pkg/executor"
	"github.com/jingkaihe/skillrt/pkg/mcp"
	"github.com/jingkaihe/skillrt/pkg/types/skills"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKeyValues(t *testing.T) {
	tests := []struct {
		name     string
		pairs    []string
		expected map[string]any
		errMsg   string
	}{
		{
			name:     "string value",
			pairs:    []string{"message=hello world"},
			expected: map[string]any{"message": "hello world"},
		},
		{
			name:     "json typed values",
			pairs:    []string{"count=3", "ratio=0.5", "force=true", `items=["a","b"]`, `opts={"x":1}`},
			expected: map[string]any{"count": float64(3), "ratio": 0.5, "force": true, "items": []any{"a", "b"}, "opts": map[string]any{"x": float64(1)}},
		},
		{
			name:     "value containing equals",
			pairs:    []string{"expr=a=b"},
			expected: map[string]any{"expr": "a=b"},
		},
		{
			name:     "empty value",
			pairs:    []string{"name="},
			expected: map[string]any{"name": ""},
		},
		{
			name:     "quoted json string",
			pairs:    []string{`id="42"`},
			expected: map[string]any{"id": "42"},
		},
		{
			name:   "missing equals",
			pairs:  []string{"message"},
			errMsg: `expected key=value, got "message"`,
		},
		{
			name:   "empty key",
			pairs:  []string{"=value"},
			errMsg: `expected key=value, got "=value"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := parseKeyValues(tt.pairs)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, values)
		})
	}
}

func TestParseParams(t *testing.T) {
	t.Run("pairs override json", func(t *testing.T) {
		params, err := parseParams(`{"message": "from json", "count": 2}`, []string{"message=from flag"}, nil)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"message": "from flag", "count": float64(2)}, params)
	})

	t.Run("no parameters", func(t *testing.T) {
		params, err := parseParams("  ", nil, nil)
		require.NoError(t, err)
		assert.Empty(t, params)
	})

	t.Run("json must be an object", func(t *testing.T) {
		_, err := parseParams(`[1, 2]`, nil, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--params-json must be a JSON object")
	})

	t.Run("invalid pair", func(t *testing.T) {
		_, err := parseParams("", []string{"oops"}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid --param")
	})

	t.Run("declared types decide decoding", func(t *testing.T) {
		skill := &skills.Skill{
			Name: "notify",
			Parameters: []skills.Parameter{
				{Name: "message", Type: skills.TypeString},
				{Name: "count", Type: skills.TypeInteger},
				{Name: "urgent", Type: skills.TypeBoolean},
			},
		}
		params, err := parseParams("", []string{"message=42", "count=3", "urgent=true", "extra=[1]", "label=true"}, skill)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"message": "42",
			"count":   float64(3),
			"urgent":  true,
			"extra":   []any{float64(1)},
			"label":   true,
		}, params)
	})

	t.Run("unknown skill decodes every value", func(t *testing.T) {
		var skill *skills.Skill
		params, err := parseParams("", []string{"message=42"}, skill)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"message": float64(42)}, params)
	})
}

func TestExecutionContextFromFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().String("task", "", "")
	cmd.Flags().StringSlice("constraint", nil, "")
	cmd.Flags().StringArray("var", nil, "")

	require.NoError(t, cmd.Flags().Set("task", "deploy the site"))
	require.NoError(t, cmd.Flags().Set("constraint", "safe"))
	require.NoError(t, cmd.Flags().Set("constraint", "fast"))
	require.NoError(t, cmd.Flags().Set("var", "env=prod"))

	execCtx, err := getExecutionContextFromFlags(cmd)
	require.NoError(t, err)
	assert.Equal(t, "deploy the site", execCtx.Task)
	assert.Equal(t, []string{"safe", "fast"}, execCtx.Constraints)
	assert.Equal(t, map[string]any{"env": "prod"}, execCtx.Variables)

	require.NoError(t, cmd.Flags().Set("var", "broken"))
	_, err = getExecutionContextFromFlags(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --var")
}

func TestFormatData(t *testing.T) {
	tests := []struct {
		name     string
		data     any
		expected string
	}{
		{name: "string", data: "hello", expected: "hello"},
		{name: "script output", data: executor.ScriptOutput{Stdout: "built\n", ExitCode: 0}, expected: "built"},
		{name: "mcp output", data: mcp.ToolOutput{Text: "found it"}, expected: "found it"},
		{name: "map", data: map[string]any{"slept": "1s"}, expected: "{\n  \"slept\": \"1s\"\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, formatData(tt.data))
		})
	}
}
