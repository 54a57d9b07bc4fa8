package runner_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vigilhq/vigil/internal/runner"
)

func TestVariablesRender(t *testing.T) {
	vars := runner.Variables{
		"userId": float64(42),
		"token":  "tok-9",
		"flag":   true,
	}

	tests := []struct {
		in   string
		want string
	}{
		{"/posts?userId={{userId}}", "/posts?userId=42"},
		{"Bearer {{token}}", "Bearer tok-9"},
		{"{{ token }}", "tok-9"},
		{"{{flag}}", "true"},
		{"{{unknown}}", ""},
		{"no tokens here", "no tokens here"},
		{"{{token}}/{{userId}}", "tok-9/42"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, vars.Render(tt.in), tt.in)
	}
}

func TestVariablesRenderAny(t *testing.T) {
	vars := runner.Variables{"token": "tok-9"}

	doc := map[string]any{
		"session": "{{token}}",
		"count":   float64(3),
		"nested":  map[string]any{"auth": "Bearer {{token}}"},
		"list":    []any{"{{token}}", float64(1)},
	}

	got := vars.RenderAny(doc).(map[string]any)

	assert.Equal(t, "tok-9", got["session"])
	assert.Equal(t, float64(3), got["count"])
	assert.Equal(t, "Bearer tok-9",
		got["nested"].(map[string]any)["auth"])
	assert.Equal(t, "tok-9", got["list"].([]any)[0])
}
