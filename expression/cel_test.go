package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCELEngine_Comprehensions(t *testing.T) {
	e := NewCELEngine()
	scope := Scope{Context: map[string]any{
		"nums": []any{1, 2, 3, 4},
	}}

	v, err := e.Evaluate("all(nums, {# > 0})", scope)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = e.Evaluate("filter(nums, {# % 2 == 0})", scope)
	require.NoError(t, err)
	assert.Equal(t, []any{2, 4}, v)
}

func TestCELEngine_Render(t *testing.T) {
	e := NewCELEngine()
	scope := Scope{Context: map[string]any{"name": "ada"}}
	v, err := e.Render("hi {{ name }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "hi ada", v)
}
