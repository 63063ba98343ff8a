package expression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimpleEngine_Comparisons(t *testing.T) {
	e := NewSimpleEngine()
	scope := Scope{Context: map[string]any{"score": 8, "name": "ok"}}

	v, err := e.Evaluate("score >= 8", scope)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = e.Evaluate("score < 8", scope)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = e.Evaluate(`name == "ok"`, scope)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestSimpleEngine_DottedPathAndMissing(t *testing.T) {
	e := NewSimpleEngine()
	scope := Scope{Context: map[string]any{
		"user": map[string]any{"name": "ada"},
	}}

	v, err := e.Evaluate("user.name", scope)
	require.NoError(t, err)
	assert.Equal(t, "ada", v)

	v, err = e.Evaluate("user.missing.deep", scope)
	require.NoError(t, err)
	assert.Nil(t, v)

	v, err = e.Evaluate("user.missing.deep == null", scope)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestSimpleEngine_BooleanAndArithmetic(t *testing.T) {
	e := NewSimpleEngine()
	scope := Scope{Context: map[string]any{"a": 3, "b": 4}}

	v, err := e.Evaluate("a + b * 2", scope)
	require.NoError(t, err)
	assert.Equal(t, 11, v)

	v, err = e.Evaluate("a > 0 and b > 0", scope)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = e.Evaluate("not (a > b)", scope)
	require.NoError(t, err)
	assert.Equal(t, true, v)
}

func TestSimpleEngine_Membership(t *testing.T) {
	e := NewSimpleEngine()
	scope := Scope{Context: map[string]any{"tags": []any{"a", "b", "c"}}}

	v, err := e.Evaluate(`"b" in tags`, scope)
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = e.Evaluate(`"z" in tags`, scope)
	require.NoError(t, err)
	assert.Equal(t, false, v)

	v, err = e.Evaluate("length(tags)", scope)
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestSimpleEngine_Truthiness(t *testing.T) {
	cases := []struct {
		v    any
		want bool
	}{
		{nil, false}, {false, false}, {0, false}, {"", false},
		{[]any{}, false}, {map[string]any{}, false},
		{true, true}, {1, true}, {"x", true}, {[]any{1}, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsTruthy(c.v))
	}
}

func TestSimpleEngine_TypeMismatchYieldsFalse(t *testing.T) {
	e := NewSimpleEngine()
	scope := Scope{Context: map[string]any{"obj": map[string]any{"x": 1}, "n": 5}}
	v, err := e.Evaluate("obj > n", scope)
	require.NoError(t, err)
	assert.Equal(t, false, v)
}

func TestSimpleEngine_Render(t *testing.T) {
	e := NewSimpleEngine()
	scope := Scope{Context: map[string]any{"name": "ada", "n": 3}}

	v, err := e.Render("hello {{ name }}, n={{ n }}", scope)
	require.NoError(t, err)
	assert.Equal(t, "hello ada, n=3", v)

	// whole-string substitution returns the native value
	v, err = e.Render("{{ n }}", scope)
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	// missing keys render empty inside concatenation
	v, err = e.Render("x={{ missing }}.", scope)
	require.NoError(t, err)
	assert.Equal(t, "x=.", v)
}
