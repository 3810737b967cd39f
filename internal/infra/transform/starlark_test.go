package transform

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/provisioner/internal/domain/mapping"
)

const lowerScript = `
def transform(value):
    if value == None:
        return None
    return value.lower()
`

func TestCompiler_Compile(t *testing.T) {
	ctx := context.Background()
	c := NewCompiler(0)

	tr, err := c.Compile("email", mapping.Script{
		ToConnector: lowerScript,
		FromConnector: `
def transform(value):
    return value.upper()
`,
	})
	require.NoError(t, err)

	to, err := tr.ToConnector(ctx, "Alice@Example.COM")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", to)

	from, err := tr.FromConnector(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "ALICE@EXAMPLE.COM", from)

	none, err := tr.ToConnector(ctx, nil)
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestCompiler_EmptyDirectionIsIdentity(t *testing.T) {
	tr, err := NewCompiler(0).Compile("name", mapping.Script{ToConnector: lowerScript})
	require.NoError(t, err)

	v, err := tr.FromConnector(context.Background(), []any{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []any{"A", "B"}, v)
}

func TestCompiler_Values(t *testing.T) {
	testCases := []struct {
		desc   string
		script string
		input  any
		want   any
	}{
		{
			desc:   "multivalued sorted",
			script: "def transform(values):\n    return sorted(values)\n",
			input:  []any{"c", "a", "b"},
			want:   []any{"a", "b", "c"},
		},
		{
			desc:   "integer arithmetic",
			script: "def transform(value):\n    return value * 2\n",
			input:  21,
			want:   int64(42),
		},
		{
			desc:   "dict to string",
			script: "def transform(value):\n    return value['first'] + ' ' + value['last']\n",
			input:  map[string]any{"first": "Ada", "last": "Lovelace"},
			want:   "Ada Lovelace",
		},
		{
			desc:   "tuple becomes list",
			script: "def transform(value):\n    return (value, value)\n",
			input:  true,
			want:   []any{true, true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			tr, err := NewCompiler(0).Compile(tc.desc, mapping.Script{ToConnector: tc.script})
			require.NoError(t, err)

			got, err := tr.ToConnector(context.Background(), tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCompiler_InvalidScripts(t *testing.T) {
	testCases := []struct {
		desc   string
		script string
	}{
		{desc: "syntax error", script: "def transform(value)\n    return value\n"},
		{desc: "missing function", script: "x = 1\n"},
		{desc: "not a function", script: "transform = 1\n"},
		{desc: "wrong arity", script: "def transform(a, b):\n    return a\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			_, err := NewCompiler(0).Compile("bad", mapping.Script{FromConnector: tc.script})
			assert.ErrorIs(t, err, ErrInvalidScript)
		})
	}
}

func TestTransform_RuntimeFailures(t *testing.T) {
	t.Run("script error", func(t *testing.T) {
		tr, err := NewCompiler(0).Compile("fail", mapping.Script{ToConnector: "def transform(value):\n    return value.lower()\n"})
		require.NoError(t, err)

		_, err = tr.ToConnector(context.Background(), 42)
		assert.Error(t, err)
	})

	t.Run("step limit", func(t *testing.T) {
		script := "def transform(value):\n    n = 0\n    for i in range(1000000):\n        n += i\n    return n\n"
		tr, err := NewCompiler(1000).Compile("loop", mapping.Script{ToConnector: script})
		require.NoError(t, err)

		_, err = tr.ToConnector(context.Background(), nil)
		assert.Error(t, err)
	})

	t.Run("canceled context", func(t *testing.T) {
		tr, err := NewCompiler(0).Compile("ctx", mapping.Script{ToConnector: lowerScript})
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = tr.ToConnector(ctx, "A")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("unsupported input", func(t *testing.T) {
		tr, err := NewCompiler(0).Compile("input", mapping.Script{ToConnector: lowerScript})
		require.NoError(t, err)

		_, err = tr.ToConnector(context.Background(), struct{}{})
		assert.Error(t, err)
	})
}

func TestTransform_IsDeterministic(t *testing.T) {
	tr, err := NewCompiler(0).Compile("pure", mapping.Script{ToConnector: `
seen = []

def transform(value):
    return value + "-" + str(len(seen))
`})
	require.NoError(t, err)

	first, err := tr.ToConnector(context.Background(), "x")
	require.NoError(t, err)
	second, err := tr.ToConnector(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
