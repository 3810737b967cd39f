package mapping

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_Desired(t *testing.T) {
	set := Set{Mappings: []AttributeMapping{
		{Name: "cn", IdmAttribute: "username"},
		{Name: "mail", IdmAttribute: "email"},
		{Name: "memberOf", IdmAttribute: "groups", Multivalued: true},
		{Name: "title"},
	}}

	source := map[string]any{
		"username": "alice",
		"groups":   []any{"admins"},
		"title":    nil,
		"unmapped": "ignored",
	}

	desired := set.Desired(source)

	assert.Equal(t, map[string]any{
		"cn":       "alice",
		"memberOf": []any{"admins"},
		"title":    nil,
	}, desired)

	source["groups"].([]any)[0] = "changed"
	assert.Equal(t, []any{"admins"}, desired["memberOf"])
}

func TestSet_UIDMapping(t *testing.T) {
	set := Set{Mappings: []AttributeMapping{{Name: "mail"}, {Name: "__NAME__", UID: true}}}

	m, ok := set.UIDMapping()
	require.True(t, ok)
	assert.Equal(t, "__NAME__", m.Name)

	_, ok = Set{}.UIDMapping()
	assert.False(t, ok)
}

func TestTransformFuncs(t *testing.T) {
	ctx := context.Background()
	tr := TransformFuncs{
		To: func(v any) (any, error) { return strings.ToUpper(v.(string)), nil },
	}

	out, err := tr.ToConnector(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "ALICE", out)

	out, err = tr.FromConnector(ctx, "ALICE")
	require.NoError(t, err)
	assert.Equal(t, "ALICE", out, "nil From acts as identity")

	assert.Equal(t, Identity{}, AttributeMapping{}.Transformer())
}
