package credential

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ref(id string) map[string]any {
	return map[string]any{"credentialRef": map[string]any{"id": id}}
}

func TestContainsRef(t *testing.T) {
	assert.True(t, ContainsRef(ref("crm")))
	assert.True(t, ContainsRef(map[string]any{"headers": map[string]any{"Authorization": ref("crm")}}))
	assert.True(t, ContainsRef([]any{"x", ref("crm")}))
	assert.False(t, ContainsRef(map[string]any{"credentialRef": "not an object"}))
	assert.False(t, ContainsRef("plain"))
}

func TestRefIDs(t *testing.T) {
	ids := RefIDs(map[string]any{
		"a": ref("one"),
		"b": []any{ref("two")},
		"c": "literal",
	})
	assert.ElementsMatch(t, []string{"one", "two"}, ids)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "Bearer tok", Format("tok", TypeBearerToken))
	assert.Equal(t, "tok", Format("tok", TypeAPIKey))
	assert.Equal(t, "tok", Format("tok", "unknown"))
}

func TestInjector_ReplacesMarkers(t *testing.T) {
	resolver := NewStaticResolver()
	resolver.Store("crm", TypeBearerToken, "s3cret")

	injected, used, err := NewInjector(resolver).Inject(context.Background(), map[string]any{
		"headers": map[string]any{"Authorization": ref("crm")},
		"url":     "https://api.example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"crm"}, used)
	headers := injected["headers"].(map[string]any)
	assert.Equal(t, "Bearer s3cret", headers["Authorization"])
	assert.Equal(t, "https://api.example.com", injected["url"])
}

func TestInjector_UnknownCredential(t *testing.T) {
	_, _, err := NewInjector(NewStaticResolver()).Inject(context.Background(), map[string]any{
		"auth": ref("nope"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}
