package pathref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Grammar(t *testing.T) {
	tests := []struct {
		raw   string
		gjson string
	}{
		{"/workflow", "workflow"},
		{"/workflow/users", "workflow.users"},
		{"/workflow/users[0]", "workflow.users.0"},
		{"/workflow/users[0].name", "workflow.users.0.name"},
		{"/workflow/a/b/c", "workflow.a.b.c"},
		{"/workflow/items[12]/tags[0]", "workflow.items.12.tags.0"},
		{"/workflow/_loop/current", "workflow._loop.current"},
	}
	for _, tt := range tests {
		p, err := Parse(tt.raw)
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.gjson, p.GJSON(), tt.raw)
		assert.Equal(t, tt.raw, p.String())
	}
}

func TestParse_Rejections(t *testing.T) {
	for _, raw := range []string{
		"workflow/users",
		"/other/users",
		"/workflow//x",
		"/workflow/users[",
		"/workflow/users[-1]",
		"/workflow/users[abc]",
		"/workflow/users!",
	} {
		_, err := Parse(raw)
		assert.Error(t, err, raw)
	}
}

func TestHasPrefix(t *testing.T) {
	users := mustParse(t, "/workflow/users")
	deep := mustParse(t, "/workflow/users[3].name")
	other := mustParse(t, "/workflow/accounts")

	assert.True(t, deep.HasPrefix(users))
	assert.True(t, users.HasPrefix(users))
	assert.False(t, users.HasPrefix(deep))
	assert.False(t, deep.HasPrefix(other))
}

func TestIsPath(t *testing.T) {
	assert.True(t, IsPath("/workflow/users"))
	assert.True(t, IsPath("/workflow"))
	assert.False(t, IsPath("https://example.com"))
	assert.False(t, IsPath("/workflow/users["))
	assert.False(t, IsPath("plain text"))
}

func TestValidOutput(t *testing.T) {
	assert.NoError(t, ValidOutput("/workflow/result"))
	assert.Error(t, ValidOutput("/workflow"))
	assert.Error(t, ValidOutput("not a path"))
}

func mustParse(t *testing.T, raw string) *Path {
	t.Helper()
	p, err := Parse(raw)
	require.NoError(t, err)
	return p
}
