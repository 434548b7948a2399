package collections

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDForIsDeterministic(t *testing.T) {
	a := IDFor("abc123", "my-repo")
	b := IDFor("abc123", "my-repo")
	assert.Equal(t, "session_abc123_my-repo", a)
	assert.Equal(t, a, b)
}

func TestIDForSanitizesRepoName(t *testing.T) {
	tests := []struct {
		repo string
		want string
	}{
		{"flask", "session_s1_flask"},
		{"user/repo name", "session_s1_user-repo-name"},
		{"weird!!chars??", "session_s1_weird-chars"},
		{"///", "session_s1_repo"},
		{"dotted.name_v2", "session_s1_dotted.name_v2"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IDFor("s1", tt.repo), "repo %q", tt.repo)
	}
}

func TestPrefixAndMembership(t *testing.T) {
	id := IDFor("sess-a", "proj")
	assert.True(t, IsSessionCollection(id, "sess-a"))
	assert.False(t, IsSessionCollection(id, "sess-b"))
	assert.False(t, IsSessionCollection("permanent_rag_project", "sess-a"))

	// namespaces of distinct sessions never overlap
	assert.False(t, IsSessionCollection(IDFor("s2", "x"), "s2x"))
	assert.Equal(t, "session_sess-a_", Prefix("sess-a"))
}
