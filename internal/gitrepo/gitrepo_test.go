package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://github.com/user/repo", "repo"},
		{"https://github.com/user/repo.git", "repo"},
		{"https://github.com/user/repo/", "repo"},
		{"https://github.com/org/deep/nested-repo", "nested-repo"},
	}
	for _, tc := range cases {
		got, err := Name(tc.url)
		require.NoError(t, err, tc.url)
		assert.Equal(t, tc.want, got, tc.url)
	}
}

func TestNameRejectsBadURLs(t *testing.T) {
	for _, bad := range []string{"https://github.com/", "https://github.com/onlyowner", ""} {
		_, err := Name(bad)
		assert.Error(t, err, bad)
	}
}

func TestCloneTempFailureLeavesNoDirectory(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	dir, cleanup, err := CloneTemp(context.Background(), "file://"+missing+"/user/repo", "s1")
	require.Error(t, err)
	assert.Empty(t, dir)
	assert.Nil(t, cleanup)

	// no rag_temp_* leftovers for this session
	entries, err := os.ReadDir(os.TempDir())
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), "rag_temp_s1_"), e.Name())
	}
}
