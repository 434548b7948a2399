// Package gitrepo fetches remote repositories for indexing. Clones are
// shallow and land in a temp directory the caller disposes of after
// the run.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/rs/zerolog/log"
)

// Name derives the repository name from its URL: the last path
// segment, with a trailing slash and .git suffix stripped.
func Name(repoURL string) (string, error) {
	trimmed := strings.TrimSuffix(strings.TrimRight(repoURL, "/"), ".git")
	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid repository url %q: %v", repoURL, err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("repository url %q has no owner/name path", repoURL)
	}
	return parts[len(parts)-1], nil
}

// CloneTemp shallow-clones repoURL into a fresh temp directory and
// returns it with a cleanup func. The directory is removed on any
// clone failure.
func CloneTemp(ctx context.Context, repoURL, sessionID string) (string, func(), error) {
	name, err := Name(repoURL)
	if err != nil {
		return "", nil, err
	}

	dir, err := os.MkdirTemp("", fmt.Sprintf("rag_temp_%s_%s_", sessionID, name))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create clone directory: %v", err)
	}
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("failed to remove clone directory")
		}
	}

	log.Info().Str("url", repoURL).Str("dir", dir).Msg("cloning repository")
	_, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:          repoURL,
		Depth:        1,
		SingleBranch: true,
	})
	if err != nil {
		cleanup()
		switch {
		case errors.Is(err, transport.ErrRepositoryNotFound):
			return "", nil, fmt.Errorf("repository %s not found, check the url: %w", repoURL, err)
		case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
			return "", nil, fmt.Errorf("repository %s requires authentication, only public repositories are supported: %w", repoURL, err)
		default:
			return "", nil, fmt.Errorf("failed to clone %s: %w", repoURL, err)
		}
	}
	return dir, cleanup, nil
}
