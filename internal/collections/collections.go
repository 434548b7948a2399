// Package collections owns the collection naming convention. All
// collections for one session share the "session_{id}_" prefix, so
// session namespaces are disjoint by construction and bulk cleanup is
// a prefix operation.
package collections

import (
	"regexp"
	"strings"
)

const sessionPrefix = "session_"

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// IDFor derives the collection id for a repository within a session.
// Deterministic: the same inputs always yield the same id.
func IDFor(sessionID, repoName string) string {
	return Prefix(sessionID) + SanitizeRepoName(repoName)
}

// Prefix returns the namespace prefix shared by every collection of
// the session.
func Prefix(sessionID string) string {
	return sessionPrefix + sessionID + "_"
}

// IsSessionCollection reports whether name belongs to the session's
// namespace.
func IsSessionCollection(name, sessionID string) bool {
	return strings.HasPrefix(name, Prefix(sessionID))
}

// SanitizeRepoName reduces a repository name to characters safe for a
// collection identifier.
func SanitizeRepoName(repoName string) string {
	name := invalidNameChars.ReplaceAllString(repoName, "-")
	name = strings.Trim(name, "-")
	if name == "" {
		return "repo"
	}
	return name
}
