package navtree

import (
	"regexp"
	"strings"
)

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases title, collapses every run of characters outside
// [a-z0-9] to a single dash, and trims leading and trailing dashes.
func Slugify(title string) string {
	s := strings.ToLower(strings.TrimSpace(title))
	s = strings.TrimSuffix(s, ".md")
	s = nonSlugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// JoinPath appends slug to a canonical parent path. The root is "/".
func JoinPath(parent, slug string) string {
	if parent == RootPath || parent == "" {
		return "/" + slug
	}
	return strings.TrimSuffix(parent, "/") + "/" + slug
}

// CanonicalPath strips the content root prefix and the .md suffix from a
// repository file path, returning the navigation route.
func CanonicalPath(repoPath, contentRoot string) string {
	p := strings.TrimPrefix(repoPath, "/")
	if contentRoot != "" {
		p = strings.TrimPrefix(p, strings.Trim(contentRoot, "/")+"/")
	}
	p = strings.TrimSuffix(p, ".md")
	return "/" + p
}
