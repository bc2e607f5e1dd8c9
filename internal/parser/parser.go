// Package parser reads page Markdown: YAML frontmatter, title, headings and
// the images and internal links the body references.
package parser

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	imageRe   = regexp.MustCompile(`!\[[^\]]*\]\(\s*([^)\s]+)[^)]*\)`)
	linkRe    = regexp.MustCompile(`(?:^|[^!])\[[^\]]*\]\(\s*(/[^)\s#]*)[^)]*\)`)
	anchorRe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// Heading is one ATX heading of the body.
type Heading struct {
	Level  int    `json:"level"`
	Text   string `json:"text"`
	Anchor string `json:"anchor"`
}

// Result holds the output of parsing a page.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Title       string
	Description string
	Tags        []string
	Headings    []Heading
	Images      []string
	// Links are site-absolute link targets, e.g. "/guides/intro".
	Links []string
}

// Parse extracts frontmatter and body structure from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	headings := extractHeadings(body)
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, headings),
		Description: stringField(fm, "description"),
		Tags:        extractTags(fm),
		Headings:    headings,
		Images:      uniqueMatches(imageRe, body),
		Links:       uniqueMatches(linkRe, body),
	}, nil
}

// Compose renders frontmatter followed by body. A nil or empty fm yields
// the body alone.
func Compose(fm map[string]any, body string) ([]byte, error) {
	if len(fm) == 0 {
		return []byte(body), nil
	}
	y, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("parser: compose: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(y)
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]any, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]any
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep the page readable as plain body.
		return nil, string(data), nil
	}
	return fm, body, nil
}

// extractHeadings returns ATX headings outside fenced code blocks.
func extractHeadings(body string) []Heading {
	var out []Heading
	inFence := false
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		m := headingRe.FindStringSubmatch(trimmed)
		if m == nil {
			continue
		}
		out = append(out, Heading{Level: len(m[1]), Text: m[2], Anchor: anchor(m[2])})
	}
	return out
}

func anchor(text string) string {
	return strings.Trim(anchorRe.ReplaceAllString(strings.ToLower(text), "-"), "-")
}

func extractTags(fm map[string]any) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		if _, dup := seen[s]; dup {
			return
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(s)
		}
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, headings []Heading) string {
	if s := stringField(fm, "title"); s != "" {
		return s
	}
	for _, h := range headings {
		if h.Level == 1 {
			return h.Text
		}
	}
	return ""
}

func stringField(fm map[string]any, key string) string {
	if s, ok := fm[key].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func uniqueMatches(re *regexp.Regexp, body string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, m := range re.FindAllStringSubmatch(body, -1) {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
