package rules

import (
	"strings"

	"github.com/gobwas/glob"
)

// PatternShape is the matching policy a subpage pattern falls under
type PatternShape int

const (
	// Degenerate patterns match nothing and never compile to a directive
	Degenerate PatternShape = iota
	// Root matches the path "/" only
	Root
	// Prefix patterns end in '*' and match anything starting with the body
	Prefix
	// Directory patterns end in '/' and match anything below them
	Directory
	// SegmentContains patterns match anywhere inside the path and query
	SegmentContains
)

func (s PatternShape) String() string {
	switch s {
	case Root:
		return "root"
	case Prefix:
		return "prefix"
	case Directory:
		return "directory"
	case SegmentContains:
		return "segment-contains"
	default:
		return "degenerate"
	}
}

// Pattern is a classified subpage pattern
type Pattern struct {
	Raw   string
	Path  string // normalized, always starts with '/' unless degenerate
	Shape PatternShape

	matcher glob.Glob
}

// NormalizePath trims p and makes sure it starts with '/'.
// Query strings and inner characters are left untouched.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// ClassifyPattern normalizes a raw pattern and decides its shape.
// Both the live matcher and the url-filter compiler go through here.
func ClassifyPattern(raw string) Pattern {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Pattern{Raw: raw, Shape: Degenerate}
	}
	if trimmed == "/" {
		return Pattern{Raw: raw, Path: "/", Shape: Root}
	}

	p := NormalizePath(trimmed)
	if strings.ReplaceAll(p, "*", "") == "/" {
		return Pattern{Raw: raw, Path: p, Shape: Degenerate}
	}

	var pat Pattern
	switch {
	case strings.HasSuffix(p, "*"):
		pat = Pattern{Raw: raw, Path: p, Shape: Prefix}
	case strings.HasSuffix(p, "/"):
		pat = Pattern{Raw: raw, Path: p, Shape: Directory}
	default:
		pat = Pattern{Raw: raw, Path: p, Shape: SegmentContains}
	}

	m, err := CompileGlob(pat.globPattern())
	if err != nil {
		return Pattern{Raw: raw, Path: p, Shape: Degenerate}
	}
	pat.matcher = m
	return pat
}

// globPattern anchors the body at the start of the target, or floats it
// anywhere for segment-contains patterns
func (p Pattern) globPattern() string {
	switch p.Shape {
	case Prefix:
		return Wildcard(p.Path)
	case Directory:
		return Wildcard(p.Path + "*")
	default:
		return Wildcard("*" + p.Path + "*")
	}
}

// Usable reports whether the pattern can produce a match at all
func (p Pattern) Usable() bool {
	return p.Shape != Degenerate
}

// Match reports whether target satisfies the pattern. target is what follows
// the hostname in the URL: path plus optional "?query", preceded by ":port"
// when the URL names a non-default port. A '*' inside the pattern body
// matches any run of characters and matching ignores case, the same way the
// declarative url-filter behaves.
func (p Pattern) Match(target string) bool {
	if target == "" {
		target = "/"
	}
	switch p.Shape {
	case Root:
		return target == "/"
	case Prefix, Directory, SegmentContains:
		return p.matcher != nil && p.matcher.Match(strings.ToLower(target))
	default:
		return false
	}
}

// URLFilter renders the pattern as a declarative url-filter for one host.
// The "||" anchor pins the host, so a pattern can only match the URL's own
// path and never text embedded in its query.
func (p Pattern) URLFilter(host string) string {
	base := "||" + host
	switch p.Shape {
	case Root:
		return base + "/|"
	case Prefix:
		return base + p.Path
	case Directory:
		return base + p.Path + "*"
	case SegmentContains:
		return base + "*" + p.Path + "*"
	default:
		return ""
	}
}

// SiteFilter is the url-filter covering every URL on host, any port included
func SiteFilter(host string) string {
	return "||" + host + "^"
}

// URLFilters renders one url-filter per host of d. Degenerate patterns render none.
func (p Pattern) URLFilters(d Domain) []string {
	if !p.Usable() {
		return nil
	}
	hosts := d.Hosts()
	filters := make([]string, 0, len(hosts))
	for _, h := range hosts {
		filters = append(filters, p.URLFilter(h))
	}
	return filters
}

// ClassifyPatterns classifies a list, dropping degenerate entries
func ClassifyPatterns(raw []string) (usable []Pattern, skipped []string) {
	for _, r := range raw {
		p := ClassifyPattern(r)
		if !p.Usable() {
			skipped = append(skipped, r)
			continue
		}
		usable = append(usable, p)
	}
	return usable, skipped
}
