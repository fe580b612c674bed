package rules

import (
	"strings"

	"github.com/gobwas/glob"
)

// GlobSeparator bounds a single '*' in compiled globs. Text coming from
// Wildcard only uses '**', so it crosses separators freely.
const GlobSeparator = '/'

// Wildcard converts text in which '*' is the only metacharacter into glob
// syntax. Matching is case-insensitive, so the text is lowercased and
// callers must lowercase what they match against.
func Wildcard(s string) string {
	parts := strings.Split(strings.ToLower(s), "*")
	for i, p := range parts {
		parts[i] = glob.QuoteMeta(p)
	}
	return strings.Join(parts, "**")
}

// CompileGlob compiles a pattern assembled from Wildcard output
func CompileGlob(pattern string) (glob.Glob, error) {
	return glob.Compile(pattern, GlobSeparator)
}
