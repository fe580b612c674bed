package sink

import (
	"context"
	"net/url"
	"strings"
	"sync"

	"github.com/gobwas/glob"

	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
)

// MemorySink keeps directives in memory and can match requests against them
// the way the browser's declarative engine does
type MemorySink struct {
	mu           sync.RWMutex
	directives   []models.Directive
	globs        map[string]glob.Glob
	replaceCalls int
	replaceErr   error
}

// NewMemorySink creates an empty in-memory sink
func NewMemorySink() *MemorySink {
	return &MemorySink{
		directives: []models.Directive{},
		globs:      make(map[string]glob.Glob),
	}
}

// GetCurrent returns a copy of the installed directives
func (m *MemorySink) GetCurrent(ctx context.Context) ([]models.Directive, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneDirectives(m.directives), nil
}

// Replace applies the update atomically
func (m *MemorySink) Replace(ctx context.Context, removeIDs []int, add []models.Directive) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.replaceCalls++
	if m.replaceErr != nil {
		return m.replaceErr
	}

	next, err := applyUpdate(m.directives, removeIDs, add)
	if err != nil {
		return err
	}

	globs := make(map[string]glob.Glob, len(next))
	for _, d := range next {
		if d.Condition.URLFilter == "" {
			continue
		}
		g, err := compileURLFilter(d.Condition.URLFilter)
		if err != nil {
			return err
		}
		globs[d.Condition.URLFilter] = g
	}

	m.directives = cloneDirectives(next)
	m.globs = globs
	return nil
}

// ReplaceCalls returns how many times Replace was invoked
func (m *MemorySink) ReplaceCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.replaceCalls
}

// FailReplace makes every following Replace fail with err; nil restores normal operation
func (m *MemorySink) FailReplace(err error) {
	m.mu.Lock()
	m.replaceErr = err
	m.mu.Unlock()
}

// Match returns the directive the declarative engine would apply to a
// request for rawURL of the given resource type. ok is false when no
// directive matches or the URL cannot be parsed.
func (m *MemorySink) Match(rawURL string, rt models.ResourceType) (models.Directive, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return models.Directive{}, false
	}
	// Browsers request "/" for an empty path and never send the fragment
	if u.Path == "" && u.RawPath == "" {
		u.Path = "/"
	}
	u.Fragment, u.RawFragment = "", ""
	host := strings.ToLower(u.Hostname())
	lowered := strings.ToLower(u.String())

	m.mu.RLock()
	defer m.mu.RUnlock()

	var best models.Directive
	found := false
	for _, d := range m.directives {
		if !resourceTypeMatches(d.Condition.ResourceTypes, rt) {
			continue
		}
		if d.Condition.URLFilter != "" {
			g := m.globs[d.Condition.URLFilter]
			if g == nil || !g.Match(lowered) {
				continue
			}
		} else if !domainListMatches(d.Condition.RequestDomains, host) {
			continue
		}
		if !found || outranks(d, best) {
			best, found = d, true
		}
	}
	return best, found
}

// Blocks reports whether the winning directive for the request redirects or blocks it
func (m *MemorySink) Blocks(rawURL string, rt models.ResourceType) bool {
	d, ok := m.Match(rawURL, rt)
	return ok && d.Action.Type != models.ActionAllow
}

// actionRank orders actions of equal priority, higher wins
var actionRank = map[models.ActionType]int{
	models.ActionAllow:    3,
	models.ActionBlock:    2,
	models.ActionRedirect: 1,
}

func outranks(a, b models.Directive) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return actionRank[a.Action.Type] > actionRank[b.Action.Type]
}

// An empty list covers every type except main_frame
func resourceTypeMatches(types []models.ResourceType, rt models.ResourceType) bool {
	if len(types) == 0 {
		return rt != models.ResourceMainFrame
	}
	for _, t := range types {
		if t == rt {
			return true
		}
	}
	return false
}

func domainListMatches(domains []string, host string) bool {
	for _, d := range domains {
		d = strings.ToLower(d)
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// separatorClass stands in for the url-filter "^" after a host
const separatorClass = "[/:?=&]"

// compileURLFilter translates the declarative url-filter syntax into a glob.
// Supported: "*" wildcards, a leading "|" or "||" anchor, a trailing "|"
// anchor and "^" as one separator character. Matching is case-insensitive.
func compileURLFilter(filter string) (glob.Glob, error) {
	f := filter

	prefix := "**"
	switch {
	case strings.HasPrefix(f, "||"):
		f = f[2:]
		// scheme and subdomain labels only, never into the path
		prefix = "{*://,*://*.}"
	case strings.HasPrefix(f, "|"):
		f = f[1:]
		prefix = ""
	}

	suffix := "**"
	if strings.HasSuffix(f, "|") {
		f = strings.TrimSuffix(f, "|")
		suffix = ""
	}

	segments := strings.Split(f, "^")
	for i, seg := range segments {
		segments[i] = rules.Wildcard(seg)
	}
	return rules.CompileGlob(prefix + strings.Join(segments, separatorClass) + suffix)
}
