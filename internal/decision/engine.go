package decision

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

// Reasons reported with a decision
const (
	ReasonSite           = "site blocked"
	ReasonNotWhitelisted = "path not whitelisted"
	ReasonBlacklisted    = "path blacklisted"
	ReasonNoMatch        = "no matching rule"
	ReasonMalformedURL   = "malformed url"
)

var errNoHost = errors.New("url has no host")

// Decision is the outcome of evaluating one URL
type Decision struct {
	Blocked bool
	// Rule is the blocking rule, nil when not blocked
	Rule *models.Rule
	// RuleIndex is the rule's position in the list, -1 when not blocked
	RuleIndex int
	Reason    string
	// Pattern is the subpage pattern that caused the block, if any
	Pattern string
}

func allowed(reason string) Decision {
	return Decision{RuleIndex: -1, Reason: reason}
}

// Engine answers "should this URL be blocked right now" for navigations the
// declarative filter does not see
type Engine struct {
	logger *logger.Logger
}

// New creates a new decision engine
func New(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Discard()
	}
	return &Engine{logger: log}
}

// Target splits a URL into its lowercased hostname and what follows it:
// path+query, prefixed with ":port" when the URL names a port. An empty path
// is reported as "/".
func Target(rawURL string) (host, target string, err error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", err
	}
	host = strings.ToLower(u.Hostname())
	if host == "" {
		return "", "", &url.Error{Op: "parse", URL: rawURL, Err: errNoHost}
	}
	target = u.EscapedPath()
	if target == "" {
		target = "/"
	}
	if u.RawQuery != "" {
		target += "?" + u.RawQuery
	}
	if port := u.Port(); port != "" {
		target = ":" + port + target
	}
	return host, target, nil
}

// Evaluate walks snap in list order and returns the first blocking decision
// for rawURL at nowMinutes. Unparsable URLs are never blocked.
func (e *Engine) Evaluate(rawURL string, snap *rules.Snapshot, nowMinutes int) Decision {
	host, target, err := Target(rawURL)
	if err != nil {
		e.logger.Warnf("Cannot evaluate %q: %v", rawURL, err)
		return allowed(ReasonMalformedURL)
	}

	result := allowed(ReasonNoMatch)
	snap.Range(func(i int, rule models.Rule) bool {
		if !rules.SiteUsable(rule.Site) {
			return true
		}
		if !rules.NormalizeDomain(rule.Site).Matches(host) {
			return true
		}
		active, err := rules.TimeActive(rule, nowMinutes)
		if err != nil {
			e.logger.Warnf("Rule %d: %v", i, err)
			return true
		}
		if !active {
			return true
		}

		reason, pattern, blocked := e.evaluateRule(i, rule, target)
		if !blocked {
			return true
		}
		r := rule.Clone()
		result = Decision{Blocked: true, Rule: &r, RuleIndex: i, Reason: reason, Pattern: pattern}
		return false
	})

	if result.Blocked {
		e.logger.Debugf("Blocking %s: rule %d (%s), %s", rawURL, result.RuleIndex, result.Rule.Site, result.Reason)
	}
	return result
}

func (e *Engine) evaluateRule(index int, rule models.Rule, target string) (reason, pattern string, blocked bool) {
	switch rule.SubpageMode {
	case models.SubpageNone:
		return ReasonSite, "", true

	case models.SubpageWhitelist:
		if len(rule.SubpageWhitelist) == 0 {
			return ReasonNotWhitelisted, "", true
		}
		usable, _ := rules.ClassifyPatterns(rule.SubpageWhitelist)
		for _, p := range usable {
			if p.Match(target) {
				return "", "", false
			}
		}
		return ReasonNotWhitelisted, "", true

	case models.SubpageBlacklist:
		usable, _ := rules.ClassifyPatterns(rule.SubpageBlacklist)
		for _, p := range usable {
			if p.Match(target) {
				return ReasonBlacklisted, p.Raw, true
			}
		}
		return "", "", false

	default:
		e.logger.Warnf("Rule %d (%s): unknown subpage mode %q", index, rule.Site, rule.SubpageMode)
		return "", "", false
	}
}

// HostBlocked reports whether every URL on host is blocked at nowMinutes,
// i.e. a time-active rule for the host blocks regardless of path. Used
// where only the hostname is visible, such as tunnelled connections.
func (e *Engine) HostBlocked(host string, snap *rules.Snapshot, nowMinutes int) bool {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	blocked := false
	snap.Range(func(_ int, rule models.Rule) bool {
		if !rules.SiteUsable(rule.Site) || !rules.NormalizeDomain(rule.Site).Matches(host) {
			return true
		}
		if !rules.IsTimeActive(rule, nowMinutes) {
			return true
		}
		switch rule.SubpageMode {
		case models.SubpageNone:
			blocked = true
		case models.SubpageWhitelist:
			usable, _ := rules.ClassifyPatterns(rule.SubpageWhitelist)
			blocked = len(usable) == 0
		}
		return !blocked
	})
	return blocked
}

// BlockPageURL builds the block page address carrying the original URL in
// its "url" query parameter. base must be absolute; otherwise there is no
// usable target and the result is empty.
func BlockPageURL(base, original string) string {
	u, err := url.Parse(base)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ""
	}
	q := u.Query()
	q.Set("url", original)
	u.RawQuery = q.Encode()
	return u.String()
}
