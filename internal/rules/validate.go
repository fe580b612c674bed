package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/MahdiGraph/SiteSniper/internal/models"
)

// ValidationError represents a rejected rule
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var domainPattern = regexp.MustCompile(`^(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)*[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// ValidateSite checks that site is a bare domain name (no scheme, path or port)
func ValidateSite(site string) error {
	s := strings.ToLower(strings.TrimSpace(site))
	if s == "" {
		return &ValidationError{Field: "site", Message: "website cannot be empty"}
	}
	if strings.Contains(s, "..") || strings.HasPrefix(s, ".") || strings.HasSuffix(s, ".") {
		return &ValidationError{Field: "site", Message: fmt.Sprintf("invalid domain format %q", site)}
	}
	if !domainPattern.MatchString(s) {
		return &ValidationError{Field: "site", Message: fmt.Sprintf("invalid domain format %q (e.g. example.com)", site)}
	}
	if NormalizeDomain(s).Primary == "" {
		return &ValidationError{Field: "site", Message: fmt.Sprintf("%q has nothing after the www. prefix", site)}
	}
	return nil
}

// SiteUsable is the defensive check compile and live passes apply to stored sites
func SiteUsable(site string) bool {
	s := strings.TrimSpace(site)
	if s == "" || strings.ContainsAny(s, "/:?# \t") {
		return false
	}
	return NormalizeDomain(s).Primary != ""
}

// Validate checks a normalized rule the way the options page does before saving it
func Validate(rule models.Rule) error {
	if err := ValidateSite(rule.Site); err != nil {
		return err
	}

	switch rule.Kind {
	case models.KindAlways:
		if rule.StartTime != "" || rule.EndTime != "" {
			return &ValidationError{Field: "type", Message: "an always rule cannot carry a start or end time"}
		}
	case models.KindTimed:
		if rule.StartTime == "" || rule.EndTime == "" {
			return &ValidationError{Field: "time", Message: "all fields for time-scheduled blocking must be filled"}
		}
		if _, err := ParseClock(rule.StartTime); err != nil {
			return &ValidationError{Field: "startTime", Message: "invalid time format, use HH:MM"}
		}
		if _, err := ParseClock(rule.EndTime); err != nil {
			return &ValidationError{Field: "endTime", Message: "invalid time format, use HH:MM"}
		}
		if rule.StartTime == rule.EndTime {
			return &ValidationError{Field: "time", Message: "start and end time cannot be identical"}
		}
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown rule type %q", rule.Kind)}
	}

	switch rule.SubpageMode {
	case models.SubpageNone:
	case models.SubpageWhitelist:
		if err := validatePatternList("subpageWhitelist", rule.SubpageWhitelist); err != nil {
			return err
		}
	case models.SubpageBlacklist:
		if err := validatePatternList("subpageBlacklist", rule.SubpageBlacklist); err != nil {
			return err
		}
	default:
		return &ValidationError{Field: "subpageMode", Message: fmt.Sprintf("unknown subpage mode %q", rule.SubpageMode)}
	}

	return nil
}

func validatePatternList(field string, patterns []string) error {
	seen := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			return &ValidationError{Field: field, Message: "please enter a subpage path"}
		}
		if !strings.HasPrefix(strings.TrimSpace(p), "/") {
			return &ValidationError{Field: field, Message: fmt.Sprintf("subpage path %q must start with a '/'", p)}
		}
		if seen[p] {
			return &ValidationError{Field: field, Message: fmt.Sprintf("%q is already in the list", p)}
		}
		seen[p] = true
	}
	return nil
}
