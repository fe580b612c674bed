package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/MahdiGraph/SiteSniper/internal/models"
)

var clockPattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// ParseClock converts "HH:MM" (24-hour) to minutes since midnight
func ParseClock(s string) (int, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	h, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	return h*60 + mm, nil
}

// MinutesSinceMidnight returns t's wall-clock time of day in minutes (0-1439)
func MinutesSinceMidnight(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// WindowActive reports whether now falls inside [start, end).
// A window that ends before it starts wraps past midnight; a zero-length window is never active.
func WindowActive(start, end, now int) bool {
	switch {
	case start == end:
		return false
	case start < end:
		return now >= start && now < end
	default:
		return now >= start || now < end
	}
}

// TimeActive evaluates a rule's schedule at now (minutes since midnight).
// Rules that are not timed always pass. A timed rule with a bad time is
// reported through the error and counts as inactive.
func TimeActive(rule models.Rule, now int) (bool, error) {
	if rule.Kind != models.KindTimed {
		return true, nil
	}
	if rule.StartTime == "" || rule.EndTime == "" {
		return false, fmt.Errorf("timed rule for %q is missing its start or end time", rule.Site)
	}
	start, err := ParseClock(rule.StartTime)
	if err != nil {
		return false, fmt.Errorf("start time of %q: %w", rule.Site, err)
	}
	end, err := ParseClock(rule.EndTime)
	if err != nil {
		return false, fmt.Errorf("end time of %q: %w", rule.Site, err)
	}
	return WindowActive(start, end, now), nil
}

// IsTimeActive is TimeActive without the diagnostic
func IsTimeActive(rule models.Rule, now int) bool {
	active, _ := TimeActive(rule, now)
	return active
}
