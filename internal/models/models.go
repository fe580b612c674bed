package models

import (
	"time"
)

// RuleKind decides when a rule applies
type RuleKind string

const (
	KindAlways RuleKind = "always"
	KindTimed  RuleKind = "timed"
)

// SubpageMode refines a rule to parts of a site
type SubpageMode string

const (
	SubpageNone      SubpageMode = "none"
	SubpageWhitelist SubpageMode = "whitelist"
	SubpageBlacklist SubpageMode = "blacklist"
)

// Rule represents a user-authored blocking rule.
// JSON names follow the browser extension's blockedRules storage format.
type Rule struct {
	ID               int64       `json:"-"`
	Site             string      `json:"site"`
	Kind             RuleKind    `json:"type"`
	StartTime        string      `json:"startTime,omitempty"` // "HH:MM", timed only
	EndTime          string      `json:"endTime,omitempty"`   // "HH:MM", timed only
	SubpageMode      SubpageMode `json:"subpageMode"`
	SubpageWhitelist []string    `json:"subpageWhitelist"`
	SubpageBlacklist []string    `json:"subpageBlacklist"`
}

// Key returns the uniqueness key of the rule within a rule set
func (r Rule) Key() string {
	if r.Kind == KindTimed {
		return string(r.Kind) + "|" + r.Site + "|" + r.StartTime + "-" + r.EndTime
	}
	return string(r.Kind) + "|" + r.Site
}

// Clone returns a deep copy of the rule
func (r Rule) Clone() Rule {
	c := r
	c.SubpageWhitelist = append([]string(nil), r.SubpageWhitelist...)
	c.SubpageBlacklist = append([]string(nil), r.SubpageBlacklist...)
	return c
}

// ActionType is the declarative action kind of a directive
type ActionType string

const (
	ActionRedirect ActionType = "redirect"
	ActionBlock    ActionType = "block"
	ActionAllow    ActionType = "allow"
)

// ResourceType is a request kind in the declarativeNetRequest vocabulary
type ResourceType string

const (
	ResourceMainFrame      ResourceType = "main_frame"
	ResourceSubFrame       ResourceType = "sub_frame"
	ResourceStylesheet     ResourceType = "stylesheet"
	ResourceScript         ResourceType = "script"
	ResourceImage          ResourceType = "image"
	ResourceFont           ResourceType = "font"
	ResourceObject         ResourceType = "object"
	ResourceXMLHTTPRequest ResourceType = "xmlhttprequest"
	ResourcePing           ResourceType = "ping"
	ResourceCSPReport      ResourceType = "csp_report"
	ResourceMedia          ResourceType = "media"
	ResourceWebSocket      ResourceType = "websocket"
	ResourceWebTransport   ResourceType = "webtransport"
	ResourceWebBundle      ResourceType = "webbundle"
	ResourceOther          ResourceType = "other"
)

// AllResourceTypes lists every resource type a directive can be scoped to
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceMainFrame,
		ResourceSubFrame,
		ResourceStylesheet,
		ResourceScript,
		ResourceImage,
		ResourceFont,
		ResourceObject,
		ResourceXMLHTTPRequest,
		ResourcePing,
		ResourceCSPReport,
		ResourceMedia,
		ResourceWebSocket,
		ResourceWebTransport,
		ResourceWebBundle,
		ResourceOther,
	}
}

// Redirect is the redirect target of a redirect action
type Redirect struct {
	ExtensionPath string `json:"extensionPath,omitempty"`
	URL           string `json:"url,omitempty"`
}

// Action is the action part of a directive
type Action struct {
	Type     ActionType `json:"type"`
	Redirect *Redirect  `json:"redirect,omitempty"`
}

// Condition is the URL condition part of a directive.
// Exactly one of URLFilter and RequestDomains is set.
type Condition struct {
	URLFilter      string         `json:"urlFilter,omitempty"`
	RequestDomains []string       `json:"requestDomains,omitempty"`
	ResourceTypes  []ResourceType `json:"resourceTypes,omitempty"`
}

// Directive represents one compiled declarativeNetRequest rule
type Directive struct {
	ID        int       `json:"id"`
	Priority  int       `json:"priority"`
	Action    Action    `json:"action"`
	Condition Condition `json:"condition"`
}

// SyncRun represents one compile-and-replace pass of the agent
type SyncRun struct {
	ID                 int64
	PassID             string
	Trigger            string
	StartedAt          time.Time
	CompletedAt        time.Time
	RulesLoaded        int
	DirectivesCompiled int
	Replaced           bool
	Status             string
	ErrorMessage       string
}

// Sync run statuses
const (
	SyncStatusApplied   = "applied"
	SyncStatusUnchanged = "unchanged"
	SyncStatusFailed    = "failed"
)

// AgentStatus represents the status of the agent
type AgentStatus struct {
	Running  bool
	PID      int
	Rules    int
	LastSync *SyncRun
}
