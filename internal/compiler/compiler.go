package compiler

import (
	"encoding/json"

	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

// Directive priorities. Allow must outrank redirect/block at the same URL.
const (
	PriorityBlock = 1
	PriorityAllow = 2
)

// DefaultBlockPagePath is the extension-relative block page
const DefaultBlockPagePath = "/html/blocked.html"

// Options configures how blocking directives are rendered
type Options struct {
	// BlockAction is redirect (default) or block
	BlockAction models.ActionType
	// BlockPagePath is the extension path redirects point at
	BlockPagePath string
	// BlockPageURL, when set, replaces BlockPagePath with an absolute URL
	BlockPageURL string
	Logger       *logger.Logger
}

// Compiler turns a rule snapshot into the full directive list the
// declarative filtering engine should hold
type Compiler struct {
	opts   Options
	logger *logger.Logger
}

// New creates a new compiler
func New(opts Options) *Compiler {
	if opts.BlockAction == "" {
		opts.BlockAction = models.ActionRedirect
	}
	if opts.BlockPagePath == "" && opts.BlockPageURL == "" {
		opts.BlockPagePath = DefaultBlockPagePath
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Compiler{opts: opts, logger: log}
}

// emitter hands out ids in strictly increasing order for one pass
type emitter struct {
	nextID int
	out    []models.Directive
}

func (e *emitter) add(action models.Action, cond models.Condition) {
	priority := PriorityBlock
	if action.Type == models.ActionAllow {
		priority = PriorityAllow
	}
	e.nextID++
	e.out = append(e.out, models.Directive{
		ID:        e.nextID,
		Priority:  priority,
		Action:    action,
		Condition: cond,
	})
}

// Compile builds directives for every usable, time-active rule of snap at
// nowMinutes (minutes since midnight), in rule-list order
func (c *Compiler) Compile(snap *rules.Snapshot, nowMinutes int) []models.Directive {
	e := &emitter{out: []models.Directive{}}

	snap.Range(func(i int, rule models.Rule) bool {
		if !rules.SiteUsable(rule.Site) {
			c.logger.Warnf("Skipping rule %d: invalid site %q", i, rule.Site)
			return true
		}

		active, err := rules.TimeActive(rule, nowMinutes)
		if err != nil {
			c.logger.Warnf("Skipping rule %d: %v", i, err)
			return true
		}
		if !active {
			c.logger.Debugf("Rule %d (%s) is outside its time window", i, rule.Site)
			return true
		}

		c.compileRule(e, i, rule)
		return true
	})

	return e.out
}

func (c *Compiler) compileRule(e *emitter, index int, rule models.Rule) {
	domain := rules.NormalizeDomain(rule.Site)

	switch rule.SubpageMode {
	case models.SubpageNone:
		e.add(c.blockAction(), models.Condition{
			RequestDomains: domain.Hosts(),
			ResourceTypes:  models.AllResourceTypes(),
		})

	case models.SubpageWhitelist:
		mainFrame := []models.ResourceType{models.ResourceMainFrame}
		for _, host := range domain.Hosts() {
			e.add(c.blockAction(), models.Condition{
				URLFilter:     rules.SiteFilter(host),
				ResourceTypes: mainFrame,
			})
		}

		patterns, skipped := rules.ClassifyPatterns(rule.SubpageWhitelist)
		c.warnSkipped(index, rule.Site, "whitelist", skipped)
		for _, p := range patterns {
			for _, filter := range p.URLFilters(domain) {
				e.add(models.Action{Type: models.ActionAllow}, models.Condition{
					URLFilter:     filter,
					ResourceTypes: mainFrame,
				})
			}
		}

	case models.SubpageBlacklist:
		patterns, skipped := rules.ClassifyPatterns(rule.SubpageBlacklist)
		c.warnSkipped(index, rule.Site, "blacklist", skipped)
		for _, p := range patterns {
			for _, filter := range p.URLFilters(domain) {
				e.add(c.blockAction(), models.Condition{
					URLFilter:     filter,
					ResourceTypes: models.AllResourceTypes(),
				})
			}
		}

	default:
		c.logger.Warnf("Skipping rule %d (%s): unknown subpage mode %q", index, rule.Site, rule.SubpageMode)
	}
}

func (c *Compiler) warnSkipped(index int, site, list string, skipped []string) {
	for _, raw := range skipped {
		c.logger.Warnf("Rule %d (%s): ignoring degenerate %s pattern %q", index, site, list, raw)
	}
}

func (c *Compiler) blockAction() models.Action {
	if c.opts.BlockAction == models.ActionBlock {
		return models.Action{Type: models.ActionBlock}
	}
	redirect := &models.Redirect{ExtensionPath: c.opts.BlockPagePath}
	if c.opts.BlockPageURL != "" {
		redirect = &models.Redirect{URL: c.opts.BlockPageURL}
	}
	return models.Action{Type: models.ActionRedirect, Redirect: redirect}
}

type signatureEntry struct {
	Action    models.Action    `json:"action"`
	Condition models.Condition `json:"condition"`
	Priority  int              `json:"priority"`
}

// Signature is the structural fingerprint of a directive list: the ordered
// (action, condition, priority) triples, ignoring ids
func Signature(directives []models.Directive) string {
	entries := make([]signatureEntry, 0, len(directives))
	for _, d := range directives {
		entries = append(entries, signatureEntry{Action: d.Action, Condition: d.Condition, Priority: d.Priority})
	}
	// Only strings and ints are marshalled, so this cannot fail
	b, _ := json.Marshal(entries)
	return string(b)
}

// Equivalent reports whether two directive lists differ only in their ids
func Equivalent(a, b []models.Directive) bool {
	return len(a) == len(b) && Signature(a) == Signature(b)
}
