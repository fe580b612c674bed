package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/MahdiGraph/SiteSniper/internal/models"
)

// ErrInvalidDirective is returned when a replace batch would leave the sink
// with a malformed directive or a duplicate id. The sink is left unchanged.
var ErrInvalidDirective = errors.New("invalid directive")

// Sink is the declarative filtering engine the compiled directives are
// installed into
type Sink interface {
	// GetCurrent returns the installed directives in installation order
	GetCurrent(ctx context.Context) ([]models.Directive, error)
	// Replace removes removeIDs (unknown ids are ignored) and then installs
	// add, as one unit
	Replace(ctx context.Context, removeIDs []int, add []models.Directive) error
}

// applyUpdate computes the directive list after removing removeIDs from
// current and appending add
func applyUpdate(current []models.Directive, removeIDs []int, add []models.Directive) ([]models.Directive, error) {
	remove := make(map[int]bool, len(removeIDs))
	for _, id := range removeIDs {
		remove[id] = true
	}

	next := make([]models.Directive, 0, len(current)+len(add))
	seen := make(map[int]bool, len(current)+len(add))
	for _, d := range current {
		if remove[d.ID] {
			continue
		}
		next = append(next, d)
		seen[d.ID] = true
	}

	for _, d := range add {
		if err := validateDirective(d); err != nil {
			return nil, err
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidDirective, d.ID)
		}
		seen[d.ID] = true
		next = append(next, d)
	}
	return next, nil
}

func validateDirective(d models.Directive) error {
	if d.ID <= 0 {
		return fmt.Errorf("%w: id %d is not positive", ErrInvalidDirective, d.ID)
	}
	if d.Priority <= 0 {
		return fmt.Errorf("%w: directive %d has priority %d", ErrInvalidDirective, d.ID, d.Priority)
	}
	switch d.Action.Type {
	case models.ActionRedirect:
		if d.Action.Redirect == nil || (d.Action.Redirect.ExtensionPath == "" && d.Action.Redirect.URL == "") {
			return fmt.Errorf("%w: directive %d redirects nowhere", ErrInvalidDirective, d.ID)
		}
	case models.ActionBlock, models.ActionAllow:
	default:
		return fmt.Errorf("%w: directive %d has unknown action %q", ErrInvalidDirective, d.ID, d.Action.Type)
	}
	hasFilter := d.Condition.URLFilter != ""
	hasDomains := len(d.Condition.RequestDomains) > 0
	if hasFilter == hasDomains {
		return fmt.Errorf("%w: directive %d needs exactly one of urlFilter and requestDomains", ErrInvalidDirective, d.ID)
	}
	return nil
}

func cloneDirectives(in []models.Directive) []models.Directive {
	out := make([]models.Directive, 0, len(in))
	for _, d := range in {
		c := d
		if d.Action.Redirect != nil {
			r := *d.Action.Redirect
			c.Action.Redirect = &r
		}
		c.Condition.RequestDomains = append([]string(nil), d.Condition.RequestDomains...)
		c.Condition.ResourceTypes = append([]models.ResourceType(nil), d.Condition.ResourceTypes...)
		out = append(out, c)
	}
	return out
}
