package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MahdiGraph/SiteSniper/internal/database"
	"github.com/MahdiGraph/SiteSniper/internal/decision"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
	"github.com/MahdiGraph/SiteSniper/internal/service"
)

// Menu represents the main UI menu
type Menu struct {
	rules    *service.RuleService
	store    database.RuleStore
	engine   *decision.Engine
	lockPath string
	location *time.Location
	reader   *Reader
}

// NewMenu creates a new menu instance
func NewMenu(svc *service.RuleService, store database.RuleStore, engine *decision.Engine, lockPath string, location *time.Location) *Menu {
	if location == nil {
		location = time.Local
	}
	return &Menu{
		rules:    svc,
		store:    store,
		engine:   engine,
		lockPath: lockPath,
		location: location,
		reader:   NewReader(),
	}
}

// Run starts the main menu loop
func (m *Menu) Run(ctx context.Context) {
	ClearScreen()
	PrintBanner()

	for {
		option := m.printMenu()
		if !m.dispatch(ctx, option) {
			break
		}
	}
}

func (m *Menu) printMenu() string {
	fmt.Println()
	menuColor.Println("1) Show rules")
	menuColor.Println("2) Add rule")
	menuColor.Println("3) Edit rule")
	menuColor.Println("4) Remove rule")
	menuColor.Println("5) Check a URL")
	menuColor.Println("6) Show status")
	menuColor.Println("0) Exit")

	return strings.ToLower(m.reader.ReadString("\nSelect an option: "))
}

func (m *Menu) dispatch(ctx context.Context, option string) bool {
	switch option {
	case "1":
		m.showRules(ctx)
	case "2":
		m.addRule(ctx)
	case "3":
		m.editRule(ctx)
	case "4":
		m.removeRule(ctx)
	case "5":
		m.checkURL(ctx)
	case "6":
		m.showStatus(ctx)
	case "0", "q":
		successColor.Println("Exiting SiteSniper. Goodbye!")
		return false
	default:
		errorColor.Println("Invalid option. Please try again.")
	}
	PressEnterToContinue()
	return true
}

func (m *Menu) showRules(ctx context.Context) {
	list, err := m.rules.List(ctx)
	if err != nil {
		Error("Failed to load rules: %v", err)
		return
	}
	fmt.Println()
	PrintRules(os.Stdout, list)
}

func (m *Menu) addRule(ctx context.Context) {
	rule, err := PromptRule(nil)
	if err != nil {
		if !errors.Is(err, ErrAborted) {
			Error("%v", err)
		}
		return
	}
	added, err := m.rules.Add(ctx, rule)
	m.report(err, "Added %s", DescribeRule(added))
}

// pickRule asks for a rule number and returns its zero-based index
func (m *Menu) pickRule(ctx context.Context) (int, bool) {
	list, err := m.rules.List(ctx)
	if err != nil {
		Error("Failed to load rules: %v", err)
		return 0, false
	}
	if len(list) == 0 {
		Warning("No rules configured.")
		return 0, false
	}
	PrintRules(os.Stdout, list)
	return m.reader.ReadInt("Rule number", 1, len(list), 1) - 1, true
}

func (m *Menu) editRule(ctx context.Context) {
	index, ok := m.pickRule(ctx)
	if !ok {
		return
	}
	list, err := m.rules.List(ctx)
	if err != nil {
		Error("Failed to load rules: %v", err)
		return
	}
	current := list[index]

	rule, err := PromptRule(&current)
	if err != nil {
		if !errors.Is(err, ErrAborted) {
			Error("%v", err)
		}
		return
	}
	updated, err := m.rules.Update(ctx, index, rule)
	m.report(err, "Updated rule %d: %s", index+1, DescribeRule(updated))
}

func (m *Menu) removeRule(ctx context.Context) {
	index, ok := m.pickRule(ctx)
	if !ok {
		return
	}
	if !m.reader.ReadBool(fmt.Sprintf("Remove rule %d?", index+1), false) {
		return
	}
	removed, err := m.rules.Remove(ctx, index)
	m.report(err, "Removed %s", DescribeRule(removed))
}

// report prints the outcome of a change. Saved changes reach the agent
// through the rule service's change hook.
func (m *Menu) report(err error, format string, args ...interface{}) {
	var saveErr *service.SaveError
	switch {
	case errors.As(err, &saveErr):
		Error("Rule changed but could not be saved: %v", saveErr.Err)
	case err != nil:
		Error("%v", err)
	default:
		Success(format, args...)
	}
}

func (m *Menu) checkURL(ctx context.Context) {
	rawURL := m.reader.ReadString("URL to check: ")
	if rawURL == "" {
		return
	}
	list, err := m.rules.List(ctx)
	if err != nil {
		Error("Failed to load rules: %v", err)
		return
	}
	now := time.Now().In(m.location)
	d := m.engine.Evaluate(rawURL, rules.NewSnapshot(list, now), rules.MinutesSinceMidnight(now))
	PrintDecision(os.Stdout, rawURL, d)
}

func (m *Menu) showStatus(ctx context.Context) {
	status, err := service.GetAgentStatus(ctx, m.lockPath, m.store)
	if err != nil {
		Error("Failed to get status: %v", err)
		return
	}
	fmt.Println()
	PrintStatus(os.Stdout, status)
}
