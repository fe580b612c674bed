package ui

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/fatih/color"

	"github.com/MahdiGraph/SiteSniper/internal/decision"
	"github.com/MahdiGraph/SiteSniper/internal/models"
)

// Colors
var (
	menuColor     = color.New(color.FgHiWhite)
	successColor  = color.New(color.FgGreen)
	errorColor    = color.New(color.FgRed)
	warningColor  = color.New(color.FgYellow)
	infoColor     = color.New(color.FgBlue)
	promptColor   = color.New(color.FgHiGreen)
	titleColor    = color.New(color.FgHiCyan, color.Bold)
	subtitleColor = color.New(color.FgCyan)
	ruleColor     = color.New(color.FgHiCyan)
)

const separator = "================================================="

// PrintBanner prints the SiteSniper banner
func PrintBanner() {
	banner := `
  ____  _ _       ____        _
 / ___|(_) |_ ___/ ___| _ __ (_)_ __   ___ _ __
 \___ \| | __/ _ \___ \| '_ \| | '_ \ / _ \ '__|
  ___) | | ||  __/___) | | | | | |_) |  __/ |
 |____/|_|\__\___|____/|_| |_|_| .__/ \___|_|
                               |_|
`
	titleColor.Println(banner)
	titleColor.Println("SiteSniper v1.0")
	subtitleColor.Println("Block sites, or just the parts of them you lose time on")
	ruleColor.Println(separator)
}

// ClearScreen clears the terminal
func ClearScreen() {
	cmd := exec.Command("clear")
	cmd.Stdout = os.Stdout
	cmd.Run()
}

// PressEnterToContinue displays a prompt and waits for the user to press Enter
func PressEnterToContinue() {
	promptColor.Print("\nPress Enter to continue...")
	fmt.Scanln()
}

// Success prints a success line
func Success(format string, args ...interface{}) {
	successColor.Printf(format+"\n", args...)
}

// Warning prints a warning line
func Warning(format string, args ...interface{}) {
	warningColor.Printf(format+"\n", args...)
}

// Error prints an error line
func Error(format string, args ...interface{}) {
	errorColor.Printf(format+"\n", args...)
}

// DescribeRule renders a rule on one line, the way the rule list shows it
func DescribeRule(r models.Rule) string {
	var b strings.Builder
	b.WriteString(r.Site)
	if r.Kind == models.KindTimed {
		fmt.Fprintf(&b, " (%s-%s)", r.StartTime, r.EndTime)
	} else {
		b.WriteString(" (always)")
	}
	switch r.SubpageMode {
	case models.SubpageWhitelist:
		if len(r.SubpageWhitelist) == 0 {
			b.WriteString(" allow: nothing")
		} else {
			fmt.Fprintf(&b, " allow: %s", strings.Join(r.SubpageWhitelist, ", "))
		}
	case models.SubpageBlacklist:
		fmt.Fprintf(&b, " block: %s", strings.Join(r.SubpageBlacklist, ", "))
	}
	return b.String()
}

// PrintRules writes the numbered rule list to w. Numbers start at 1.
func PrintRules(w io.Writer, list []models.Rule) {
	if len(list) == 0 {
		warningColor.Fprintln(w, "No rules configured.")
		return
	}
	for i, r := range list {
		ruleColor.Fprintf(w, "%3d) ", i+1)
		fmt.Fprintln(w, DescribeRule(r))
	}
}

// PrintStatus writes agent status to w
func PrintStatus(w io.Writer, status models.AgentStatus) {
	titleColor.Fprintln(w, "SiteSniper Status:")
	ruleColor.Fprintln(w, separator)

	fmt.Fprint(w, "Agent: ")
	if status.Running {
		successColor.Fprintf(w, "running (pid %d)\n", status.PID)
	} else {
		warningColor.Fprintln(w, "not running")
	}

	fmt.Fprint(w, "Rules: ")
	infoColor.Fprintf(w, "%d\n", status.Rules)

	fmt.Fprint(w, "Last sync: ")
	if status.LastSync == nil {
		warningColor.Fprintln(w, "never")
		return
	}
	run := status.LastSync
	fmt.Fprintf(w, "%s (%s, %d directives) ", run.CompletedAt.Format("2006-01-02 15:04:05"), run.Trigger, run.DirectivesCompiled)
	switch run.Status {
	case models.SyncStatusFailed:
		errorColor.Fprintf(w, "%s: %s\n", run.Status, run.ErrorMessage)
	case models.SyncStatusApplied:
		successColor.Fprintln(w, run.Status)
	default:
		infoColor.Fprintln(w, run.Status)
	}
}

// PrintDecision writes one check result to w
func PrintDecision(w io.Writer, rawURL string, d decision.Decision) {
	if d.Blocked {
		errorColor.Fprint(w, "BLOCKED ")
		fmt.Fprintf(w, "%s  rule %d (%s): %s", rawURL, d.RuleIndex+1, d.Rule.Site, d.Reason)
		if d.Pattern != "" {
			fmt.Fprintf(w, " [%s]", d.Pattern)
		}
		fmt.Fprintln(w)
		return
	}
	successColor.Fprint(w, "allowed ")
	fmt.Fprintf(w, "%s  %s\n", rawURL, d.Reason)
}
