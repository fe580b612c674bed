package ui

import (
	"bufio"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"

	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
)

// ErrAborted is returned when the user interrupts a prompt
var ErrAborted = errors.New("aborted")

// Reader is a helper for reading user input
type Reader struct {
	scanner *bufio.Scanner
}

// NewReader creates a new input reader
func NewReader() *Reader {
	return &Reader{
		scanner: bufio.NewScanner(os.Stdin),
	}
}

// ReadLine reads a line of input
func (r *Reader) ReadLine() string {
	r.scanner.Scan()
	return strings.TrimSpace(r.scanner.Text())
}

// ReadString reads a string with a prompt
func (r *Reader) ReadString(prompt string) string {
	promptColor.Print(prompt)
	return r.ReadLine()
}

// ReadInt reads an integer with a prompt
func (r *Reader) ReadInt(prompt string, min, max, defaultVal int) int {
	for {
		promptColor.Printf("%s [%d-%d, default=%d]: ", prompt, min, max, defaultVal)
		input := r.ReadLine()

		if input == "" {
			return defaultVal
		}

		val, err := strconv.Atoi(input)
		if err != nil || val < min || val > max {
			errorColor.Printf("Please enter a number between %d and %d\n", min, max)
			continue
		}

		return val
	}
}

// ReadBool reads a boolean with a prompt
func (r *Reader) ReadBool(prompt string, defaultVal bool) bool {
	defaultStr := "y/N"
	if defaultVal {
		defaultStr = "Y/n"
	}

	promptColor.Printf("%s [%s]: ", prompt, defaultStr)
	input := strings.ToLower(r.ReadLine())

	if input == "" {
		return defaultVal
	}

	return input == "y" || input == "yes"
}

// SplitPatterns turns comma or newline separated subpage entries into a list
func SplitPatterns(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == '\n' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// BuildRule assembles a rule from prompt answers
func BuildRule(site string, kind models.RuleKind, start, end string, mode models.SubpageMode, patterns string) models.Rule {
	r := models.Rule{
		Site:        strings.TrimSpace(site),
		Kind:        kind,
		SubpageMode: mode,
	}
	if kind == models.KindTimed {
		r.StartTime = strings.TrimSpace(start)
		r.EndTime = strings.TrimSpace(end)
	}
	switch mode {
	case models.SubpageWhitelist:
		r.SubpageWhitelist = SplitPatterns(patterns)
	case models.SubpageBlacklist:
		r.SubpageBlacklist = SplitPatterns(patterns)
	}
	return r
}

func validateClock(s string) error {
	_, err := rules.ParseClock(strings.TrimSpace(s))
	return err
}

func validatePatterns(s string) error {
	for _, p := range SplitPatterns(s) {
		if !strings.HasPrefix(p, "/") {
			return errors.New("each path must start with a '/'")
		}
	}
	return nil
}

func runPrompt(p promptui.Prompt) (string, error) {
	v, err := p.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return "", ErrAborted
	}
	return v, err
}

func runSelect(label string, items []string, cursor int) (int, error) {
	s := promptui.Select{Label: label, Items: items, CursorPos: cursor}
	i, _, err := s.Run()
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
		return 0, ErrAborted
	}
	return i, err
}

// PromptRule interactively builds a rule. When current is non-nil its values
// are offered as defaults, as when editing.
func PromptRule(current *models.Rule) (models.Rule, error) {
	var def models.Rule
	if current != nil {
		def = current.Clone()
	}

	site, err := runPrompt(promptui.Prompt{
		Label:    "Website (e.g. example.com)",
		Default:  def.Site,
		Validate: rules.ValidateSite,
	})
	if err != nil {
		return models.Rule{}, err
	}

	kinds := []models.RuleKind{models.KindAlways, models.KindTimed}
	cursor := 0
	if def.Kind == models.KindTimed {
		cursor = 1
	}
	k, err := runSelect("Block", []string{"Always", "During a time window"}, cursor)
	if err != nil {
		return models.Rule{}, err
	}
	kind := kinds[k]

	var start, end string
	if kind == models.KindTimed {
		if start, err = runPrompt(promptui.Prompt{Label: "Start time (HH:MM)", Default: def.StartTime, Validate: validateClock}); err != nil {
			return models.Rule{}, err
		}
		if end, err = runPrompt(promptui.Prompt{Label: "End time (HH:MM)", Default: def.EndTime, Validate: validateClock}); err != nil {
			return models.Rule{}, err
		}
	}

	modes := []models.SubpageMode{models.SubpageNone, models.SubpageWhitelist, models.SubpageBlacklist}
	cursor = 0
	for i, m := range modes {
		if m == def.SubpageMode {
			cursor = i
		}
	}
	m, err := runSelect("Subpages", []string{"Block the whole site", "Block everything except some paths", "Block only some paths"}, cursor)
	if err != nil {
		return models.Rule{}, err
	}
	mode := modes[m]

	var patterns string
	switch mode {
	case models.SubpageWhitelist:
		patterns, err = runPrompt(promptui.Prompt{
			Label:    "Allowed paths, comma separated (e.g. /docs/, /search*)",
			Default:  strings.Join(def.SubpageWhitelist, ", "),
			Validate: validatePatterns,
		})
	case models.SubpageBlacklist:
		patterns, err = runPrompt(promptui.Prompt{
			Label:    "Blocked paths, comma separated (e.g. /shorts, /feed*)",
			Default:  strings.Join(def.SubpageBlacklist, ", "),
			Validate: validatePatterns,
		})
	}
	if err != nil {
		return models.Rule{}, err
	}

	return BuildRule(site, kind, start, end, mode, patterns), nil
}

// Confirm asks a yes/no question
func Confirm(label string) bool {
	p := promptui.Prompt{Label: label, IsConfirm: true}
	_, err := p.Run()
	return err == nil
}
