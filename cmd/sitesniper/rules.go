package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/MahdiGraph/SiteSniper/internal/models"
	"github.com/MahdiGraph/SiteSniper/internal/ui"
	"github.com/MahdiGraph/SiteSniper/internal/utils"
)

// ruleFlags are the non-interactive way to describe a rule
type ruleFlags struct {
	interactive bool
	kind        string
	start       string
	end         string
	mode        string
	paths       []string
}

func (f *ruleFlags) register(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&f.interactive, "interactive", "i", false, "prompt for every field")
	cmd.Flags().StringVar(&f.kind, "type", string(models.KindAlways), "always or timed")
	cmd.Flags().StringVar(&f.start, "start", "", "start time HH:MM (timed rules)")
	cmd.Flags().StringVar(&f.end, "end", "", "end time HH:MM (timed rules)")
	cmd.Flags().StringVar(&f.mode, "mode", string(models.SubpageNone), "none, whitelist or blacklist")
	cmd.Flags().StringArrayVar(&f.paths, "path", nil, "subpage path for the whitelist or blacklist (repeatable)")
}

// apply overlays the flags the user actually set onto base
func (f *ruleFlags) apply(cmd *cobra.Command, base models.Rule) models.Rule {
	r := base.Clone()
	changed := cmd.Flags().Changed
	if changed("type") || r.Kind == "" {
		r.Kind = models.RuleKind(f.kind)
	}
	if changed("start") {
		r.StartTime = f.start
	}
	if changed("end") {
		r.EndTime = f.end
	}
	if r.Kind == models.KindAlways {
		r.StartTime, r.EndTime = "", ""
	}
	if changed("mode") || r.SubpageMode == "" {
		r.SubpageMode = models.SubpageMode(f.mode)
	}
	if changed("path") {
		r.SubpageWhitelist, r.SubpageBlacklist = nil, nil
		switch r.SubpageMode {
		case models.SubpageWhitelist:
			r.SubpageWhitelist = append([]string{}, f.paths...)
		case models.SubpageBlacklist:
			r.SubpageBlacklist = append([]string{}, f.paths...)
		}
	}
	return r
}

// parseIndex turns a 1-based rule number into a list index
func parseIndex(arg string) (int, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid rule number %q", arg)
	}
	return n - 1, nil
}

func createRulesCommand(a *app) *cobra.Command {
	rulesCmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage blocking rules",
	}

	rulesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List rules in evaluation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.rules.List(cmd.Context())
			if err != nil {
				return err
			}
			ui.PrintRules(os.Stdout, list)
			return nil
		},
	})

	var addFlags ruleFlags
	addCmd := &cobra.Command{
		Use:   "add [site]",
		Short: "Add a rule",
		Example: `  sitesniper rules add example.com
  sitesniper rules add news.org --type timed --start 09:00 --end 17:00
  sitesniper rules add video.net --mode blacklist --path /shorts --path /feed*
  sitesniper rules add -i`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rule models.Rule
			if addFlags.interactive || len(args) == 0 {
				r, err := ui.PromptRule(nil)
				if err != nil {
					return err
				}
				rule = r
			} else {
				rule = addFlags.apply(cmd, models.Rule{Site: args[0]})
			}

			added, err := a.rules.Add(cmd.Context(), rule)
			if err != nil {
				return err
			}
			ui.Success("Added %s", ui.DescribeRule(added))
			return nil
		},
	}
	addFlags.register(addCmd)
	rulesCmd.AddCommand(addCmd)

	var editFlags ruleFlags
	var editSite string
	editCmd := &cobra.Command{
		Use:   "edit <number>",
		Short: "Change a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			list, err := a.rules.List(cmd.Context())
			if err != nil {
				return err
			}
			if index >= len(list) {
				return fmt.Errorf("rule %d does not exist (%d rules)", index+1, len(list))
			}

			current := list[index]
			var rule models.Rule
			if editFlags.interactive {
				if rule, err = ui.PromptRule(&current); err != nil {
					return err
				}
			} else {
				rule = editFlags.apply(cmd, current)
				if cmd.Flags().Changed("site") {
					rule.Site = editSite
				}
			}

			updated, err := a.rules.Update(cmd.Context(), index, rule)
			if err != nil {
				return err
			}
			ui.Success("Updated rule %d: %s", index+1, ui.DescribeRule(updated))
			return nil
		},
	}
	editFlags.register(editCmd)
	editCmd.Flags().StringVar(&editSite, "site", "", "new website")
	rulesCmd.AddCommand(editCmd)

	rulesCmd.AddCommand(&cobra.Command{
		Use:     "remove <number>",
		Aliases: []string{"rm"},
		Short:   "Remove a rule",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			removed, err := a.rules.Remove(cmd.Context(), index)
			if err != nil {
				return err
			}
			ui.Success("Removed %s", ui.DescribeRule(removed))
			return nil
		},
	})

	var replace bool
	importCmd := &cobra.Command{
		Use:   "import <file|url|->",
		Short: "Import rules exported from the browser extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := utils.ReadSource(args[0])
			if err != nil {
				return err
			}
			res, err := a.rules.Import(cmd.Context(), data, replace)
			if err != nil {
				return err
			}
			ui.Success("Imported %d rules", res.Added)
			for _, s := range res.Skipped {
				ui.Warning("skipped %s", s)
			}
			return nil
		},
	}
	importCmd.Flags().BoolVar(&replace, "replace", false, "discard the current rules first")
	rulesCmd.AddCommand(importCmd)

	rulesCmd.AddCommand(&cobra.Command{
		Use:   "export [file]",
		Short: "Export rules in the browser extension's storage format",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := a.rules.Export(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 1 && args[0] != "-" {
				return os.WriteFile(args[0], append(data, '\n'), 0644)
			}
			_, err = fmt.Fprintln(os.Stdout, string(data))
			return err
		},
	})

	return rulesCmd
}
