package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MahdiGraph/SiteSniper/internal/agent"
	"github.com/MahdiGraph/SiteSniper/internal/decision"
	"github.com/MahdiGraph/SiteSniper/internal/filtering"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
	"github.com/MahdiGraph/SiteSniper/internal/service"
	"github.com/MahdiGraph/SiteSniper/internal/sink"
	"github.com/MahdiGraph/SiteSniper/internal/ui"
	"github.com/MahdiGraph/SiteSniper/internal/utils"
)

func createCompileCommand(a *app) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Print the declarative directives the rules compile to",
		RunE: func(cmd *cobra.Command, args []string) error {
			now, err := a.clock(at)
			if err != nil {
				return err
			}
			snap, err := a.snapshot(cmd.Context(), now)
			if err != nil {
				return err
			}
			directives := filtering.NewCompiler(a.cfg, a.log).Compile(snap, rules.MinutesSinceMidnight(now))

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(directives)
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate time windows at HH:MM today instead of now")
	return cmd
}

func createCheckCommand(a *app) *cobra.Command {
	var at, file string
	cmd := &cobra.Command{
		Use:   "check [url...]",
		Short: "Check whether URLs would be blocked",
		Example: `  sitesniper check https://example.com/feed
  sitesniper check --file urls.txt --at 21:30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			urls := append([]string{}, args...)
			if file != "" {
				more, err := utils.LoadURLList(file)
				if err != nil {
					return err
				}
				urls = append(urls, more...)
			}
			if len(urls) == 0 {
				return errors.New("no urls given")
			}

			now, err := a.clock(at)
			if err != nil {
				return err
			}
			snap, err := a.snapshot(cmd.Context(), now)
			if err != nil {
				return err
			}

			results, checkErr := agent.CheckURLs(cmd.Context(), decision.New(a.log), snap,
				rules.MinutesSinceMidnight(now), urls, a.cfg.Workers)
			blocked := 0
			for i, d := range results {
				ui.PrintDecision(os.Stdout, urls[i], d)
				if d.Blocked {
					blocked++
				}
			}
			fmt.Printf("\n%d of %d blocked at %s\n", blocked, len(urls), now.Format("15:04"))
			return checkErr
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "evaluate time windows at HH:MM today instead of now")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read URLs from a file, an http(s) address or - for stdin")
	return cmd
}

func createSyncCommand(a *app) *cobra.Command {
	var check, local bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Bring the installed directives up to date with the rules",
		Long: `Without flags, sync asks a running agent to reload. With no agent
running, or with --local, it compiles and installs the directives itself.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			now, err := a.clock("")
			if err != nil {
				return err
			}

			if !check && !local {
				err := utils.SignalAgent(a.cfg.LockPath, syscall.SIGHUP)
				if err == nil {
					ui.Success("Agent notified.")
					return nil
				}
				if !errors.Is(err, utils.ErrAgentNotRunning) {
					return err
				}
				ui.Warning("Agent is not running, syncing locally.")
			}

			snap, err := a.snapshot(ctx, now)
			if err != nil {
				return err
			}
			manager := filtering.NewSyncManager(filtering.NewCompiler(a.cfg, a.log), a.sink, a.db, a.log)

			if check {
				ok, err := manager.ValidateSync(ctx, snap, now)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("installed directives are out of date")
				}
				ui.Success("Installed directives are up to date.")
				return nil
			}

			run, err := manager.Sync(ctx, snap, now, filtering.TriggerManual)
			if err != nil {
				return err
			}
			ui.Success("Sync %s: %d rules, %d directives (%s)", run.PassID, run.RulesLoaded, run.DirectivesCompiled, run.Status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "only report whether the installed directives are current")
	cmd.Flags().BoolVar(&local, "local", false, "sync in this process even if an agent is running")
	return cmd
}

func createStatusCommand(a *app) *cobra.Command {
	var history int
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show SiteSniper status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := service.GetAgentStatus(cmd.Context(), a.cfg.LockPath, a.db)
			if err != nil {
				return err
			}
			ui.PrintStatus(os.Stdout, status)

			if history <= 0 {
				return nil
			}
			runs, err := a.db.RecentSyncs(cmd.Context(), history)
			if err != nil {
				return err
			}
			fmt.Println("\nRecent passes:")
			for _, r := range runs {
				fmt.Printf("  %s  %-13s %-9s rules=%d directives=%d %s\n",
					r.CompletedAt.Format("2006-01-02 15:04:05"), r.Trigger, r.Status,
					r.RulesLoaded, r.DirectivesCompiled, r.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&history, "history", 0, "also list this many recent passes")
	return cmd
}

func createNotifyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "notify",
		Short: "Tell the running agent that rules changed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return utils.SignalAgent(a.cfg.LockPath, syscall.SIGHUP)
		},
	}
}

func createInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the configuration, database and rules file",
		RunE: func(cmd *cobra.Command, args []string) error {
			// everything is created while opening the app
			ui.Success("Configuration: %s", a.cfg.ConfigPath)
			ui.Success("Database:      %s (%s)", a.cfg.DatabasePath, a.cfg.DatabaseDriver)
			if fs, ok := a.sink.(*sink.FileSink); ok {
				ui.Success("Rules file:    %s", fs.Path())
			}
			return nil
		},
	}
}
