package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MahdiGraph/SiteSniper/internal/config"
	"github.com/MahdiGraph/SiteSniper/internal/database"
	"github.com/MahdiGraph/SiteSniper/internal/decision"
	"github.com/MahdiGraph/SiteSniper/internal/rules"
	"github.com/MahdiGraph/SiteSniper/internal/service"
	"github.com/MahdiGraph/SiteSniper/internal/sink"
	"github.com/MahdiGraph/SiteSniper/internal/system"
	"github.com/MahdiGraph/SiteSniper/internal/ui"
	"github.com/MahdiGraph/SiteSniper/internal/utils"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

// app holds what every subcommand needs, opened once before the command runs
type app struct {
	configPath string
	verbose    bool
	system     *system.SystemInitializer
	cfg        *config.Settings
	location   *time.Location
	log        *logger.Logger
	db         database.RuleStore
	sink       sink.Sink
	rules      *service.RuleService
}

func (a *app) open(cmd *cobra.Command, args []string) error {
	a.system = system.NewSystemInitializer(a.verbose, true)
	if err := a.system.Initialize(a.configPath); err != nil {
		return err
	}
	a.cfg = a.system.GetConfig()
	a.log = a.system.GetLogger()
	a.db = a.system.GetDatabase()
	a.sink = a.system.GetSink()

	var err error
	if a.location, err = a.cfg.Location(); err != nil {
		return err
	}

	a.rules = service.NewRuleService(a.db, a.log, a.notifyAgent)
	return nil
}

func (a *app) close(cmd *cobra.Command, args []string) error {
	if a.system != nil {
		return a.system.Close()
	}
	return nil
}

// notifyAgent tells a running agent that the rule list changed
func (a *app) notifyAgent() {
	err := utils.SignalAgent(a.cfg.LockPath, syscall.SIGHUP)
	switch {
	case err == nil:
		ui.Success("Agent notified.")
	case errors.Is(err, utils.ErrAgentNotRunning):
		ui.Warning("Agent is not running; changes apply when it starts.")
	default:
		ui.Warning("Could not notify agent: %v", err)
	}
}

// clock returns the time rules are evaluated at: now, or today at "HH:MM"
func (a *app) clock(at string) (time.Time, error) {
	now := time.Now().In(a.location)
	if at == "" {
		return now, nil
	}
	m, err := rules.ParseClock(at)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(now.Year(), now.Month(), now.Day(), m/60, m%60, 0, 0, a.location), nil
}

// snapshot loads the stored rules as the agent would
func (a *app) snapshot(ctx context.Context, now time.Time) (*rules.Snapshot, error) {
	list, err := a.rules.List(ctx)
	if err != nil {
		return nil, err
	}
	return rules.NewSnapshot(list, now), nil
}

func main() {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:                "sitesniper",
		Short:              "SiteSniper - Website and subpage blocker",
		Long:               `SiteSniper blocks websites, always or during time windows, optionally limited to or excluding parts of a site.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.open,
		PersistentPostRunE: a.close,
		RunE: func(cmd *cobra.Command, args []string) error {
			ui.NewMenu(a.rules, a.db, decision.New(a.log), a.cfg.LockPath, a.location).Run(cmd.Context())
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging to stdout and the log file")

	rootCmd.AddCommand(createRulesCommand(a))
	rootCmd.AddCommand(createCompileCommand(a))
	rootCmd.AddCommand(createCheckCommand(a))
	rootCmd.AddCommand(createSyncCommand(a))
	rootCmd.AddCommand(createStatusCommand(a))
	rootCmd.AddCommand(createNotifyCommand(a))
	rootCmd.AddCommand(createInitCommand(a))

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
