package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/MahdiGraph/SiteSniper/internal/agent"
	"github.com/MahdiGraph/SiteSniper/internal/api"
	"github.com/MahdiGraph/SiteSniper/internal/decision"
	"github.com/MahdiGraph/SiteSniper/internal/filtering"
	"github.com/MahdiGraph/SiteSniper/internal/proxy"
	"github.com/MahdiGraph/SiteSniper/internal/system"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	verbose := flag.Bool("verbose", false, "debug logging to stdout and the log file")
	flag.Parse()

	si := system.NewSystemInitializer(*verbose, false)
	if err := si.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer si.Close()

	cfg := si.GetConfig()
	log := si.GetLogger()
	db := si.GetDatabase()
	directiveSink := si.GetSink()

	location, err := cfg.Location()
	if err != nil {
		log.Errorf("Invalid timezone: %v", err)
		os.Exit(1)
	}

	syncManager := filtering.NewSyncManager(filtering.NewCompiler(cfg, log), directiveSink, db, log)
	if cfg.LoggingEnabled {
		syncManager.EnablePassLogs()
	}

	engine := decision.New(log)
	a := agent.NewAgent(agent.Options{
		LockPath:     cfg.LockPath,
		TickInterval: cfg.TickInterval,
		Location:     location,
		BlockPageURL: cfg.BlockPageURL,
	}, db, syncManager, engine, log)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if cfg.API.Enabled {
		api.NewServer(cfg.API.Listen, a, directiveSink, log).Start(ctx, &wg)
	}
	if cfg.Proxy.Enabled {
		proxy.New(cfg.Proxy.Listen, a, log).Start(ctx, &wg)
	}

	// SIGHUP means the rule list changed; SIGINT and SIGTERM stop the agent
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	go func() {
		for sig := range sigChan {
			if sig == syscall.SIGHUP {
				log.Info("Received SIGHUP, reloading rules...")
				a.NotifyRulesUpdated()
				continue
			}
			log.Info("Received shutdown signal, stopping agent...")
			cancel()
			return
		}
	}()

	log.Info("Starting SiteSniper agent...")
	if err := a.Run(ctx); err != nil {
		log.Errorf("Agent error: %v", err)
		cancel()
		wg.Wait()
		os.Exit(1)
	}

	cancel()
	wg.Wait()
	log.Info("SiteSniper agent stopped")
}
