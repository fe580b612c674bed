package config

import (
	"fmt"
	"net/url"
	"time"
)

// Settings represents the application configuration
type Settings struct {
	// Version
	Version string `yaml:"version"`

	// Storage
	DatabasePath   string `yaml:"database_path"`
	DatabaseDriver string `yaml:"database_driver"` // sql, gorm or auto

	// Logging
	LoggingEnabled bool   `yaml:"logging_enabled"` // Whether to write rotated log files
	LogLevel       string `yaml:"log_level"`       // debug, info, warn, error
	LogPath        string `yaml:"log_path"`

	// Agent
	LockPath     string        `yaml:"lock_path"`     // Absolute path of the single-instance lock
	TickInterval time.Duration `yaml:"tick_interval"` // How often time windows are re-evaluated
	Timezone     string        `yaml:"timezone"`      // Zone rule times are read in, "Local" by default
	Workers      int           `yaml:"workers"`       // Parallel URL checks for batch mode

	// Blocking
	BlockAction   string `yaml:"block_action"`    // redirect or block
	BlockPagePath string `yaml:"block_page_path"` // Extension path compiled redirects point at
	BlockPageURL  string `yaml:"block_page_url"`  // Absolute block page, used when block_page_path is empty and for live redirects

	Sink  SinkSettings   `yaml:"sink"`
	API   ServerSettings `yaml:"api"`
	Proxy ServerSettings `yaml:"proxy"`

	// Paths
	ConfigPath string `yaml:"-"` // Path to config file (not stored in config)
}

// SinkSettings selects where compiled directives are installed
type SinkSettings struct {
	Type string `yaml:"type"` // file or memory
	Path string `yaml:"path"` // Rules JSON written by the file sink
}

// ServerSettings configures a listener
type ServerSettings struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// DefaultSettings returns the default configuration
func DefaultSettings() *Settings {
	return &Settings{
		Version: "1.0",

		DatabasePath:   "/etc/sitesniper/sitesniper.db",
		DatabaseDriver: "auto",

		LoggingEnabled: false,
		LogLevel:       "info",
		LogPath:        "/var/log/sitesniper",

		LockPath:     "/var/run/sitesniper.lock",
		TickInterval: time.Minute,
		Timezone:     "Local",
		Workers:      4,

		BlockAction:   "redirect",
		BlockPagePath: "/html/blocked.html",
		BlockPageURL:  "http://127.0.0.1:8321/blocked",

		Sink: SinkSettings{
			Type: "file",
			Path: "/etc/sitesniper/rules.json",
		},
		API: ServerSettings{
			Enabled: true,
			Listen:  "127.0.0.1:8321",
		},
		Proxy: ServerSettings{
			Enabled: false,
			Listen:  "127.0.0.1:8322",
		},
	}
}

// Location resolves the configured timezone
func (s *Settings) Location() (*time.Location, error) {
	switch s.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(s.Timezone)
	}
}

// Validate checks values the loader cannot repair
func (s *Settings) Validate() error {
	switch s.BlockAction {
	case "redirect", "block":
	default:
		return fmt.Errorf("block_action must be redirect or block, got %q", s.BlockAction)
	}
	if s.BlockAction == "redirect" && s.BlockPagePath == "" && s.BlockPageURL == "" {
		return fmt.Errorf("block_action redirect needs block_page_path or block_page_url")
	}
	if s.API.Enabled || s.Proxy.Enabled {
		u, err := url.Parse(s.BlockPageURL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return fmt.Errorf("block_page_url must be an absolute URL when the api or proxy is enabled, got %q", s.BlockPageURL)
		}
	}
	switch s.Sink.Type {
	case "file":
		if s.Sink.Path == "" {
			return fmt.Errorf("sink.path is required for the file sink")
		}
	case "memory":
	default:
		return fmt.Errorf("sink.type must be file or memory, got %q", s.Sink.Type)
	}
	switch s.DatabaseDriver {
	case "sql", "gorm", "auto", "":
	default:
		return fmt.Errorf("database_driver must be sql, gorm or auto, got %q", s.DatabaseDriver)
	}
	if s.TickInterval < time.Second {
		return fmt.Errorf("tick_interval %s is too short", s.TickInterval)
	}
	if s.Workers < 1 {
		return fmt.Errorf("workers must be positive, got %d", s.Workers)
	}
	if _, err := s.Location(); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}
