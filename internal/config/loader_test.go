package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "config.yaml")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ConfigPath != path || cfg.TickInterval != time.Minute || cfg.BlockAction != "redirect" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
}

func TestLoadConfigReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlText := strings.Join([]string{
		"database_path: /tmp/rules.db",
		"tick_interval: 30s",
		"block_action: block",
		"sink:",
		"  type: memory",
		"api:",
		"  enabled: false",
		"  listen: 127.0.0.1:9000",
	}, "\n")
	if err := os.WriteFile(path, []byte(yamlText), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DatabasePath != "/tmp/rules.db" || cfg.TickInterval != 30*time.Second || cfg.BlockAction != "block" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Sink.Type != "memory" || cfg.API.Enabled || cfg.API.Listen != "127.0.0.1:9000" {
		t.Fatalf("nested values not applied: %+v %+v", cfg.Sink, cfg.API)
	}
	// Keys absent from the file keep their defaults
	if cfg.LogLevel != "info" || cfg.Workers != 4 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("SITESNIPER_TICK_INTERVAL", "5s")
	t.Setenv("SITESNIPER_LOGGING_ENABLED", "yes")
	t.Setenv("SITESNIPER_SINK_PATH", "/tmp/out.json")
	t.Setenv("SITESNIPER_PROXY_ENABLED", "1")
	t.Setenv("SITESNIPER_WORKERS", "not-a-number")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TickInterval != 5*time.Second || !cfg.LoggingEnabled || cfg.Sink.Path != "/tmp/out.json" || !cfg.Proxy.Enabled {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if cfg.Workers != 4 {
		t.Fatalf("bad SITESNIPER_WORKERS should be ignored, got %d", cfg.Workers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"block action", func(s *Settings) { s.BlockAction = "explode" }},
		{"redirect target", func(s *Settings) { s.BlockPagePath, s.BlockPageURL = "", "" }},
		{"sink type", func(s *Settings) { s.Sink.Type = "chrome" }},
		{"sink path", func(s *Settings) { s.Sink.Path = "" }},
		{"driver", func(s *Settings) { s.DatabaseDriver = "mongo" }},
		{"tick", func(s *Settings) { s.TickInterval = time.Millisecond }},
		{"workers", func(s *Settings) { s.Workers = 0 }},
		{"timezone", func(s *Settings) { s.Timezone = "Mars/Olympus" }},
		{"live redirect target", func(s *Settings) { s.BlockPageURL = "" }},
		{"relative live redirect", func(s *Settings) { s.BlockPageURL = "/blocked" }},
		{"proxy redirect target", func(s *Settings) {
			s.API.Enabled, s.Proxy.Enabled = false, true
			s.BlockPageURL = "blocked.html"
		}},
	}
	if err := DefaultSettings().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	for _, tt := range tests {
		s := DefaultSettings()
		tt.mutate(s)
		if err := s.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tt.name)
		}
	}
}

func TestValidateBlockPagePathWithoutLiveRedirects(t *testing.T) {
	s := DefaultSettings()
	s.BlockPageURL = ""
	s.API.Enabled, s.Proxy.Enabled = false, false
	if err := s.Validate(); err != nil {
		t.Fatalf("block_page_path alone should do without api and proxy: %v", err)
	}
}

func TestLocation(t *testing.T) {
	s := DefaultSettings()
	if loc, err := s.Location(); err != nil || loc != time.Local {
		t.Fatalf("Local: %v %v", loc, err)
	}
	s.Timezone = "UTC"
	if loc, err := s.Location(); err != nil || loc.String() != "UTC" {
		t.Fatalf("UTC: %v %v", loc, err)
	}
}
