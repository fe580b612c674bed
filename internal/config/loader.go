package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "/etc/sitesniper/config.yaml"
)

// LoadConfig loads the configuration from file and environment variables.
// A missing file is created with the defaults.
func LoadConfig(configPath string) (*Settings, error) {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	config := DefaultSettings()
	config.ConfigPath = configPath

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := SaveConfig(config, configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvironmentOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// SaveConfig saves the configuration to file
func SaveConfig(config *Settings, configPath string) error {
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func envBool(v string) bool {
	return v == "true" || v == "1" || v == "yes"
}

// applyEnvironmentOverrides applies environment variable overrides to the config
func applyEnvironmentOverrides(config *Settings) {
	// Paths
	if dbPath := os.Getenv("SITESNIPER_DATABASE_PATH"); dbPath != "" {
		config.DatabasePath = dbPath
	}
	if driver := os.Getenv("SITESNIPER_DATABASE_DRIVER"); driver != "" {
		config.DatabaseDriver = driver
	}
	if logPath := os.Getenv("SITESNIPER_LOG_PATH"); logPath != "" {
		config.LogPath = logPath
	}
	if lockPath := os.Getenv("SITESNIPER_LOCK_PATH"); lockPath != "" {
		config.LockPath = lockPath
	}

	// Logging
	if loggingEnabled := os.Getenv("SITESNIPER_LOGGING_ENABLED"); loggingEnabled != "" {
		config.LoggingEnabled = envBool(loggingEnabled)
	}
	if logLevel := os.Getenv("SITESNIPER_LOG_LEVEL"); logLevel != "" {
		config.LogLevel = logLevel
	}

	// Agent
	if interval := os.Getenv("SITESNIPER_TICK_INTERVAL"); interval != "" {
		if duration, err := time.ParseDuration(interval); err == nil {
			config.TickInterval = duration
		}
	}
	if tz := os.Getenv("SITESNIPER_TIMEZONE"); tz != "" {
		config.Timezone = tz
	}
	if workers := os.Getenv("SITESNIPER_WORKERS"); workers != "" {
		if val, err := strconv.Atoi(workers); err == nil && val > 0 {
			config.Workers = val
		}
	}

	// Blocking
	if action := os.Getenv("SITESNIPER_BLOCK_ACTION"); action != "" {
		config.BlockAction = strings.ToLower(action)
	}
	if pageURL := os.Getenv("SITESNIPER_BLOCK_PAGE_URL"); pageURL != "" {
		config.BlockPageURL = pageURL
	}

	// Sink
	if sinkType := os.Getenv("SITESNIPER_SINK_TYPE"); sinkType != "" {
		config.Sink.Type = sinkType
	}
	if sinkPath := os.Getenv("SITESNIPER_SINK_PATH"); sinkPath != "" {
		config.Sink.Path = sinkPath
	}

	// Listeners
	if apiListen := os.Getenv("SITESNIPER_API_LISTEN"); apiListen != "" {
		config.API.Listen = apiListen
	}
	if proxyEnabled := os.Getenv("SITESNIPER_PROXY_ENABLED"); proxyEnabled != "" {
		config.Proxy.Enabled = envBool(proxyEnabled)
	}
	if proxyListen := os.Getenv("SITESNIPER_PROXY_LISTEN"); proxyListen != "" {
		config.Proxy.Listen = proxyListen
	}
}
