package system

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MahdiGraph/SiteSniper/internal/config"
	"github.com/MahdiGraph/SiteSniper/internal/database"
	"github.com/MahdiGraph/SiteSniper/internal/filtering"
	"github.com/MahdiGraph/SiteSniper/internal/sink"
	"github.com/MahdiGraph/SiteSniper/pkg/logger"
)

// SystemInitializer handles complete system initialization
type SystemInitializer struct {
	config         *config.Settings
	logger         *logger.Logger
	db             database.RuleStore
	sink           sink.Sink
	verboseLogging bool
	quiet          bool
}

// NewSystemInitializer creates a new system initializer. Verbose forces debug
// logging to file and stdout; quiet raises the default info level to warn for
// interactive commands.
func NewSystemInitializer(verboseLogging, quiet bool) *SystemInitializer {
	return &SystemInitializer{
		verboseLogging: verboseLogging,
		quiet:          quiet,
	}
}

// Initialize performs complete system initialization
func (s *SystemInitializer) Initialize(configPath string) error {
	// Step 1: Load or create configuration
	if err := s.initializeConfiguration(configPath); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	// Step 2: Initialize logger
	s.initializeLogger()

	// Step 3: Open the rule store, migrating it if needed
	if err := s.initializeDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// Step 4: Make sure the directive sink is usable
	if err := s.initializeSink(); err != nil {
		return fmt.Errorf("failed to initialize directive sink: %w", err)
	}

	s.logInfo("System initialization completed successfully")
	return nil
}

// initializeConfiguration loads or creates configuration
func (s *SystemInitializer) initializeConfiguration(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	s.config = cfg

	// Create necessary directories
	dirs := []string{filepath.Dir(s.config.DatabasePath)}
	if s.config.LoggingEnabled || s.verboseLogging {
		dirs = append(dirs, s.config.LogPath)
	}
	if s.config.Sink.Type == "" || s.config.Sink.Type == "file" {
		dirs = append(dirs, filepath.Dir(s.config.Sink.Path))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// initializeLogger sets up logging
func (s *SystemInitializer) initializeLogger() {
	logConfig := logger.Config{
		LogDir:     s.config.LogPath,
		EnableFile: s.config.LoggingEnabled,
		Level:      s.config.LogLevel,
		MaxSize:    10,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	}

	if s.quiet && logConfig.Level == "info" {
		logConfig.Level = "warn"
	}

	// Force debug level if verbose logging is enabled
	if s.verboseLogging {
		logConfig.Level = "debug"
		logConfig.EnableFile = true
	}

	s.logger = logger.New(logConfig)
	s.logInfo("Logger initialized successfully")
}

// initializeDatabase sets up database
func (s *SystemInitializer) initializeDatabase() error {
	s.logInfo("Initializing database...")

	db, err := database.Open(s.config.DatabasePath, s.config.DatabaseDriver)
	if err != nil {
		return err
	}

	s.db = db
	s.logInfo("Database initialized successfully")
	return nil
}

// initializeSink opens the configured sink and creates an empty rules file
// for the file sink
func (s *SystemInitializer) initializeSink() error {
	ds, err := filtering.NewSink(s.config)
	if err != nil {
		return err
	}
	if fs, ok := ds.(*sink.FileSink); ok {
		if err := fs.Ensure(); err != nil {
			return err
		}
		s.logInfo(fmt.Sprintf("Directives are written to %s", fs.Path()))
	}
	s.sink = ds
	return nil
}

// logInfo logs info message with proper handling for verbose mode
func (s *SystemInitializer) logInfo(message string) {
	if s.logger != nil {
		s.logger.Info(message)
	}

	// Always print to stdout if verbose logging is enabled
	if s.verboseLogging {
		fmt.Printf("[INFO] %s\n", message)
	}
}

// GetConfig returns the loaded configuration
func (s *SystemInitializer) GetConfig() *config.Settings {
	return s.config
}

// GetLogger returns the logger
func (s *SystemInitializer) GetLogger() *logger.Logger {
	return s.logger
}

// GetDatabase returns the rule store
func (s *SystemInitializer) GetDatabase() database.RuleStore {
	return s.db
}

// GetSink returns the directive sink
func (s *SystemInitializer) GetSink() sink.Sink {
	return s.sink
}

// Close cleans up resources
func (s *SystemInitializer) Close() error {
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			return err
		}
	}

	if s.logger != nil {
		s.logger.Close()
	}

	return nil
}
