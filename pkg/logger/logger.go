package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a structured logger with file rotation capabilities
type Logger struct {
	*logrus.Logger
	logFile    *lumberjack.Logger
	passLogDir string
	passLog    *os.File
	passHook   *passLogHook
	mu         sync.Mutex
}

// Config contains logger configuration
type Config struct {
	LogDir     string
	EnableFile bool
	Level      string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// New creates a new logger instance
func New(config Config) *Logger {
	logger := &Logger{
		Logger:     logrus.New(),
		passLogDir: filepath.Join(config.LogDir, "passes"),
	}

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
		DisableColors: false,
	})
	logger.SetLevel(parseLevel(config.Level))

	if config.EnableFile {
		if err := os.MkdirAll(config.LogDir, 0755); err != nil {
			logger.Errorf("Failed to create log directory: %v", err)
			return logger
		}

		logger.logFile = &lumberjack.Logger{
			Filename:   filepath.Join(config.LogDir, "sitesniper.log"),
			MaxSize:    config.MaxSize,
			MaxBackups: config.MaxBackups,
			MaxAge:     config.MaxAge,
			Compress:   config.Compress,
		}

		// Log to both file and stderr
		logger.SetOutput(io.MultiWriter(logger.logFile, os.Stderr))
	}

	return logger
}

// Discard returns a logger that drops everything, for tests and library callers
func Discard() *Logger {
	l := &Logger{Logger: logrus.New()}
	l.SetOutput(io.Discard)
	return l
}

func parseLevel(s string) logrus.Level {
	switch s {
	case "debug":
		return logrus.DebugLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// WithPass tags entries with the id of the reconciliation pass they belong to
func (l *Logger) WithPass(passID string) *logrus.Entry {
	return l.WithField("pass", passID)
}

// SetPassLog mirrors subsequent log lines into a per-pass file under
// <LogDir>/passes. An empty pass id stops mirroring.
func (l *Logger) SetPassLog(passID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.closePassLog()

	if passID == "" || l.passLogDir == "" {
		return nil
	}

	if err := os.MkdirAll(l.passLogDir, 0755); err != nil {
		return err
	}

	name := filepath.Join(l.passLogDir, filepath.Base(filepath.Clean("pass_"+passID+".log")))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	l.passLog = f
	l.passHook.setFile(f)
	return nil
}

func (l *Logger) closePassLog() {
	if l.passHook == nil {
		l.passHook = &passLogHook{}
		l.AddHook(l.passHook)
	}
	l.passHook.setFile(nil)
	if l.passLog != nil {
		l.passLog.Close()
		l.passLog = nil
	}
}

// Close cleanly closes the logger
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.passLog != nil {
		l.passHook.setFile(nil)
		l.passLog.Close()
		l.passLog = nil
	}
	if l.logFile != nil {
		l.logFile.Close()
	}
}

// passLogHook is a logrus hook that writes to the current pass log file.
// A single hook is installed once and retargeted, so hooks do not pile up.
type passLogHook struct {
	mu   sync.Mutex
	file *os.File
}

func (h *passLogHook) setFile(f *os.File) {
	h.mu.Lock()
	h.file = f
	h.mu.Unlock()
}

// Levels returns the log levels this hook should fire for
func (h *passLogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire is called when a log event occurs
func (h *passLogHook) Fire(entry *logrus.Entry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file == nil {
		return nil
	}

	line, err := entry.String()
	if err != nil {
		return err
	}
	_, err = h.file.WriteString(line)
	return err
}
