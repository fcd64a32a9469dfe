// Package logging configures the process-wide slog logger: human readable
// text on the console and JSON lines in daily rotating files.
package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/giygas/cnas-api/config"
)

type LoggingService struct {
	Logger   *slog.Logger
	rotating *RotatingLogger
}

var DefaultLoggingService *LoggingService

var (
	fallbackOnce   sync.Once
	fallbackLogger *slog.Logger
)

// Options configures InitLoggerWithOptions
type Options struct {
	Dir           string // empty means console only
	RetentionDays int
	MaxFileSize   int64
	Env           config.Environment
	Level         string
	Verbose       bool
}

// InitLogger initializes the global logger writing to logDir, or to the
// console only when logDir is empty
func InitLogger(logDir string) {
	InitLoggerWithOptions(Options{Dir: logDir, RetentionDays: 28, Level: "info", Verbose: true})
}

// InitLoggerWithOptions initializes the global logger and returns the
// service so the caller can Close it on shutdown
func InitLoggerWithOptions(opts Options) *LoggingService {
	if DefaultLoggingService != nil {
		_ = DefaultLoggingService.Close()
	}

	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: GetConsoleLogLevel(opts.Env, opts.Level, opts.Verbose),
	})

	service := &LoggingService{}
	if opts.Dir == "" {
		service.Logger = slog.New(consoleHandler)
	} else if rotating, err := newRotatingFile(opts); err != nil {
		service.Logger = slog.New(consoleHandler)
		service.Logger.Error("File logging disabled", "error", err)
	} else {
		fileHandler := slog.NewJSONHandler(rotating, &slog.HandlerOptions{Level: GetFileLogLevel()})
		service.rotating = rotating
		service.Logger = slog.New(&multiHandler{handlers: []slog.Handler{consoleHandler, fileHandler}})
	}

	DefaultLoggingService = service
	slog.SetDefault(service.Logger)
	return service
}

func newRotatingFile(opts Options) (*RotatingLogger, error) {
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	retention := opts.RetentionDays
	if retention <= 0 {
		retention = 28
	}
	rotating := NewRotatingLogger(opts.Dir, retention, opts.MaxFileSize)
	rotating.StartCleanup(24 * time.Hour)
	return rotating, nil
}

// Close releases the log file, if any
func (s *LoggingService) Close() error {
	if s == nil || s.rotating == nil {
		return nil
	}
	return s.rotating.Close()
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetConsoleLogLevel picks the console level. Tests stay quiet unless
// verbose, other environments honour an explicit LOG_LEVEL.
func GetConsoleLogLevel(env config.Environment, level string, verbose bool) slog.Level {
	if env == config.EnvTest {
		if verbose {
			return slog.LevelInfo
		}
		return slog.LevelError
	}

	if strings.TrimSpace(level) != "" {
		return parseLogLevel(level)
	}

	switch env {
	case config.EnvProduction, config.EnvStaging:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// GetFileLogLevel returns the level of the JSON file handler
func GetFileLogLevel() slog.Level {
	return slog.LevelDebug
}

// Logger returns the global logger, or a stderr fallback before InitLogger
func Logger() *slog.Logger {
	return logger()
}

func logger() *slog.Logger {
	if DefaultLoggingService != nil && DefaultLoggingService.Logger != nil {
		return DefaultLoggingService.Logger
	}
	fallbackOnce.Do(func() {
		fallbackLogger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	})
	return fallbackLogger
}

// Package-level functions for direct access

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}
