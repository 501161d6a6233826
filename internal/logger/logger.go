package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	// Debug level for detailed troubleshooting
	Debug LogLevel = iota
	// Info level for general operational entries
	Info
	// Warn level for non-critical issues
	Warn
	// Error level for errors that need attention
	Error
)

var levelNames = map[LogLevel]string{
	Debug: "DEBUG",
	Info:  "INFO",
	Warn:  "WARN",
	Error: "ERROR",
}

// String returns the upper-case name of the level
func (l LogLevel) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// DirMode is the permission used when creating the log directory
const DirMode os.FileMode = 0755

// Logger is a leveled printf-style logger writing to stdout and,
// optionally, a rotating log file
type Logger struct {
	debugLogger *log.Logger
	infoLogger  *log.Logger
	warnLogger  *log.Logger
	errorLogger *log.Logger
	level       LogLevel
	mu          sync.Mutex
	file        io.Closer // rotating file writer, nil for stdout only
}

var (
	defaultLogger *Logger
	defaultMu     sync.Mutex
)

// Config holds logger configuration
type Config struct {
	// LogLevel sets the minimum level to log
	LogLevel LogLevel
	// LogFile is the path to the log file. If empty, logs to stdout
	LogFile string
	// MaxSizeMB is the size in megabytes at which the file is rotated
	MaxSizeMB int
	// MaxAgeDays is how long rotated files are kept
	MaxAgeDays int
	// MaxBackups is the number of rotated files kept
	MaxBackups int
	// Output overrides stdout; used by tests
	Output io.Writer
}

// Initialize sets up the process-wide logger. Calling it again replaces
// the previous logger and closes its file.
func Initialize(config Config) error {
	l, err := NewLogger(config)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	prev := defaultLogger
	defaultLogger = l
	defaultMu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

// NewLogger creates a new logger instance
func NewLogger(config Config) (*Logger, error) {
	var writers []io.Writer
	if config.Output != nil {
		writers = append(writers, config.Output)
	} else {
		writers = append(writers, os.Stdout)
	}

	var rotator *lumberjack.Logger
	if config.LogFile != "" {
		config.LogFile = filepath.Clean(config.LogFile)

		logDir := filepath.Dir(config.LogFile)
		if err := os.MkdirAll(logDir, DirMode); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %v", err)
		}

		if config.MaxBackups == 0 {
			config.MaxBackups = 3
		}
		rotator = &lumberjack.Logger{
			Filename:   config.LogFile,
			MaxSize:    config.MaxSizeMB,
			MaxAge:     config.MaxAgeDays,
			MaxBackups: config.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, rotator)
	}

	multiWriter := io.MultiWriter(writers...)
	flags := log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile

	l := &Logger{
		debugLogger: log.New(multiWriter, "DEBUG: ", flags),
		infoLogger:  log.New(multiWriter, "INFO: ", flags),
		warnLogger:  log.New(multiWriter, "WARN: ", flags),
		errorLogger: log.New(multiWriter, "ERROR: ", flags),
		level:       config.LogLevel,
	}
	if rotator != nil {
		l.file = rotator
	}
	return l, nil
}

// Close properly closes the logger's file handle if one exists
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Level returns the minimum level this logger writes
func (l *Logger) Level() LogLevel {
	return l.level
}

// output skips Printf and the level method so Lshortfile reports the caller
const calldepth = 3

func (l *Logger) printf(min LogLevel, target *log.Logger, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.level <= min {
		target.Output(calldepth, fmt.Sprintf(format, v...))
	}
}

// Debug logs a debug message
func (l *Logger) Debug(format string, v ...interface{}) {
	l.printf(Debug, l.debugLogger, format, v...)
}

// Info logs an info message
func (l *Logger) Info(format string, v ...interface{}) {
	l.printf(Info, l.infoLogger, format, v...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, v ...interface{}) {
	l.printf(Warn, l.warnLogger, format, v...)
}

// Error logs an error message
func (l *Logger) Error(format string, v ...interface{}) {
	l.printf(Error, l.errorLogger, format, v...)
}

// GetLogger returns the process logger. Before Initialize is called it
// returns a stdout logger at info level.
func GetLogger() *Logger {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultLogger == nil {
		defaultLogger, _ = NewLogger(Config{LogLevel: Info})
	}
	return defaultLogger
}

// Discard returns a logger that drops everything; handy in tests
func Discard() *Logger {
	l, _ := NewLogger(Config{LogLevel: Error + 1, Output: io.Discard})
	return l
}

// ParseLogLevel converts a string level to LogLevel
func ParseLogLevel(level string) (LogLevel, error) {
	switch level {
	case "debug", "DEBUG":
		return Debug, nil
	case "info", "INFO":
		return Info, nil
	case "warn", "WARN", "warning", "WARNING":
		return Warn, nil
	case "error", "ERROR":
		return Error, nil
	default:
		return Info, fmt.Errorf("unknown log level: %s", level)
	}
}
