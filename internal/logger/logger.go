package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
)

// LogLevel is the severity of a record
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	}
	return fmt.Sprintf("LEVEL(%d)", int(l))
}

// ParseLevel converts a config string ("debug", "info", "warn", "error") to a LogLevel
func ParseLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG, nil
	case "", "info":
		return INFO, nil
	case "warn", "warning":
		return WARN, nil
	case "error":
		return ERROR, nil
	}
	return INFO, fmt.Errorf("unknown log level: %s", s)
}

const (
	fileTimeLayout   = "2006-01-02_15-04-05"
	recordTimeLayout = "2006-01-02 15:04:05"
	latestLink       = "latest.log"
)

// Logger writes every record at or above its level to a sink; WARN and
// ERROR also go to the console in color
type Logger struct {
	mu      sync.Mutex
	level   LogLevel
	sink    io.Writer
	console io.Writer
	file    *os.File
	logDir  string
}

var std atomic.Pointer[Logger]

// Init opens a log file in logDir and makes it the default logger
func Init(logDir string, level LogLevel) error {
	l, err := NewLogger(logDir, level)
	if err != nil {
		return err
	}
	SetDefault(l)
	return nil
}

// SetDefault replaces the logger behind the package-level functions; nil disables them
func SetDefault(l *Logger) {
	std.Store(l)
}

// NewLogger opens copilot_<timestamp>.log in logDir and points latest.log at it
func NewLogger(logDir string, level LogLevel) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	name := "copilot_" + time.Now().Format(fileTimeLayout) + ".log"
	file, err := os.OpenFile(filepath.Join(logDir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	link := filepath.Join(logDir, latestLink)
	_ = os.Remove(link)
	_ = os.Symlink(name, link)

	return &Logger{level: level, sink: file, console: os.Stderr, file: file, logDir: logDir}, nil
}

// NewWriterLogger sends every record to w and nothing to the console
func NewWriterLogger(w io.Writer, level LogLevel) *Logger {
	return &Logger{level: level, sink: w}
}

func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

func (l *Logger) write(level LogLevel, format string, args []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	record := fmt.Sprintf("[%s] %s: %s", time.Now().Format(recordTimeLayout), level, fmt.Sprintf(format, args...))
	if l.sink != nil {
		fmt.Fprintln(l.sink, record)
	}
	if l.console == nil {
		return
	}
	switch level {
	case WARN:
		color.New(color.FgYellow).Fprintln(l.console, record)
	case ERROR:
		color.New(color.FgRed, color.Bold).Fprintln(l.console, record)
	}
}

func (l *Logger) Debug(format string, args ...interface{}) { l.write(DEBUG, format, args) }
func (l *Logger) Info(format string, args ...interface{})  { l.write(INFO, format, args) }
func (l *Logger) Warn(format string, args ...interface{})  { l.write(WARN, format, args) }
func (l *Logger) Error(format string, args ...interface{}) { l.write(ERROR, format, args) }

// Close closes the log file. Later records are dropped.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file, l.sink = nil, nil
	return err
}

func (l *Logger) GetLogDir() string {
	return l.logDir
}

func emit(level LogLevel, format string, args []interface{}) {
	if l := std.Load(); l != nil {
		l.write(level, format, args)
	}
}

func Debug(format string, args ...interface{}) { emit(DEBUG, format, args) }
func Info(format string, args ...interface{})  { emit(INFO, format, args) }
func Warn(format string, args ...interface{})  { emit(WARN, format, args) }
func Error(format string, args ...interface{}) { emit(ERROR, format, args) }

// Close closes the default logger
func Close() error {
	if l := std.Load(); l != nil {
		return l.Close()
	}
	return nil
}
