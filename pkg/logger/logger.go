package logger

import (
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level represents the severity level of a log message.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	NoticeLevel
	WarnLevel
	ErrorLevel
)

var levelNames = map[Level]string{
	DebugLevel:  "debug",
	InfoLevel:   "info",
	NoticeLevel: "notice",
	WarnLevel:   "warn",
	ErrorLevel:  "error",
}

var levelPrefixes = map[Level]string{
	DebugLevel:  "[DEBUG]  ",
	InfoLevel:   "[INFO]   ",
	NoticeLevel: "[NOTICE] ",
	WarnLevel:   "[WARN]   ",
	ErrorLevel:  "[ERROR]  ",
}

// String returns the lowercase name of the level
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// ParseLevel converts a level name such as "info" into a Level
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for level, name := range levelNames {
		if name == s {
			return level, nil
		}
	}
	if s == "warning" {
		return WarnLevel, nil
	}
	return InfoLevel, fmt.Errorf("unknown log level: %q", s)
}

type Chain int

const (
	None Chain = iota
	Eth
	Base
	Arb
	Pol
	Op
	Sepolia
	BaseSepolia
)

var chainIDMap = map[int]Chain{
	1:        Eth,
	8453:     Base,
	42161:    Arb,
	137:      Pol,
	10:       Op,
	11155111: Sepolia,
	84532:    BaseSepolia,
}

var chainPrefixes = map[Chain]string{
	None:        "",
	Eth:         "[ETH]   ",
	Base:        "[BASE]  ",
	Arb:         "[ARB]   ",
	Pol:         "[POL]   ",
	Op:          "[OP]    ",
	Sepolia:     "[SEP]   ",
	BaseSepolia: "[BSEP]  ",
}

var colors = map[Chain]color.Attribute{
	None:        color.FgWhite,
	Eth:         color.FgHiGreen,
	Base:        color.FgBlue,
	Arb:         color.FgHiBlue,
	Pol:         color.FgMagenta,
	Op:          color.FgRed,
	Sepolia:     color.FgGreen,
	BaseSepolia: color.FgCyan,
}

// Logger is a simple interface for logging messages.
type Logger interface {
	// Info logs an informational message.
	Info(format string, args ...interface{})
	InfoWithChain(chainID int, format string, args ...interface{})

	// Error logs an error message.
	Error(format string, args ...interface{})
	ErrorWithChain(chainID int, format string, args ...interface{})

	// Debug logs a debug message.
	Debug(format string, args ...interface{})
	DebugWithChain(chainID int, format string, args ...interface{})

	// Notice logs a notice message.
	Notice(format string, args ...interface{})
	NoticeWithChain(chainID int, format string, args ...interface{})

	// Warn logs a message about a degraded but non-fatal condition.
	Warn(format string, args ...interface{})
	WarnWithChain(chainID int, format string, args ...interface{})
}

// EmptyLogger is a simple implementation of the Logger interface that does nothing.
type EmptyLogger struct{}

var _ Logger = (*EmptyLogger)(nil)

func (l *EmptyLogger) Info(_ string, _ ...interface{})                   {}
func (l *EmptyLogger) InfoWithChain(_ int, _ string, _ ...interface{})   {}
func (l *EmptyLogger) Error(_ string, _ ...interface{})                  {}
func (l *EmptyLogger) ErrorWithChain(_ int, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Debug(_ string, _ ...interface{})                  {}
func (l *EmptyLogger) DebugWithChain(_ int, _ string, _ ...interface{})  {}
func (l *EmptyLogger) Notice(_ string, _ ...interface{})                 {}
func (l *EmptyLogger) NoticeWithChain(_ int, _ string, _ ...interface{}) {}
func (l *EmptyLogger) Warn(_ string, _ ...interface{})                   {}
func (l *EmptyLogger) WarnWithChain(_ int, _ string, _ ...interface{})   {}

// StdLogger is a standard implementation of the Logger interface that logs messages to the console.
type StdLogger struct {
	enableColoring bool
	level          Level
	out            *log.Logger
	mu             sync.Mutex
}

var _ Logger = (*StdLogger)(nil)

func NewStdLogger(enableColoring bool, level Level) *StdLogger {
	return &StdLogger{
		enableColoring: enableColoring,
		level:          level,
		out:            log.Default(),
	}
}

// WithOutput redirects the logger to the given standard logger
func (l *StdLogger) WithOutput(out *log.Logger) *StdLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
	return l
}

// formatMessage formats the log message with the appropriate log level, chain prefix, and coloring if enabled.
func (l *StdLogger) formatMessage(level Level, chain Chain, format string) string {
	chainPrefix := chainPrefixes[chain]
	if l.enableColoring && chainPrefix != "" {
		chainPrefix = color.New(colors[chain]).Sprint(chainPrefix)
	}

	levelStr := levelPrefixes[level]
	if l.enableColoring && level >= WarnLevel {
		attr := color.FgYellow
		if level == ErrorLevel {
			attr = color.FgRed
		}
		levelStr = color.New(attr).Sprint(levelStr)
	}

	return levelStr + chainPrefix + format
}

func (l *StdLogger) logf(level Level, chainID int, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.level > level {
		return
	}
	l.out.Printf(l.formatMessage(level, chainIDMap[chainID], format), args...)
}

func (l *StdLogger) Info(format string, args ...interface{}) {
	l.logf(InfoLevel, 0, format, args...)
}

func (l *StdLogger) InfoWithChain(chainID int, format string, args ...interface{}) {
	l.logf(InfoLevel, chainID, format, args...)
}

func (l *StdLogger) Error(format string, args ...interface{}) {
	l.logf(ErrorLevel, 0, format, args...)
}

func (l *StdLogger) ErrorWithChain(chainID int, format string, args ...interface{}) {
	l.logf(ErrorLevel, chainID, format, args...)
}

func (l *StdLogger) Debug(format string, args ...interface{}) {
	l.logf(DebugLevel, 0, format, args...)
}

func (l *StdLogger) DebugWithChain(chainID int, format string, args ...interface{}) {
	l.logf(DebugLevel, chainID, format, args...)
}

func (l *StdLogger) Notice(format string, args ...interface{}) {
	l.logf(NoticeLevel, 0, format, args...)
}

func (l *StdLogger) NoticeWithChain(chainID int, format string, args ...interface{}) {
	l.logf(NoticeLevel, chainID, format, args...)
}

func (l *StdLogger) Warn(format string, args ...interface{}) {
	l.logf(WarnLevel, 0, format, args...)
}

func (l *StdLogger) WarnWithChain(chainID int, format string, args ...interface{}) {
	l.logf(WarnLevel, chainID, format, args...)
}
