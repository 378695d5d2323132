// Package logging provides categorized structured logging for reasongate.
// Everything is written to stderr: stdout carries JSON-RPC protocol traffic
// and must never receive diagnostic output. When debug mode is enabled,
// per-category files are additionally written under <dir>/logs/.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and configuration
	CategoryRPC        Category = "rpc"        // JSON-RPC request boundary
	CategorySession    Category = "session"    // Session lifecycle and locking
	CategoryDialogue   Category = "dialogue"   // Conversational adapter
	CategoryGemini     Category = "gemini"     // Remote service calls
	CategoryTournament Category = "tournament" // Hypothesis tournament rounds
	CategorySecureFS   Category = "securefs"   // File reads and cache
	CategorySanitize   Category = "sanitize"   // Injection quarantine events
	CategoryAnalyzer   Category = "analyzer"   // Heuristic analyzers
)

var (
	mu          sync.RWMutex
	root        *zap.Logger
	sugared     map[Category]*zap.SugaredLogger
	debugMode   bool
	initialized bool
)

// Initialize sets up the zap backbone. dir is where per-category debug log
// files go when debug is true; it may be empty to disable file sinks.
// Safe to call more than once; later calls reconfigure.
func Initialize(dir string, debug bool) error {
	mu.Lock()
	defer mu.Unlock()

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(os.Stderr),
			level,
		),
	}

	if debug && dir != "" {
		logsDir := filepath.Join(dir, "logs")
		if err := os.MkdirAll(logsDir, 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(filepath.Join(logsDir, "reasongate.log"),
			os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		jsonCfg := zap.NewProductionEncoderConfig()
		jsonCfg.EncodeTime = zapcore.EpochMillisTimeEncoder
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(jsonCfg),
			zapcore.Lock(f),
			zapcore.DebugLevel,
		))
	}

	root = zap.New(zapcore.NewTee(cores...))
	sugared = make(map[Category]*zap.SugaredLogger)
	debugMode = debug
	initialized = true
	return nil
}

// L returns the sugared logger for a category, creating it on first use.
// Falls back to a stderr-only logger if Initialize was never called.
func L(cat Category) *zap.SugaredLogger {
	mu.RLock()
	if initialized {
		if s, ok := sugared[cat]; ok {
			mu.RUnlock()
			return s
		}
	}
	mu.RUnlock()

	mu.Lock()
	defer mu.Unlock()
	if !initialized {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		root = l
		sugared = make(map[Category]*zap.SugaredLogger)
		initialized = true
	}
	if s, ok := sugared[cat]; ok {
		return s
	}
	s := root.Sugar().With("cat", string(cat))
	sugared[cat] = s
	return s
}

// DebugEnabled reports whether debug mode is active.
func DebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return debugMode
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	if root != nil {
		_ = root.Sync()
	}
}

// Printf-style helpers, one per category. These mirror the call sites the
// rest of the codebase uses: logging.Session("acquired lock for %s", id).

func Boot(format string, args ...interface{})       { L(CategoryBoot).Infof(format, args...) }
func RPC(format string, args ...interface{})        { L(CategoryRPC).Infof(format, args...) }
func Session(format string, args ...interface{})    { L(CategorySession).Infof(format, args...) }
func Dialogue(format string, args ...interface{})   { L(CategoryDialogue).Infof(format, args...) }
func Gemini(format string, args ...interface{})     { L(CategoryGemini).Infof(format, args...) }
func Tournament(format string, args ...interface{}) { L(CategoryTournament).Infof(format, args...) }
func SecureFS(format string, args ...interface{})   { L(CategorySecureFS).Debugf(format, args...) }
func Sanitize(format string, args ...interface{})   { L(CategorySanitize).Warnf(format, args...) }
func Analyzer(format string, args ...interface{})   { L(CategoryAnalyzer).Debugf(format, args...) }

// Error logs an error with its category.
func Error(cat Category, format string, args ...interface{}) {
	L(cat).Errorf(format, args...)
}
