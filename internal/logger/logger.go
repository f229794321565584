package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"tg-groupguard/internal/config"
)

// Log levels, ordered by severity.
const (
	LevelDebug = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal
)

var (
	currentLevel = LevelInfo
	std          = log.New(os.Stdout, "", log.Ldate|log.Ltime|log.Lshortfile)
)

// createLogFilePath generates a log file path with the current date
func createLogFilePath(logDir, prefix string) string {
	currentDate := time.Now().Format("2006-01-02")
	return filepath.Join(logDir, fmt.Sprintf("%s-%s.log", prefix, currentDate))
}

// createRotatingLogger creates a lumberjack rotating logger
func createRotatingLogger(logFilePath string, cfg *config.Config) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   logFilePath,
		MaxSize:    cfg.Logger.Rotation.MaxSize,
		MaxBackups: cfg.Logger.Rotation.MaxBackups,
		MaxAge:     cfg.Logger.Rotation.MaxAge,
		Compress:   cfg.Logger.Rotation.Compress,
	}
}

// createMultiWriter creates a writer that outputs to both stdout and log file
func createMultiWriter(rotatingLogger io.Writer) io.Writer {
	return io.MultiWriter(os.Stdout, rotatingLogger)
}

// Setup configures logging to output to both stdout and a rotating log file
func Setup(cfg *config.Config) error {
	logDir := cfg.Logger.Directory

	// Create log directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	logFilePath := createLogFilePath(logDir, "groupguard")
	rotatingLogger := createRotatingLogger(logFilePath, cfg)
	multiWriter := createMultiWriter(rotatingLogger)

	std = log.New(multiWriter, "", log.Ldate|log.Ltime|log.Lshortfile)
	currentLevel = parseLevel(cfg.Logger.Level)

	// Route the standard library logger through the same writer so that
	// third-party code using log.Printf ends up in the rotated file too.
	log.SetOutput(multiWriter)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	Infof("Logging initialized: writing to %s", logFilePath)
	return nil
}

// GetRotatingLogWriter returns a rotating log writer for custom loggers
func GetRotatingLogWriter(cfg *config.Config, prefix string) io.Writer {
	logFilePath := createLogFilePath(cfg.Logger.Directory, prefix)
	rotatingLogger := createRotatingLogger(logFilePath, cfg)
	return createMultiWriter(rotatingLogger)
}

func parseLevel(level string) int {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARNING", "WARN":
		return LevelWarning
	case "ERROR":
		return LevelError
	case "FATAL":
		return LevelFatal
	default:
		return LevelInfo
	}
}

func output(level int, tag, format string, args ...interface{}) {
	if level < currentLevel {
		return
	}
	// calldepth 3: output -> leveled helper -> caller
	std.Output(3, fmt.Sprintf("[%s] %s", tag, fmt.Sprintf(format, args...)))
}

func Debugf(format string, args ...interface{}) {
	output(LevelDebug, "DEBUG", format, args...)
}

func Infof(format string, args ...interface{}) {
	output(LevelInfo, "INFO", format, args...)
}

func Info(msg string) {
	output(LevelInfo, "INFO", "%s", msg)
}

func Warningf(format string, args ...interface{}) {
	output(LevelWarning, "WARNING", format, args...)
}

func Warning(msg string) {
	output(LevelWarning, "WARNING", "%s", msg)
}

func Errorf(format string, args ...interface{}) {
	output(LevelError, "ERROR", format, args...)
}

func Fatalf(format string, args ...interface{}) {
	output(LevelFatal, "FATAL", format, args...)
	os.Exit(1)
}
