package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// DevMode indicates if development logging is enabled
	DevMode = os.Getenv("WEBTERM_DEBUG") == "1"
	// Logger is the shared logger instance
	Logger *log.Logger

	rotor *lumberjack.Logger
)

func init() {
	Logger = log.Default()
}

// Setup routes the shared logger to a rotating file in addition to stderr.
// Called once at startup when a log path is configured.
func Setup(path string, maxSizeMB, maxBackups int) {
	if path == "" {
		return
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	rotor = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		Compress:   true,
	}
	Logger.SetOutput(io.MultiWriter(os.Stderr, rotor))
}

// Close flushes the rotating sink, if one was installed.
func Close() error {
	if rotor == nil {
		return nil
	}
	return rotor.Close()
}

// DevLog logs only when WEBTERM_DEBUG=1
func DevLog(format string, args ...interface{}) {
	if DevMode {
		Logger.Printf("[DEV] "+format, args...)
	}
}

// UserLog logs important user-facing information (always visible)
func UserLog(format string, args ...interface{}) {
	Logger.Printf("[USER] "+format, args...)
}

// WarnLog logs suspicious but recoverable conditions (always visible)
func WarnLog(format string, args ...interface{}) {
	Logger.Printf("[WARN] "+format, args...)
}

// ErrorLog logs errors (always visible)
func ErrorLog(format string, args ...interface{}) {
	Logger.Printf("[ERROR] "+format, args...)
}
