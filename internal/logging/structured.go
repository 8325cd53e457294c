package logging

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// StructuredLogger wraps a standard logger with structured logging.
// Audit-relevant events (requests, rejected paths, rejected commands) go
// through it so the log line carries machine-readable fields.
type StructuredLogger struct {
	logger    *log.Logger
	component string
	jsonMode  bool
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *log.Logger, component string, jsonMode bool) *StructuredLogger {
	return &StructuredLogger{
		logger:    logger,
		component: component,
		jsonMode:  jsonMode,
	}
}

// ForComponent returns a structured logger over the shared sink. JSON
// output is selected with WEBTERM_LOG_JSON=1.
func ForComponent(component string) *StructuredLogger {
	return NewStructuredLogger(Logger, component, os.Getenv("WEBTERM_LOG_JSON") == "1")
}

// WithComponent returns a logger with component context
func (s *StructuredLogger) WithComponent(component string) *StructuredLogger {
	return &StructuredLogger{
		logger:    s.logger,
		component: component,
		jsonMode:  s.jsonMode,
	}
}

// log formats and writes the log entry
func (s *StructuredLogger) log(level string, msg string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level,
		Component: s.component,
		Message:   msg,
		Fields:    fields,
	}

	if s.jsonMode {
		// JSON mode for structured parsing
		data, _ := json.Marshal(entry)
		s.logger.Println(string(data))
	} else {
		// Human-readable format
		prefix := fmt.Sprintf("[%s] ", level)
		if s.component != "" {
			prefix += fmt.Sprintf("[%s] ", s.component)
		}

		output := prefix + msg
		if len(fields) > 0 {
			output += " |"
			for k, v := range fields {
				output += fmt.Sprintf(" %s=%v", k, v)
			}
		}
		s.logger.Println(output)
	}
}

// Info logs an info message
func (s *StructuredLogger) Info(msg string, fields ...map[string]interface{}) {
	s.log("INFO", msg, mergeFields(fields...))
}

// Error logs an error message
func (s *StructuredLogger) Error(msg string, fields ...map[string]interface{}) {
	s.log("ERROR", msg, mergeFields(fields...))
}

// Debug logs a debug message, only when WEBTERM_DEBUG=1
func (s *StructuredLogger) Debug(msg string, fields ...map[string]interface{}) {
	if !DevMode {
		return
	}
	s.log("DEBUG", msg, mergeFields(fields...))
}

// Warn logs a warning message
func (s *StructuredLogger) Warn(msg string, fields ...map[string]interface{}) {
	s.log("WARN", msg, mergeFields(fields...))
}

// mergeFields combines multiple field maps
func mergeFields(fields ...map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, m := range fields {
		for k, v := range m {
			result[k] = v
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
