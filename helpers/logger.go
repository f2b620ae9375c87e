package helpers

import (
	"fmt"
	"os"
	"sync"
	"time"

	"sjsage522/bidnoticeworker/logger"
)

// LoggerInterface defines the interface for logger implementations
type LoggerInterface interface {
	LogError(source string, err error)
	LogInfo(format string, args ...interface{})
}

// Logger writes through the structured logger and, when errorFile is set,
// appends every error to that file as well.
type Logger struct {
	component string
	errorFile string
	mu        sync.Mutex
}

// NewLogger creates a new logger instance
func NewLogger(component, errorFile string) *Logger {
	return &Logger{
		component: component,
		errorFile: errorFile,
	}
}

// LogError logs an error with the source name and timestamp
func (l *Logger) LogError(source string, err error) {
	logger.LogError(l.component, err, "%s failed", source)

	if l.errorFile == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, fileErr := os.OpenFile(l.errorFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if fileErr != nil {
		logger.Warn("파일 열기 오류: %v", fileErr)
		return
	}
	defer f.Close()

	timestamp := time.Now().In(KST).Format(TimestampLayout)
	fmt.Fprintf(f, "[%s] [%s] %s\n", timestamp, source, err.Error())
}

// LogInfo logs an informational message
func (l *Logger) LogInfo(format string, args ...interface{}) {
	logger.LogInfo(l.component, format, args...)
}
