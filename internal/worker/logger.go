// Package worker provides background processing of service operations.
package worker

import (
	"log"
	"sync"

	"director/internal/database"
)

// OperationLogger writes per-operation log lines to the database and
// mirrors them to stdout.
type OperationLogger struct {
	operationID string
	mu          sync.Mutex
}

// NewOperationLogger creates a logger bound to one operation.
func NewOperationLogger(operationID string) *OperationLogger {
	return &OperationLogger{operationID: operationID}
}

// Debug logs a debug message.
func (ol *OperationLogger) Debug(message string) {
	ol.log(database.LogLevelDebug, message)
}

// Info logs an info message.
func (ol *OperationLogger) Info(message string) {
	ol.log(database.LogLevelInfo, message)
}

// Warning logs a warning message.
func (ol *OperationLogger) Warning(message string) {
	ol.log(database.LogLevelWarning, message)
}

// Error logs an error message.
func (ol *OperationLogger) Error(message string) {
	ol.log(database.LogLevelError, message)
}

func (ol *OperationLogger) log(level, message string) {
	ol.mu.Lock()
	defer ol.mu.Unlock()

	if err := database.AppendOperationLog(ol.operationID, level, message); err != nil {
		log.Printf("Failed to write operation log: %v", err)
	}
	log.Printf("[%s] op %s: %s", level, ol.operationID, message)
}
