package database

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateOperation inserts a new pending operation row.
func CreateOperation(id, operationType, serviceName string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO operations (id, operation_type, service_name, status)
		VALUES (?, ?, ?, ?)
	`
	if _, err := db.Exec(query, id, operationType, serviceName, StatusPending); err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}
	return nil
}

// GetOperation fetches a single operation by id.
func GetOperation(id string) (*Operation, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	var op Operation
	err := db.QueryRow(
		`SELECT id, operation_type, service_name, status, progress, progress_message,
		        error_message, created_at, updated_at, completed_at
		 FROM operations WHERE id = ?`, id,
	).Scan(
		&op.ID, &op.OperationType, &op.ServiceName, &op.Status, &op.Progress,
		&op.ProgressMessage, &op.ErrorMessage, &op.CreatedAt, &op.UpdatedAt, &op.CompletedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get operation %s: %w", id, err)
	}
	return &op, nil
}

// UpdateOperationStatus updates the status, progress and messages of an
// operation. Terminal statuses also stamp completed_at.
func UpdateOperationStatus(id, status string, progress int, message, errorMessage string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	var completedAt interface{}
	if status == StatusCompleted || status == StatusFailed {
		completedAt = time.Now()
	}

	query := `
		UPDATE operations
		SET status = ?, progress = ?, progress_message = ?, error_message = ?,
		    updated_at = CURRENT_TIMESTAMP, completed_at = COALESCE(?, completed_at)
		WHERE id = ?
	`
	if _, err := db.Exec(query, status, progress, message, errorMessage, completedAt, id); err != nil {
		return fmt.Errorf("failed to update operation %s: %w", id, err)
	}
	return nil
}

// PendingOperationIDs lists operations still waiting for a worker, oldest first.
func PendingOperationIDs() ([]string, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query("SELECT id FROM operations WHERE status = ? ORDER BY created_at ASC", StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending operations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan operation id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// FailStaleOperations marks pending or in-progress operations older than
// the cutoff as failed. Returns the number of rows changed.
func FailStaleOperations(olderThan time.Duration) (int64, error) {
	db := GetDB()
	if db == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	cutoff := time.Now().Add(-olderThan)
	query := `
		UPDATE operations
		SET status = ?, error_message = 'operation timed out', updated_at = CURRENT_TIMESTAMP,
		    completed_at = CURRENT_TIMESTAMP
		WHERE status IN (?, ?) AND created_at < ?
	`
	res, err := db.Exec(query, StatusFailed, StatusPending, StatusInProgress, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to fail stale operations: %w", err)
	}
	return res.RowsAffected()
}

// AppendOperationLog stores a log line for an operation.
func AppendOperationLog(operationID, level, message string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	query := "INSERT INTO operation_logs (operation_id, level, message) VALUES (?, ?, ?)"
	if _, err := db.Exec(query, operationID, level, message); err != nil {
		return fmt.Errorf("failed to append operation log: %w", err)
	}
	return nil
}

// GetOperationLogs returns the log lines for an operation in order.
func GetOperationLogs(operationID string) ([]OperationLog, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query(
		`SELECT id, operation_id, timestamp, level, message
		 FROM operation_logs WHERE operation_id = ? ORDER BY timestamp ASC, id ASC`, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation logs: %w", err)
	}
	defer rows.Close()

	var logs []OperationLog
	for rows.Next() {
		var l OperationLog
		if err := rows.Scan(&l.ID, &l.OperationID, &l.Timestamp, &l.Level, &l.Message); err != nil {
			return nil, fmt.Errorf("failed to scan operation log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
