package database

import (
	"database/sql"
	"fmt"
	"time"
)

// StoreSystemVital saves a new system vital log entry to the database.
func StoreSystemVital(cpuPercent, memoryPercent, diskUsagePercent float64) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO system_vital_logs (cpu_percent, memory_percent, disk_usage_percent)
		VALUES (?, ?, ?)
	`
	if _, err := db.Exec(query, cpuPercent, memoryPercent, diskUsagePercent); err != nil {
		return fmt.Errorf("failed to store system vital: %w", err)
	}
	return nil
}

// GetLatestVital retrieves the most recent system vital log entry.
// Returns nil if no metrics are found (not an error condition).
func GetLatestVital() (*SystemVitalLog, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT id, timestamp, cpu_percent, memory_percent, disk_usage_percent
		FROM system_vital_logs
		ORDER BY timestamp DESC
		LIMIT 1
	`
	var m SystemVitalLog
	err := db.QueryRow(query).Scan(&m.ID, &m.Timestamp, &m.CPUPercent, &m.MemoryPercent, &m.DiskUsagePercent)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest vital: %w", err)
	}
	return &m, nil
}

// GetVitalsForTimeRange retrieves system vital logs within a time range.
func GetVitalsForTimeRange(start, end time.Time) ([]SystemVitalLog, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT id, timestamp, cpu_percent, memory_percent, disk_usage_percent
		FROM system_vital_logs
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`
	rows, err := db.Query(query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query vitals for time range: %w", err)
	}
	defer rows.Close()

	var metrics []SystemVitalLog
	for rows.Next() {
		var m SystemVitalLog
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.CPUPercent, &m.MemoryPercent, &m.DiskUsagePercent); err != nil {
			return nil, fmt.Errorf("failed to scan vital: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// CleanupOldSystemVitals removes vital logs older than the given duration.
func CleanupOldSystemVitals(olderThan time.Duration) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	cutoff := time.Now().Add(-olderThan)
	if _, err := db.Exec("DELETE FROM system_vital_logs WHERE timestamp < ?", cutoff); err != nil {
		return fmt.Errorf("failed to cleanup old vitals: %w", err)
	}
	return nil
}
