package database

import (
	"fmt"
	"time"
)

// RecordContainerEvent stores one Docker lifecycle event.
func RecordContainerEvent(containerName, action, actorID string) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	query := "INSERT INTO container_events (container_name, action, actor_id) VALUES (?, ?, ?)"
	if _, err := db.Exec(query, containerName, action, actorID); err != nil {
		return fmt.Errorf("failed to record container event: %w", err)
	}
	return nil
}

// EventGroupStat is an aggregate row of the event stat queries.
type EventGroupStat struct {
	ContainerName string `json:"container_name"`
	Action        string `json:"action"`
	Count         int    `json:"count"`
}

// GetEventGroupStats aggregates recorded events by container and action
// within the time range.
func GetEventGroupStats(start, end time.Time) ([]EventGroupStat, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT container_name, action, COUNT(*) AS cnt
		FROM container_events
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY container_name, action
		ORDER BY container_name, action
	`
	rows, err := db.Query(query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query event stats: %w", err)
	}
	defer rows.Close()

	var stats []EventGroupStat
	for rows.Next() {
		var s EventGroupStat
		if err := rows.Scan(&s.ContainerName, &s.Action, &s.Count); err != nil {
			return nil, fmt.Errorf("failed to scan event stat: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// GetRecentEvents returns the newest events up to limit.
func GetRecentEvents(limit int) ([]ContainerEvent, error) {
	db := GetDB()
	if db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	rows, err := db.Query(
		`SELECT id, timestamp, container_name, action, COALESCE(actor_id, '')
		 FROM container_events ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent events: %w", err)
	}
	defer rows.Close()

	var events []ContainerEvent
	for rows.Next() {
		var e ContainerEvent
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.ContainerName, &e.Action, &e.ActorID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// CleanupOldEvents removes events older than the given duration.
func CleanupOldEvents(olderThan time.Duration) error {
	db := GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}

	cutoff := time.Now().Add(-olderThan)
	if _, err := db.Exec("DELETE FROM container_events WHERE timestamp < ?", cutoff); err != nil {
		return fmt.Errorf("failed to cleanup old events: %w", err)
	}
	return nil
}
