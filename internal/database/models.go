package database

import (
	"database/sql"
	"time"
)

type User struct {
	ID         int
	Username   string
	Password   string
	IsActive   bool
	DateJoined time.Time
	LastLogin  sql.NullTime
}

type Operation struct {
	ID              string         `json:"id"`
	OperationType   string         `json:"operation_type"`
	ServiceName     string         `json:"service_name"`
	Status          string         `json:"status"`
	Progress        int            `json:"progress"`
	ProgressMessage sql.NullString `json:"-"`
	ErrorMessage    sql.NullString `json:"-"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CompletedAt     sql.NullTime   `json:"-"`
}

type OperationLog struct {
	ID          int       `json:"id"`
	OperationID string    `json:"operation_id"`
	Timestamp   time.Time `json:"timestamp"`
	Level       string    `json:"level"`
	Message     string    `json:"message"`
}

type ContainerEvent struct {
	ID            int       `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	ContainerName string    `json:"container_name"`
	Action        string    `json:"action"`
	ActorID       string    `json:"actor_id"`
}

type SystemVitalLog struct {
	ID               int
	Timestamp        time.Time
	CPUPercent       float64
	MemoryPercent    float64
	DiskUsagePercent float64
}

const (
	// Operation Types
	OpTypeRunService     = "run_service"
	OpTypeStartService   = "start_service"
	OpTypeStopService    = "stop_service"
	OpTypeRestartService = "restart_service"
	OpTypeRemoveService  = "remove_service"

	// Status Choices
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"

	// Operation log levels
	LogLevelDebug   = "debug"
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)
