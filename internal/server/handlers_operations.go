package server

import (
	"net/http"
	"strings"

	"director/internal/database"
)

// handleOperation serves the status and logs of one queued operation.
func (s *Server) handleOperation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/operations/")
	parts := strings.SplitN(rest, "/", 2)
	opID := parts[0]
	if opID == "" {
		writeError(w, http.StatusNotFound, "operation id required")
		return
	}

	op, err := database.GetOperation(opID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if op == nil {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}

	if len(parts) == 2 && parts[1] == "logs" {
		logs, err := database.GetOperationLogs(opID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"logs": logs})
		return
	}

	payload := map[string]interface{}{
		"id":             op.ID,
		"operation_type": op.OperationType,
		"service_name":   op.ServiceName,
		"status":         op.Status,
		"progress":       op.Progress,
		"created_at":     op.CreatedAt,
		"updated_at":     op.UpdatedAt,
	}
	if op.ProgressMessage.Valid {
		payload["progress_message"] = op.ProgressMessage.String
	}
	if op.ErrorMessage.Valid {
		payload["error_message"] = op.ErrorMessage.String
	}
	if op.CompletedAt.Valid {
		payload["completed_at"] = op.CompletedAt.Time
	}
	writeJSON(w, http.StatusOK, payload)
}
