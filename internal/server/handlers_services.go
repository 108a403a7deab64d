package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/google/uuid"

	"director/internal/database"
	"director/internal/state"
)

// serviceRequest is the optional body of run/start/stop/restart calls.
type serviceRequest struct {
	Env          map[string]string `json:"env,omitempty"`
	BuildOptions *state.BuildOptions `json:"build_options,omitempty"`
	Pos          *state.Position   `json:"pos,omitempty"`
	// Wait makes the call synchronous instead of queueing an
	// operation.
	Wait bool `json:"wait,omitempty"`
}

// handleImages lists the discovered service images.
func (s *Server) handleImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.navigator.List())
}

// handleServices lists all known services.
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	ctx := r.Context()
	if err := s.manager.ResolveDockerStatusAll(ctx); err != nil {
		log.Printf("Failed to refresh container status: %v", err)
	}
	writeJSON(w, http.StatusOK, s.manager.Services())
}

// handleService serves GET and DELETE of a single service.
func (s *Server) handleService(w http.ResponseWriter, r *http.Request, name string) {
	switch r.Method {
	case http.MethodGet:
		svc, err := s.manager.Get(name, state.GetOptions{})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := s.manager.ResolveDockerStatus(r.Context(), name); err != nil {
			log.Printf("Failed to refresh %s: %v", name, err)
		}
		writeJSON(w, http.StatusOK, svc.Snapshot())
	case http.MethodDelete:
		s.handleServiceOp(w, r, name, "remove")
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// opTypes maps API actions to stored operation types.
var opTypes = map[string]string{
	"run":     database.OpTypeRunService,
	"start":   database.OpTypeStartService,
	"stop":    database.OpTypeStopService,
	"restart": database.OpTypeRestartService,
	"remove":  database.OpTypeRemoveService,
}

// handleServiceOp runs a lifecycle action, either synchronously or via
// the operation queue.
func (s *Server) handleServiceOp(w http.ResponseWriter, r *http.Request, name, action string) {
	if action != "remove" && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req serviceRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	if action == "run" && !s.navigator.IsNative(name) {
		writeError(w, http.StatusNotFound, "unknown service image")
		return
	}

	// Apply request overrides to the service record up front, so a
	// queued operation picks them up.
	opts := state.GetOptions{Env: req.Env, BuildOptions: req.BuildOptions, Pos: req.Pos}
	svc, err := s.manager.Get(name, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if req.Wait {
		s.runSync(w, r, name, action)
		return
	}

	opID := uuid.New().String()
	if err := database.CreateOperation(opID, opTypes[action], name); err != nil {
		log.Printf("Failed to create operation: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create operation")
		return
	}
	s.worker.Enqueue(opID)

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"operation_id": opID,
		"service":      svc.Snapshot(),
	})
}

// runSync performs the action in the request and returns the result.
func (s *Server) runSync(w http.ResponseWriter, r *http.Request, name, action string) {
	ctx := r.Context()

	var (
		svc *state.Service
		err error
	)
	switch action {
	case "run":
		svc, err = s.manager.RunService(ctx, name, state.GetOptions{})
	case "start":
		svc, err = s.manager.StartService(ctx, name)
	case "stop":
		svc, err = s.manager.StopService(ctx, name)
	case "restart":
		svc, err = s.manager.RestartService(ctx, name)
	case "remove":
		svc, err = s.manager.RemoveService(ctx, name)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, svc.Snapshot())
}

// handleServiceState accepts the self-reported state a running service
// posts about itself.
func (s *Server) handleServiceState(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid state payload")
		return
	}

	if err := s.manager.SetAppState(r.Context(), name, payload); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRegistrations lists the methods announced by active services.
func (s *Server) handleRegistrations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"register": s.manager.Registrations(),
	})
}
