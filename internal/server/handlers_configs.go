package server

import (
	"encoding/json"
	"net/http"
	"strings"
)

// handleConfigList lists all stored config names.
func (s *Server) handleConfigList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	names, err := s.manager.ConfigNames()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"configs": names})
}

// handleConfig serves GET and PATCH of one stored config. PATCH takes a
// flat map of dot-separated keys; an empty value deletes the key.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/configs/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, http.StatusNotFound, "config name required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		config, err := s.manager.LoadConfigFor(name)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if config == nil {
			config = map[string]interface{}{}
		}
		writeJSON(w, http.StatusOK, config)
	case http.MethodPatch:
		var updates map[string]string
		if err := json.NewDecoder(r.Body).Decode(&updates); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if len(updates) == 0 {
			writeError(w, http.StatusBadRequest, "no updates given")
			return
		}

		updated, err := s.manager.UpdateConfig(name, updates)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
