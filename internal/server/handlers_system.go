package server

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"director/internal/database"
	"director/internal/system"
)

// handleStatusLatest samples current system vitals, stores them and
// returns the sample.
func (s *Server) handleStatusLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Sampling takes a second, so consecutive calls share a cached
	// reading.
	cached, err := s.vitalsCache.GetOrCompute("vitals", func() (interface{}, error) {
		vitals, err := system.GetVitals()
		if err != nil {
			return nil, err
		}
		if err := database.StoreSystemVital(vitals.CPUPercent, vitals.MemPercent, vitals.DiskPercent); err != nil {
			log.Printf("Failed to store system vitals: %v", err)
		}
		return vitals, nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	vitals := cached.(*system.Vitals)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cpu_percent":        vitals.CPUPercent,
		"memory_percent":     vitals.MemPercent,
		"disk_usage_percent": vitals.DiskPercent,
		"timestamp":          time.Now().UTC(),
	})
}

// handleStatusHistory returns stored vitals for the requested window
// (hours query parameter, default 24).
func (s *Server) handleStatusHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	start, end, err := statRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	vitals, err := database.GetVitalsForTimeRange(start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	samples := make([]map[string]interface{}, 0, len(vitals))
	for _, v := range vitals {
		samples = append(samples, map[string]interface{}{
			"timestamp":          v.Timestamp,
			"cpu_percent":        v.CPUPercent,
			"memory_percent":     v.MemoryPercent,
			"disk_usage_percent": v.DiskUsagePercent,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"samples": samples})
}

// statRange parses the hours query parameter into a time range.
func statRange(r *http.Request) (time.Time, time.Time, error) {
	hours := 24
	if param := r.URL.Query().Get("hours"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed <= 0 || parsed > 24*30 {
			return time.Time{}, time.Time{}, errInvalidHours
		}
		hours = parsed
	}
	end := time.Now()
	return end.Add(-time.Duration(hours) * time.Hour), end, nil
}

var errInvalidHours = errors.New("invalid hours parameter")

// handleStatCommon aggregates recorded container events by container
// and action.
func (s *Server) handleStatCommon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	start, end, err := statRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := database.GetEventGroupStats(start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"groups": stats})
}

// handleStatEvents lists recent container events.
func (s *Server) handleStatEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := 100
	if param := r.URL.Query().Get("limit"); param != "" {
		parsed, err := strconv.Atoi(param)
		if err != nil || parsed <= 0 || parsed > 1000 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		limit = parsed
	}

	events, err := database.GetRecentEvents(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
