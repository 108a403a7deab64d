package server

import (
	"net/http"
)

// AuthRequired rejects requests without a valid session.
func (s *Server) AuthRequired(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.sessionStore.Get(r, sessionName)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		userID, ok := session.Values["user_id"].(int)
		if !ok || userID == 0 {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		user, err := s.getUserByID(userID)
		if err != nil {
			// Stale session, drop it.
			delete(session.Values, "user_id")
			_ = session.Save(r, w)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		next(w, r.WithContext(setUserContext(r.Context(), user)))
	}
}
