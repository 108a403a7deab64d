package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/crypto/bcrypt"

	"director/internal/database"
)

// hashPassword hashes a plain text password.
func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// checkPassword checks if a password matches its hash.
func checkPassword(password, hash string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// authenticateUser verifies username and password.
func (s *Server) authenticateUser(username, password string) (*database.User, error) {
	db := database.GetDB()

	user := &database.User{}
	err := db.QueryRow(`
		SELECT id, username, password, is_active, date_joined, last_login
		FROM users WHERE username = ? AND is_active = 1
	`, username).Scan(
		&user.ID, &user.Username, &user.Password,
		&user.IsActive, &user.DateJoined, &user.LastLogin,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("invalid username or password")
		}
		return nil, err
	}

	if err := checkPassword(password, user.Password); err != nil {
		return nil, fmt.Errorf("invalid username or password")
	}

	now := time.Now()
	if _, err := db.Exec("UPDATE users SET last_login = ? WHERE id = ?", now, user.ID); err != nil {
		log.Printf("Failed to update last_login: %v", err)
	}
	user.LastLogin = sql.NullTime{Time: now, Valid: true}

	return user, nil
}

// getUserByID retrieves an active user by id.
func (s *Server) getUserByID(id int) (*database.User, error) {
	db := database.GetDB()

	user := &database.User{}
	err := db.QueryRow(`
		SELECT id, username, password, is_active, date_joined, last_login
		FROM users WHERE id = ? AND is_active = 1
	`, id).Scan(
		&user.ID, &user.Username, &user.Password,
		&user.IsActive, &user.DateJoined, &user.LastLogin,
	)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// createUser creates a new user with a hashed password.
func (s *Server) createUser(username, password string) (*database.User, error) {
	hashedPassword, err := hashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	db := database.GetDB()
	now := time.Now()

	result, err := db.Exec(`
		INSERT INTO users (username, password, is_active, date_joined)
		VALUES (?, ?, 1, ?)
	`, username, hashedPassword, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get user ID: %w", err)
	}

	return &database.User{
		ID:         int(id),
		Username:   username,
		Password:   hashedPassword,
		IsActive:   true,
		DateJoined: now,
	}, nil
}

// userCount returns the number of registered users.
func (s *Server) userCount() (int, error) {
	var count int
	err := database.GetDB().QueryRow("SELECT COUNT(*) FROM users").Scan(&count)
	return count, err
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleSetup creates the first user. Once a user exists it refuses.
func (s *Server) handleSetup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.userCount()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if count > 0 {
		writeError(w, http.StatusConflict, "setup already completed")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "username and a password of at least 8 characters are required")
		return
	}

	user, err := s.createUser(req.Username, req.Password)
	if err != nil {
		log.Printf("Failed to create user: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	s.startSession(w, r, user)
	writeJSON(w, http.StatusCreated, map[string]interface{}{"username": user.Username})
}

// handleLogin authenticates and starts a session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := s.authenticateUser(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	s.startSession(w, r, user)
	writeJSON(w, http.StatusOK, map[string]interface{}{"username": user.Username})
}

// handleLogout drops the session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	session, _ := s.sessionStore.Get(r, sessionName)
	delete(session.Values, "user_id")
	session.Options.MaxAge = -1
	if err := session.Save(r, w); err != nil {
		log.Printf("Failed to clear session: %v", err)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// handleMe returns the authenticated user.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := getUserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"username":    user.Username,
		"date_joined": user.DateJoined,
	})
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *database.User) {
	session, _ := s.sessionStore.Get(r, sessionName)
	session.Values["user_id"] = user.ID
	if err := session.Save(r, w); err != nil {
		log.Printf("Failed to save session: %v", err)
	}
}
