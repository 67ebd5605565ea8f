package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Session represents a signed-in Google account session.
type Session struct {
	ID          string
	UserID      string
	Email       string
	DisplayName string
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// CreateSession stores a new session.
func (db *DB) CreateSession(session *Session) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, user_id, email, display_name, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, session.ID, session.UserID, session.Email, session.DisplayName, session.ExpiresAt, time.Now())
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID. Expired sessions are deleted and
// reported as missing.
func (db *DB) GetSession(id string) (*Session, error) {
	var session Session
	err := db.QueryRow(`
		SELECT id, user_id, email, display_name, expires_at, created_at
		FROM sessions WHERE id = ?
	`, id).Scan(&session.ID, &session.UserID, &session.Email, &session.DisplayName, &session.ExpiresAt, &session.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if time.Now().After(session.ExpiresAt) {
		if err := db.DeleteSession(id); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &session, nil
}

// ExtendSession pushes a session's expiration forward.
func (db *DB) ExtendSession(id string, duration time.Duration) error {
	_, err := db.Exec("UPDATE sessions SET expires_at = ? WHERE id = ?", time.Now().Add(duration), id)
	if err != nil {
		return fmt.Errorf("failed to extend session: %w", err)
	}
	return nil
}

// DeleteSession removes a session.
func (db *DB) DeleteSession(id string) error {
	if _, err := db.Exec("DELETE FROM sessions WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes all sessions past their expiration.
func (db *DB) DeleteExpiredSessions() (int64, error) {
	result, err := db.Exec("DELETE FROM sessions WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired sessions: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}
