package database

import (
	"database/sql"
	"fmt"
	"time"
)

// Account is a connected Google account. RefreshToken is stored encrypted.
type Account struct {
	UserID       string
	Email        string
	DisplayName  string
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// UpsertAccount creates or updates an account by user ID.
func (db *DB) UpsertAccount(account *Account) error {
	_, err := db.Exec(`
		INSERT INTO accounts (user_id, email, display_name, refresh_token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			email = excluded.email,
			display_name = excluded.display_name,
			refresh_token = excluded.refresh_token,
			updated_at = excluded.updated_at
	`, account.UserID, account.Email, account.DisplayName, account.RefreshToken, time.Now(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// GetAccount retrieves an account by user ID.
func (db *DB) GetAccount(userID string) (*Account, error) {
	var account Account
	err := db.QueryRow(`
		SELECT user_id, email, display_name, refresh_token, created_at, updated_at
		FROM accounts WHERE user_id = ?
	`, userID).Scan(&account.UserID, &account.Email, &account.DisplayName, &account.RefreshToken, &account.CreatedAt, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &account, nil
}

// DeleteAccount removes an account by user ID.
func (db *DB) DeleteAccount(userID string) error {
	if _, err := db.Exec("DELETE FROM accounts WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}
	return nil
}
