package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drivev3 "google.golang.org/api/drive/v3"

	"github.com/drivescope/drivescope/internal/database"
	"github.com/drivescope/drivescope/internal/drive"
)

// SessionDuration is how long sessions last.
const SessionDuration = 7 * 24 * time.Hour

const userinfoEndpoint = "https://www.googleapis.com/oauth2/v2/userinfo"

// ErrAuthRequired is returned when no valid session exists.
var ErrAuthRequired = errors.New("auth: sign-in required")

// Service handles the Google OAuth login flow and session lifecycle.
type Service struct {
	db  *database.DB
	cfg *oauth2.Config
}

// NewService creates an auth service. redirectURL is the public callback
// URL registered with the OAuth client.
func NewService(db *database.DB, clientID, clientSecret, redirectURL string) *Service {
	return &Service{
		db: db,
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     google.Endpoint,
			Scopes: []string{
				drivev3.DriveScope,
				"openid",
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
		},
	}
}

// LoginURL returns the Google consent URL for a login attempt. Offline
// access with forced consent guarantees a refresh token on every login.
func (s *Service) LoginURL(state string) string {
	return s.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

type userinfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CompleteLogin exchanges an authorization code for tokens, upserts the
// Google account (refresh token stored encrypted), and creates a session.
func (s *Service) CompleteLogin(ctx context.Context, code string) (*database.Session, error) {
	token, err := s.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if token.RefreshToken == "" {
		return nil, fmt.Errorf("no refresh token in exchange response")
	}

	info, err := s.fetchUserinfo(ctx, token)
	if err != nil {
		return nil, err
	}

	encrypted, err := EncryptToken(token.RefreshToken)
	if err != nil {
		return nil, err
	}

	if err := s.db.UpsertAccount(&database.Account{
		UserID:       info.ID,
		Email:        info.Email,
		DisplayName:  info.Name,
		RefreshToken: encrypted,
	}); err != nil {
		return nil, err
	}

	session := &database.Session{
		ID:          uuid.NewString(),
		UserID:      info.ID,
		Email:       info.Email,
		DisplayName: info.Name,
		ExpiresAt:   time.Now().Add(SessionDuration),
	}
	if err := s.db.CreateSession(session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *Service) fetchUserinfo(ctx context.Context, token *oauth2.Token) (*userinfo, error) {
	client := s.cfg.Client(ctx, token)
	resp, err := client.Get(userinfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request returned %d", resp.StatusCode)
	}

	var info userinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("userinfo response missing account id")
	}
	return &info, nil
}

// Session returns the session for an ID, or nil when missing or expired.
func (s *Service) Session(id string) (*database.Session, error) {
	return s.db.GetSession(id)
}

// ExtendSession pushes a session's expiration forward by SessionDuration.
func (s *Service) ExtendSession(id string) error {
	return s.db.ExtendSession(id, SessionDuration)
}

// Logout deletes a session.
func (s *Service) Logout(id string) error {
	return s.db.DeleteSession(id)
}

// TokenSource builds an OAuth2 token source from a user's stored refresh
// token. Returns ErrAuthRequired when the user has no connected account.
func (s *Service) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	account, err := s.db.GetAccount(userID)
	if err != nil {
		return nil, err
	}
	if account == nil || account.RefreshToken == "" {
		return nil, ErrAuthRequired
	}

	refreshToken, err := DecryptToken(account.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return s.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}), nil
}

// ClientForUser builds a Drive client acting as the given user. It
// implements monitor.ClientProvider.
func (s *Service) ClientForUser(ctx context.Context, userID string) (drive.Client, error) {
	ts, err := s.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}
	return drive.NewGoogleClient(ctx, ts)
}
