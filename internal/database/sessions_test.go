package database

import (
	"testing"
	"time"
)

func TestSessionLifecycle(t *testing.T) {
	db := openTestDB(t)

	session := &Session{
		ID:          "sess-1",
		UserID:      "user-1",
		Email:       "alice@example.com",
		DisplayName: "Alice",
		ExpiresAt:   time.Now().Add(time.Hour),
	}
	if err := db.CreateSession(session); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := db.GetSession("sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session")
	}
	if got.Email != "alice@example.com" || got.DisplayName != "Alice" {
		t.Fatalf("unexpected session: %+v", got)
	}

	if err := db.DeleteSession("sess-1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	got, err = db.GetSession("sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil after delete")
	}
}

func TestGetSession_ExpiredReportedMissing(t *testing.T) {
	db := openTestDB(t)

	session := &Session{
		ID:        "sess-1",
		UserID:    "user-1",
		Email:     "alice@example.com",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	if err := db.CreateSession(session); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := db.GetSession("sess-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected expired session to be reported missing")
	}
}

func TestDeleteExpiredSessions(t *testing.T) {
	db := openTestDB(t)

	fresh := &Session{ID: "fresh", UserID: "u", Email: "e", ExpiresAt: time.Now().Add(time.Hour)}
	stale := &Session{ID: "stale", UserID: "u", Email: "e", ExpiresAt: time.Now().Add(-time.Hour)}
	for _, s := range []*Session{fresh, stale} {
		if err := db.CreateSession(s); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	n, err := db.DeleteExpiredSessions()
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 swept session, got %d", n)
	}

	if got, _ := db.GetSession("fresh"); got == nil {
		t.Fatal("expected fresh session to survive")
	}
}

func TestUpsertAccount(t *testing.T) {
	db := openTestDB(t)

	if err := db.UpsertAccount(&Account{
		UserID:       "user-1",
		Email:        "alice@example.com",
		DisplayName:  "Alice",
		RefreshToken: "enc-1",
	}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	// Second login replaces the stored token.
	if err := db.UpsertAccount(&Account{
		UserID:       "user-1",
		Email:        "alice@example.com",
		DisplayName:  "Alice B",
		RefreshToken: "enc-2",
	}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := db.GetAccount("user-1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected account")
	}
	if got.RefreshToken != "enc-2" || got.DisplayName != "Alice B" {
		t.Fatalf("unexpected account: %+v", got)
	}

	missing, err := db.GetAccount("nobody")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if missing != nil {
		t.Fatal("expected nil for unknown account")
	}
}
