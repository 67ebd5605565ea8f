package auth

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestTokenEncryptionRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	if err := LoadOrCreateTokenKey(dbPath); err != nil {
		t.Fatalf("failed to create key: %v", err)
	}

	encrypted, err := EncryptToken("1//refresh-token-value")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if encrypted == "1//refresh-token-value" {
		t.Fatal("token stored in the clear")
	}

	decrypted, err := DecryptToken(encrypted)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if decrypted != "1//refresh-token-value" {
		t.Fatalf("round trip mismatch: %q", decrypted)
	}

	// Same plaintext encrypts differently (random nonce).
	second, err := EncryptToken("1//refresh-token-value")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if second == encrypted {
		t.Fatal("expected distinct ciphertexts for repeated encryption")
	}
}

func TestLoadOrCreateTokenKey_Reload(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	if err := LoadOrCreateTokenKey(dbPath); err != nil {
		t.Fatalf("failed to create key: %v", err)
	}
	first := bytes.Clone(tokenKey)

	encrypted, err := EncryptToken("secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}

	// Simulate a restart: reload the key from disk.
	tokenKey = nil
	if err := LoadOrCreateTokenKey(dbPath); err != nil {
		t.Fatalf("failed to reload key: %v", err)
	}
	if !bytes.Equal(first, tokenKey) {
		t.Fatal("reloaded key differs from the created one")
	}

	decrypted, err := DecryptToken(encrypted)
	if err != nil {
		t.Fatalf("decrypt after reload failed: %v", err)
	}
	if decrypted != "secret" {
		t.Fatalf("round trip mismatch after reload: %q", decrypted)
	}
}

func TestLoadOrCreateTokenKey_RejectsBadKeyFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := os.WriteFile(dbPath+".key", []byte("short"), 0o600); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := LoadOrCreateTokenKey(dbPath); err == nil {
		t.Fatal("expected error for an invalid key file")
	}
}
