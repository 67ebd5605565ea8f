package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// tokenKey is loaded at startup from a per-install key file next to the
// database. Refresh tokens are stored encrypted with it.
var tokenKey []byte

// LoadOrCreateTokenKey loads the token encryption key from a file next to
// the database, creating a new random key if the file does not exist. The
// key is stored base64-encoded.
func LoadOrCreateTokenKey(dbPath string) error {
	keyPath := dbPath + ".key"

	if data, err := os.ReadFile(keyPath); err == nil {
		keyBytes, err := parseKeyFile(data)
		if err != nil {
			return fmt.Errorf("invalid token key file %s: %w", keyPath, err)
		}
		tokenKey = keyBytes
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to read token key file %s: %w", keyPath, err)
	}

	if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate token key: %w", err)
	}

	if err := os.WriteFile(keyPath, []byte(base64.StdEncoding.EncodeToString(key)), 0o600); err != nil {
		return fmt.Errorf("failed to write token key file %s: %w", keyPath, err)
	}

	tokenKey = key
	return nil
}

// parseKeyFile accepts a base64-encoded key or a raw 16/24/32-byte value.
func parseKeyFile(data []byte) ([]byte, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("key file is empty")
	}

	if decoded, err := base64.StdEncoding.DecodeString(trimmed); err == nil && isValidAESKeyLen(len(decoded)) {
		return decoded, nil
	}

	raw := []byte(trimmed)
	if !isValidAESKeyLen(len(raw)) {
		return nil, fmt.Errorf("key must be 16, 24, or 32 bytes when decoded")
	}
	return raw, nil
}

func isValidAESKeyLen(n int) bool {
	return n == 16 || n == 24 || n == 32
}

// EncryptToken encrypts a refresh token for storage using AES-GCM.
func EncryptToken(token string) (string, error) {
	if len(tokenKey) == 0 {
		return "", fmt.Errorf("token key not loaded")
	}

	block, err := aes.NewCipher(tokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptToken decrypts a refresh token encrypted with EncryptToken.
func DecryptToken(encrypted string) (string, error) {
	if len(tokenKey) == 0 {
		return "", fmt.Errorf("token key not loaded")
	}

	data, err := base64.StdEncoding.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("failed to decode token: %w", err)
	}

	block, err := aes.NewCipher(tokenKey)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt token: %w", err)
	}
	return string(plaintext), nil
}
