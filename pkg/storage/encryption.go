package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2Iterations follows the OWASP recommendation for PBKDF2-SHA256.
const pbkdf2Iterations = 600000

// DeriveKey derives a 32-byte AES-256 key from a password and salt using
// PBKDF2-SHA256.
func DeriveKey(password, salt []byte) []byte {
	return pbkdf2.Key(password, salt, pbkdf2Iterations, 32, sha256.New)
}

// LoadOrCreateSalt reads the persisted key-derivation salt for the data
// directory, generating and persisting a fresh 32-byte salt on first use.
// The salt is required to re-derive the encryption key after a restart.
func LoadOrCreateSalt(dataDir string) ([]byte, error) {
	saltFile := filepath.Join(dataDir, "db.salt")

	if existing, err := os.ReadFile(saltFile); err == nil && len(existing) == 32 {
		return existing, nil
	}

	salt := make([]byte, 32)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate encryption salt: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := os.WriteFile(saltFile, salt, 0600); err != nil {
		return nil, fmt.Errorf("failed to save encryption salt: %w", err)
	}
	return salt, nil
}
