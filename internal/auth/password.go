package auth

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirerelay/internal/proto"
)

// DefaultCost is the bcrypt cost used to seal stored credentials.
const DefaultCost = 10

// MaxTokenBytes is the longest credential token bcrypt can seal.
const MaxTokenBytes = 72

func checkTokenLength(token string) error {
	if len(token) > MaxTokenBytes {
		return fmt.Errorf("token longer than %d bytes: %w", MaxTokenBytes, proto.ErrBadPayload)
	}
	return nil
}

// CredentialToken derives the opaque token a client sends instead of its password.
func CredentialToken(password string) string {
	sum := blake3.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// SealCredential generates a bcrypt hash of a credential token for storage.
func SealCredential(token string, cost int) (string, error) {
	if cost == 0 {
		cost = DefaultCost
	}
	if err := checkTokenLength(token); err != nil {
		return "", fmt.Errorf("seal credential: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return "", fmt.Errorf("seal credential: %w", err)
	}
	return string(hash), nil
}

// CompareCredential checks a presented token against a sealed one.
// A mismatch is ErrWrongCredential and an oversized token is proto.ErrBadPayload.
// Any other error means the stored credential is unusable.
func CompareCredential(sealed, token string) error {
	if err := checkTokenLength(token); err != nil {
		return fmt.Errorf("compare credential: %w", err)
	}
	err := bcrypt.CompareHashAndPassword([]byte(sealed), []byte(token))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return ErrWrongCredential
	default:
		return fmt.Errorf("compare credential: %w", err)
	}
}
