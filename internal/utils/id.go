package utils

import "github.com/google/uuid"

// NewClientID returns a random identity for one client process lifetime.
func NewClientID() string {
	return uuid.NewString()
}

// IsClientID reports whether s looks like an identity produced by NewClientID.
func IsClientID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
