package core

import (
	"errors"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/store"
)

// Reason codes carried by FAILED frames.
const (
	ReasonNotFound         = "NOT_FOUND"
	ReasonWrongPassword    = "WRONG_PASSWORD"
	ReasonAlreadyExists    = "ALREADY_EXISTS"
	ReasonNotAuthenticated = "NOT_AUTHENTICATED"
	ReasonBadRequest       = "BAD_REQUEST"
	ReasonInternal         = "INTERNAL"
)

var (
	// ErrNotAuthenticated is returned when a client identity has no session.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrPrincipalOffline is returned when no live client maps to a principal.
	ErrPrincipalOffline = errors.New("principal offline")
	// ErrUnexpectedCommand is returned for a client-bound command sent to the server.
	ErrUnexpectedCommand = errors.New("unexpected command")
)

// ReasonFor maps a command error to the reason code sent back to the client.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ReasonNotFound
	case errors.Is(err, auth.ErrWrongCredential):
		return ReasonWrongPassword
	case errors.Is(err, store.ErrAlreadyExists):
		return ReasonAlreadyExists
	case errors.Is(err, ErrNotAuthenticated):
		return ReasonNotAuthenticated
	case errors.Is(err, proto.ErrBadPayload), errors.Is(err, ErrUnexpectedCommand):
		return ReasonBadRequest
	default:
		return ReasonInternal
	}
}
