package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/vovakirdan/wirerelay/internal/store"
)

// ErrWrongCredential is returned when a presented token does not match the stored one.
var ErrWrongCredential = errors.New("wrong credential")

// Service checks and creates principals on behalf of the dispatcher.
type Service struct {
	store store.PrincipalStore
	cost  int
}

// NewService creates a new authentication service. cost is the bcrypt cost;
// zero selects DefaultCost.
func NewService(principals store.PrincipalStore, cost int) *Service {
	return &Service{
		store: principals,
		cost:  cost,
	}
}

// Register creates a principal holding the sealed token.
// Fails with store.ErrAlreadyExists when the name is taken.
func (s *Service) Register(ctx context.Context, name, token string) (*store.Principal, error) {
	sealed, err := SealCredential(token, s.cost)
	if err != nil {
		return nil, fmt.Errorf("register %q: %w", name, err)
	}

	p, err := s.store.CreatePrincipal(ctx, name, sealed)
	if err != nil {
		return nil, fmt.Errorf("register %q: %w", name, err)
	}
	return p, nil
}

// Login returns the principal if token matches its stored credential.
// Fails with store.ErrNotFound or ErrWrongCredential.
func (s *Service) Login(ctx context.Context, name, token string) (*store.Principal, error) {
	p, err := s.store.GetPrincipalByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("login %q: %w", name, err)
	}

	if err := CompareCredential(p.Credential, token); err != nil {
		return nil, fmt.Errorf("login %q: %w", name, err)
	}
	return p, nil
}
