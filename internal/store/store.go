package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a principal does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when a principal name is taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Principal is a registered user.
type Principal struct {
	ID         int64
	Name       string
	Credential string // sealed credential token
	CreatedAt  time.Time
}

// HistoryRecord is one persisted direct message.
type HistoryRecord struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Body       string
	CreatedAt  time.Time
}

// PrincipalStore handles principal persistence.
type PrincipalStore interface {
	// CreatePrincipal stores a new principal. Fails with ErrAlreadyExists on a duplicate name.
	CreatePrincipal(ctx context.Context, name, credential string) (*Principal, error)

	// GetPrincipalByName fails with ErrNotFound if no principal has that name.
	GetPrincipalByName(ctx context.Context, name string) (*Principal, error)

	// GetPrincipalByID fails with ErrNotFound if the id is unknown.
	GetPrincipalByID(ctx context.Context, id int64) (*Principal, error)
}

// HistoryStore handles message history persistence.
type HistoryStore interface {
	// AppendHistory persists a record and sets its ID.
	AppendHistory(ctx context.Context, rec *HistoryRecord) error

	// FetchHistory returns every record exchanged between a and b, in both
	// directions, oldest first.
	FetchHistory(ctx context.Context, a, b int64) ([]*HistoryRecord, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	PrincipalStore
	HistoryStore

	// Close closes the underlying database connection.
	Close() error
}
