package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/wirerelay/internal/store"
)

// Schema is applied on every open; statements are idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS principals (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	credential  TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS history (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_id   INTEGER NOT NULL,
	receiver_id INTEGER NOT NULL,
	body        TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	FOREIGN KEY (sender_id) REFERENCES principals(id),
	FOREIGN KEY (receiver_id) REFERENCES principals(id)
);

CREATE INDEX IF NOT EXISTS idx_history_pair ON history(sender_id, receiver_id, id);
`

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup opens the database and runs setup before the first ping.
// Tests use it to seed fixtures on top of the schema.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with single connection; ":memory:" also needs it to keep one database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies Schema.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== PrincipalStore implementation ====

// CreatePrincipal inserts a principal and returns the stored row.
func (s *SQLiteStore) CreatePrincipal(ctx context.Context, name, credential string) (*store.Principal, error) {
	query := `
		INSERT INTO principals (name, credential)
		VALUES (?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, name, credential)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("principal %q: %w", name, store.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert principal: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.GetPrincipalByID(ctx, id)
}

// GetPrincipalByID retrieves a principal by ID.
func (s *SQLiteStore) GetPrincipalByID(ctx context.Context, id int64) (*store.Principal, error) {
	query := `
		SELECT id, name, credential, created_at
		FROM principals
		WHERE id = ?
	`
	return s.scanPrincipal(s.db.QueryRowContext(ctx, query, id))
}

// GetPrincipalByName retrieves a principal by name.
func (s *SQLiteStore) GetPrincipalByName(ctx context.Context, name string) (*store.Principal, error) {
	query := `
		SELECT id, name, credential, created_at
		FROM principals
		WHERE name = ?
	`
	return s.scanPrincipal(s.db.QueryRowContext(ctx, query, name))
}

func (s *SQLiteStore) scanPrincipal(row *sql.Row) (*store.Principal, error) {
	var p store.Principal
	err := row.Scan(&p.ID, &p.Name, &p.Credential, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("principal: %w", store.ErrNotFound)
		}
		return nil, fmt.Errorf("query principal: %w", err)
	}
	return &p, nil
}

// ==== HistoryStore implementation ====

// AppendHistory persists a record.
func (s *SQLiteStore) AppendHistory(ctx context.Context, rec *store.HistoryRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO history (sender_id, receiver_id, body, created_at)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, rec.SenderID, rec.ReceiverID, rec.Body, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get last insert id: %w", err)
	}

	rec.ID = id
	return nil
}

// FetchHistory returns the conversation between a and b ordered by insertion.
func (s *SQLiteStore) FetchHistory(ctx context.Context, a, b int64) ([]*store.HistoryRecord, error) {
	query := `
		SELECT id, sender_id, receiver_id, body, created_at
		FROM history
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, a, b, b, a)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var records []*store.HistoryRecord
	for rows.Next() {
		var rec store.HistoryRecord
		if err := rows.Scan(&rec.ID, &rec.SenderID, &rec.ReceiverID, &rec.Body, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}
