package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/vovakirdan/wirerelay/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreatePrincipalRejectsDuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice, err := s.CreatePrincipal(ctx, "alice", "sealed")
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if alice.ID == 0 || alice.Name != "alice" || alice.Credential != "sealed" {
		t.Fatalf("unexpected principal: %+v", alice)
	}

	if _, err := s.CreatePrincipal(ctx, "alice", "other"); !errors.Is(err, store.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGetPrincipalNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetPrincipalByName(ctx, "ghost"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by name, got %v", err)
	}
	if _, err := s.GetPrincipalByID(ctx, 42); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound by id, got %v", err)
	}
}

func TestFetchHistoryBothDirectionsInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ids := make(map[string]int64)
	for _, name := range []string{"alice", "bob", "carol"} {
		p, err := s.CreatePrincipal(ctx, name, "sealed")
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		ids[name] = p.ID
	}

	conversation := []struct {
		from, to, body string
	}{
		{"alice", "bob", "hi"},
		{"bob", "alice", "hey alice"},
		{"carol", "alice", "not for bob"},
		{"alice", "bob", "how are you?"},
	}
	for _, m := range conversation {
		rec := &store.HistoryRecord{SenderID: ids[m.from], ReceiverID: ids[m.to], Body: m.body}
		if err := s.AppendHistory(ctx, rec); err != nil {
			t.Fatalf("append %q: %v", m.body, err)
		}
		if rec.ID == 0 {
			t.Fatalf("record id not set for %q", m.body)
		}
	}

	records, err := s.FetchHistory(ctx, ids["bob"], ids["alice"])
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	expected := []string{"hi", "hey alice", "how are you?"}
	if len(records) != len(expected) {
		t.Fatalf("expected %d records, got %d", len(expected), len(records))
	}
	for i, rec := range records {
		if rec.Body != expected[i] {
			t.Errorf("expected %q at index %d, got %q", expected[i], i, rec.Body)
		}
	}
	if records[1].SenderID != ids["bob"] || records[1].ReceiverID != ids["alice"] {
		t.Errorf("unexpected direction for second record: %+v", records[1])
	}

	empty, err := s.FetchHistory(ctx, ids["bob"], ids["carol"])
	if err != nil {
		t.Fatalf("fetch empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no records, got %d", len(empty))
	}
}
