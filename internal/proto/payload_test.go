package proto

import (
	"errors"
	"testing"
)

func TestParseCredentials(t *testing.T) {
	creds, err := ParseCredentials("alice 5f4dcc3b")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if creds.User != "alice" || creds.Token != "5f4dcc3b" {
		t.Fatalf("unexpected credentials: %+v", creds)
	}

	for _, payload := range []string{"", "alice", "alice ", " token"} {
		if _, err := ParseCredentials(payload); !errors.Is(err, ErrBadPayload) {
			t.Fatalf("payload %q: expected ErrBadPayload, got %v", payload, err)
		}
	}
}

func TestParseDirect(t *testing.T) {
	direct, err := ParseDirect("bob alice: how are you?")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if direct.Peer != "bob" || direct.Body != "alice: how are you?" {
		t.Fatalf("unexpected direct: %+v", direct)
	}

	if _, err := ParseDirect("bob"); !errors.Is(err, ErrBadPayload) {
		t.Fatalf("expected ErrBadPayload, got %v", err)
	}
}

func TestHistoryFrames(t *testing.T) {
	frame, err := ParseHistory(FormatHistory(2, "hi there"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if frame.Remaining != 2 || frame.Body != "hi there" || frame.Last() || frame.Empty() {
		t.Fatalf("unexpected frame: %+v", frame)
	}

	last, err := ParseHistory(FormatHistory(0, ""))
	if err != nil {
		t.Fatalf("parse last: %v", err)
	}
	if !last.Last() || last.Body != "" {
		t.Fatalf("unexpected last frame: %+v", last)
	}

	empty, err := ParseHistory(FormatEmptyHistory())
	if err != nil {
		t.Fatalf("parse sentinel: %v", err)
	}
	if !empty.Empty() || empty.Body != "" {
		t.Fatalf("unexpected sentinel: %+v", empty)
	}

	for _, payload := range []string{"x body", "-2 body", ""} {
		if _, err := ParseHistory(payload); !errors.Is(err, ErrBadPayload) {
			t.Fatalf("payload %q: expected ErrBadPayload, got %v", payload, err)
		}
	}
}
