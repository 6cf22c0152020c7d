package core

import (
	"context"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/mailbox"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/store/sqlite"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *mailbox.Mailbox) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	mb := mailbox.New()
	t.Cleanup(mb.Close)

	return NewDispatcher(mb, st, auth.NewService(st, bcrypt.MinCost), nil, 10*time.Millisecond), mb
}

// mustFrame waits for the next frame addressed to clientID.
func mustFrame(t *testing.T, mb *mailbox.Mailbox, clientID string) proto.Envelope {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	env, err := mb.Pop(ctx, mailbox.ForClient(clientID))
	if err != nil {
		t.Fatalf("expected frame for %s: %v", clientID, err)
	}
	return env
}

// mustExecuteOne runs a request and expects exactly one response frame.
func mustExecuteOne(t *testing.T, d *Dispatcher, req proto.Envelope) proto.Envelope {
	t.Helper()

	out := d.Execute(context.Background(), req)
	if len(out) != 1 {
		t.Fatalf("expected one frame for %s, got %d: %+v", req, len(out), out)
	}
	return out[0]
}

// connect registers name from clientID and fails the test unless CONNECTED comes back.
func connect(t *testing.T, d *Dispatcher, clientID, name string) {
	t.Helper()

	resp := mustExecuteOne(t, d, proto.ToServer(clientID, proto.CommandRegister, proto.FormatCredentials(name, "tok-"+name)))
	if resp.Command != proto.CommandConnected || resp.ClientID != clientID {
		t.Fatalf("register %s: unexpected response %s", name, resp)
	}
}
