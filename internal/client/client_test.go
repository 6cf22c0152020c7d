package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/mailbox"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/store/sqlite"
	"github.com/vovakirdan/wirerelay/internal/utils"
)

func startRelay(t *testing.T) (*mailbox.Mailbox, context.Context) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mb := mailbox.New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	t.Cleanup(mb.Close)

	d := core.NewDispatcher(mb, st, auth.NewService(st, bcrypt.MinCost), nil, 10*time.Millisecond)
	go d.Run(ctx)

	return mb, ctx
}

// answerNextRequest plays the relay for one request: it waits for the next
// server-bound frame and enqueues the scripted responses.
func answerNextRequest(t *testing.T, ctx context.Context, mb *mailbox.Mailbox, frames ...proto.Envelope) {
	t.Helper()
	go func() {
		if _, err := mb.Pop(ctx, mailbox.ForServer()); err != nil {
			return
		}
		for _, env := range frames {
			if err := mb.Enqueue(ctx, env); err != nil {
				return
			}
		}
	}()
}

func TestAliceAndBobScenario(t *testing.T) {
	mb, ctx := startRelay(t)

	alice := New(mb, nil)
	bob := New(mb, nil)
	assert.True(t, utils.IsClientID(alice.ID()))
	assert.NotEqual(t, alice.ID(), bob.ID())

	require.NoError(t, alice.Register(ctx, "alice", "wonderland"))
	require.NoError(t, bob.Register(ctx, "bob", "builder"))

	bobPushes := bob.Notifications(ctx)

	require.NoError(t, alice.Send(ctx, "bob", "hi"))

	select {
	case n := <-bobPushes:
		assert.Equal(t, Notification{From: "alice", Body: "hi"}, n)
	case <-ctx.Done():
		t.Fatal("bob did not receive the push")
	}

	history, err := bob.History(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, history)
}

func TestLoginAfterRestartOfClient(t *testing.T) {
	mb, ctx := startRelay(t)

	first := New(mb, nil)
	require.NoError(t, first.Register(ctx, "carol", "secret"))
	require.NoError(t, first.Shutdown(ctx))

	second := New(mb, nil)
	require.NoError(t, second.Login(ctx, "carol", "secret"))

	var failed *FailedError
	err := New(mb, nil).Login(ctx, "carol", "guess")
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, core.ReasonWrongPassword, failed.Reason)

	err = New(mb, nil).Register(ctx, "carol", "again")
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, core.ReasonAlreadyExists, failed.Reason)

	err = New(mb, nil).Login(ctx, "dave", "x")
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, core.ReasonNotFound, failed.Reason)
}

func TestHistoryAccumulatesInOrder(t *testing.T) {
	mb, ctx := startRelay(t)

	alice := New(mb, nil)
	bob := New(mb, nil)
	require.NoError(t, alice.Register(ctx, "alice", "a"))
	require.NoError(t, bob.Register(ctx, "bob", "b"))

	empty, err := alice.History(ctx, "bob")
	require.NoError(t, err)
	assert.Empty(t, empty)

	var want []string
	for i := 0; i < 4; i++ {
		body := fmt.Sprintf("alice: line %d with spaces", i)
		require.NoError(t, alice.Send(ctx, "bob", body))
		want = append(want, body)
	}

	got, err := alice.History(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Bob never polled his pushes; they stay queued and do not disturb his history.
	got, err = bob.History(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHistoryRequiresLogin(t *testing.T) {
	mb, ctx := startRelay(t)

	var failed *FailedError
	_, err := New(mb, nil).History(ctx, "anyone")
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, core.ReasonNotAuthenticated, failed.Reason)
}

func TestHistoryAbortsOnFailedMidSequence(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mb := mailbox.New()
	c := NewWithID("c1", mb, nil)

	answerNextRequest(t, ctx, mb,
		proto.ToClient("c1", proto.CommandMessage, proto.FormatHistory(2, "first")),
		proto.ToClient("c1", proto.CommandFailed, core.ReasonInternal),
	)

	_, err := c.History(ctx, "bob")
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, core.ReasonInternal, failed.Reason)
}

func TestHistoryRejectsUnexpectedFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	tests := []struct {
		name   string
		frames []proto.Envelope
	}{
		{
			name: "connected mid-sequence",
			frames: []proto.Envelope{
				proto.ToClient("c1", proto.CommandMessage, proto.FormatHistory(1, "first")),
				proto.ToClient("c1", proto.CommandConnected, ""),
			},
		},
		{
			name: "sentinel after bodies",
			frames: []proto.Envelope{
				proto.ToClient("c1", proto.CommandMessage, proto.FormatHistory(1, "first")),
				proto.ToClient("c1", proto.CommandMessage, proto.FormatEmptyHistory()),
			},
		},
		{
			name: "bad counter",
			frames: []proto.Envelope{
				proto.ToClient("c1", proto.CommandMessage, "many first"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mb := mailbox.New()
			answerNextRequest(t, ctx, mb, tt.frames...)

			_, err := NewWithID("c1", mb, nil).History(ctx, "bob")
			var protoErr *ProtocolError
			require.ErrorAs(t, err, &protoErr)
		})
	}
}

func TestConnectRejectsMessageFrame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mb := mailbox.New()
	answerNextRequest(t, ctx, mb, proto.ToClient("c1", proto.CommandMessage, "0 stray"))

	err := NewWithID("c1", mb, nil).Login(ctx, "alice", "pw")
	var protoErr *ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, proto.CommandMessage, protoErr.Frame.Command)
}

func TestClientsOnlyConsumeTheirOwnFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	mb := mailbox.New()
	require.NoError(t, mb.Enqueue(ctx, proto.ToClient("x", proto.CommandConnected, "")))

	err := NewWithID("y", mb, nil).Login(ctx, "yvonne", "pw")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok := mb.TryPop(mailbox.ForClient("x"))
	assert.True(t, ok, "frame for x must still be queued")
}

func TestRejectsNamesWithSpaces(t *testing.T) {
	ctx := context.Background()
	c := NewWithID("c1", mailbox.New(), nil)

	require.Error(t, c.Register(ctx, "alice smith", "pw"))
	require.Error(t, c.Send(ctx, "", "hi"))
}

func TestFailedSendDoesNotLeakIntoNextExchange(t *testing.T) {
	mb, ctx := startRelay(t)

	alice := New(mb, nil)
	bob := New(mb, nil)
	require.NoError(t, alice.Register(ctx, "alice", "wonderland"))
	require.NoError(t, bob.Register(ctx, "bob", "builder"))
	// bob goes offline so his push does not stay queued
	require.NoError(t, bob.Shutdown(ctx))

	var failures []SendFailure
	alice.OnSendFailure(func(f SendFailure) { failures = append(failures, f) })

	require.NoError(t, alice.Send(ctx, "bob", "hi"))
	require.NoError(t, alice.Send(ctx, "nobody", "lost"))

	// wait until the relay has answered the failed send
	require.Eventually(t, func() bool {
		st := mb.Stats()
		return st.ServerFrames == 0 && st.ClientFrames == 1
	}, 2*time.Second, 5*time.Millisecond)

	history, err := alice.History(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, history)
	assert.Equal(t, []SendFailure{{Peer: "nobody", Reason: core.ReasonNotFound}}, failures)

	history, err = alice.History(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"hi"}, history)

	_, err = alice.History(ctx, "nobody")
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, core.ReasonNotFound, failed.Reason)
}

func TestStaleHistoryFramesAreDiscarded(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	mb := mailbox.New()
	c := NewWithID("c1", mb, nil)

	// leftovers of an exchange that was abandoned halfway
	require.NoError(t, mb.Enqueue(ctx, proto.ToClient("c1", proto.CommandMessage, proto.FormatHistory(0, "old"))))

	answerNextRequest(t, ctx, mb, proto.ToClient("c1", proto.CommandMessage, proto.FormatHistory(0, "fresh")))

	history, err := c.History(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, history)
}
