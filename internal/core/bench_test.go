package core

import (
	"context"
	"fmt"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/mailbox"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/store/sqlite"
)

func benchmarkPushRoundTrip(b *testing.B, idleClients int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := sqlite.New(":memory:")
	if err != nil {
		b.Fatalf("store: %v", err)
	}
	defer st.Close()

	mb := mailbox.New()
	d := NewDispatcher(mb, st, auth.NewService(st, bcrypt.MinCost), nil, 0)

	register := func(clientID, name string) {
		out := d.Execute(ctx, proto.ToServer(clientID, proto.CommandRegister, proto.FormatCredentials(name, "pw")))
		if len(out) != 1 || out[0].Command != proto.CommandConnected {
			b.Fatalf("register %s: %+v", name, out)
		}
	}
	register("sender", "sender")
	register("target", "target")

	// Idle clients leave their frames in the queue, like consumers that stopped polling.
	for i := range idleClients {
		id := fmt.Sprintf("idle-%d", i)
		register(id, id)
		if err := mb.Enqueue(ctx, proto.ToClient(id, proto.CommandNewMessage, "sender stale")); err != nil {
			b.Fatalf("enqueue: %v", err)
		}
	}

	go d.Run(ctx)

	req := proto.ToServer("sender", proto.CommandSendMessage, "target payload")
	filter := mailbox.ForClient("target", proto.CommandNewMessage)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if err := mb.Enqueue(ctx, req); err != nil {
			b.Fatalf("enqueue: %v", err)
		}
		if _, err := mb.Pop(ctx, filter); err != nil {
			b.Fatalf("pop: %v", err)
		}
	}
}

func BenchmarkPushRoundTrip_0(b *testing.B)   { benchmarkPushRoundTrip(b, 0) }
func BenchmarkPushRoundTrip_100(b *testing.B) { benchmarkPushRoundTrip(b, 100) }
func BenchmarkPushRoundTrip_500(b *testing.B) { benchmarkPushRoundTrip(b, 500) }
