package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vovakirdan/wirerelay/internal/app"
	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/client"
	"github.com/vovakirdan/wirerelay/internal/config"
	transporthttp "github.com/vovakirdan/wirerelay/internal/transport/http"
	"github.com/vovakirdan/wirerelay/internal/utils"
)

func main() {
	if err := run(); err != nil {
		log.Printf("smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:50000/ws", "relay WebSocket address")
	key := flag.String("key", config.Default().AuthKey, "shared mailbox key")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	cfg := config.Default()
	cfg.AuthKey = *key
	tokens := app.TokenConfig(&cfg)

	// unique names keep the run repeatable against a persistent store
	suffix := utils.NewClientID()[:8]
	aliceName, bobName := "alice-"+suffix, "bob-"+suffix

	alice, closeAlice, err := dial(ctx, *addr, tokens)
	if err != nil {
		return err
	}
	defer closeAlice()
	bob, closeBob, err := dial(ctx, *addr, tokens)
	if err != nil {
		return err
	}
	defer closeBob()

	if err := alice.Register(ctx, aliceName, "alice-pass"); err != nil {
		return fmt.Errorf("register %s: %w", aliceName, err)
	}
	if err := bob.Register(ctx, bobName, "bob-pass"); err != nil {
		return fmt.Errorf("register %s: %w", bobName, err)
	}
	log.Printf("registered %s and %s", aliceName, bobName)

	pushes := bob.Notifications(ctx)
	if err := alice.Send(ctx, bobName, *text); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	select {
	case n, ok := <-pushes:
		if !ok {
			return fmt.Errorf("notification stream closed")
		}
		log.Printf("%s received push from %s: %q", bobName, n.From, n.Body)
		if n.From != aliceName || n.Body != *text {
			return fmt.Errorf("unexpected push %+v", n)
		}
	case <-ctx.Done():
		return fmt.Errorf("waiting for push: %w", ctx.Err())
	}

	history, err := alice.History(ctx, bobName)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if len(history) != 1 || history[0] != *text {
		return fmt.Errorf("unexpected history %q", history)
	}
	log.Printf("history ok: %q", history)

	_ = alice.Shutdown(ctx)
	_ = bob.Shutdown(ctx)
	return nil
}

func dial(ctx context.Context, addr string, tokens *auth.TokenConfig) (*client.Client, func(), error) {
	id := utils.NewClientID()
	token, err := auth.GenerateToken(tokens, id)
	if err != nil {
		return nil, nil, fmt.Errorf("sign token: %w", err)
	}
	remote, err := transporthttp.DialMailbox(ctx, addr, token, nil)
	if err != nil {
		return nil, nil, err
	}
	return client.NewWithID(id, remote, nil), func() { _ = remote.Close() }, nil
}
