package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirerelay/internal/app"
	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/client"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/log"
	transporthttp "github.com/vovakirdan/wirerelay/internal/transport/http"
	"github.com/vovakirdan/wirerelay/internal/utils"
)

var (
	chatURL      string
	chatKey      string
	chatUser     string
	chatPassword string
	chatRegister bool
)

// chatCmd is an interactive client.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat through a running relay",
	Long: `Connect to a relay, log in and exchange direct messages.

Commands:
  /to <user>        choose the peer for plain lines
  /history [user]   print the conversation with a peer
  /quit             leave

Any other line is sent to the current peer.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if chatUser == "" || chatPassword == "" {
			return errors.New("--user and --password are required")
		}

		cfg := config.Default()
		cfg.UpdateFrom(config.Config{AuthKey: chatKey, LogLevel: logLevel, LogFormat: logFormat})
		if logLevel == "" {
			cfg.LogLevel = "warn"
		}
		logger := log.New(cfg.LogLevel, cfg.LogFormat)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		id := utils.NewClientID()
		token, err := auth.GenerateToken(app.TokenConfig(&cfg), id)
		if err != nil {
			return fmt.Errorf("sign mailbox token: %w", err)
		}

		dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		remote, err := transporthttp.DialMailbox(dialCtx, chatURL, token, logger)
		cancel()
		if err != nil {
			return err
		}
		defer remote.Close()

		c := client.NewWithID(id, remote, logger)
		if chatRegister {
			err = c.Register(ctx, chatUser, chatPassword)
		} else {
			err = c.Login(ctx, chatUser, chatPassword)
		}
		if err != nil {
			return err
		}
		fmt.Printf("connected as %s\n", chatUser)

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("shutdown")
			}
		}()

		c.OnSendFailure(func(f client.SendFailure) {
			fmt.Printf("send to %s failed: %s\n", f.Peer, f.Reason)
		})

		return chatLoop(ctx, c, c.Notifications(ctx), remote.Done())
	},
}

// chatLoop owns the selected peer and reads stdin, pushes and the relay
// connection in one select.
func chatLoop(ctx context.Context, c *client.Client, pushes <-chan client.Notification, gone <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	var peer string
	fmt.Print("> ")
	for {
		var line string
		select {
		case <-ctx.Done():
			return nil
		case <-gone:
			return errors.New("relay connection lost")
		case n, ok := <-pushes:
			if !ok {
				pushes = nil
				continue
			}
			fmt.Printf("\n%s\n> ", formatPush(n, peer))
			continue
		case l, ok := <-lines:
			if !ok {
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "":
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/to "):
			peer = strings.TrimSpace(strings.TrimPrefix(line, "/to "))
		case line == "/history" || strings.HasPrefix(line, "/history "):
			who := strings.TrimSpace(strings.TrimPrefix(line, "/history"))
			if who == "" {
				who = peer
			}
			if who == "" {
				fmt.Println("no peer selected, use /to <user>")
				break
			}
			history, err := c.History(ctx, who)
			if err != nil {
				fmt.Printf("history: %v\n", err)
				break
			}
			for _, body := range history {
				fmt.Println(body)
			}
		default:
			if peer == "" {
				fmt.Println("no peer selected, use /to <user>")
				break
			}
			if err := c.Send(ctx, peer, line); err != nil {
				return err
			}
		}
		fmt.Print("> ")
	}
}

// formatPush renders a push. Only the selected peer's messages are shown in
// full; others just announce the sender and wait for /history.
func formatPush(n client.Notification, peer string) string {
	if n.From == peer {
		return fmt.Sprintf("[%s] %s", n.From, n.Body)
	}
	return fmt.Sprintf("(new message from %s, /history %s to read)", n.From, n.From)
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatURL, "url", "ws://localhost:50000/ws", "Relay WebSocket URL")
	chatCmd.Flags().StringVar(&chatKey, "key", "", "Shared mailbox key (auth_key of the relay)")
	chatCmd.Flags().StringVar(&chatUser, "user", "", "Principal name")
	chatCmd.Flags().StringVar(&chatPassword, "password", "", "Password")
	chatCmd.Flags().BoolVar(&chatRegister, "register", false, "Register the principal instead of logging in")
}
