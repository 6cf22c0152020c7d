// Package client talks to the relay through a mailbox: it issues requests,
// reads the matching responses and polls for pushed messages.
package client

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/mailbox"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/utils"
)

// Mailbox is the queue shared with the dispatcher.
type Mailbox interface {
	Enqueue(ctx context.Context, env proto.Envelope) error
	Pop(ctx context.Context, f mailbox.Filter) (proto.Envelope, error)
	TryPop(f mailbox.Filter) (proto.Envelope, bool)
}

// Notification is a message pushed by the relay while the client was online.
type Notification struct {
	From string
	Body string
}

// SendFailure is a FAILED frame the relay produced for an earlier Send.
// Peer is the target of the most recent Send; with several sends in flight
// it may name a different one than the send that failed.
type SendFailure struct {
	Peer   string
	Reason string
}

// Client is one connected relay client. Request/response exchanges are
// serialized; the push poller runs independently.
type Client struct {
	id      string
	mailbox Mailbox
	log     *zerolog.Logger

	mu            sync.Mutex
	lastPeer      string
	onSendFailure func(SendFailure)
}

// New creates a client with a fresh identity.
func New(mb Mailbox, logger *zerolog.Logger) *Client {
	return NewWithID(utils.NewClientID(), mb, logger)
}

// NewWithID creates a client with a caller chosen identity.
func NewWithID(id string, mb Mailbox, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("client_id", id).Logger()
	return &Client{id: id, mailbox: mb, log: &l}
}

// ID returns the client identity used for addressing.
func (c *Client) ID() string {
	return c.id
}

// Login authenticates an existing principal.
func (c *Client) Login(ctx context.Context, user, password string) error {
	return c.connect(ctx, proto.CommandLogin, user, password)
}

// Register creates a principal and authenticates as it.
func (c *Client) Register(ctx context.Context, user, password string) error {
	return c.connect(ctx, proto.CommandRegister, user, password)
}

func (c *Client) connect(ctx context.Context, cmd proto.Command, user, password string) error {
	if user == "" || strings.Contains(user, " ") {
		return fmt.Errorf("invalid user name %q", user)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.discardStaleLocked()

	payload := proto.FormatCredentials(user, auth.CredentialToken(password))
	if err := c.send(ctx, cmd, payload); err != nil {
		return err
	}

	env, err := c.next(ctx)
	if err != nil {
		return err
	}
	switch env.Command {
	case proto.CommandConnected:
		c.log.Debug().Str("user", user).Msg("connected")
		return nil
	case proto.CommandFailed:
		return &FailedError{Reason: env.Payload}
	default:
		return &ProtocolError{Expecting: string(proto.CommandConnected), Frame: env}
	}
}

// History returns the conversation with peer, oldest first.
//
// The relay answers with MESSAGE frames counting down to 0, or a single frame
// with counter -1 when there is nothing to show.
func (c *Client) History(ctx context.Context, peer string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.discardStaleLocked()

	if err := c.send(ctx, proto.CommandGetMessages, peer); err != nil {
		return nil, err
	}

	var bodies []string
	for {
		env, err := c.next(ctx)
		if err != nil {
			return nil, err
		}

		switch env.Command {
		case proto.CommandMessage:
		case proto.CommandFailed:
			return nil, &FailedError{Reason: env.Payload}
		default:
			return nil, &ProtocolError{Expecting: string(proto.CommandMessage), Frame: env}
		}

		frame, err := proto.ParseHistory(env.Payload)
		if err != nil {
			return nil, &ProtocolError{Expecting: string(proto.CommandMessage), Frame: env, Err: err}
		}
		if frame.Empty() {
			if len(bodies) > 0 {
				return nil, &ProtocolError{Expecting: string(proto.CommandMessage), Frame: env}
			}
			return []string{}, nil
		}

		bodies = append(bodies, frame.Body)
		if frame.Last() {
			return bodies, nil
		}
	}
}

// Send delivers body to peer. The relay does not acknowledge it; a failure
// comes back as a FAILED frame that is reported through OnSendFailure at the
// start of the next exchange.
func (c *Client) Send(ctx context.Context, peer, body string) error {
	if peer == "" || strings.Contains(peer, " ") {
		return fmt.Errorf("invalid peer name %q", peer)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.discardStaleLocked()

	c.lastPeer = peer
	return c.send(ctx, proto.CommandSendMessage, proto.FormatDirect(peer, body))
}

// OnSendFailure registers fn to receive failures of earlier sends. fn runs
// while the client is busy and must not call back into it.
func (c *Client) OnSendFailure(fn func(SendFailure)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSendFailure = fn
}

// Shutdown tells the relay this client is going away.
func (c *Client) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.send(ctx, proto.CommandShutdown, "")
}

// Notifications starts the push poller. The channel is closed when ctx ends
// or the mailbox stops.
func (c *Client) Notifications(ctx context.Context) <-chan Notification {
	out := make(chan Notification, 16)
	filter := mailbox.ForClient(c.id, proto.CommandNewMessage)

	go func() {
		defer close(out)
		for {
			env, err := c.mailbox.Pop(ctx, filter)
			if err != nil {
				if ctx.Err() == nil {
					c.log.Warn().Err(err).Msg("notification poller stopped")
				}
				return
			}

			direct, err := proto.ParseDirect(env.Payload)
			if err != nil {
				c.log.Warn().Err(err).Str("frame", env.String()).Msg("drop malformed notification")
				continue
			}

			select {
			case out <- Notification{From: direct.Peer, Body: direct.Body}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func (c *Client) send(ctx context.Context, cmd proto.Command, payload string) error {
	if err := c.mailbox.Enqueue(ctx, proto.ToServer(c.id, cmd, payload)); err != nil {
		return fmt.Errorf("enqueue %s: %w", cmd, err)
	}
	return nil
}

// responses selects the frames that answer this client's requests.
func (c *Client) responses() mailbox.Filter {
	return mailbox.ForClient(c.id, proto.CommandConnected, proto.CommandFailed, proto.CommandMessage)
}

// discardStaleLocked drops responses already delivered before the current
// exchange starts: FAILED frames of earlier sends and leftovers of aborted
// exchanges. Callers hold c.mu.
func (c *Client) discardStaleLocked() {
	for {
		env, ok := c.mailbox.TryPop(c.responses())
		if !ok {
			return
		}
		if env.Command != proto.CommandFailed {
			c.log.Debug().Str("frame", env.String()).Msg("drop stale response")
			continue
		}

		failure := SendFailure{Peer: c.lastPeer, Reason: env.Payload}
		c.log.Warn().Str("peer", failure.Peer).Str("reason", failure.Reason).Msg("earlier send failed")
		if c.onSendFailure != nil {
			c.onSendFailure(failure)
		}
	}
}

// next pops the next response addressed to this client. Pushes are left for
// the notification poller.
func (c *Client) next(ctx context.Context) (proto.Envelope, error) {
	env, err := c.mailbox.Pop(ctx, c.responses())
	if err != nil {
		return proto.Envelope{}, fmt.Errorf("await response: %w", err)
	}
	return env, nil
}
