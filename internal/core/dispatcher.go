package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/mailbox"
	"github.com/vovakirdan/wirerelay/internal/proto"
	"github.com/vovakirdan/wirerelay/internal/store"
)

// DefaultRetryBackoff is the pause after a failed mailbox pop.
const DefaultRetryBackoff = time.Second

// Mailbox is the queue the dispatcher consumes requests from and publishes responses to.
type Mailbox interface {
	Enqueue(ctx context.Context, env proto.Envelope) error
	Pop(ctx context.Context, f mailbox.Filter) (proto.Envelope, error)
}

// RecordStore is the persistence the dispatcher needs.
type RecordStore interface {
	store.PrincipalStore
	store.HistoryStore
}

// Dispatcher executes server-bound commands and enqueues the resulting frames.
// It owns the session table.
type Dispatcher struct {
	mailbox      Mailbox
	records      RecordStore
	auth         *auth.Service
	sessions     *SessionTable
	log          *zerolog.Logger
	retryBackoff time.Duration
}

// NewDispatcher creates a dispatcher with an empty session table.
func NewDispatcher(mb Mailbox, records RecordStore, authService *auth.Service, logger *zerolog.Logger, retryBackoff time.Duration) *Dispatcher {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if retryBackoff <= 0 {
		retryBackoff = DefaultRetryBackoff
	}
	return &Dispatcher{
		mailbox:      mb,
		records:      records,
		auth:         authService,
		sessions:     NewSessionTable(),
		log:          logger,
		retryBackoff: retryBackoff,
	}
}

// SessionCount returns the number of authenticated clients.
func (d *Dispatcher) SessionCount() int {
	return d.sessions.Len()
}

// Run consumes requests until ctx is cancelled or the mailbox is closed.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Msg("dispatcher started")
	defer d.log.Info().Msg("dispatcher stopped")

	for {
		env, err := d.mailbox.Pop(ctx, mailbox.ForServer())
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, mailbox.ErrClosed) {
				return nil
			}
			d.log.Warn().Err(err).Dur("backoff", d.retryBackoff).Msg("pop request")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(d.retryBackoff):
			}
			continue
		}

		for _, out := range d.Execute(ctx, env) {
			if err := d.mailbox.Enqueue(ctx, out); err != nil {
				d.log.Error().Err(err).
					Str("client_id", out.ClientID).
					Str("command", string(out.Command)).
					Msg("enqueue response")
			}
		}
	}
}

// Execute runs one request and returns the frames to enqueue, in order.
// Command errors become a single FAILED frame for the issuing client.
func (d *Dispatcher) Execute(ctx context.Context, env proto.Envelope) []proto.Envelope {
	if env.Target != proto.TargetServer {
		return nil
	}

	out, err := d.execute(ctx, env)
	if err != nil {
		reason := ReasonFor(err)
		ev := d.log.Info()
		if reason == ReasonInternal {
			ev = d.log.Error()
		}
		ev.Err(err).
			Str("client_id", env.ClientID).
			Str("command", string(env.Command)).
			Str("reason", reason).
			Msg("command failed")
		return []proto.Envelope{proto.ToClient(env.ClientID, proto.CommandFailed, reason)}
	}

	d.log.Debug().
		Str("client_id", env.ClientID).
		Str("command", string(env.Command)).
		Int("frames", len(out)).
		Msg("command handled")
	return out
}

func (d *Dispatcher) execute(ctx context.Context, env proto.Envelope) ([]proto.Envelope, error) {
	switch env.Command {
	case proto.CommandLogin:
		return d.login(ctx, env)
	case proto.CommandRegister:
		return d.register(ctx, env)
	case proto.CommandGetMessages:
		return d.getMessages(ctx, env)
	case proto.CommandSendMessage:
		return d.sendMessage(ctx, env)
	case proto.CommandShutdown:
		d.sessions.Forget(env.ClientID)
		return nil, nil
	default:
		return nil, ErrUnexpectedCommand
	}
}

func (d *Dispatcher) login(ctx context.Context, env proto.Envelope) ([]proto.Envelope, error) {
	creds, err := proto.ParseCredentials(env.Payload)
	if err != nil {
		return nil, err
	}

	p, err := d.auth.Login(ctx, creds.User, creds.Token)
	if err != nil {
		return nil, err
	}

	d.sessions.Authenticate(env.ClientID, p.ID)
	return []proto.Envelope{proto.ToClient(env.ClientID, proto.CommandConnected, "")}, nil
}

func (d *Dispatcher) register(ctx context.Context, env proto.Envelope) ([]proto.Envelope, error) {
	creds, err := proto.ParseCredentials(env.Payload)
	if err != nil {
		return nil, err
	}

	p, err := d.auth.Register(ctx, creds.User, creds.Token)
	if err != nil {
		return nil, err
	}

	d.sessions.Authenticate(env.ClientID, p.ID)
	return []proto.Envelope{proto.ToClient(env.ClientID, proto.CommandConnected, "")}, nil
}

// getMessages streams the conversation oldest first. Each frame carries the
// number of frames still to come; -1 marks an empty conversation.
func (d *Dispatcher) getMessages(ctx context.Context, env proto.Envelope) ([]proto.Envelope, error) {
	principalID, err := d.sessions.Resolve(env.ClientID)
	if err != nil {
		return nil, err
	}

	peerName := strings.TrimSpace(env.Payload)
	if peerName == "" {
		return nil, proto.ErrBadPayload
	}
	peer, err := d.records.GetPrincipalByName(ctx, peerName)
	if err != nil {
		return nil, err
	}

	records, err := d.records.FetchHistory(ctx, principalID, peer.ID)
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return []proto.Envelope{
			proto.ToClient(env.ClientID, proto.CommandMessage, proto.FormatEmptyHistory()),
		}, nil
	}

	out := make([]proto.Envelope, 0, len(records))
	remaining := len(records) - 1
	for _, rec := range records {
		out = append(out, proto.ToClient(env.ClientID, proto.CommandMessage, proto.FormatHistory(remaining, rec.Body)))
		remaining--
	}
	return out, nil
}

// sendMessage persists the message and pushes it to the receiver when online.
// An offline receiver gets nothing until it asks for the history.
func (d *Dispatcher) sendMessage(ctx context.Context, env proto.Envelope) ([]proto.Envelope, error) {
	principalID, err := d.sessions.Resolve(env.ClientID)
	if err != nil {
		return nil, err
	}

	direct, err := proto.ParseDirect(env.Payload)
	if err != nil {
		return nil, err
	}

	sender, err := d.records.GetPrincipalByID(ctx, principalID)
	if err != nil {
		return nil, err
	}
	receiver, err := d.records.GetPrincipalByName(ctx, direct.Peer)
	if err != nil {
		return nil, err
	}

	rec := &store.HistoryRecord{
		SenderID:   sender.ID,
		ReceiverID: receiver.ID,
		Body:       direct.Body,
	}
	if err := d.records.AppendHistory(ctx, rec); err != nil {
		return nil, err
	}

	receiverClient, err := d.sessions.ReverseResolve(receiver.ID)
	if err != nil {
		d.log.Debug().Err(err).
			Str("client_id", env.ClientID).
			Str("receiver", receiver.Name).
			Msg("push dropped")
		return nil, nil
	}

	return []proto.Envelope{
		proto.ToClient(receiverClient, proto.CommandNewMessage, proto.FormatDirect(sender.Name, direct.Body)),
	}, nil
}
