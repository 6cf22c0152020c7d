package http

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/mailbox"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// RemoteMailbox is a client-side view of a relay's mailbox.
// Enqueued frames go over the WebSocket; frames pushed by the relay land in a
// local mailbox so callers can pop them with the usual filters.
type RemoteMailbox struct {
	conn   *websocket.Conn
	inbox  *mailbox.Mailbox
	log    *zerolog.Logger
	cancel context.CancelFunc
	done   chan struct{}
}

// DialMailbox connects to the relay's /ws endpoint with a mailbox token.
func DialMailbox(ctx context.Context, url, token string, logger *zerolog.Logger) (*RemoteMailbox, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPHeader: stdhttp.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		return nil, fmt.Errorf("dial mailbox: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	rm := &RemoteMailbox{
		conn:   conn,
		inbox:  mailbox.New(),
		log:    logger,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go rm.readLoop(runCtx)

	return rm, nil
}

// Enqueue sends one frame to the relay.
func (r *RemoteMailbox) Enqueue(ctx context.Context, env proto.Envelope) error {
	if err := r.conn.Write(ctx, websocket.MessageText, []byte(proto.Encode(env))); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Pop blocks until a frame received from the relay matches f.
func (r *RemoteMailbox) Pop(ctx context.Context, f mailbox.Filter) (proto.Envelope, error) {
	return r.inbox.Pop(ctx, f)
}

// TryPop takes a frame already received from the relay without waiting.
func (r *RemoteMailbox) TryPop(f mailbox.Filter) (proto.Envelope, bool) {
	return r.inbox.TryPop(f)
}

// Done is closed once the connection to the relay is gone.
func (r *RemoteMailbox) Done() <-chan struct{} {
	return r.done
}

// Close shuts the connection down and releases waiting callers.
func (r *RemoteMailbox) Close() error {
	err := r.conn.Close(websocket.StatusNormalClosure, "bye")
	r.cancel()
	<-r.done
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (r *RemoteMailbox) readLoop(ctx context.Context) {
	defer close(r.done)
	defer r.inbox.Close()

	for {
		_, data, err := r.conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				r.log.Warn().Err(err).Msg("mailbox stream ended")
			}
			return
		}

		env, err := proto.Decode(string(data))
		if err != nil {
			r.log.Debug().Err(err).Msg("drop malformed frame")
			continue
		}
		if err := r.inbox.Enqueue(ctx, env); err != nil {
			return
		}
	}
}
