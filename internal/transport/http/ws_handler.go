package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/mailbox"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

var errRateLimited = errors.New("rate limit exceeded")

// WSHandler upgrades HTTP connections into a duplex frame stream.
// Each text message carries exactly one encoded envelope.
type WSHandler struct {
	mailbox       Mailbox
	log           *zerolog.Logger
	maxFrameBytes int64
	ratePerMinute int
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(mb Mailbox, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		mailbox:       mb,
		log:           logger,
		maxFrameBytes: cfg.MaxFrameBytes,
		ratePerMinute: cfg.MaxFramesPerMinute,
	}
}

// Serve handles GET /ws for an authenticated client.
func (h *WSHandler) Serve(c *gin.Context) {
	h.serve(c.Writer, c.Request, c.GetString(ContextKeyClientID))
}

func (h *WSHandler) serve(w stdhttp.ResponseWriter, r *stdhttp.Request, clientID string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	if h.maxFrameBytes > 0 {
		conn.SetReadLimit(h.maxFrameBytes)
	}

	h.log.Info().Str("client_id", clientID).Msg("mailbox stream opened")
	defer h.log.Info().Str("client_id", clientID).Msg("mailbox stream closed")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	limiter := newFrameLimiter(h.ratePerMinute, frameLimitWindow)
	limiter.run(ctx.Done())

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, clientID, limiter)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, clientID)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) || errors.Is(err, mailbox.ErrClosed) {
			err = nil
			status = websocket.StatusGoingAway
		}
		if s := websocket.CloseStatus(err); s != -1 && err != nil {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			switch {
			case errors.Is(err, errRateLimited), errors.Is(err, errForbiddenFrame):
				status = websocket.StatusPolicyViolation
			case status == websocket.StatusNormalClosure:
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", clientID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, clientID string, limiter *frameLimiter) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			h.log.Debug().Str("client_id", clientID).Msg("drop binary message")
			continue
		}
		if !limiter.allow() {
			return errRateLimited
		}

		env, err := proto.Decode(string(data))
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", clientID).Msg("drop malformed frame")
			continue
		}
		if err := admitFrame(clientID, env); err != nil {
			return err
		}
		if err := h.mailbox.Enqueue(ctx, env); err != nil {
			return err
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, clientID string) error {
	filter := mailbox.ForClient(clientID)
	for {
		env, err := h.mailbox.Pop(ctx, filter)
		if err != nil {
			return err
		}
		if err := conn.Write(ctx, websocket.MessageText, []byte(proto.Encode(env))); err != nil {
			// the frame was never delivered; put it back for the next connection
			h.mailbox.Restore([]proto.Envelope{env})
			h.log.Error().Err(err).Str("client_id", clientID).Msg("write ws frame")
			return err
		}
	}
}
