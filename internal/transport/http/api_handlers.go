package http

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/mailbox"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// errForbiddenFrame is returned when a connection posts a frame it may not issue.
var errForbiddenFrame = errors.New("frame not allowed for this client")

// FrameHandlers serves the mailbox over plain HTTP.
type FrameHandlers struct {
	mailbox       Mailbox
	sessions      SessionCounter
	log           *zerolog.Logger
	longPoll      time.Duration
	maxFrameBytes int64
}

// NewFrameHandlers creates a new frame handlers instance.
func NewFrameHandlers(mb Mailbox, sessions SessionCounter, cfg *config.Config, logger *zerolog.Logger) *FrameHandlers {
	longPoll := cfg.LongPollTimeout
	if longPoll <= 0 {
		longPoll = 25 * time.Second
	}
	return &FrameHandlers{
		mailbox:       mb,
		sessions:      sessions,
		log:           logger,
		longPoll:      longPoll,
		maxFrameBytes: cfg.MaxFrameBytes,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PostResponse reports what happened to a batch of posted frames.
type PostResponse struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	mailbox.Stats
	Sessions int `json:"sessions"`
}

// admitFrame checks that clientID may put env into the mailbox.
// Only requests issued under the caller's own identity are accepted.
func admitFrame(clientID string, env proto.Envelope) error {
	if env.Target != proto.TargetServer || env.ClientID != clientID {
		return errForbiddenFrame
	}
	return nil
}

// Post enqueues newline-separated request frames.
// POST /api/frames
func (h *FrameHandlers) Post(c *gin.Context) {
	clientID := c.GetString(ContextKeyClientID)

	body := c.Request.Body
	if h.maxFrameBytes > 0 {
		body = http.MaxBytesReader(c.Writer, body, h.maxFrameBytes)
	}

	var (
		frames  []proto.Envelope
		dropped int
	)
	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		env, err := proto.Decode(line)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", clientID).Msg("drop malformed frame")
			dropped++
			continue
		}
		if err := admitFrame(clientID, env); err != nil {
			h.log.Warn().Err(err).
				Str("client_id", clientID).
				Str("frame_client_id", env.ClientID).
				Str("target", string(env.Target)).
				Msg("rejected frame batch")
			c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
			return
		}
		frames = append(frames, env)
	}
	if err := scanner.Err(); err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "request body too large"})
		return
	}

	for _, env := range frames {
		if err := h.mailbox.Enqueue(c.Request.Context(), env); err != nil {
			h.log.Error().Err(err).Str("client_id", clientID).Msg("enqueue frame")
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "mailbox unavailable"})
			return
		}
	}

	c.JSON(http.StatusAccepted, PostResponse{Accepted: len(frames), Dropped: dropped})
}

// Next long-polls for the next frame addressed to the caller.
// GET /api/frames/next?commands=A,B&wait=20s
func (h *FrameHandlers) Next(c *gin.Context) {
	clientID := c.GetString(ContextKeyClientID)

	cmds, err := parseCommands(c.Query("commands"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	wait := h.longPoll
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid wait duration"})
			return
		}
		wait = min(d, h.longPoll)
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
	defer cancel()

	env, err := h.mailbox.Pop(ctx, mailbox.ForClient(clientID, cmds...))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			c.Status(http.StatusNoContent)
			return
		}
		if errors.Is(err, mailbox.ErrClosed) {
			c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "mailbox closed"})
			return
		}
		// client went away
		return
	}

	c.String(http.StatusOK, proto.Encode(env))
}

// Stats reports mailbox depth and the number of authenticated sessions.
// GET /api/stats
func (h *FrameHandlers) Stats(c *gin.Context) {
	resp := StatsResponse{Stats: h.mailbox.Stats()}
	if h.sessions != nil {
		resp.Sessions = h.sessions.SessionCount()
	}
	c.JSON(http.StatusOK, resp)
}

// parseCommands reads a comma-separated list of client-bound commands.
func parseCommands(raw string) ([]proto.Command, error) {
	if raw == "" {
		return nil, nil
	}
	var cmds []proto.Command
	for _, part := range strings.Split(raw, ",") {
		cmd := proto.Command(strings.TrimSpace(part))
		if dir, ok := cmd.Direction(); !ok || dir != proto.TargetClient {
			return nil, errors.New("unknown client command: " + string(cmd))
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
