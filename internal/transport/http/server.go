package http

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/mailbox"
	"github.com/vovakirdan/wirerelay/internal/proto"
)

// Mailbox is the relay queue exposed to remote clients.
type Mailbox interface {
	Enqueue(ctx context.Context, env proto.Envelope) error
	Pop(ctx context.Context, f mailbox.Filter) (proto.Envelope, error)
	Restore(seq []proto.Envelope)
	Stats() mailbox.Stats
}

// SessionCounter reports how many clients are authenticated.
type SessionCounter interface {
	SessionCount() int
}

// NewServer builds the HTTP server exposing the mailbox.
func NewServer(mb Mailbox, sessions SessionCounter, tokens *auth.TokenConfig, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	frames := NewFrameHandlers(mb, sessions, cfg, logger)
	ws := NewWSHandler(mb, cfg, logger)

	router.GET("/api/stats", frames.Stats)

	authed := router.Group("/")
	authed.Use(AuthMiddleware(tokens, logger))
	authed.POST("/api/frames", frames.Post)
	authed.GET("/api/frames/next", frames.Next)
	authed.GET("/ws", ws.Serve)

	readTimeout := cfg.ReadHeaderTimeout
	if readTimeout <= 0 {
		readTimeout = 5 * time.Second
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: readTimeout,
	}
}

func healthHandler(c *gin.Context) {
	_, _ = fmt.Fprint(c.Writer, "ok")
}
