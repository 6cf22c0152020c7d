package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirerelay/internal/auth"
	"github.com/vovakirdan/wirerelay/internal/config"
	"github.com/vovakirdan/wirerelay/internal/core"
	"github.com/vovakirdan/wirerelay/internal/mailbox"
	"github.com/vovakirdan/wirerelay/internal/store"
	"github.com/vovakirdan/wirerelay/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/wirerelay/internal/transport/http"
)

// TokenTTL is how long a mailbox token stays valid.
const TokenTTL = 24 * time.Hour

// App wires the mailbox, dispatcher, store and transport together.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	mailbox         *mailbox.Mailbox
	dispatcher      *core.Dispatcher
	store           store.Store
	log             *zerolog.Logger
}

// TokenConfig derives the mailbox token policy from configuration.
func TokenConfig(cfg *config.Config) *auth.TokenConfig {
	return &auth.TokenConfig{
		Secret:   []byte(cfg.AuthKey),
		Issuer:   cfg.TokenIssuer,
		Audience: cfg.TokenAudience,
		TTL:      TokenTTL,
	}
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	mb := mailbox.New()
	authService := auth.NewService(st, cfg.BcryptCost)
	dispatcher := core.NewDispatcher(mb, st, authService, logger, cfg.RetryBackoff)
	server := transporthttp.NewServer(mb, dispatcher, TokenConfig(cfg), cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		mailbox:         mb,
		dispatcher:      dispatcher,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the dispatcher and the HTTP server and blocks until context
// cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	dispatchCtx, stopDispatch := context.WithCancel(ctx)
	defer stopDispatch()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := a.dispatcher.Run(dispatchCtx); err != nil {
			a.log.Error().Err(err).Msg("dispatcher exited")
		}
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("relay listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup(stopDispatch, &wg)
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// long polls and streams only end once the mailbox is closed
		a.mailbox.Close()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup(stopDispatch, &wg)
			return err
		}

		a.cleanup(stopDispatch, &wg)
		return <-serverErr
	}
}

// cleanup stops the dispatcher, then closes the mailbox and the database.
func (a *App) cleanup(stopDispatch context.CancelFunc, wg *sync.WaitGroup) {
	stopDispatch()
	a.mailbox.Close()
	wg.Wait()

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
