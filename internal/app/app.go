package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gridspace/server/internal/arena"
	"gridspace/server/internal/auth"
	"gridspace/server/internal/httpapi"
	"gridspace/server/internal/net/ws"
	"gridspace/server/internal/store"
)

// Run wires the service together and serves until ctx is cancelled: content
// store, auth service, arena session manager, REST API, and the websocket
// endpoint. Shutdown closes every live connection, which drains the sessions
// through the normal leave path, then discards all in-memory state.
func Run(ctx context.Context) error {
	cfg, err := LoadConfig("config")
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	defer logger.Sync()

	st := store.New()
	authSvc := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	manager := arena.NewManager(st, logger)
	registry := ws.NewRegistry()
	wsHandler := ws.NewHandler(manager, authSvc, registry, logger, ws.HandlerConfig{
		ReadLimit: cfg.WS.ReadLimit,
	})
	api := httpapi.New(st, authSvc, logger)

	r := chi.NewRouter()
	r.Mount("/api/v1", api.Routes())
	r.Get("/ws", wsHandler.Handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.Server.Address, Handler: r}

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("server listening", "addr", cfg.Server.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infow("shutting down")
	registry.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
