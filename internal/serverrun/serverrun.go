// Package serverrun wires configuration, storage, services, and the HTTP API
// together and runs the server until interrupted.
package serverrun

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/platefeed/server/internal/api/middleware/mwauth"
	"github.com/platefeed/server/internal/api/middleware/mwcompress"
	"github.com/platefeed/server/internal/api/rauth"
	"github.com/platefeed/server/internal/api/rfeed"
	"github.com/platefeed/server/internal/api/rfollow"
	"github.com/platefeed/server/internal/api/rrecipe"
	"github.com/platefeed/server/pkg/blob/fsblob"
	"github.com/platefeed/server/pkg/config"
	"github.com/platefeed/server/pkg/directory/sqlitedir"
	"github.com/platefeed/server/pkg/feed"
	"github.com/platefeed/server/pkg/service/sauth"
	"github.com/platefeed/server/pkg/service/sfollow"
	"github.com/platefeed/server/pkg/service/srecipe"
	"github.com/platefeed/server/pkg/service/suser"
)

func Run() error {
	configPath := os.Getenv("PLATEFEED_CONFIG")
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := sqlitedir.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer dir.Close()

	blobs, err := fsblob.New(cfg.BlobRoot)
	if err != nil {
		return err
	}

	secret := []byte(cfg.JWTSecret)
	users := suser.New(dir, blobs, logger)
	follows := sfollow.New(dir, users, logger)
	recipes := srecipe.New(dir, blobs, logger)
	auth := sauth.New(dir, users, blobs, secret, cfg.TokenTTL, logger)
	manager := feed.NewManager(dir, follows, recipes, logger)
	defer manager.CloseAll()

	authed := mwauth.New(secret, logger)

	mux := http.NewServeMux()
	rauth.New(auth, manager, logger).RegisterRoutes(mux, authed)
	rrecipe.New(recipes, manager, logger).RegisterRoutes(mux, authed)
	rfeed.New(manager, logger).RegisterRoutes(mux, authed)
	rfollow.New(follows, manager, logger).RegisterRoutes(mux, authed)
	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := cors.AllowAll().Handler(mwcompress.New(mux))
	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.CallTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", cfg.ListenAddr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
