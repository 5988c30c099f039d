package main

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjbarnes/sitegate/internal/auth"
	"github.com/alexjbarnes/sitegate/internal/config"
	"github.com/alexjbarnes/sitegate/internal/logging"
	"github.com/alexjbarnes/sitegate/internal/repository"
	"github.com/alexjbarnes/sitegate/internal/server"
	"github.com/alexjbarnes/sitegate/internal/store"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment, cfg.LogLevel)
	logger.Info("sitegate starting",
		slog.String("version", Version),
		slog.String("data_dir", cfg.DataDir),
		slog.String("session_store", cfg.SessionStore),
	)

	sessionsPath := ""
	if cfg.SessionStore == store.TypeFile {
		sessionsPath = cfg.SessionsFile
	}

	createdCreds, createdSess, err := store.Bootstrap(cfg.CredentialsFile, sessionsPath)
	if err != nil {
		return fmt.Errorf("bootstrapping documents: %w", err)
	}

	if createdCreds {
		logger.Warn("created credential document with default admin/admin login, change the password",
			slog.String("path", cfg.CredentialsFile),
		)
	}

	if createdSess {
		logger.Info("created session document", slog.String("path", cfg.SessionsFile))
	}

	if err := store.CheckDocument(cfg.CredentialsFile); err != nil {
		return fmt.Errorf("reading credentials: %w", err)
	}

	creds, err := store.OpenCredentials(cfg.StoreType, cfg.CredentialsFile)
	if err != nil {
		return err
	}

	sessions, err := store.OpenSessions(cfg.SessionOptions())
	if err != nil {
		return err
	}
	defer sessions.Close()

	core := auth.NewCore(repository.New(creds), sessions, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serve(gctx, cfg, core, logger)
	})

	if cfg.WatchDocuments {
		g.Go(func() error {
			err := store.Watch(gctx, logger, cfg.WatchedDocuments()...)
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		})
	}

	return g.Wait()
}

// serve runs the HTTP server until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, core *auth.Core, logger *slog.Logger) error {
	mux := server.NewMux(server.MuxConfig{
		Core:              core,
		Logger:            logger,
		TrustForwardedFor: cfg.TrustForwardedFor,
		App:               welcome(),
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("starting HTTP server", slog.String("listen", cfg.ListenAddr))

	// Shutdown when context is cancelled.
	go func() {
		<-ctx.Done()
		logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}

	return nil
}

// welcome is the placeholder application mounted behind the session
// middleware.
func welcome() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.RequestUser(r.Context())
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html><p>Signed in as %s.</p><form method="POST" action="/auth/logout"><button>Sign out</button></form>`,
			html.EscapeString(user.Username))
	})
}
