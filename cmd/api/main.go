package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/app"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/sdk/sqldb"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/auth"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/mail"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/sentry"
	"github.com/RodrigoMuinhos/AgendaAmigaApp/internal/services/token"
)

var build string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("application startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	store := sqldb.New()
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	// Stale reset tokens serve no purpose once used or expired.
	if err := store.DeleteExpiredPasswordResetTokens(ctx); err != nil {
		logger.Warn("reset token cleanup failed", "error", err)
	}

	sentryService := sentry.NewService()
	defer sentryService.Close()

	// Token codec: unrecoverable if the signing secret is missing.
	tokenService, err := token.NewService()
	if err != nil {
		return fmt.Errorf("token service: %w", err)
	}

	mailSender := mail.NewMailtrapSender()

	authService := auth.NewService(store, tokenService, mailSender)

	careApp := app.NewApp(store, authService, sentryService)

	srv := &http.Server{
		Addr:         ":" + getEnv("PORT", "8080"),
		Handler:      careApp.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("server starting", "addr", srv.Addr, "build", build)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen and serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	wg.Wait()
	logger.Info("shutdown complete")
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}
