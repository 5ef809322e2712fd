package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ashureev/sonnik/internal/agent"
	"github.com/ashureev/sonnik/internal/api"
	"github.com/ashureev/sonnik/internal/bot"
	"github.com/ashureev/sonnik/internal/chatws"
	"github.com/ashureev/sonnik/internal/dialogue"
	"github.com/ashureev/sonnik/internal/identity"
	"github.com/ashureev/sonnik/internal/middleware"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

//nolint:funlen // Startup wiring is kept sequential to make dependency setup explicit.
func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := slog.Default()
	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "store", cfg.DBDriver, "provider", cfg.Provider.Kind)

	repo, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	conversationLogger, err := agent.NewConversationLogger(cfg.ConversationLog, logger)
	if err != nil {
		return fmt.Errorf("initialize conversation logger: %w", err)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	provider, closeProvider := openProvider(cfg, logger)
	defer closeProvider()

	sessions, checks, closeSessions, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSessions()

	// Services.
	generator := agent.NewGenerator(provider, generatorConfig(cfg), logger, conversationLogger)
	ids := identity.NewService(repo, cfg.BcryptCost)
	dlg := dialogue.NewService(repo, generator, dialogue.Config{
		ContextLimit: cfg.History.ContextLimit,
		DisplayLimit: cfg.History.DisplayLimit,
	})
	sm := chatws.NewSessionManager()
	defer sm.CloseAll()

	// Handlers.
	apiHandler := api.NewHandler(ids, dlg)
	healthHandler := api.NewHealthHandler(repo, 5*time.Second, checks)
	botHandler := bot.NewHandler(bot.New(ids, dlg, sessions, cfg.Locale), cfg.BotWebhookSecret)
	wsHandler := chatws.NewHandler(ids, dlg, sm, allowedOrigins(cfg), cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/ping"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	healthHandler.RegisterHealth(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if cfg.RateLimitEnabled() {
			limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, 10*time.Minute)
			limiter.StartEviction(ctx, time.Minute)
			r.Use(middleware.RateLimit(limiter, identity.IPFromRequest))
		}

		apiHandler.RegisterRoutes(r, func(r chi.Router) {
			r.Post("/bot/updates", botHandler.ServeHTTP)
		})
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// No WriteTimeout: chat sockets and slow provider calls outlive it.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      0,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr, "provider", generator.ProviderName())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	slog.Info("Server stopped successfully")
	return nil
}
