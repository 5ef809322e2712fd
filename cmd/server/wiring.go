package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ashureev/sonnik/internal/agent"
	"github.com/ashureev/sonnik/internal/api"
	"github.com/ashureev/sonnik/internal/bot"
	"github.com/ashureev/sonnik/internal/config"
	"github.com/ashureev/sonnik/internal/store"
)

// openStore opens the configured repository. SQL stores create their schema on open.
func openStore(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		return store.NewSQLite(cfg.DBPath)
	case config.DriverPostgres:
		return store.NewPostgres(ctx, cfg.DatabaseURL)
	case config.DriverMemory:
		slog.Warn("Using in-memory store, data is lost on restart")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.DBDriver)
	}
}

// openProvider builds the configured provider. A nil provider means canned
// replies. The returned func releases provider resources.
func openProvider(cfg *config.Config, logger *slog.Logger) (agent.Provider, func()) {
	switch cfg.Provider.Kind {
	case config.ProviderOpenAI:
		slog.Info("Using OpenAI-compatible provider", "base_url", cfg.Provider.BaseURL, "model", cfg.Provider.Model)
		return agent.NewOpenAIProvider(agent.OpenAIConfig{
			BaseURL: cfg.Provider.BaseURL,
			APIKey:  cfg.Provider.APIKey,
			Referer: cfg.Provider.Referer,
			Title:   cfg.Provider.Title,
		}), func() {}

	case config.ProviderGRPC:
		slog.Info("Connecting to generator service via gRPC", "address", cfg.Provider.GRPCAddr)
		remote, err := agent.NewRemoteProvider(agent.DefaultRemoteConfig(cfg.Provider.GRPCAddr), logger)
		if err != nil {
			slog.Warn("Failed to connect to generator, replies will use the fallback set", "error", err)
			return nil, func() {}
		}
		return remote, remote.Close
	}

	slog.Info("No provider configured, replies will use the fallback set")
	return nil, func() {}
}

func generatorConfig(cfg *config.Config) agent.Config {
	return agent.Config{
		Model:       cfg.Provider.Model,
		MaxTokens:   cfg.Provider.MaxTokens,
		Temperature: cfg.Provider.Temperature,
		Timeout:     cfg.Provider.Timeout,
		Locale:      cfg.Locale,
	}
}

// openSessions returns the bot session store: Redis when configured, memory otherwise.
// Redis also contributes a health check.
func openSessions(ctx context.Context, cfg *config.Config) (bot.SessionStore, map[string]api.Checker, func(), error) {
	if cfg.RedisAddr == "" {
		sessions := bot.NewMemorySessionStore(cfg.BotSessionTTL)
		sessions.StartSweeper(ctx, time.Minute)
		return sessions, nil, func() {}, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
	}
	slog.Info("Bot sessions stored in Redis", "addr", cfg.RedisAddr, "ttl", cfg.BotSessionTTL)

	checks := map[string]api.Checker{
		"redis": func(ctx context.Context) error { return client.Ping(ctx).Err() },
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Error("Failed to close redis client", "error", err)
		}
	}
	return bot.NewRedisSessionStore(client, cfg.BotSessionTTL), checks, closeFn, nil
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
