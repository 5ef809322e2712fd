package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/ashureev/sonnik/internal/agent"
	"github.com/ashureev/sonnik/internal/config"
)

var generatorCmd = &cobra.Command{
	Use:   "generator",
	Short: "Serve the configured provider over the generator gRPC API",
	Long: `generator exposes the OpenAI-compatible provider to other sonnik
instances started with PROVIDER=grpc and GENERATOR_GRPC_ADDR pointing here.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		listen, _ := cmd.Flags().GetString("listen")
		return serveGenerator(cmd.Context(), listen)
	},
}

func init() {
	generatorCmd.Flags().String("listen", ":50051", "gRPC listen address")
}

func serveGenerator(parent context.Context, addr string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Provider.Kind != config.ProviderOpenAI {
		return fmt.Errorf("generator requires PROVIDER=%s, got %q", config.ProviderOpenAI, cfg.Provider.Kind)
	}

	logger := slog.Default()
	provider, closeProvider := openProvider(cfg, logger)
	defer closeProvider()

	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := grpc.NewServer()
	agent.RegisterGeneratorServer(srv, agent.NewGeneratorServer(provider, logger))

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Generator listening", "addr", lis.Addr().String(), "provider", provider.Name())
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("generator failed: %w", err)
	}

	slog.Info("Generator shutting down")
	srv.GracefulStop()
	return nil
}
