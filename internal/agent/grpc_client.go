package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
)

const completeMethod = "/" + generatorServiceName + "/Complete"

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// RemoteProvider delegates generation to an out-of-process generator over gRPC.
type RemoteProvider struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// RemoteConfig holds configuration for the gRPC generator client.
type RemoteConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultRemoteConfig returns default configuration for addr.
func DefaultRemoteConfig(addr string) RemoteConfig {
	return RemoteConfig{
		Address:          addr,
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// NewRemoteProvider connects to the generator and waits until the channel is ready.
func NewRemoteProvider(cfg RemoteConfig, logger *slog.Logger, opts ...grpc.DialOption) (*RemoteProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("generator address is required")
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to generator at %s: %w", cfg.Address, err)
	}

	// Fail fast on a bad endpoint instead of at the first request.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("generator at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to generator service", "address", cfg.Address)

	return &RemoteProvider{
		conn:   conn,
		addr:   cfg.Address,
		logger: logger,
	}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Name implements Provider.
func (c *RemoteProvider) Name() string { return "grpc" }

// Complete implements Provider.
func (c *RemoteProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	in, err := encodeCompletionRequest(req)
	if err != nil {
		return "", err
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, completeMethod, in, out); err != nil {
		return "", fmt.Errorf("generator complete: %w", err)
	}

	content := out.GetFields()["content"].GetStringValue()
	if content == "" {
		return "", errEmptyCompletion
	}
	return content, nil
}

// Close closes the gRPC connection.
func (c *RemoteProvider) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

func encodeCompletionRequest(req CompletionRequest) (*structpb.Struct, error) {
	messages := make([]any, 0, len(req.Messages))
	for _, turn := range req.Messages {
		messages = append(messages, map[string]any{
			"role":    turn.Role,
			"content": turn.Content,
		})
	}
	s, err := structpb.NewStruct(map[string]any{
		"model":       req.Model,
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"messages":    messages,
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}
	return s, nil
}

func decodeCompletionRequest(s *structpb.Struct) (CompletionRequest, error) {
	fields := s.GetFields()
	req := CompletionRequest{
		Model:       fields["model"].GetStringValue(),
		MaxTokens:   int(fields["max_tokens"].GetNumberValue()),
		Temperature: fields["temperature"].GetNumberValue(),
	}
	for _, v := range fields["messages"].GetListValue().GetValues() {
		m := v.GetStructValue().GetFields()
		role := m["role"].GetStringValue()
		if role == "" {
			return CompletionRequest{}, fmt.Errorf("message without role")
		}
		req.Messages = append(req.Messages, Turn{Role: role, Content: m["content"].GetStringValue()})
	}
	if len(req.Messages) == 0 {
		return CompletionRequest{}, fmt.Errorf("no messages")
	}
	return req, nil
}
