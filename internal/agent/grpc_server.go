package agent

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const generatorServiceName = "sonnik.generator.v1.Generator"

// GeneratorServer is the server API for the generator service.
type GeneratorServer interface {
	Complete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

// RegisterGeneratorServer registers srv on s.
func RegisterGeneratorServer(s grpc.ServiceRegistrar, srv GeneratorServer) {
	s.RegisterService(&generatorServiceDesc, srv)
}

func generatorCompleteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(GeneratorServer).Complete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: completeMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(GeneratorServer).Complete(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var generatorServiceDesc = grpc.ServiceDesc{
	ServiceName: generatorServiceName,
	HandlerType: (*GeneratorServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Complete",
			Handler:    generatorCompleteHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sonnik/generator/v1/generator.proto",
}

// providerServer exposes a Provider as a GeneratorServer.
type providerServer struct {
	provider Provider
	logger   *slog.Logger
}

// NewGeneratorServer serves provider over the generator gRPC API.
func NewGeneratorServer(provider Provider, logger *slog.Logger) GeneratorServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &providerServer{provider: provider, logger: logger}
}

func (s *providerServer) Complete(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req, err := decodeCompletionRequest(in)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	content, err := s.provider.Complete(ctx, req)
	if err != nil {
		s.logger.Warn("Generator provider failed", "provider", s.provider.Name(), "error", err)
		return nil, status.Error(codes.Unavailable, "provider unavailable")
	}

	return structpb.NewStruct(map[string]any{"content": content})
}
