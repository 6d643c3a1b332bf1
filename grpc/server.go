package resonancegrpc

import (
	"context"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/blockberries/resonance"
	"github.com/blockberries/resonance/local"
)

// Compile-time interface check.
var _ ProducerServiceServer = (*GRPCServer)(nil)

// GRPCServer exposes a decision producer over gRPC. Calls go through an
// in-process connection, so a panicking producer fails the call rather
// than the server.
type GRPCServer struct {
	conn *local.Connection
}

// NewGRPCServer creates a gRPC server wrapping producer.
func NewGRPCServer(producer resonance.Producer) *GRPCServer {
	return &GRPCServer{conn: local.NewConnection(producer)}
}

// Register adds the producer service to a gRPC server.
func (s *GRPCServer) Register(gs *grpc.Server) {
	RegisterProducerServiceServer(gs, s)
}

// Serve starts a gRPC server on the given listener.
func (s *GRPCServer) Serve(lis net.Listener, opts ...grpc.ServerOption) error {
	gs := grpc.NewServer(opts...)
	s.Register(gs)
	return gs.Serve(lis)
}

func (s *GRPCServer) Produce(ctx context.Context, req *ProduceRequest) (*ProduceResponse, error) {
	in, err := req.decode()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	prod, err := s.conn.Produce(ctx, in)
	if err != nil {
		return nil, err
	}
	return encodeProduction(prod), nil
}
