package resonancegrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const serviceName = "resonance.v1.ProducerService"

// ProducerServiceServer is the server-side interface for the producer
// gRPC service.
type ProducerServiceServer interface {
	Produce(context.Context, *ProduceRequest) (*ProduceResponse, error)
}

// RegisterProducerServiceServer registers srv on a gRPC server.
func RegisterProducerServiceServer(s *grpc.Server, srv ProducerServiceServer) {
	s.RegisterService(&serviceDesc, srv)
}

func handlerProduce(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ProduceRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProducerServiceServer).Produce(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod("Produce")}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ProducerServiceServer).Produce(ctx, req.(*ProduceRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// fullMethod builds the full gRPC method path.
func fullMethod(method string) string {
	return fmt.Sprintf("/%s/%s", serviceName, method)
}

// serviceDesc is the manual gRPC service descriptor.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*ProducerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Produce", Handler: handlerProduce},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "resonance/v1/producer.cram",
}
