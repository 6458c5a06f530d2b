package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "p2pswap.v1.Engine"

// unary adapts a typed handler method to a grpc.MethodDesc handler.
func unary[Req, Resp any](name string, call func(*Handler, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			h := srv.(*Handler)
			if interceptor == nil {
				return call(h, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(h, ctx, req.(*Req))
			})
		},
	}
}

// serviceDesc describes the engine service for grpc.Server.RegisterService.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		unary("MakeOrder", (*Handler).MakeOrder),
		unary("CancelOrder", (*Handler).CancelOrder),
		unary("DispatchOrderFillProportionalFee", (*Handler).DispatchOrderFillProportionalFee),
		unary("DispatchOrderFillFixedFee", (*Handler).DispatchOrderFillFixedFee),
		unary("Govern", (*Handler).Govern),
		unary("ListMarkets", (*Handler).ListMarkets),
		unary("ListOrders", (*Handler).ListOrders),
		unary("GetParameters", (*Handler).GetParameters),
		unary("GetReserve", (*Handler).GetReserve),
		unary("IsNonceUsed", (*Handler).IsNonceUsed),
	},
	Metadata: "p2pswap/v1/engine",
}
