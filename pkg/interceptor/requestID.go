package interceptor

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"gopherwallet.com/pkg/common"
)

// RequestIDUnary client 端：把 ctx 里的 request id 透传到 outgoing metadata
func RequestIDUnary() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		rid := common.RequestIDFromCtx(ctx)
		if rid == "" {
			if md, ok := metadata.FromIncomingContext(ctx); ok {
				if vals := md.Get(common.MetaRequestID); len(vals) > 0 {
					rid = vals[0]
				}
			}
		}
		if rid != "" {
			ctx = metadata.AppendToOutgoingContext(ctx, common.MetaRequestID, rid)
		}
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

func incomingRequestID(ctx context.Context) context.Context {
	rid := ""
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(common.MetaRequestID); len(vals) > 0 {
			rid = vals[0]
		}
	}
	if rid == "" {
		rid = common.New()
	}
	return context.WithValue(ctx, common.CtxKeyRequestID, rid)
}

// RequestIDServerUnary 优先取 metadata 里的 request id，没有则生成
func RequestIDServerUnary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(incomingRequestID(ctx), req)
	}
}

type ridStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *ridStream) Context() context.Context { return s.ctx }

func RequestIDServerStream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &ridStream{ServerStream: ss, ctx: incomingRequestID(ss.Context())})
	}
}

func RequestIDFromCtx(ctx context.Context) string {
	return common.RequestIDFromCtx(ctx)
}
