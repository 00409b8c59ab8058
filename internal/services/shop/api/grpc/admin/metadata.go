package admin

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// ActorIDHeader is the gRPC metadata key naming the Discord user an admin
// call acts as.
const ActorIDHeader = "x-guildshop-actor-id"

// ActorIDFromContext returns the actor id from incoming metadata.
func ActorIDFromContext(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, value := range md.Get(ActorIDHeader) {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

// WithActorID returns a context carrying actorID as outgoing metadata.
func WithActorID(ctx context.Context, actorID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, ActorIDHeader, actorID)
}

// ActorUnaryClientInterceptor attaches actorID to every unary call.
func ActorUnaryClientInterceptor(actorID string) grpc.UnaryClientInterceptor {
	return func(
		ctx context.Context,
		method string,
		req any,
		reply any,
		cc *grpc.ClientConn,
		invoker grpc.UnaryInvoker,
		opts ...grpc.CallOption,
	) error {
		return invoker(WithActorID(ctx, actorID), method, req, reply, cc, opts...)
	}
}
