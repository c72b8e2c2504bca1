package gateway

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/xizzxy/quotagate/internal/limiter"
)

const tenantMetadataKey = "x-tenant-id"

// SkipInfrastructure exempts health and reflection calls from rate limiting.
func SkipInfrastructure(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, "/grpc.health.v1.") ||
		strings.HasPrefix(fullMethod, "/grpc.reflection.")
}

// UnaryRateLimitInterceptor applies the fixed-window policy with the full
// method name as endpoint class. The tenant comes from the x-tenant-id
// metadata. Rejections return ResourceExhausted.
//
// The gateway binary registers only infrastructure services. The
// interceptor limits application services chained behind it.
func UnaryRateLimitInterceptor(engine *limiter.Engine, skip func(fullMethod string) bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if skip != nil && skip(info.FullMethod) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		tenants := md.Get(tenantMetadataKey)
		if len(tenants) == 0 || tenants[0] == "" {
			return nil, status.Error(codes.InvalidArgument, "missing "+tenantMetadataKey+" metadata")
		}

		res, err := engine.CheckRateLimit(ctx, tenants[0], info.FullMethod)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(
			"x-ratelimit-limit", strconv.FormatInt(res.Limit, 10),
			"x-ratelimit-remaining", strconv.FormatInt(res.Remaining, 10),
			"x-ratelimit-reset", strconv.FormatInt(res.ResetTime.Unix(), 10),
		))
		if !res.Allowed {
			return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded, retry after %ds", res.RetryAfterSeconds)
		}
		return handler(ctx, req)
	}
}

func UnaryLoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger.Info("gRPC request completed",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"duration", time.Since(start),
		)
		return resp, err
	}
}
