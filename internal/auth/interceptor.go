// ABOUTME: gRPC interceptors for authenticating requests with session tokens
// ABOUTME: Extracts the token from metadata and populates context for handlers

package auth

import (
	"context"
	"log/slog"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// healthServicePrefix identifies methods reachable without a session.
const healthServicePrefix = "/grpc.health.v1.Health/"

// logAuthFailure logs an authentication failure with structured context.
func logAuthFailure(ctx context.Context, logger *slog.Logger, reason string, attrs ...any) {
	if logger == nil {
		return
	}
	baseAttrs := []any{"reason", reason}
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		baseAttrs = append(baseAttrs, "peer_addr", p.Addr.String())
	}
	baseAttrs = append(baseAttrs, attrs...)
	logger.Warn("auth failure", baseAttrs...)
}

// isExempt reports whether fullMethod may be called without authentication.
func isExempt(fullMethod string) bool {
	return strings.HasPrefix(fullMethod, healthServicePrefix)
}

// UnaryInterceptor returns a gRPC unary interceptor that authenticates requests.
// The optional logger enables auth failure logging for security monitoring.
func UnaryInterceptor(v Validator, logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if isExempt(info.FullMethod) {
			return handler(ctx, req)
		}

		principal, err := extractAuth(ctx, v, logger)
		if err != nil {
			return nil, err
		}

		return handler(WithPrincipal(ctx, principal), req)
	}
}

// StreamInterceptor returns a gRPC stream interceptor that authenticates requests.
// The optional logger enables auth failure logging for security monitoring.
func StreamInterceptor(v Validator, logger *slog.Logger) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if isExempt(info.FullMethod) {
			return handler(srv, ss)
		}

		principal, err := extractAuth(ss.Context(), v, logger)
		if err != nil {
			return err
		}

		wrapped := &wrappedServerStream{
			ServerStream: ss,
			ctx:          WithPrincipal(ss.Context(), principal),
		}
		return handler(srv, wrapped)
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}

// tokenFromMetadata reads a bearer token from the authorization metadata key.
func tokenFromMetadata(md metadata.MD) string {
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	token, ok := strings.CutPrefix(values[0], "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// extractAuth validates the session token carried in gRPC metadata.
// Failures map to Unauthenticated with the reason code as the message, except
// a locked account which maps to PermissionDenied. Store faults map to Internal.
func extractAuth(ctx context.Context, v Validator, logger *slog.Logger) (*Principal, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		logAuthFailure(ctx, logger, string(ReasonNoToken))
		return nil, status.Error(codes.Unauthenticated, string(ReasonNoToken))
	}

	token := tokenFromMetadata(md)
	if token == "" {
		logAuthFailure(ctx, logger, string(ReasonNoToken))
		return nil, status.Error(codes.Unauthenticated, string(ReasonNoToken))
	}

	principal, err := v.Validate(ctx, token)
	if err != nil {
		reason, ok := ReasonFor(err)
		if !ok {
			if logger != nil {
				logger.Error("session validation failed", "error", err)
			}
			return nil, status.Error(codes.Internal, "internal error")
		}
		logAuthFailure(ctx, logger, string(reason))
		if reason == ReasonForbidden {
			return nil, status.Error(codes.PermissionDenied, string(reason))
		}
		return nil, status.Error(codes.Unauthenticated, string(reason))
	}

	return principal, nil
}
