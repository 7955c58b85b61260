// ABOUTME: Server orchestrator wiring the store, session authority and login flow into HTTP and gRPC servers
// ABOUTME: Manages listeners, the expired-session janitor and graceful shutdown

package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"tailscale.com/tsnet"

	"github.com/2389/warden/internal/activity"
	"github.com/2389/warden/internal/api"
	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/ratelimit"
	"github.com/2389/warden/internal/store"
)

// pinger is anything whose backing service can be probed.
type pinger interface {
	Ping(ctx context.Context) error
}

// Server owns every long-lived component of a running warden instance.
type Server struct {
	config        *config.Config
	store         *store.SQLiteStore
	attempts      auth.AttemptStore
	redis         *redis.Client
	sessions      *auth.SessionAuthority
	authenticator *auth.Authenticator
	recorder      *activity.Recorder
	limiter       *ratelimit.Limiter
	grpcServer    *grpc.Server
	health        *health.Server
	httpServer    *http.Server
	tsnetServer   *tsnet.Server
	logger        *slog.Logger
}

// initStore opens the SQLite store named by config.
func initStore(cfg *config.Config) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// OpenAttemptStore selects the failed-login counter backend. The Redis client
// is returned so the caller can close it; it is nil for the SQLite backend.
func OpenAttemptStore(ctx context.Context, cfg *config.Config, sqlStore *store.SQLiteStore, logger *slog.Logger) (auth.AttemptStore, *redis.Client, error) {
	if cfg.Lockout.Backend != config.LockoutRedis {
		return sqlStore, nil, nil
	}

	opts, err := redis.ParseURL(cfg.Lockout.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing lockout.redis_url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}

	logger.Info("lockout counters stored in redis", "addr", opts.Addr)
	return store.NewRedisAttemptStore(client, cfg.Lockout.KeyPrefix), client, nil
}

// createGRPCServer creates a gRPC server gated by the session interceptors.
// The standard health service is registered and exempt from authentication;
// SessionService requires a valid session.
func createGRPCServer(sessions *auth.SessionAuthority, logger *slog.Logger) (*grpc.Server, *health.Server) {
	server := grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.ChainUnaryInterceptor(auth.UnaryInterceptor(sessions, logger)),
		grpc.ChainStreamInterceptor(auth.StreamInterceptor(sessions, logger)),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(server, hs)
	server.RegisterService(&sessionServiceDesc, sessionService{})
	return server, hs
}

// New creates a Server from cfg. Nothing listens until Run.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	sqlStore, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	attempts, redisClient, err := OpenAttemptStore(context.Background(), cfg, sqlStore, logger)
	if err != nil {
		_ = sqlStore.Close()
		return nil, err
	}

	codec, err := auth.NewJWTCodec([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)
	if err != nil {
		_ = sqlStore.Close()
		if redisClient != nil {
			_ = redisClient.Close()
		}
		return nil, fmt.Errorf("creating token codec: %w", err)
	}

	sessions := auth.NewSessionAuthority(sqlStore, codec, logger)
	recorder := activity.NewRecorder(sqlStore, logger)
	authenticator := &auth.Authenticator{
		Credentials: auth.NewCredentialVerifier(sqlStore, logger),
		Guard:       auth.NewLoginAttemptGuard(attempts, cfg.Auth.MaxAttempts, cfg.Auth.LockDuration, logger),
		Sessions:    sessions,
		Users:       sqlStore,
		Hasher:      auth.Hasher{Algorithm: cfg.Auth.PasswordHash},
		Activity:    recorder,
		Logger:      logger.With("component", "auth"),
	}

	limiter := ratelimit.New(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 10*time.Minute)

	grpcServer, hs := createGRPCServer(sessions, logger)

	srv := &Server{
		config:        cfg,
		store:         sqlStore,
		attempts:      attempts,
		redis:         redisClient,
		sessions:      sessions,
		authenticator: authenticator,
		recorder:      recorder,
		limiter:       limiter,
		grpcServer:    grpcServer,
		health:        hs,
		logger:        logger.With("component", "server"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", srv.handleHealth)
	mux.HandleFunc("GET /health/ready", srv.handleReady)

	api.New(api.Options{
		Authenticator:     authenticator,
		Sessions:          sessions,
		Directory:         sqlStore,
		Limiter:           limiter,
		TrustForwardedFor: cfg.RateLimit.TrustForwardedFor,
		Cookie: api.CookieOptions{
			Name:   cfg.Auth.CookieName,
			Secure: cfg.Auth.SecureCookies,
			MaxAge: cfg.Auth.TokenTTL,
		},
		LoginPath: cfg.Auth.LoginPath,
		Logger:    logger,
	}).Register(mux)

	srv.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return srv, nil
}

// handleHealth returns 200 OK if the server is running.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the store and lockout backend respond.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", "backend", "sqlite", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	if p, ok := s.attempts.(pinger); ok && s.redis != nil {
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", "backend", "redis", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("lockout backend unavailable"))
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// sweepExpired runs the expired-session janitor until ctx is done.
// Validation treats expired sessions as gone regardless; this only reclaims rows.
func (s *Server) sweepExpired(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.sessions.SweepExpired(ctx)
			if err != nil {
				if ctx.Err() == nil {
					s.logger.Error("sweeping expired sessions", "error", err)
				}
				continue
			}
			if n > 0 {
				s.logger.Info("swept expired sessions", "count", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (s *Server) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := s.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Server) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		s.drainErrors(errCh)
		return err
	}
}

// drainErrors drains any remaining errors from the channel.
func (s *Server) drainErrors(errCh chan error) {
	select {
	case additionalErr := <-errCh:
		s.logger.Error("additional server error", "error", additionalErr)
	default:
	}
}

// Run starts the servers and the janitor and blocks until ctx is canceled or
// a server fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	grpcListener, httpListener, err := s.setupListeners(ctx)
	if err != nil {
		return err
	}

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go s.sweepExpired(janitorCtx, s.config.Server.SweepInterval)

	errCh := s.startServers(grpcListener, httpListener)
	serverErr := s.waitForShutdownSignal(ctx, errCh)

	stopJanitor()
	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Server) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops the servers, flushes pending activity and releases resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	var errs []error
	s.health.Shutdown()
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.shutdownGRPCServer(ctx)

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "activity flush", s.recorder.Close(ctx))
	if s.limiter != nil {
		s.limiter.Close()
	}
	if s.redis != nil {
		errs = appendCloseError(errs, "redis close", s.redis.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
