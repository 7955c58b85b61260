// Package server orchestrates a running warden instance.
//
// # Overview
//
// New builds every component from a config.Config: the SQLite store, the
// lockout counter backend (SQLite or Redis), the token codec, the session
// authority, the authenticator, the activity recorder and the per-IP login
// limiter. Run opens the listeners and blocks until its context ends.
//
// # Listeners
//
// By default the HTTP API and the gRPC server listen on server.http_addr and
// server.grpc_addr. With tailscale.enabled a tsnet node is started instead and
// both servers listen on the tailnet (gRPC on :50051, HTTP on :80, or :443
// with tailscale.https or tailscale.funnel).
//
// # Endpoints
//
//   - GET /health - Liveness check, always "OK"
//   - GET /health/ready - Pings the store and the Redis lockout backend
//   - /api/... - see package api
//   - grpc.health.v1.Health - gRPC health, exempt from authentication
//   - warden.v1.SessionService/Whoami - the caller's principal
//
// Every gRPC method other than health passes through the session interceptors.
//
// # Background Work
//
// A janitor deletes expired sessions every server.sweep_interval. Validation
// never depends on it. Shutdown flushes queued activity records before the
// store is closed.
package server
