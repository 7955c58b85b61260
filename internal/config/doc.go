// Package config handles configuration loading for warden.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Missing keys get defaults and the result is validated.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from WARDEN_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/warden/warden.yaml
//  3. ~/.config/warden/warden.yaml
//
// Files ending in .toml are decoded as TOML; anything else is YAML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	auth:
//	  jwt_secret: "${WARDEN_JWT_SECRET}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string.
//
// WARDEN_DB_PATH, when set, replaces database.path for every command.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_ttl: "168h"
//	  lock_duration: "5m"
//
// # Configuration Sections
//
//	server:
//	  http_addr: "127.0.0.1:8080"
//	  grpc_addr: "127.0.0.1:50051"
//	  sweep_interval: "10m"        # expired session cleanup
//
//	database:
//	  path: "/var/lib/warden/warden.db"
//
//	auth:
//	  jwt_secret: "${WARDEN_JWT_SECRET}"  # at least 32 bytes
//	  token_ttl: "168h"
//	  max_attempts: 5
//	  lock_duration: "5m"
//	  cookie_name: "warden_session"
//	  login_path: "/login"
//	  secure_cookies: false
//	  password_hash: "bcrypt"             # bcrypt, argon2id
//
//	lockout:
//	  backend: "sqlite"                   # sqlite, redis
//	  redis_url: "redis://localhost:6379/0"
//
//	ratelimit:
//	  rps: 1
//	  burst: 10
//	  trust_forwarded_for: false   # key on X-Forwarded-For (behind a proxy only)
//
//	tailscale:
//	  enabled: false
//	  hostname: "warden"
//	  auth_key: "${TS_AUTHKEY}"
//	  https: true
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Usage
//
//	path, err := config.DefaultPath()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg, err := config.Load(path)
package config
