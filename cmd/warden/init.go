// ABOUTME: init subcommand writing a starter config file
// ABOUTME: Generates a random signing secret and default data paths

package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/2389/warden/internal/config"
)

const starterConfig = `# warden configuration
# Generated by warden init

server:
  http_addr: "127.0.0.1:8080"
  grpc_addr: "127.0.0.1:50051"

database:
  path: "%s"

auth:
  jwt_secret: "%s"
  token_ttl: "168h"
  max_attempts: 5
  lock_duration: "5m"
  cookie_name: "warden_session"
  secure_cookies: false
  password_hash: "bcrypt"

lockout:
  backend: "sqlite"
  # redis_url: "redis://localhost:6379/0"

ratelimit:
  rps: 1
  burst: 10
  trust_forwarded_for: false

logging:
  level: "info"
  format: "text"
`

// getDataPath returns the warden data directory.
// Priority: XDG_DATA_HOME/warden > ~/.local/share/warden
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "warden")
}

func generateSecret() (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secretBytes), nil
}

// writeStarterConfig writes a config to path. An existing file is kept unless force is set.
func writeStarterConfig(path, dbPath string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("checking config file: %w", err)
	}

	secret, err := generateSecret()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	content := fmt.Sprintf(starterConfig, dbPath, secret)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func runInit(args []string) error {
	defaultPath, err := config.DefaultPath()
	if err != nil {
		return err
	}

	fs := flag.NewFlagSet("init", flag.ContinueOnError)
	path := fs.String("config", defaultPath, "config file to write")
	dbPath := fs.String("db", filepath.Join(getDataPath(), "warden.db"), "SQLite database path")
	force := fs.Bool("force", false, "overwrite an existing config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := writeStarterConfig(*path, *dbPath, *force); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Printf("  ✓ Created config: %s\n", *path)
	green.Printf("  ✓ Database:       %s\n", *dbPath)
	fmt.Println()
	yellow.Println("  Next:")
	fmt.Println("    warden useradd --username admin --role admin")
	fmt.Println("    warden serve")
	return nil
}
