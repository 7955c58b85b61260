// ABOUTME: Tests for the warden CLI helpers
// ABOUTME: Covers starter config generation, password input, logging and offline user management

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/warden/internal/auth"
	"github.com/2389/warden/internal/config"
	"github.com/2389/warden/internal/store"
)

func TestWriteStarterConfig_Loads(t *testing.T) {
	t.Setenv(config.DatabasePathEnv, "")
	dir := t.TempDir()
	path := filepath.Join(dir, "conf", "warden.yaml")
	dbPath := filepath.Join(dir, "data", "warden.db")

	require.NoError(t, writeStarterConfig(path, dbPath, false))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, dbPath, cfg.Database.Path)
	assert.GreaterOrEqual(t, len(cfg.Auth.JWTSecret), config.MinSecretLength)
	assert.Equal(t, config.LockoutSQLite, cfg.Lockout.Backend)

	err = writeStarterConfig(path, dbPath, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	first := cfg.Auth.JWTSecret
	require.NoError(t, writeStarterConfig(path, dbPath, true))
	cfg, err = config.Load(path)
	require.NoError(t, err)
	assert.NotEqual(t, first, cfg.Auth.JWTSecret)
}

func TestSplitTeams(t *testing.T) {
	assert.Equal(t, []string{}, splitTeams(""))
	assert.Equal(t, []string{"ops", "infra"}, splitTeams(" ops, ,infra "))
}

func TestReadPassword_NonTerminal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pw")
	require.NoError(t, os.WriteFile(path, []byte("piped-secret\n"), 0600))
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out bytes.Buffer
	pw, err := readPassword("Password: ", f, &out)
	require.NoError(t, err)
	assert.Equal(t, "piped-secret", pw)
	assert.Empty(t, out.String())
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	logger.Debug("hidden")
	logger.With("component", "test").WithGroup("req").Info("hello", "path", "/x")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "hello")
	assert.Contains(t, out, " component=")
	assert.NotContains(t, out, "req.component=")
	assert.Contains(t, out, "req.path=")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("warn").String())
	assert.Equal(t, "ERROR", parseLevel("ERROR").String())
	assert.Equal(t, "INFO", parseLevel("bogus").String())
}

func TestAdminEnv_UserLifecycle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	require.NoError(t, writeStarterConfig(path, filepath.Join(dir, "warden.db"), false))
	cfg, err := config.Load(path)
	require.NoError(t, err)

	ctx := context.Background()
	env, err := openAdminWithConfig(ctx, cfg)
	require.NoError(t, err)
	defer env.Close()

	user, err := env.auth.CreateUser(ctx, nil, auth.NewUser{
		Username: "alice",
		Password: "correct-horse",
		Role:     store.RoleAdmin,
		Teams:    splitTeams("ops"),
	}, cliMetadata)
	require.NoError(t, err)

	verified, err := env.auth.Credentials.Verify(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, verified.ID)

	require.NoError(t, env.auth.SetLocked(ctx, nil, user.ID, true, cliMetadata))
	locked, err := env.store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, locked.Locked)

	require.NoError(t, env.auth.SetLocked(ctx, nil, user.ID, false, cliMetadata))
	unlocked, err := env.store.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, unlocked.Locked)
}

func TestAdminEnv_HonoursDatabasePathOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "warden.yaml")
	filePath := filepath.Join(dir, "file", "warden.db")
	envPath := filepath.Join(dir, "env", "warden.db")
	require.NoError(t, writeStarterConfig(path, filePath, false))
	t.Setenv(config.DatabasePathEnv, envPath)

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, envPath, cfg.Database.Path)

	ctx := context.Background()
	env, err := openAdminWithConfig(ctx, cfg)
	require.NoError(t, err)
	_, err = env.auth.CreateUser(ctx, nil, auth.NewUser{
		Username: "bob",
		Password: "correct-horse",
		Role:     store.RoleStaff,
	}, cliMetadata)
	require.NoError(t, err)
	env.Close()

	s, err := store.NewSQLiteStore(envPath)
	require.NoError(t, err)
	defer s.Close()
	_, err = s.GetUserByUsername(ctx, "bob")
	require.NoError(t, err)

	_, err = os.Stat(filePath)
	assert.True(t, os.IsNotExist(err), "the database.path file must not be touched")
}
