// ABOUTME: Tests for user store methods
// ABOUTME: Covers create/lookup, case-insensitive usernames, lock flag and password updates

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user := newUser("user-1", "alice", RoleAdmin)
	user.Teams = []string{"ops", "growth"}
	require.NoError(t, s.CreateUser(ctx, user))

	got, err := s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, RoleAdmin, got.Role)
	assert.Equal(t, []string{"ops", "growth"}, got.Teams)
	assert.False(t, got.Locked)
	assert.True(t, got.CreatedAt.Equal(baseTime))
}

func TestGetUserByUsername_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, newUser("user-1", "Alice", RoleStaff)))

	got, err := s.GetUserByUsername(ctx, "aLiCe")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.ID)
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = s.GetUserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, newUser("user-1", "alice", RoleStaff)))
	err := s.CreateUser(ctx, newUser("user-2", "ALICE", RoleStaff))
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestCreateUser_InvalidRole(t *testing.T) {
	s := newTestStore(t)

	err := s.CreateUser(context.Background(), newUser("user-1", "alice", Role("superuser")))
	assert.Error(t, err)
}

func TestCreateUser_NilTeamsStoredEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, newUser("user-1", "alice", RoleStaff)))

	got, err := s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.NotNil(t, got.Teams)
	assert.Empty(t, got.Teams)
}

func TestListAndCountUsers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, newUser("u2", "bob", RoleStaff)))
	require.NoError(t, s.CreateUser(ctx, newUser("u1", "alice", RoleAdmin)))

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)

	count, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestSetUserLocked(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, newUser("user-1", "alice", RoleStaff)))
	require.NoError(t, s.SetUserLocked(ctx, "user-1", true))

	got, err := s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.True(t, got.Locked)

	require.NoError(t, s.SetUserLocked(ctx, "user-1", false))
	got, err = s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.False(t, got.Locked)

	assert.ErrorIs(t, s.SetUserLocked(ctx, "missing", true), ErrUserNotFound)
}

func TestUpdateUserPassword(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateUser(ctx, newUser("user-1", "alice", RoleStaff)))
	require.NoError(t, s.UpdateUserPassword(ctx, "user-1", "new-hash"))

	got, err := s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)

	assert.ErrorIs(t, s.UpdateUserPassword(ctx, "missing", "x"), ErrUserNotFound)
}
