package repository

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *UserStore {
	t.Helper()
	store, err := NewUserStore(filepath.Join(t.TempDir(), "users.json"))
	require.NoError(t, err)
	return store
}

func TestCreateAndAuthenticate(t *testing.T) {
	store := newTestStore(t)

	user, err := store.Create("jane.doe@example.com", "hunter22")
	require.NoError(t, err)
	assert.NotEmpty(t, user.UserID)
	assert.Equal(t, "jane.doe@example.com", user.Email)
	assert.NotEqual(t, "hunter22", user.PasswordHash, "password must be hashed")

	got, err := store.Authenticate("jane.doe@example.com", "hunter22")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, got.UserID)

	_, err = store.Authenticate("jane.doe@example.com", "wrong")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestDuplicateEmailRejected(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Create("jane.doe@example.com", "hunter22")
	require.NoError(t, err)

	_, err = store.Create("jane.doe@example.com", "other")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLookups(t *testing.T) {
	store := newTestStore(t)

	user, err := store.Create("jane.doe@example.com", "hunter22")
	require.NoError(t, err)

	byEmail, err := store.GetByEmail("jane.doe@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, byEmail.UserID)

	byID, err := store.GetByID(user.UserID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, byID.Email)

	_, err = store.GetByEmail("nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = store.GetByID("missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.json")

	first, err := NewUserStore(path)
	require.NoError(t, err)
	user, err := first.Create("jane.doe@example.com", "hunter22")
	require.NoError(t, err)

	second, err := NewUserStore(path)
	require.NoError(t, err)
	got, err := second.GetByID(user.UserID)
	require.NoError(t, err)
	assert.Equal(t, user.Email, got.Email)
}
