package session

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_PutAndGet(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Put(&Session{UserID: "12345", State: StateAwaitingTime}))

	sess, err := store.Get("12345")
	require.NoError(t, err)
	assert.Equal(t, "12345", sess.UserID)
	assert.Equal(t, StateAwaitingTime, sess.State)
	assert.Empty(t, sess.StartTime)
	assert.False(t, sess.UpdatedAt.IsZero())
}

func TestStore_GetMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Get("nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PutAdvancesState(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Put(&Session{UserID: "12345", State: StateAwaitingTime}))
	require.NoError(t, store.Put(&Session{
		UserID:    "12345",
		State:     StateAwaitingOdometer,
		StartTime: "08:00",
	}))

	sess, err := store.Get("12345")
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingOdometer, sess.State)
	assert.Equal(t, "08:00", sess.StartTime)
}

func TestStore_Reset(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Put(&Session{UserID: "12345", State: StateAwaitingTime}))
	require.NoError(t, store.Reset("12345"))

	_, err := store.Get("12345")
	assert.ErrorIs(t, err, ErrNotFound)

	// Resetting again is a no-op.
	assert.NoError(t, store.Reset("12345"))
}

func TestStore_IsolatesUsers(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Put(&Session{UserID: "a", State: StateAwaitingTime}))
	require.NoError(t, store.Put(&Session{UserID: "b", State: StateAwaitingOdometer, StartTime: "09:30"}))
	require.NoError(t, store.Reset("a"))

	sess, err := store.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "09:30", sess.StartTime)
}
