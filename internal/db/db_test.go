package db

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vesper/internal/models"
)

func newStore(t *testing.T) *SessionStore {
	t.Helper()
	store, err := Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sessionAt(id string, updated time.Time) *models.Session {
	return &models.Session{
		ID:        id,
		Title:     "title " + id,
		Model:     "google/gemini-3-flash-preview",
		CreatedAt: updated,
		UpdatedAt: updated,
		Messages: []models.Message{
			{Role: models.RoleUser, Content: "hello from " + id},
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := newStore(t)

	sess := sessionAt("20260101120000-abcd1234", time.Now())
	sess.Messages = append(sess.Messages, models.Message{
		Role:    models.RoleAssistant,
		Content: "hi there",
		Model:   "google/gemini-3-flash-preview",
	})
	require.NoError(t, store.Save(sess))

	got, err := store.Load(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.Title, got.Title)
	assert.Equal(t, sess.Model, got.Model)
	assert.Equal(t, sess.Messages, got.Messages)
	assert.Equal(t, sess.UpdatedAt.UnixMilli(), got.UpdatedAt.UnixMilli())
}

func TestSaveOverwritesExisting(t *testing.T) {
	store := newStore(t)

	sess := sessionAt("20260101120000-abcd1234", time.Now())
	require.NoError(t, store.Save(sess))

	sess.Title = "renamed"
	sess.Messages = append(sess.Messages, models.Message{Role: models.RoleAssistant, Content: "reply"})
	require.NoError(t, store.Save(sess))

	got, err := store.Load(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Title)
	assert.Len(t, got.Messages, 2)

	all, err := store.List(0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestLoadMissing(t *testing.T) {
	store := newStore(t)

	_, err := store.Load("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveNilMessages(t *testing.T) {
	store := newStore(t)

	sess := sessionAt("20260101120000-abcd1234", time.Now())
	sess.Messages = nil
	require.NoError(t, store.Save(sess))

	got, err := store.Load(sess.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Messages)
	assert.Empty(t, got.Messages)
}

func TestListNewestFirst(t *testing.T) {
	store := newStore(t)

	// Save stamps updated_at, so save order is recency order. The
	// sleeps keep the millisecond timestamps distinct.
	for i := 0; i < 5; i++ {
		sess := sessionAt(fmt.Sprintf("2026010112000%d-aaaa000%d", i, i), time.Now())
		require.NoError(t, store.Save(sess))
		time.Sleep(2 * time.Millisecond)
	}

	got, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].UpdatedAt.After(got[i-1].UpdatedAt),
			"sessions must be ordered newest first")
	}

	limited, err := store.List(2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
	assert.Equal(t, got[0].ID, limited[0].ID)
}

func TestResolvePrefix(t *testing.T) {
	store := newStore(t)

	require.NoError(t, store.Save(sessionAt("20260101120000-abcd1234", time.Now())))
	require.NoError(t, store.Save(sessionAt("20260202120000-efgh5678", time.Now())))

	t.Run("exact", func(t *testing.T) {
		got, err := store.Resolve("20260101120000-abcd1234")
		require.NoError(t, err)
		assert.Equal(t, "20260101120000-abcd1234", got.ID)
	})

	t.Run("prefix", func(t *testing.T) {
		got, err := store.Resolve("20260202")
		require.NoError(t, err)
		assert.Equal(t, "20260202120000-efgh5678", got.ID)
	})

	t.Run("miss", func(t *testing.T) {
		_, err := store.Resolve("1999")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCleanupKeepsNewest(t *testing.T) {
	store := newStore(t)

	for i := 0; i < 7; i++ {
		sess := sessionAt(fmt.Sprintf("2026010112000%d-bbbb000%d", i, i), time.Now())
		require.NoError(t, store.Save(sess))
		time.Sleep(2 * time.Millisecond)
	}

	require.NoError(t, store.Cleanup(3))

	got, err := store.List(0)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// The three newest survive.
	assert.Equal(t, "20260101120006-bbbb0006", got[0].ID)
	assert.Equal(t, "20260101120005-bbbb0005", got[1].ID)
	assert.Equal(t, "20260101120004-bbbb0004", got[2].ID)
}

func TestDelete(t *testing.T) {
	store := newStore(t)

	sess := sessionAt("20260101120000-abcd1234", time.Now())
	require.NoError(t, store.Save(sess))
	require.NoError(t, store.Delete(sess.ID))

	_, err := store.Load(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
