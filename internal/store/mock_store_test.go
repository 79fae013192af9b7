// ABOUTME: Unit tests for MockStore to ensure behavior matches SQLiteStore
// ABOUTME: Focuses on thread binding, duplicate detection and listing order

package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockStore_CreateSession_Duplicate(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	session := &Session{ID: "sess-1", DisplayName: "First", CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	require.NoError(t, store.CreateSession(ctx, session))

	err := store.CreateSession(ctx, session)
	assert.ErrorIs(t, err, ErrDuplicateSession)
}

func TestMockStore_UpsertThreadID_FirstBindingWins(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	got, err := store.UpsertThreadID(ctx, "sess-1", "thread-a", "Session sess-1")
	require.NoError(t, err)
	assert.Equal(t, "thread-a", got.ThreadID)
	assert.Equal(t, "Session sess-1", got.DisplayName)

	got, err = store.UpsertThreadID(ctx, "sess-1", "thread-b", "ignored")
	require.NoError(t, err)
	assert.Equal(t, "thread-a", got.ThreadID, "existing binding is kept")
	assert.Equal(t, "Session sess-1", got.DisplayName)
	assert.Equal(t, 2, store.UpsertCalls)
}

func TestMockStore_UpsertThreadID_BindsExistingSession(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, &Session{ID: "sess-1", DisplayName: "Named"}))

	got, err := store.UpsertThreadID(ctx, "sess-1", "thread-a", "default")
	require.NoError(t, err)
	assert.Equal(t, "thread-a", got.ThreadID)
	assert.Equal(t, "Named", got.DisplayName)
}

func TestMockStore_ReturnsCopies(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	require.NoError(t, store.CreateSession(ctx, &Session{ID: "sess-1", DisplayName: "Named"}))

	got, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	got.DisplayName = "mutated"

	again, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Named", again.DisplayName)
}

func TestMockStore_NotFound(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	_, err := store.GetSession(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.RenameSession(ctx, "missing", "x"), ErrNotFound)
	assert.ErrorIs(t, store.DeleteSession(ctx, "missing"), ErrNotFound)
}

func TestMockStore_ListFeedback_NewestFirst(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()

	for _, fb := range []*Feedback{
		{ID: "1", MessageID: "m1", SessionID: "a"},
		{ID: "2", MessageID: "m2", SessionID: "b"},
		{ID: "3", MessageID: "m3", SessionID: "a"},
	} {
		require.NoError(t, store.SaveFeedback(ctx, fb))
	}

	all, err := store.ListFeedback(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "3", all[0].ID)

	onlyA, err := store.ListFeedback(ctx, "a", 1)
	require.NoError(t, err)
	require.Len(t, onlyA, 1)
	assert.Equal(t, "3", onlyA[0].ID)
}

func TestMockStore_ListResources_Filters(t *testing.T) {
	store := NewMockStore()
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.CreateResource(ctx, &Resource{ID: "r1", Category: "hotline", LocationTag: "beijing", CreatedAt: base}))
	require.NoError(t, store.CreateResource(ctx, &Resource{ID: "r2", Category: "hotline", LocationTag: "shanghai", CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, store.CreateResource(ctx, &Resource{ID: "r3", Category: "clinic", LocationTag: "beijing", CreatedAt: base.Add(2 * time.Hour)}))

	hotlines, err := store.ListResources(ctx, ResourceFilter{Category: "hotline"})
	require.NoError(t, err)
	require.Len(t, hotlines, 2)
	assert.Equal(t, "r2", hotlines[0].ID)

	beijing, err := store.ListResources(ctx, ResourceFilter{Location: "beijing", Limit: 1})
	require.NoError(t, err)
	require.Len(t, beijing, 1)
	assert.Equal(t, "r3", beijing[0].ID)
}

func TestMockStore_PingErr(t *testing.T) {
	store := NewMockStore()
	assert.NoError(t, store.Ping(context.Background()))

	store.PingErr = errors.New("down")
	assert.EqualError(t, store.Ping(context.Background()), "down")
}
