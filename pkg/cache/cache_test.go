package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightspeed-stack/query-gateway/pkg/models"
	"github.com/lightspeed-stack/query-gateway/pkg/suid"
)

func newTestSQLite(t *testing.T) Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache.db")
	c, err := NewSQLite(dbPath)
	require.NoError(t, err)
	return c
}

func TestSQLiteInsertAndGetOrdered(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLite(t)

	userID := suid.New()
	convID := suid.New()

	first := Entry{Query: "hi", Response: "hello", Provider: "p", Model: "m", StartedAt: time.Now().UTC()}
	require.NoError(t, c.Insert(ctx, userID, convID, first, false))
	time.Sleep(2 * time.Millisecond)
	second := Entry{Query: "again", Response: "hi again", Provider: "p", Model: "m", StartedAt: time.Now().UTC()}
	require.NoError(t, c.Insert(ctx, userID, convID, second, false))

	entries, err := c.Get(ctx, userID, convID, false)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "hi", entries[0].Query)
	assert.Equal(t, "again", entries[1].Query)
	assert.True(t, entries[0].CreatedAt.Before(entries[1].CreatedAt) || entries[0].CreatedAt.Equal(entries[1].CreatedAt))
}

func TestSQLiteReferencedDocumentsNullVsEmpty(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLite(t)

	userID := suid.New()
	convID := suid.New()

	withoutDocs := Entry{Query: "q1", Response: "r1", StartedAt: time.Now().UTC()}
	require.NoError(t, c.Insert(ctx, userID, convID, withoutDocs, false))

	withDocs := Entry{
		Query: "q2", Response: "r2", StartedAt: time.Now().UTC(),
		ReferencedDocuments: []models.ReferencedDocument{{DocURL: "https://example.com/a", DocTitle: "A"}},
	}
	require.NoError(t, c.Insert(ctx, userID, convID, withDocs, false))

	entries, err := c.Get(ctx, userID, convID, false)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Nil(t, entries[0].ReferencedDocuments)
	require.Len(t, entries[1].ReferencedDocuments, 1)
	assert.Equal(t, "https://example.com/a", entries[1].ReferencedDocuments[0].DocURL)
}

func TestSQLiteDeleteRemovesEntriesAndConversation(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLite(t)

	userID := suid.New()
	convID := suid.New()
	require.NoError(t, c.Insert(ctx, userID, convID, Entry{Query: "q", Response: "r", StartedAt: time.Now().UTC()}, false))

	list, err := c.List(ctx, userID, false)
	require.NoError(t, err)
	require.Len(t, list, 1)

	deleted, err := c.Delete(ctx, userID, convID, false)
	require.NoError(t, err)
	assert.True(t, deleted)

	entries, err := c.Get(ctx, userID, convID, false)
	require.NoError(t, err)
	assert.Empty(t, entries)

	list, err = c.List(ctx, userID, false)
	require.NoError(t, err)
	assert.Empty(t, list)

	deletedAgain, err := c.Delete(ctx, userID, convID, false)
	require.NoError(t, err)
	assert.False(t, deletedAgain)
}

func TestSQLiteSetTopicSummaryIsIdempotentExceptTimestamp(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLite(t)

	userID := suid.New()
	convID := suid.New()
	require.NoError(t, c.Insert(ctx, userID, convID, Entry{Query: "q", Response: "r", StartedAt: time.Now().UTC()}, false))

	require.NoError(t, c.SetTopicSummary(ctx, userID, convID, "about foo", false))
	first, err := c.List(ctx, userID, false)
	require.NoError(t, err)
	require.Len(t, first, 1)
	firstTS := first[0].LastMessageTimestamp

	require.NoError(t, c.SetTopicSummary(ctx, userID, convID, "about foo", false))
	second, err := c.List(ctx, userID, false)
	require.NoError(t, err)
	require.Len(t, second, 1)

	assert.Equal(t, "about foo", second[0].TopicSummary)
	assert.GreaterOrEqual(t, second[0].LastMessageTimestamp, firstTS)
}

func TestSQLiteInvalidUserIDRejected(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLite(t)

	_, err := c.Get(ctx, "not-a-uuid", suid.New(), false)
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestSQLiteSkipUserIDCheckBypassesValidation(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLite(t)

	err := c.Insert(ctx, "noop-user", suid.New(), Entry{Query: "q", Response: "r", StartedAt: time.Now().UTC()}, true)
	require.NoError(t, err)
}

func TestMemoryCacheValidatesButDoesNotStore(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	userID := suid.New()
	convID := suid.New()
	require.NoError(t, c.Insert(ctx, userID, convID, Entry{Query: "q"}, false))

	entries, err := c.Get(ctx, userID, convID, false)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = c.Get(ctx, "not-a-uuid", convID, false)
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestSQLiteGetConversationTracksLastUsedAndMessageCount(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLite(t)

	userID := suid.New()
	convID := suid.New()

	require.NoError(t, c.Insert(ctx, userID, convID, Entry{Query: "q1", Response: "r1", Provider: "p1", Model: "m1", StartedAt: time.Now().UTC()}, false))
	uc, err := c.GetConversation(ctx, userID, convID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, uc.MessageCount)
	assert.Equal(t, "p1", uc.LastUsedProvider)
	assert.Equal(t, "m1", uc.LastUsedModel)

	require.NoError(t, c.Insert(ctx, userID, convID, Entry{Query: "q2", Response: "r2", Provider: "p2", Model: "m2", StartedAt: time.Now().UTC()}, false))
	uc, err = c.GetConversation(ctx, userID, convID, false)
	require.NoError(t, err)
	assert.Equal(t, 2, uc.MessageCount)
	assert.Equal(t, "p2", uc.LastUsedProvider)
	assert.Equal(t, "m2", uc.LastUsedModel)
}

func TestSQLiteGetConversationNotFound(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLite(t)

	_, err := c.GetConversation(ctx, suid.New(), suid.New(), false)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestSQLiteSetTopicSummaryDoesNotBumpMessageCount(t *testing.T) {
	ctx := context.Background()
	c := newTestSQLite(t)

	userID := suid.New()
	convID := suid.New()
	require.NoError(t, c.Insert(ctx, userID, convID, Entry{Query: "q", Response: "r", StartedAt: time.Now().UTC()}, false))
	require.NoError(t, c.SetTopicSummary(ctx, userID, convID, "topic", false))

	uc, err := c.GetConversation(ctx, userID, convID, false)
	require.NoError(t, err)
	assert.Equal(t, 1, uc.MessageCount)
}

func TestNoopCacheNeverValidatesAlwaysEmpty(t *testing.T) {
	ctx := context.Background()
	c := NewNoop()

	require.NoError(t, c.Insert(ctx, "anything", "anything", Entry{}, false))
	entries, err := c.Get(ctx, "anything", "anything", false)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
