package docstore

import (
	"context"
	"testing"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollection_RoundTripAndValidation(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	messages := NewCollection[models.Message](m, KindMessages, getTestLogger())

	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := models.Message{ID: "m1", ConversationID: "c1", Text: "hi", Timestamp: ts, IsIncoming: true}
	require.NoError(t, messages.Upsert(ctx, msg))

	got, ok, err := messages.Get(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, msg, got)

	err = messages.Upsert(ctx, models.Message{ID: "m2"})
	assert.True(t, IsRejected(err))
	assert.Equal(t, 1, m.Count(KindMessages))
}

func TestCollection_SkipsInvalidStoredDocuments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	require.NoError(t, m.Upsert(ctx, KindAgents, Document{"id": "a1", "name": "Ok", "email": "ok@example.com", "role": "AGENT"}))
	require.NoError(t, m.Upsert(ctx, KindAgents, Document{"id": "a2", "name": "Broken", "email": "not-an-email", "role": "AGENT"}))
	require.NoError(t, m.Upsert(ctx, KindAgents, Document{"id": "a3", "name": 42}))

	agents := NewCollection[models.Agent](m, KindAgents, getTestLogger())
	list, err := agents.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "a1", list[0].ID)
}

func TestCollection_PropagatesStoreErrors(t *testing.T) {
	m := NewMemory()
	m.SetDown(true)
	pages := NewCollection[models.Page](m, KindPages, getTestLogger())

	_, err := pages.List(context.Background(), nil)
	assert.True(t, IsUnavailable(err))
}

func TestCollection_UpsertClearsFields(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	messages := NewCollection[models.Message](m, KindMessages, getTestLogger())
	conversations := NewCollection[models.Conversation](m, KindConversations, getTestLogger())

	failed := models.Message{ID: "local-1", ConversationID: "c1", Text: "hi", DeliveryState: models.DeliveryFailed, FailureReason: "window closed"}
	require.NoError(t, messages.Upsert(ctx, failed))
	sent := failed
	sent.DeliveryState = models.DeliveryConfirmed
	sent.FailureReason = ""
	require.NoError(t, messages.Upsert(ctx, sent))

	got, ok, err := messages.Get(ctx, "local-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, got.FailureReason)
	assert.Equal(t, models.DeliveryConfirmed, got.DeliveryState)

	conv := models.Conversation{ID: "c1", PageID: "p1", Status: models.ConversationOpen, CustomerAvatarBlob: "aGVsbG8="}
	require.NoError(t, conversations.Upsert(ctx, conv))
	conv.CustomerAvatarBlob = ""
	require.NoError(t, conversations.Upsert(ctx, conv))

	gotConv, ok, err := conversations.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Empty(t, gotConv.CustomerAvatarBlob)
}
