package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/models"
)

var t0 = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

type harness struct {
	store    *docstore.Memory
	platform *fakePlatform
	notifier *recordingNotifier
	engine   *Engine
	pages    *docstore.Collection[models.Page]
	convs    *docstore.Collection[models.Conversation]
	messages *docstore.Collection[models.Message]
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store:    docstore.NewMemory(),
		platform: newFakePlatform(),
		notifier: &recordingNotifier{},
	}
	h.pages = docstore.NewCollection[models.Page](h.store, docstore.KindPages, testLogger())
	h.convs = docstore.NewCollection[models.Conversation](h.store, docstore.KindConversations, testLogger())
	h.messages = docstore.NewCollection[models.Message](h.store, docstore.KindMessages, testLogger())
	opts = append([]Option{WithNotifier(h.notifier)}, opts...)
	h.engine = NewEngine(h.platform, h.store, cfg, testLogger(), opts...)
	return h
}

func (h *harness) addPage(t *testing.T, id, token string) models.Page {
	t.Helper()
	page := models.Page{ID: id, Name: "Page " + id, AccessToken: token, IsConnected: token != ""}
	require.NoError(t, h.pages.Upsert(context.Background(), page))
	return page
}

func remoteConv(id, pageID string, ts time.Time, unread int) models.Conversation {
	return models.Conversation{
		ID:            id,
		PageID:        pageID,
		CustomerID:    "cust-" + id,
		CustomerName:  "Customer " + id,
		LastMessage:   "hi",
		LastTimestamp: ts,
		Status:        models.ConversationOpen,
		UnreadCount:   unread,
	}
}

func remoteMsg(id, convID, text string, ts time.Time, incoming bool) models.Message {
	sender := "cust-" + convID
	if !incoming {
		sender = "p1"
	}
	return models.Message{ID: id, ConversationID: convID, SenderID: sender, Text: text, Timestamp: ts, IsIncoming: incoming, IsRead: true}
}

func (h *harness) threadMessages(t *testing.T, convID string) []models.Message {
	t.Helper()
	msgs, err := h.messages.List(context.Background(), docstore.Filter{"conversationId": convID})
	require.NoError(t, err)
	return msgs
}

func TestSyncNewConversation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.addPage(t, "p1", "tok")
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0, 1)}
	h.platform.threads["t1"] = []models.Message{
		remoteMsg("m1", "t1", "hello", t0.Add(-time.Minute), true),
		remoteMsg("m2", "t1", "anyone?", t0, true),
	}

	summary, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", summary.Outcome())
	assert.Equal(t, 1, summary.ConversationsUpserted)
	assert.Equal(t, 2, summary.MessagesUpserted)
	assert.Equal(t, 1, summary.Notifications)
	require.Len(t, summary.Pages, 1)
	assert.Equal(t, PageSynced, summary.Pages[0].Status)
	assert.Nil(t, h.platform.sinceSeen["t1"], "first fetch has no watermark")

	conv, ok, err := h.convs.Get(ctx, "t1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Customer t1", conv.CustomerName)
	assert.Len(t, h.threadMessages(t, "t1"), 2)
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.addPage(t, "p1", "tok")
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0, 1)}
	h.platform.threads["t1"] = []models.Message{remoteMsg("m1", "t1", "hello", t0, true)}

	_, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	writes := h.store.Calls(docstore.ActionUpdateOne)

	summary, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ConversationsUpserted)
	assert.Equal(t, 0, summary.MessagesUpserted)
	assert.Equal(t, 0, summary.Notifications)
	assert.Equal(t, writes, h.store.Calls(docstore.ActionUpdateOne))
	assert.Equal(t, 1, h.notifier.count())
}

func TestSyncNoDuplicateMessages(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.addPage(t, "p1", "tok")
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0, 0)}
	h.platform.threads["t1"] = []models.Message{remoteMsg("m1", "t1", "hello", t0, true)}
	_, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)

	// the conversation moves on and the platform returns the overlap again
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0.Add(time.Minute), 0)}
	h.platform.threads["t1"] = []models.Message{
		remoteMsg("m1", "t1", "hello", t0, true),
		remoteMsg("m2", "t1", "again", t0.Add(time.Minute), true),
	}
	summary, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MessagesUpserted)

	since := h.platform.sinceSeen["t1"]
	require.NotNil(t, since)
	assert.True(t, since.Equal(t0))
	assert.Len(t, h.threadMessages(t, "t1"), 2)
}

func TestSyncPreservesLocalFields(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{IncludeProfiles: false})
	h.addPage(t, "p1", "tok")

	agentID := "agent-1"
	local := remoteConv("t1", "p1", t0, 0)
	local.Status = models.ConversationResolved
	local.AssignedAgentID = &agentID
	local.CustomerName = "Known Name"
	local.CustomerAvatarBlob = "aGVsbG8="
	require.NoError(t, h.convs.Upsert(ctx, local))

	remote := remoteConv("t1", "p1", t0.Add(time.Minute), 0)
	remote.CustomerName = models.DefaultCustomerName
	remote.CustomerID = models.DefaultCustomerID
	remote.LastMessage = "new text"
	h.platform.conversations["p1"] = []models.Conversation{remote}

	_, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)

	conv, _, err := h.convs.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.ConversationResolved, conv.Status)
	require.NotNil(t, conv.AssignedAgentID)
	assert.Equal(t, agentID, *conv.AssignedAgentID)
	assert.Equal(t, "aGVsbG8=", conv.CustomerAvatarBlob)
	assert.Equal(t, "Known Name", conv.CustomerName)
	assert.Equal(t, "new text", conv.LastMessage)
	assert.True(t, conv.LastTimestamp.Equal(t0.Add(time.Minute)))
}

func TestSyncResolvesIdentityOfNewConversations(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{IncludeProfiles: false})
	h.addPage(t, "p1", "tok")
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0, 0)}

	_, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.platform.profileCalls)

	conv, _, err := h.convs.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "cust-t1", conv.CustomerID)
	assert.Equal(t, "Customer t1", conv.CustomerName)

	// known conversations refresh without participants and keep their identity
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0.Add(time.Minute), 0)}
	_, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.platform.profileCalls)
	assert.Equal(t, 2, h.platform.plainCalls)

	conv, _, err = h.convs.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "cust-t1", conv.CustomerID)

	outbox := NewOutbox(h.platform, h.store, h.notifier, testLogger())
	page, _, err := h.pages.Get(ctx, "p1")
	require.NoError(t, err)
	_, err = outbox.Deliver(ctx, page, conv, outbox.Stage(ctx, page, conv, "thanks"))
	require.NoError(t, err)
	assert.Equal(t, []string{"cust-t1:thanks"}, h.platform.sent)
}

func TestSyncRepairsUnknownCustomer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{IncludeProfiles: false})
	h.addPage(t, "p1", "tok")
	stale := remoteConv("t1", "p1", t0, 0)
	stale.CustomerID = models.DefaultCustomerID
	stale.CustomerName = models.DefaultCustomerName
	require.NoError(t, h.convs.Upsert(ctx, stale))

	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0.Add(time.Minute), 0)}
	_, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)

	conv, _, err := h.convs.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "cust-t1", conv.CustomerID)
}

func TestSyncSkipsOlderConversation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.addPage(t, "p1", "tok")
	require.NoError(t, h.convs.Upsert(ctx, remoteConv("t1", "p1", t0, 0)))
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0, 0)}

	summary, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.ConversationsUpserted)
	assert.Equal(t, 0, h.platform.threadCalls["t1"])
}

func TestSyncPartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.addPage(t, "p1", "tok")
	h.addPage(t, "p2", "tok")
	h.addPage(t, "p3", "")
	h.platform.convErr["p1"] = &graph.PlatformError{Code: graph.CodeInvalidOAuthToken, Message: "Session has expired"}
	h.platform.conversations["p2"] = []models.Conversation{remoteConv("t2", "p2", t0, 0)}

	summary, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "partial", summary.Outcome())
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "p1", summary.Failures[0].PageID)
	require.Len(t, summary.Pages, 2, "pages without a token are not polled")
	assert.Equal(t, 1, summary.ConversationsUpserted)

	_, ok, err := h.convs.Get(ctx, "t2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSyncThreadFailureRetriesNextPass(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.addPage(t, "p1", "tok")
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0, 0)}
	h.platform.threads["t1"] = []models.Message{remoteMsg("m1", "t1", "hello", t0, true)}
	h.platform.threadErr["t1"] = errors.New("boom")

	summary, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "failed", summary.Outcome())
	assert.Equal(t, 0, h.store.Count(docstore.KindConversations))

	delete(h.platform.threadErr, "t1")
	summary, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", summary.Outcome())
	assert.Equal(t, 1, summary.ConversationsUpserted)
	assert.Equal(t, 1, summary.MessagesUpserted)
}

func TestSyncStoreUnavailable(t *testing.T) {
	h := newHarness(t, Config{})
	h.store.SetDown(true)
	_, err := h.engine.SyncNow(context.Background())
	assert.True(t, docstore.IsUnavailable(err))
}

func TestSyncSkipsLockedPage(t *testing.T) {
	ctx := context.Background()
	locker := NewLocalLocker()
	h := newHarness(t, Config{}, WithLocker(locker))
	h.addPage(t, "p1", "tok")
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0, 0)}

	unlock, ok, err := locker.TryLock(ctx, "p1")
	require.NoError(t, err)
	require.True(t, ok)

	summary, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Pages, 1)
	assert.Equal(t, PageSkipped, summary.Pages[0].Status)
	assert.Empty(t, summary.Failures)

	unlock()
	summary, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, PageSynced, summary.Pages[0].Status)
}

func TestSyncRateGate(t *testing.T) {
	ctx := context.Background()
	gate := &fakeGate{deny: map[string]bool{}, blocked: map[string]time.Duration{}}
	h := newHarness(t, Config{RateLimitBackoff: time.Minute}, WithRateGate(gate))
	h.addPage(t, "p1", "tok")
	h.platform.convErr["p1"] = &graph.PlatformError{Code: graph.CodeAPITooManyCalls, Message: "too many calls"}

	summary, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, time.Minute, gate.blocked["p1"])

	delete(h.platform.convErr, "p1")
	summary, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "rate limited", summary.Failures[0].Reason)
}

func TestUnreadNotifiedOncePerIncrease(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.addPage(t, "p1", "tok")

	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0, 1)}
	_, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.notifier.count())

	_, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.notifier.count())

	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0.Add(time.Minute), 3)}
	_, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, h.notifier.count())
	last := h.notifier.events[1]
	assert.Equal(t, models.EventUnreadIncreased, last.Type)
	assert.Equal(t, 3, last.UnreadCount)
	assert.Equal(t, 1, last.Previous)

	// read on the platform, then a new message
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0.Add(2*time.Minute), 0)}
	_, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0.Add(3*time.Minute), 1)}
	_, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, h.notifier.count())
}

func TestSyncPageAndThread(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	h.addPage(t, "p1", "tok")
	h.addPage(t, "p2", "")
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0, 0)}
	h.platform.threads["t1"] = []models.Message{remoteMsg("m1", "t1", "hello", t0, true)}

	_, err := h.engine.SyncPage(ctx, "missing")
	assert.ErrorIs(t, err, ErrPageNotFound)
	_, err = h.engine.SyncPage(ctx, "p2")
	assert.ErrorIs(t, err, ErrPageNotSyncable)

	summary, err := h.engine.SyncPage(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ConversationsUpserted)

	h.platform.threads["t1"] = append(h.platform.threads["t1"], remoteMsg("m2", "t1", "more", t0.Add(time.Second), true))
	summary, err = h.engine.SyncThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.MessagesUpserted)

	_, err = h.engine.SyncThread(ctx, "nope")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}
