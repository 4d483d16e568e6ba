package reconcile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/models"
)

func outgoing(t *testing.T, msgs []models.Message, text string) []models.Message {
	t.Helper()
	var out []models.Message
	for _, m := range msgs {
		if !m.IsIncoming && m.Text == text {
			out = append(out, m)
		}
	}
	return out
}

func TestOutboxConvergesByPlatformID(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	page := h.addPage(t, "p1", "tok")
	conv := remoteConv("t1", "p1", t0, 0)
	require.NoError(t, h.convs.Upsert(ctx, conv))

	outbox := NewOutbox(h.platform, h.store, h.notifier, testLogger())
	outbox.now = func() time.Time { return t0.Add(30 * time.Second) }
	h.platform.sendResult = graph.SendResult{RecipientID: conv.CustomerID, MessageID: "m.sent"}

	placeholder := outbox.Stage(ctx, page, conv, "thanks!")
	assert.True(t, strings.HasPrefix(placeholder.ID, models.LocalMessagePrefix))
	assert.Equal(t, models.DeliveryPending, placeholder.DeliveryState)
	assert.True(t, placeholder.IsRead)
	assert.False(t, placeholder.IsIncoming)
	require.Len(t, h.threadMessages(t, "t1"), 1)

	sent, err := outbox.Deliver(ctx, page, conv, placeholder)
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryConfirmed, sent.DeliveryState)
	assert.Equal(t, "m.sent", sent.PlatformID)
	assert.Equal(t, []string{"cust-t1:thanks!"}, h.platform.sent)

	// the platform copy shows up a little earlier than the local clock
	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0.Add(time.Minute), 0)}
	h.platform.threads["t1"] = []models.Message{remoteMsg("m.sent", "t1", "thanks!", t0.Add(29*time.Second), false)}

	summary, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{placeholder.ID}, summary.RemovedMessageIDs)

	msgs := outgoing(t, h.threadMessages(t, "t1"), "thanks!")
	require.Len(t, msgs, 1)
	assert.Equal(t, "m.sent", msgs[0].ID)
	assert.True(t, msgs[0].Confirmed())

	// another pass changes nothing
	summary, err = h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Empty(t, summary.RemovedMessageIDs)
	assert.Len(t, outgoing(t, h.threadMessages(t, "t1"), "thanks!"), 1)
}

func TestOutboxConvergesByTextWithinWindow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{CorrelationWindow: time.Minute})
	page := h.addPage(t, "p1", "tok")
	conv := remoteConv("t1", "p1", t0, 0)
	require.NoError(t, h.convs.Upsert(ctx, conv))

	outbox := NewOutbox(h.platform, h.store, h.notifier, testLogger())
	outbox.now = func() time.Time { return t0 }
	h.platform.sendResult = graph.SendResult{RecipientID: conv.CustomerID}

	first := outbox.Stage(ctx, page, conv, "ok")
	_, err := outbox.Deliver(ctx, page, conv, first)
	require.NoError(t, err)

	outbox.now = func() time.Time { return t0.Add(10 * time.Minute) }
	second := outbox.Stage(ctx, page, conv, "ok")
	_, err = outbox.Deliver(ctx, page, conv, second)
	require.NoError(t, err)

	h.platform.conversations["p1"] = []models.Conversation{remoteConv("t1", "p1", t0.Add(time.Minute), 0)}
	h.platform.threads["t1"] = []models.Message{remoteMsg("m.a", "t1", "ok", t0.Add(5*time.Second), false)}

	summary, err := h.engine.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, summary.RemovedMessageIDs)

	msgs := outgoing(t, h.threadMessages(t, "t1"), "ok")
	require.Len(t, msgs, 2)
	ids := []string{msgs[0].ID, msgs[1].ID}
	assert.Contains(t, ids, "m.a")
	assert.Contains(t, ids, second.ID, "a placeholder outside the window stays")
}

func TestOutboxFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	page := h.addPage(t, "p1", "tok")
	conv := remoteConv("t1", "p1", t0, 0)

	outbox := NewOutbox(h.platform, h.store, h.notifier, testLogger())
	h.platform.sendErr = &graph.PlatformError{Code: 10, Message: "outside the allowed window"}

	placeholder := outbox.Stage(ctx, page, conv, "late reply")
	failed, err := outbox.Deliver(ctx, page, conv, placeholder)
	require.Error(t, err)
	_, isPlatform := graph.AsPlatformError(err)
	assert.True(t, isPlatform)
	assert.Equal(t, models.DeliveryFailed, failed.DeliveryState)
	assert.Equal(t, "outside the allowed window", failed.FailureReason)

	stored := h.threadMessages(t, "t1")
	require.Len(t, stored, 1)
	assert.Equal(t, models.DeliveryFailed, stored[0].DeliveryState)

	require.Equal(t, 1, h.notifier.count())
	assert.Equal(t, models.EventSendFailed, h.notifier.events[0].Type)
}

func TestOutboxRetryClearsFailureReason(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	page := h.addPage(t, "p1", "tok")
	conv := remoteConv("t1", "p1", t0, 0)

	outbox := NewOutbox(h.platform, h.store, nil, testLogger())
	h.platform.sendErr = &graph.PlatformError{Code: 10, Message: "outside the allowed window"}
	failed, err := outbox.Deliver(ctx, page, conv, outbox.Stage(ctx, page, conv, "late reply"))
	require.Error(t, err)
	require.Equal(t, "outside the allowed window", h.threadMessages(t, "t1")[0].FailureReason)

	h.platform.sendErr = nil
	h.platform.sendResult = graph.SendResult{MessageID: "m.9"}
	_, err = outbox.Deliver(ctx, page, conv, failed)
	require.NoError(t, err)

	stored := h.threadMessages(t, "t1")
	require.Len(t, stored, 1)
	assert.Equal(t, models.DeliveryConfirmed, stored[0].DeliveryState)
	assert.Equal(t, "m.9", stored[0].PlatformID)
	assert.Empty(t, stored[0].FailureReason)
}

func TestOutboxStoreDownStillSends(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Config{})
	page := models.Page{ID: "p1", Name: "Shop", AccessToken: "tok"}
	conv := remoteConv("t1", "p1", t0, 0)
	h.store.SetDown(true)

	outbox := NewOutbox(h.platform, h.store, nil, testLogger())
	h.platform.sendResult = graph.SendResult{MessageID: "m.1"}
	sent, err := outbox.Deliver(ctx, page, conv, outbox.Stage(ctx, page, conv, "hi"))
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryConfirmed, sent.DeliveryState)
	assert.Equal(t, 0, h.store.Count(docstore.KindMessages))
}
