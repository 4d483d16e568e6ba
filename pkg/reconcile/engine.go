// Package reconcile merges platform conversations and messages into the document store.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"go.opentelemetry.io/otel/attribute"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Defaults applied to zero Config values.
const (
	DefaultSyncLimit         = 50
	DefaultCorrelationWindow = 2 * time.Minute
	DefaultRateLimitBackoff  = 5 * time.Minute
	DefaultLockTTL           = 2 * time.Minute
)

// Lookup errors returned by single-conversation operations.
var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrPageNotFound         = errors.New("page not found")
	ErrPageNotSyncable      = errors.New("page has no access token")
)

// Platform is the part of the messaging client the engine and outbox use.
type Platform interface {
	ListConversations(ctx context.Context, pageID, token string, limit int, includeCustomerProfile bool) ([]models.Conversation, error)
	ListThreadMessages(ctx context.Context, conversationID, pageID, token string, since *time.Time) ([]models.Message, error)
	SendMessage(ctx context.Context, recipientID, text, token string) (graph.SendResult, error)
}

// Config tunes a sync pass. Zero values take the package defaults.
type Config struct {
	SyncLimit int
	// IncludeProfiles requests participants on every pass. Without it they are requested only
	// when a fetched conversation has no stored customer id.
	IncludeProfiles   bool
	CorrelationWindow time.Duration
	RateLimitBackoff  time.Duration
}

func (c Config) withDefaults() Config {
	if c.SyncLimit <= 0 {
		c.SyncLimit = DefaultSyncLimit
	}
	if c.CorrelationWindow <= 0 {
		c.CorrelationWindow = DefaultCorrelationWindow
	}
	if c.RateLimitBackoff <= 0 {
		c.RateLimitBackoff = DefaultRateLimitBackoff
	}
	return c
}

// Engine reconciles stored pages, conversations and messages against the platform.
type Engine struct {
	platform      Platform
	pages         *docstore.Collection[models.Page]
	conversations *docstore.Collection[models.Conversation]
	messages      *docstore.Collection[models.Message]
	locker        PageLocker
	gate          RateGate
	notifier      Notifier
	cfg           Config
	logger        ectologger.Logger

	mu         sync.Mutex
	lastUnread map[string]int
}

// Option configures optional engine collaborators.
type Option func(*Engine)

// WithLocker replaces the in-process page locker.
func WithLocker(locker PageLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithRateGate shares rate-limit state across engine instances.
func WithRateGate(gate RateGate) Option {
	return func(e *Engine) { e.gate = gate }
}

// WithNotifier sets where sync and delivery events are published.
func WithNotifier(notifier Notifier) Option {
	return func(e *Engine) { e.notifier = notifier }
}

// NewEngine builds an engine over the gateway. The locker defaults to a local one and the
// notifier to a logging one.
func NewEngine(platform Platform, gateway docstore.Gateway, cfg Config, logger ectologger.Logger, opts ...Option) *Engine {
	e := &Engine{
		platform:      platform,
		pages:         docstore.NewCollection[models.Page](gateway, docstore.KindPages, logger),
		conversations: docstore.NewCollection[models.Conversation](gateway, docstore.KindConversations, logger),
		messages:      docstore.NewCollection[models.Message](gateway, docstore.KindMessages, logger),
		cfg:           cfg.withDefaults(),
		logger:        logger,
		lastUnread:    make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.locker == nil {
		e.locker = NewLocalLocker()
	}
	if e.notifier == nil {
		e.notifier = NewLogNotifier(logger)
	}
	return e
}

// Config returns the effective configuration after defaults.
func (e *Engine) Config() Config { return e.cfg }

// SyncNow runs one pass over every page with an access token. Page faults are isolated and
// reported in the summary; only a failure to read the page list is returned as an error.
func (e *Engine) SyncNow(ctx context.Context) (*SyncSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "Reconcile.SyncNow")
	defer span.End()

	summary := &SyncSummary{StartedAt: time.Now().UTC()}
	pages, err := e.pages.List(ctx, nil)
	if err != nil {
		metrics.RecordSyncPass("failed", 0)
		return nil, err
	}

	for _, page := range pages {
		if !page.Syncable() {
			continue
		}
		e.syncPage(ctx, page, summary)
	}

	summary.FinishedAt = time.Now().UTC()
	metrics.RecordSyncPass(summary.Outcome(), summary.FinishedAt.Sub(summary.StartedAt).Seconds())
	span.SetAttributes(
		attribute.Int("pages", len(summary.Pages)),
		attribute.Int("failures", len(summary.Failures)),
		attribute.Int("conversations_upserted", summary.ConversationsUpserted),
		attribute.Int("messages_upserted", summary.MessagesUpserted),
	)
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"pages":                  len(summary.Pages),
		"failures":               len(summary.Failures),
		"conversations_upserted": summary.ConversationsUpserted,
		"messages_upserted":      summary.MessagesUpserted,
		"notifications":          summary.Notifications,
	}).Info("sync pass complete")
	return summary, nil
}

// SyncPage runs a pass for a single page.
func (e *Engine) SyncPage(ctx context.Context, pageID string) (*SyncSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "Reconcile.SyncPage", attribute.String("page_id", pageID))
	defer span.End()

	page, ok, err := e.pages.Get(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPageNotFound
	}
	if !page.Syncable() {
		return nil, ErrPageNotSyncable
	}

	summary := &SyncSummary{StartedAt: time.Now().UTC()}
	e.syncPage(ctx, page, summary)
	summary.FinishedAt = time.Now().UTC()
	return summary, nil
}

// SyncThread refreshes the messages of one conversation. It does not take the page lock;
// message writes are idempotent.
func (e *Engine) SyncThread(ctx context.Context, conversationID string) (*SyncSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "Reconcile.SyncThread", attribute.String("conversation_id", conversationID))
	defer span.End()

	conv, ok, err := e.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConversationNotFound
	}
	page, ok, err := e.pages.Get(ctx, conv.PageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPageNotFound
	}
	if !page.Syncable() {
		return nil, ErrPageNotSyncable
	}

	summary := &SyncSummary{StartedAt: time.Now().UTC()}
	result, err := e.syncThread(ctx, page, conv.ID)
	if err != nil {
		return nil, err
	}
	summary.merge(result)
	summary.FinishedAt = time.Now().UTC()
	return summary, nil
}

func (e *Engine) syncPage(ctx context.Context, page models.Page, summary *SyncSummary) {
	ctx, span := tracing.StartSpan(ctx, "Reconcile.syncPage", attribute.String("page_id", page.ID))
	defer span.End()

	log := e.logger.WithContext(ctx).WithField("page_id", page.ID)
	result := PageResult{PageID: page.ID, Status: PageSynced}
	fail := func(reason string, err error) {
		result.Status = PageFailed
		summary.Failures = append(summary.Failures, PageFailure{PageID: page.ID, Reason: reason, Err: err})
		log.WithError(err).Warnf("page sync failed: %s", reason)
	}
	defer func() {
		summary.Pages = append(summary.Pages, result)
		metrics.SyncPagesTotal.WithLabelValues(string(result.Status)).Inc()
	}()

	unlock, ok, err := e.locker.TryLock(ctx, page.ID)
	if err != nil {
		fail("lock unavailable", err)
		return
	}
	if !ok {
		result.Status = PageSkipped
		log.Debug("page already syncing, skipped")
		return
	}
	defer unlock()

	if e.gate != nil {
		allowed, retryIn, err := e.gate.Allow(ctx, page.ID)
		if err != nil {
			log.WithError(err).Warn("rate gate unavailable, continuing")
		} else if !allowed {
			fail("rate limited", fmt.Errorf("retry in %s", retryIn))
			return
		}
	}

	stored, err := e.conversations.List(ctx, docstore.Filter{"pageId": page.ID})
	if err != nil {
		fail("read conversations", err)
		return
	}
	local := make(map[string]models.Conversation, len(stored))
	for _, c := range stored {
		local[c.ID] = c
	}

	withProfiles := e.cfg.IncludeProfiles
	fetched, err := e.platform.ListConversations(ctx, page.ID, page.AccessToken, e.cfg.SyncLimit, withProfiles)
	if err != nil {
		e.handlePlatformError(ctx, page.ID, err)
		fail("list conversations", err)
		return
	}
	if !withProfiles && missingIdentity(fetched, local) {
		withProfiles = true
		fetched, err = e.platform.ListConversations(ctx, page.ID, page.AccessToken, e.cfg.SyncLimit, true)
		if err != nil {
			e.handlePlatformError(ctx, page.ID, err)
			fail("list conversations", err)
			return
		}
	}

	for _, remote := range fetched {
		if remote.ID == "" {
			continue
		}
		existing, known := local[remote.ID]
		if known && !remote.LastTimestamp.After(existing.LastTimestamp) {
			e.observeUnread(ctx, page.ID, existing, remote, summary)
			continue
		}

		// messages first, so a failed thread leaves the conversation stale and retried next pass
		thread, err := e.syncThread(ctx, page, remote.ID)
		if err != nil {
			e.handlePlatformError(ctx, page.ID, err)
			fail("thread "+remote.ID, err)
			continue
		}
		summary.merge(thread)
		result.MessagesUpserted += len(thread.upserted)

		merged := merge(remote, existing, known, withProfiles)
		if err := e.conversations.Upsert(ctx, merged); err != nil {
			fail("write conversation "+remote.ID, err)
			continue
		}
		metrics.SyncUpsertsTotal.WithLabelValues(string(docstore.KindConversations)).Inc()
		result.ConversationsUpserted++
		summary.ConversationsUpserted++
		summary.Conversations = append(summary.Conversations, merged)
		e.observeUnread(ctx, page.ID, existing, merged, summary)
	}
}

// missingIdentity reports whether a fetched conversation has no usable customer id stored yet.
func missingIdentity(fetched []models.Conversation, local map[string]models.Conversation) bool {
	for _, remote := range fetched {
		if remote.ID == "" {
			continue
		}
		existing, known := local[remote.ID]
		if !known || existing.CustomerID == "" || existing.CustomerID == models.DefaultCustomerID {
			return true
		}
	}
	return false
}

// merge keeps fields that only exist locally. The stored customer identity wins unless the
// fetch resolved participants.
func merge(remote, existing models.Conversation, known, withProfiles bool) models.Conversation {
	if !known {
		return remote
	}
	remote.Status = existing.Status
	remote.AssignedAgentID = existing.AssignedAgentID
	remote.CustomerAvatarBlob = existing.CustomerAvatarBlob
	if !withProfiles || remote.CustomerID == models.DefaultCustomerID {
		remote.CustomerID = existing.CustomerID
		remote.CustomerName = existing.CustomerName
		remote.CustomerAvatar = existing.CustomerAvatar
	}
	return remote
}

// observeUnread notifies once per increase over the last count seen for the conversation.
func (e *Engine) observeUnread(ctx context.Context, pageID string, existing, current models.Conversation, summary *SyncSummary) {
	e.mu.Lock()
	prev, seen := e.lastUnread[current.ID]
	if !seen {
		prev = existing.UnreadCount
	}
	e.lastUnread[current.ID] = current.UnreadCount
	e.mu.Unlock()

	if current.UnreadCount <= prev {
		return
	}

	evt := models.Event{
		Type:           models.EventUnreadIncreased,
		Namespace:      appctx.GetNamespace(ctx),
		PageID:         pageID,
		ConversationID: current.ID,
		CustomerName:   current.CustomerName,
		UnreadCount:    current.UnreadCount,
		Previous:       prev,
		Detail:         current.LastMessage,
	}
	if err := e.notifier.Publish(ctx, evt); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithField("conversation_id", current.ID).Warn("notification not delivered")
		return
	}
	summary.Notifications++
}

func (e *Engine) handlePlatformError(ctx context.Context, pageID string, err error) {
	perr, ok := graph.AsPlatformError(err)
	if !ok || !perr.IsRateLimit() || e.gate == nil {
		return
	}
	if blockErr := e.gate.Block(ctx, pageID, e.cfg.RateLimitBackoff); blockErr != nil {
		e.logger.WithContext(ctx).WithError(blockErr).WithField("page_id", pageID).Warn("failed to record platform throttling")
	}
}

type threadResult struct {
	upserted []models.Message
	removed  []string
}

func (e *Engine) syncThread(ctx context.Context, page models.Page, conversationID string) (threadResult, error) {
	var result threadResult

	stored, err := e.messages.List(ctx, docstore.Filter{"conversationId": conversationID})
	if err != nil {
		return result, err
	}

	byID := make(map[string]models.Message, len(stored))
	var placeholders []models.Message
	var watermark *time.Time
	for _, m := range stored {
		if m.IsPlaceholder() {
			placeholders = append(placeholders, m)
			continue
		}
		byID[m.ID] = m
		if m.Confirmed() && (watermark == nil || m.Timestamp.After(*watermark)) {
			ts := m.Timestamp
			watermark = &ts
		}
	}

	fetched, err := e.platform.ListThreadMessages(ctx, conversationID, page.ID, page.AccessToken, watermark)
	if err != nil {
		return result, err
	}

	for _, m := range fetched {
		if m.ID == "" {
			continue
		}
		if !m.IsIncoming {
			if idx := correlate(placeholders, m, e.cfg.CorrelationWindow); idx >= 0 {
				placeholder := placeholders[idx]
				placeholders = append(placeholders[:idx], placeholders[idx+1:]...)
				if err := e.messages.Delete(ctx, placeholder.ID); err != nil {
					return result, err
				}
				result.removed = append(result.removed, placeholder.ID)
			}
		}

		if existing, ok := byID[m.ID]; ok && sameMessage(existing, m) {
			continue
		}
		if err := e.messages.Upsert(ctx, m); err != nil {
			return result, err
		}
		metrics.SyncUpsertsTotal.WithLabelValues(string(docstore.KindMessages)).Inc()
		byID[m.ID] = m
		result.upserted = append(result.upserted, m)
	}
	return result, nil
}

// correlate finds the placeholder a platform message replaces: by recorded platform id, or by
// identical text sent within the window when the send result carried no id.
func correlate(placeholders []models.Message, m models.Message, window time.Duration) int {
	for i, p := range placeholders {
		if p.PlatformID != "" && p.PlatformID == m.ID {
			return i
		}
	}
	for i, p := range placeholders {
		if p.PlatformID != "" || p.DeliveryState == models.DeliveryFailed || p.IsIncoming || p.Text != m.Text {
			continue
		}
		delta := m.Timestamp.Sub(p.Timestamp)
		if delta < 0 {
			delta = -delta
		}
		if delta <= window {
			return i
		}
	}
	return -1
}

func sameMessage(a, b models.Message) bool {
	return a.Text == b.Text &&
		a.SenderID == b.SenderID &&
		a.SenderName == b.SenderName &&
		a.IsIncoming == b.IsIncoming &&
		a.Timestamp.Equal(b.Timestamp)
}
