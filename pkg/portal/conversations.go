package portal

import (
	"context"
	"strings"

	"github.com/Ramsey-B/clover/pkg/access"
	"github.com/Ramsey-B/clover/pkg/compliance"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
)

// ListVisibleConversations refreshes conversations from the store and returns the ones the
// current user may see, newest first. An unreachable store serves the cache.
func (p *Portal) ListVisibleConversations(ctx context.Context) ([]models.Conversation, error) {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return nil, err
	}

	convs, err := p.conversations.List(ctx, nil)
	if err != nil {
		if err := p.readFailed(ctx, docstore.KindConversations, err); err != nil {
			return nil, err
		}
	} else {
		p.cache.SetConversations(convs)
	}
	return access.VisibleConversations(actor, p.cache.Conversations(), p.cache.Relation()), nil
}

// ListMessages returns one thread oldest first.
func (p *Portal) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	ctx = p.scope(ctx)
	conv, err := p.visibleConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	msgs, err := p.messages.List(ctx, docstore.Filter{"conversationId": conv.ID})
	if err != nil {
		if err := p.readFailed(ctx, docstore.KindMessages, err); err != nil {
			return nil, err
		}
		return p.cache.Messages(conv.ID), nil
	}
	sortMessages(msgs)
	p.cache.ReplaceThread(conv.ID, msgs)
	return msgs, nil
}

func (p *Portal) visibleConversation(ctx context.Context, id string) (models.Conversation, error) {
	actor, err := p.actor()
	if err != nil {
		return models.Conversation{}, err
	}
	conv, ok := p.cache.Conversation(id)
	if !ok {
		stored, found, err := p.conversations.Get(ctx, id)
		if err != nil {
			if rerr := p.readFailed(ctx, docstore.KindConversations, err); rerr != nil {
				return models.Conversation{}, rerr
			}
		}
		if !found {
			return models.Conversation{}, notFound("conversation", id)
		}
		conv = stored
		p.cache.PutConversation(conv)
	}
	if !access.CanView(actor, conv, p.cache.Relation()) {
		return models.Conversation{}, &access.DeniedError{ActorID: actor.ID, Action: "view conversation", Reason: "agent is not assigned to page " + conv.PageID}
	}
	return conv, nil
}

// SendMessage checks the text against the allow-list, then sends it optimistically. The returned
// message is CONFIRMED on success; on a platform failure it is FAILED and the error is returned.
// Blocked text never reaches the platform.
func (p *Portal) SendMessage(ctx context.Context, conversationID, text string) (models.Message, error) {
	ctx = p.scope(ctx)
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyMessage
	}
	actor, err := p.actor()
	if err != nil {
		return models.Message{}, err
	}
	conv, err := p.visibleConversation(ctx, conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if err := access.CanSendOn(actor, conv.PageID, p.cache.Relation()); err != nil {
		return models.Message{}, err
	}

	allow := compliance.NewAllowList(p.cache.Links(), p.cache.Media())
	if err := compliance.Check(text, actor.Role, allow); err != nil {
		p.logger.WithContext(ctx).WithField("conversation_id", conv.ID).Warn("outbound message blocked by allow-list")
		return models.Message{}, err
	}

	page, ok := p.cache.Page(conv.PageID)
	if !ok || !page.Syncable() {
		return models.Message{}, ErrPageNotConnected
	}

	placeholder := p.outbox.Stage(ctx, page, conv, text)
	p.cache.PutMessage(placeholder)

	sent, err := p.outbox.Deliver(ctx, page, conv, placeholder)
	p.cache.PutMessage(sent)
	return sent, err
}

// SyncNow runs a reconciliation pass and folds its writes into the cache.
func (p *Portal) SyncNow(ctx context.Context) (*reconcile.SyncSummary, error) {
	ctx = p.scope(ctx)
	p.setStatus(StatusSyncing)

	summary, err := p.engine.SyncNow(ctx)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("sync pass failed")
		p.setStatus(StatusError)
		return nil, err
	}
	p.apply(summary)
	p.setStatus(StatusConnected)

	p.statusMu.Lock()
	p.lastSync = summary
	p.lastSyncAt = summary.FinishedAt
	p.statusMu.Unlock()
	return summary, nil
}

// SyncConversation refreshes a single thread, as when a chat is opened.
func (p *Portal) SyncConversation(ctx context.Context, conversationID string) ([]models.Message, error) {
	ctx = p.scope(ctx)
	if _, err := p.visibleConversation(ctx, conversationID); err != nil {
		return nil, err
	}
	summary, err := p.engine.SyncThread(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	p.apply(summary)
	return p.cache.Messages(conversationID), nil
}

func (p *Portal) apply(summary *reconcile.SyncSummary) {
	for _, c := range summary.Conversations {
		p.cache.PutConversation(c)
	}
	for _, id := range summary.RemovedMessageIDs {
		p.cache.RemoveMessage(id)
	}
	for _, m := range summary.Messages {
		p.cache.PutMessage(m)
	}
}

// UpdateConversationStatus sets a visible conversation to OPEN, PENDING or RESOLVED.
func (p *Portal) UpdateConversationStatus(ctx context.Context, conversationID string, status models.ConversationStatus) (models.Conversation, error) {
	ctx = p.scope(ctx)
	switch status {
	case models.ConversationOpen, models.ConversationPending, models.ConversationResolved:
	default:
		return models.Conversation{}, invalid("status", "must be OPEN, PENDING or RESOLVED")
	}
	conv, err := p.visibleConversation(ctx, conversationID)
	if err != nil {
		return models.Conversation{}, err
	}
	conv.Status = status
	if err := p.conversations.Upsert(ctx, conv); err != nil {
		return models.Conversation{}, p.writeFailed(err)
	}
	p.cache.PutConversation(conv)
	return conv, nil
}

// DeleteConversation removes the local copy of a conversation and its messages. The platform
// thread is untouched and returns on the next pass if it changes.
func (p *Portal) DeleteConversation(ctx context.Context, conversationID string) error {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return err
	}
	if err := access.RequireAdmin(actor, "delete conversation"); err != nil {
		return err
	}
	msgs, err := p.messages.List(ctx, docstore.Filter{"conversationId": conversationID})
	if err != nil {
		return p.writeFailed(err)
	}
	for _, m := range msgs {
		if err := p.messages.Delete(ctx, m.ID); err != nil {
			return p.writeFailed(err)
		}
	}
	if err := p.conversations.Delete(ctx, conversationID); err != nil {
		return p.writeFailed(err)
	}
	p.cache.RemoveConversation(conversationID)
	return nil
}

// ClearLocalChats empties the conversations and messages collections.
func (p *Portal) ClearLocalChats(ctx context.Context) error {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return err
	}
	if err := access.RequireAdmin(actor, "clear chats"); err != nil {
		return err
	}
	if err := p.conversations.Clear(ctx); err != nil {
		return p.writeFailed(err)
	}
	if err := p.messages.Clear(ctx); err != nil {
		return p.writeFailed(err)
	}
	p.cache.ClearChats()
	p.logger.WithContext(ctx).WithField("agent_id", actor.ID).Info("local chats cleared")
	return nil
}

// Stats counts visible conversations by status.
type Stats struct {
	Open     int `json:"open"`
	Pending  int `json:"pending"`
	Resolved int `json:"resolved"`
	Total    int `json:"total"`
	Unread   int `json:"unread"`
}

// Stats counts the conversations visible to the current user.
func (p *Portal) Stats(ctx context.Context) (Stats, error) {
	convs, err := p.ListVisibleConversations(ctx)
	if err != nil {
		return Stats{}, err
	}
	var s Stats
	for _, c := range convs {
		s.Total++
		s.Unread += c.UnreadCount
		switch c.Status {
		case models.ConversationOpen:
			s.Open++
		case models.ConversationPending:
			s.Pending++
		case models.ConversationResolved:
			s.Resolved++
		}
	}
	return s, nil
}
