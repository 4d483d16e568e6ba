package reconcile

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Outbox sends agent replies optimistically: a placeholder is written first and then promoted
// to CONFIRMED or flagged FAILED once the platform answers.
type Outbox struct {
	platform Platform
	messages *docstore.Collection[models.Message]
	notifier Notifier
	logger   ectologger.Logger
	now      func() time.Time
}

// NewOutbox falls back to a LogNotifier when notifier is nil.
func NewOutbox(platform Platform, gateway docstore.Gateway, notifier Notifier, logger ectologger.Logger) *Outbox {
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	return &Outbox{
		platform: platform,
		messages: docstore.NewCollection[models.Message](gateway, docstore.KindMessages, logger),
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Stage builds the placeholder for text and writes it. A store failure is logged and the
// placeholder is still returned so the send can go ahead.
func (o *Outbox) Stage(ctx context.Context, page models.Page, conv models.Conversation, text string) models.Message {
	placeholder := models.Message{
		ID:             models.LocalMessagePrefix + uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       page.ID,
		SenderName:     page.Name,
		Text:           text,
		Timestamp:      o.now(),
		IsIncoming:     false,
		IsRead:         true,
		DeliveryState:  models.DeliveryPending,
	}
	o.persist(ctx, placeholder)
	metrics.MessagesSentTotal.WithLabelValues(string(models.DeliveryPending)).Inc()
	return placeholder
}

// Deliver sends a staged placeholder. The returned message is always the placeholder's final
// state; the error is the platform's when the send failed.
func (o *Outbox) Deliver(ctx context.Context, page models.Page, conv models.Conversation, placeholder models.Message) (models.Message, error) {
	ctx, span := tracing.StartSpan(ctx, "Outbox.Deliver",
		attribute.String("page_id", page.ID),
		attribute.String("conversation_id", conv.ID),
	)
	defer span.End()

	result, err := o.platform.SendMessage(ctx, conv.CustomerID, placeholder.Text, page.AccessToken)
	if err != nil {
		placeholder.DeliveryState = models.DeliveryFailed
		placeholder.FailureReason = failureReason(err)
		o.persist(ctx, placeholder)
		metrics.MessagesSentTotal.WithLabelValues(string(models.DeliveryFailed)).Inc()
		span.RecordError(err)

		evt := models.Event{
			Type:           models.EventSendFailed,
			Namespace:      appctx.GetNamespace(ctx),
			PageID:         page.ID,
			ConversationID: conv.ID,
			MessageID:      placeholder.ID,
			Detail:         placeholder.FailureReason,
		}
		if nerr := o.notifier.Publish(ctx, evt); nerr != nil {
			o.logger.WithContext(ctx).WithError(nerr).Warn("send failure notification not delivered")
		}
		return placeholder, err
	}

	placeholder.DeliveryState = models.DeliveryConfirmed
	placeholder.PlatformID = result.MessageID
	placeholder.FailureReason = ""
	o.persist(ctx, placeholder)
	metrics.MessagesSentTotal.WithLabelValues(string(models.DeliveryConfirmed)).Inc()
	return placeholder, nil
}

func (o *Outbox) persist(ctx context.Context, m models.Message) {
	if err := o.messages.Upsert(ctx, m); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"message_id": m.ID,
			"state":      m.DeliveryState,
		}).Warn("outbound message not persisted")
	}
}

func failureReason(err error) string {
	if perr, ok := graph.AsPlatformError(err); ok && perr.Message != "" {
		return perr.Message
	}
	return err.Error()
}
