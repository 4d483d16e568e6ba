package reconcile

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Notifier receives unread increases and failed sends.
type Notifier interface {
	Publish(ctx context.Context, evt models.Event) error
}

// LogNotifier writes events to the log. It is used when no broker is configured.
type LogNotifier struct {
	logger ectologger.Logger
}

// NewLogNotifier logs events through logger.
func NewLogNotifier(logger ectologger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Publish(ctx context.Context, evt models.Event) error {
	n.logger.WithContext(ctx).WithFields(map[string]any{
		"type":            evt.Type,
		"page_id":         evt.PageID,
		"conversation_id": evt.ConversationID,
		"unread_count":    evt.UnreadCount,
	}).Info("notification")
	return nil
}
