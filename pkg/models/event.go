package models

import "time"

type EventType string

const (
	EventUnreadIncreased EventType = "conversation.unread_increased"
	EventSendFailed      EventType = "message.send_failed"
)

// Event is a notification emitted by reconciliation or the outbox.
type Event struct {
	Type           EventType `json:"type"`
	Namespace      string    `json:"namespace,omitempty"`
	PageID         string    `json:"page_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	CustomerName   string    `json:"customer_name,omitempty"`
	UnreadCount    int       `json:"unread_count,omitempty"`
	Previous       int       `json:"previous_unread_count,omitempty"`
	Detail         string    `json:"detail,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	TraceID        string    `json:"trace_id,omitempty"`
}
