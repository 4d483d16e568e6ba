package models

import "time"

// DeliveryState tracks an outbound message sent from the portal.
// Messages fetched from the platform carry an empty state and are treated as confirmed.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "PENDING"
	DeliveryConfirmed DeliveryState = "CONFIRMED"
	DeliveryFailed    DeliveryState = "FAILED"
)

// LocalMessagePrefix marks placeholder ids for messages not yet confirmed by the platform.
const LocalMessagePrefix = "local-"

type Message struct {
	ID             string        `json:"id" validate:"required"`
	ConversationID string        `json:"conversationId" validate:"required"`
	SenderID       string        `json:"senderId"`
	SenderName     string        `json:"senderName"`
	Text           string        `json:"text"`
	Timestamp      time.Time     `json:"timestamp"`
	IsIncoming     bool          `json:"isIncoming"`
	IsRead         bool          `json:"isRead"`
	DeliveryState  DeliveryState `json:"deliveryState,omitempty" validate:"omitempty,oneof=PENDING CONFIRMED FAILED"`
	PlatformID     string        `json:"platformId"`
	FailureReason  string        `json:"failureReason"`
}

func (m Message) GetID() string { return m.ID }

// IsPlaceholder reports whether the message is a local optimistic copy.
func (m Message) IsPlaceholder() bool {
	return len(m.ID) > len(LocalMessagePrefix) && m.ID[:len(LocalMessagePrefix)] == LocalMessagePrefix
}

// Confirmed reports whether the platform has accepted the message.
func (m Message) Confirmed() bool {
	return m.DeliveryState == "" || m.DeliveryState == DeliveryConfirmed
}
