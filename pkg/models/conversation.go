package models

import "time"

type ConversationStatus string

const (
	ConversationOpen     ConversationStatus = "OPEN"
	ConversationPending  ConversationStatus = "PENDING"
	ConversationResolved ConversationStatus = "RESOLVED"
)

const (
	DefaultCustomerName = "Messenger User"
	DefaultCustomerID   = "unknown"
	DefaultSnippet      = "No message content"
)

// Conversation is a platform thread between a page and one customer.
type Conversation struct {
	ID                 string             `json:"id" validate:"required"`
	PageID             string             `json:"pageId" validate:"required"`
	CustomerID         string             `json:"customerId"`
	CustomerName       string             `json:"customerName"`
	CustomerAvatar     string             `json:"customerAvatar"`
	CustomerAvatarBlob string             `json:"customerAvatarBlob" validate:"omitempty,base64"`
	LastMessage        string             `json:"lastMessage"`
	LastTimestamp      time.Time          `json:"lastTimestamp"`
	Status             ConversationStatus `json:"status" validate:"required,oneof=OPEN PENDING RESOLVED"`
	AssignedAgentID    *string            `json:"assignedAgentId"`
	UnreadCount        int                `json:"unreadCount" validate:"gte=0"`
}

func (c Conversation) GetID() string { return c.ID }
