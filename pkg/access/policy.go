package access

import (
	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/clover/pkg/models"
)

// CanView reports whether user may see a conversation: admins see everything, agents see
// conversations on pages they are assigned to.
func CanView(user models.Agent, conversation models.Conversation, relation *Relation) bool {
	if user.IsAdmin() {
		return true
	}
	if relation == nil {
		return false
	}
	return relation.Has(conversation.PageID, user.ID)
}

func VisibleConversations(user models.Agent, conversations []models.Conversation, relation *Relation) []models.Conversation {
	return ectolinq.Filter(conversations, func(c models.Conversation) bool {
		return CanView(user, c, relation)
	})
}

// CanSendOn reports whether user may act on a page.
func CanSendOn(user models.Agent, pageID string, relation *Relation) error {
	if user.IsAdmin() || (relation != nil && relation.Has(pageID, user.ID)) {
		return nil
	}
	return deny(user.ID, "send message", "agent is not assigned to page "+pageID)
}

func RequireAdmin(actor models.Agent, action string) error {
	if actor.IsAdmin() {
		return nil
	}
	return deny(actor.ID, action, "administrator role required")
}

// CanChangeCredential allows agents to change their own credential and admins to reset anyone's.
func CanChangeCredential(actor models.Agent, targetID string) error {
	if actor.ID == targetID || actor.IsAdmin() {
		return nil
	}
	return deny(actor.ID, "change credential", "agents may only change their own credential")
}

// CanChangeRole is admin only. An admin cannot change their own role so the last
// session with admin rights cannot lock itself out.
func CanChangeRole(actor models.Agent, targetID string) error {
	if err := RequireAdmin(actor, "change role"); err != nil {
		return err
	}
	if actor.ID == targetID {
		return deny(actor.ID, "change role", "cannot change your own role")
	}
	return nil
}

// CanDeleteAgent is admin only and blocks self-deletion. Other admins may be deleted.
func CanDeleteAgent(actor models.Agent, targetID string) error {
	if err := RequireAdmin(actor, "delete agent"); err != nil {
		return err
	}
	if actor.ID == targetID {
		return deny(actor.ID, "delete agent", "cannot delete your own account")
	}
	return nil
}
