package models

import (
	"encoding/json"
	"strings"
)

// Role is the authorization level of an agent.
type Role string

const (
	RoleAdmin Role = "ADMIN"
	RoleAgent Role = "AGENT"
)

// ParseRole normalizes stored role names. SUPER_ADMIN is the legacy admin spelling.
func ParseRole(value string) Role {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "ADMIN", "SUPER_ADMIN":
		return RoleAdmin
	default:
		return RoleAgent
	}
}

// UnmarshalJSON accepts legacy role names.
func (r *Role) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	*r = ParseRole(value)
	return nil
}

type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
	PresenceBusy    Presence = "busy"
)

// Agent is a portal operator. AssignedPageIDs mirrors the assignment relation and is informational.
type Agent struct {
	ID              string   `json:"id" validate:"required"`
	Name            string   `json:"name" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	Credential      string   `json:"password,omitempty"`
	Role            Role     `json:"role" validate:"required,oneof=ADMIN AGENT"`
	Status          Presence `json:"status" validate:"omitempty,oneof=online offline busy"`
	AssignedPageIDs []string `json:"assignedPageIds"`
	Avatar          string   `json:"avatar,omitempty"`
}

func (a Agent) GetID() string { return a.ID }

func (a Agent) IsAdmin() bool { return a.Role == RoleAdmin }

// Public returns a copy without the credential.
func (a Agent) Public() Agent {
	a.Credential = ""
	return a
}
