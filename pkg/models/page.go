package models

// Page is a platform business page. AccessToken is issued by the platform and never generated here.
type Page struct {
	ID               string   `json:"id" validate:"required"`
	Name             string   `json:"name"`
	Category         string   `json:"category"`
	IsConnected      bool     `json:"isConnected"`
	AccessToken      string   `json:"accessToken"`
	AssignedAgentIDs []string `json:"assignedAgentIds"`
}

func (p Page) GetID() string { return p.ID }

// Syncable reports whether the page can be polled.
func (p Page) Syncable() bool { return p.AccessToken != "" }
