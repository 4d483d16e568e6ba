package models

// Assignment is one row of the agent to page relation.
type Assignment struct {
	ID      string `json:"id" validate:"required"`
	PageID  string `json:"pageId" validate:"required"`
	AgentID string `json:"agentId" validate:"required"`
}

func NewAssignment(pageID, agentID string) Assignment {
	return Assignment{ID: AssignmentID(pageID, agentID), PageID: pageID, AgentID: agentID}
}

func AssignmentID(pageID, agentID string) string {
	return pageID + ":" + agentID
}

func (a Assignment) GetID() string { return a.ID }
