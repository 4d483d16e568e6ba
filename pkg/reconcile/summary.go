package reconcile

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// PageStatus is the outcome of one page within a pass.
type PageStatus string

const (
	PageSynced  PageStatus = "synced"
	PageSkipped PageStatus = "skipped"
	PageFailed  PageStatus = "failed"
)

// PageResult counts what one page wrote during a pass.
type PageResult struct {
	PageID                string     `json:"pageId"`
	Status                PageStatus `json:"status"`
	ConversationsUpserted int        `json:"conversationsUpserted"`
	MessagesUpserted      int        `json:"messagesUpserted"`
}

// PageFailure records why a page was skipped or aborted.
type PageFailure struct {
	PageID string `json:"pageId"`
	Reason string `json:"reason"`
	Err    error  `json:"-"`
}

// SyncSummary reports one pass. Conversations and Messages hold what was written so callers can
// update their caches; RemovedMessageIDs are placeholders that were replaced by platform copies.
type SyncSummary struct {
	StartedAt             time.Time             `json:"startedAt"`
	FinishedAt            time.Time             `json:"finishedAt"`
	Pages                 []PageResult          `json:"pages"`
	Failures              []PageFailure         `json:"failures"`
	ConversationsUpserted int                   `json:"conversationsUpserted"`
	MessagesUpserted      int                   `json:"messagesUpserted"`
	Notifications         int                   `json:"notifications"`
	Conversations         []models.Conversation `json:"-"`
	Messages              []models.Message      `json:"-"`
	RemovedMessageIDs     []string              `json:"-"`
}

// Failed reports whether any page failed.
func (s *SyncSummary) Failed() bool {
	return len(s.Failures) > 0
}

// Outcome is "ok", "partial" when some pages failed, or "failed" when every attempted page failed.
func (s *SyncSummary) Outcome() string {
	if len(s.Failures) == 0 {
		return "ok"
	}
	for _, p := range s.Pages {
		if p.Status == PageSynced {
			return "partial"
		}
	}
	return "failed"
}

func (s *SyncSummary) merge(other threadResult) {
	s.MessagesUpserted += len(other.upserted)
	s.Messages = append(s.Messages, other.upserted...)
	s.RemovedMessageIDs = append(s.RemovedMessageIDs, other.removed...)
}
