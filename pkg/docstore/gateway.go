// Package docstore is the persistence gateway: uniform CRUD over a remote document store
// reached through a request-forwarding bridge.
package docstore

import "context"

// Kind names a document collection.
type Kind string

const (
	KindAgents        Kind = "agents"
	KindPages         Kind = "pages"
	KindConversations Kind = "conversations"
	KindMessages      Kind = "messages"
	KindLinks         Kind = "links"
	KindMedia         Kind = "media"
	KindAssignments   Kind = "assignments"
)

// Kinds lists every collection the portal uses.
var Kinds = []Kind{KindAgents, KindPages, KindConversations, KindMessages, KindLinks, KindMedia, KindAssignments}

// Document is a schemaless stored record. Every document carries a string "id".
type Document map[string]any

// ID returns the document id or "" when missing.
func (d Document) ID() string {
	id, _ := d["id"].(string)
	return id
}

// Filter is a flat field equality match. A nil or empty filter matches everything.
type Filter map[string]any

// ByID is the filter for a single document.
func ByID(id string) Filter {
	return Filter{"id": id}
}

// Gateway is the persistence contract. Upsert is keyed by id and is idempotent; Ping is a
// cheap server command and never returns an error.
type Gateway interface {
	List(ctx context.Context, kind Kind, filter Filter) ([]Document, error)
	Upsert(ctx context.Context, kind Kind, doc Document) error
	DeleteOne(ctx context.Context, kind Kind, id string) error
	ClearAll(ctx context.Context, kind Kind) error
	Ping(ctx context.Context) bool
}

// Matches reports whether doc satisfies the equality filter.
func (f Filter) Matches(doc Document) bool {
	for k, want := range f {
		got, ok := doc[k]
		if !ok || !equalValue(got, want) {
			return false
		}
	}
	return true
}
