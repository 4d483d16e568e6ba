package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakePlatform struct {
	mu            sync.Mutex
	conversations map[string][]models.Conversation
	threads       map[string][]models.Message
	convErr       map[string]error
	threadErr     map[string]error
	sendResult    graph.SendResult
	sendErr       error
	sent          []string
	sinceSeen     map[string]*time.Time
	threadCalls   map[string]int
	profileCalls  int
	plainCalls    int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		conversations: make(map[string][]models.Conversation),
		threads:       make(map[string][]models.Message),
		convErr:       make(map[string]error),
		threadErr:     make(map[string]error),
		sinceSeen:     make(map[string]*time.Time),
		threadCalls:   make(map[string]int),
	}
}

// ListConversations leaves participants out unless profiles are requested, like the Graph field selection.
func (f *fakePlatform) ListConversations(_ context.Context, pageID, _ string, limit int, includeProfiles bool) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if includeProfiles {
		f.profileCalls++
	} else {
		f.plainCalls++
	}
	if err := f.convErr[pageID]; err != nil {
		return nil, err
	}
	convs := f.conversations[pageID]
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	out := append([]models.Conversation(nil), convs...)
	if !includeProfiles {
		for i := range out {
			out[i].CustomerID = models.DefaultCustomerID
			out[i].CustomerName = models.DefaultCustomerName
			out[i].CustomerAvatar = ""
		}
	}
	return out, nil
}

func (f *fakePlatform) ListThreadMessages(_ context.Context, conversationID, _, _ string, since *time.Time) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threadCalls[conversationID]++
	f.sinceSeen[conversationID] = since
	if err := f.threadErr[conversationID]; err != nil {
		return nil, err
	}
	var out []models.Message
	for _, m := range f.threads[conversationID] {
		if since == nil || !m.Timestamp.Before(since.Truncate(time.Second)) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakePlatform) SendMessage(_ context.Context, recipientID, text, _ string) (graph.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return graph.SendResult{}, f.sendErr
	}
	f.sent = append(f.sent, recipientID+":"+text)
	return f.sendResult, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []models.Event
}

func (n *recordingNotifier) Publish(_ context.Context, evt models.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakeGate struct {
	deny    map[string]bool
	blocked map[string]time.Duration
}

func (g *fakeGate) Allow(_ context.Context, pageID string) (bool, time.Duration, error) {
	if g.deny[pageID] {
		return false, time.Minute, nil
	}
	if _, ok := g.blocked[pageID]; ok {
		return false, g.blocked[pageID], nil
	}
	return true, 0, nil
}

func (g *fakeGate) Block(_ context.Context, pageID string, d time.Duration) error {
	g.blocked[pageID] = d
	return nil
}
