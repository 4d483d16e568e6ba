package portal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Ramsey-B/clover/pkg/access"
	"github.com/Ramsey-B/clover/pkg/compliance"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
)

const (
	adminEmail = "master@example.com"
	adminPass  = "master-pass"
	agentEmail = "alice@example.com"
	agentPass  = "alice-pass"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakePlatform struct {
	mu      sync.Mutex
	convs   map[string][]models.Conversation
	threads map[string][]models.Message
	pages   []models.Page
	valid   map[string]bool
	sendErr error
	sent    []string
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		convs:   make(map[string][]models.Conversation),
		threads: make(map[string][]models.Message),
		valid:   make(map[string]bool),
	}
}

func (f *fakePlatform) ListConversations(_ context.Context, pageID, _ string, _ int, _ bool) ([]models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Conversation(nil), f.convs[pageID]...), nil
}

func (f *fakePlatform) ListThreadMessages(_ context.Context, conversationID, _, _ string, _ *time.Time) ([]models.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.threads[conversationID]...), nil
}

func (f *fakePlatform) SendMessage(_ context.Context, recipientID, text, _ string) (graph.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return graph.SendResult{}, f.sendErr
	}
	f.sent = append(f.sent, text)
	return graph.SendResult{RecipientID: recipientID, MessageID: "m_sent"}, nil
}

func (f *fakePlatform) ListAccessiblePages(_ context.Context, _ string) ([]models.Page, error) {
	return f.pages, nil
}

func (f *fakePlatform) VerifyPageToken(_ context.Context, pageID, _ string) (bool, error) {
	return f.valid[pageID], nil
}

func (f *fakePlatform) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fixture struct {
	portal   *Portal
	store    *docstore.Memory
	platform *fakePlatform
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := testLogger()
	verifier := &access.BcryptVerifier{Cost: bcrypt.MinCost}
	store := docstore.NewMemory()
	platform := newFakePlatform()

	hash, err := verifier.Hash(agentPass)
	require.NoError(t, err)
	agents := docstore.NewCollection[models.Agent](store, docstore.KindAgents, logger)
	require.NoError(t, agents.Upsert(ctx, models.Agent{
		ID: "agent-alice", Name: "Alice", Email: agentEmail, Credential: hash,
		Role: models.RoleAgent, Status: models.PresenceOnline, AssignedPageIDs: []string{"page-1"},
	}))

	pages := docstore.NewCollection[models.Page](store, docstore.KindPages, logger)
	require.NoError(t, pages.Upsert(ctx, models.Page{ID: "page-1", Name: "Shop", AccessToken: "tok-1", IsConnected: true, AssignedAgentIDs: []string{"agent-alice"}}))
	require.NoError(t, pages.Upsert(ctx, models.Page{ID: "page-2", Name: "Support", AccessToken: "tok-2", IsConnected: true}))

	now := time.Now().UTC()
	convs := docstore.NewCollection[models.Conversation](store, docstore.KindConversations, logger)
	require.NoError(t, convs.Upsert(ctx, models.Conversation{ID: "t_1", PageID: "page-1", CustomerID: "cust-1", CustomerName: "Bob", LastTimestamp: now, Status: models.ConversationOpen, UnreadCount: 2}))
	require.NoError(t, convs.Upsert(ctx, models.Conversation{ID: "t_2", PageID: "page-2", CustomerID: "cust-2", CustomerName: "Eve", LastTimestamp: now.Add(-time.Hour), Status: models.ConversationResolved}))

	session := access.NewSessionState(access.NewMemoryStore(), logger)
	require.NoError(t, session.Restore(ctx))
	auth := access.NewAuthenticator(access.FallbackAdmin("Master", adminEmail, adminPass), store, nil, verifier, logger)
	notifier := reconcile.NewLogNotifier(logger)

	p := New(Deps{
		Gateway:    store,
		Platform:   platform,
		Engine:     reconcile.NewEngine(platform, store, reconcile.Config{}, logger),
		Outbox:     reconcile.NewOutbox(platform, store, notifier, logger),
		Auth:       auth,
		Session:    session,
		Verifier:   verifier,
		Configured: true,
		Logger:     logger,
	})
	require.NoError(t, p.Load(ctx))
	return &fixture{portal: p, store: store, platform: platform}
}

func (f *fixture) login(t *testing.T, email, pass string) models.Agent {
	t.Helper()
	agent, token, err := f.portal.Login(context.Background(), email, pass)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	return agent
}

func TestLoadFillsCache(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, StatusConnected, f.portal.Status())
	assert.Len(t, f.portal.ListPages(), 2)
	assert.True(t, f.portal.Cache().Relation().Has("page-1", "agent-alice"))

	ids := make([]string, 0)
	for _, a := range f.portal.ListAgents() {
		ids = append(ids, a.ID)
		assert.Empty(t, a.Credential)
	}
	assert.ElementsMatch(t, []string{"agent-alice", access.FallbackAdminID}, ids)
}

func TestRequiresLogin(t *testing.T) {
	f := newFixture(t)
	_, err := f.portal.ListVisibleConversations(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.login(t, agentEmail, agentPass)
	convs, err := f.portal.ListVisibleConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "t_1", convs[0].ID)

	_, err = f.portal.ListMessages(ctx, "t_2")
	assert.True(t, access.IsDenied(err))

	require.NoError(t, f.portal.Logout(ctx))
	f.login(t, adminEmail, adminPass)
	convs, err = f.portal.ListVisibleConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "t_1", convs[0].ID)

	stats, err := f.portal.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Open: 1, Resolved: 1, Total: 2, Unread: 2}, stats)
}

func TestSendMessage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, agentEmail, agentPass)

	_, err := f.portal.SendMessage(ctx, "t_1", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = f.portal.SendMessage(ctx, "t_1", "try https://evil.example/deal")
	var violation *compliance.ViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, []string{"https://evil.example/deal"}, violation.Blocked)
	assert.Zero(t, f.platform.sentCount())

	msg, err := f.portal.SendMessage(ctx, "t_1", " hello there ")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryConfirmed, msg.DeliveryState)
	assert.Equal(t, "m_sent", msg.PlatformID)
	assert.Equal(t, "hello there", msg.Text)
	assert.Equal(t, 1, f.platform.sentCount())

	thread := f.portal.Cache().Messages("t_1")
	require.Len(t, thread, 1)
	assert.Equal(t, msg.ID, thread[0].ID)
}

func TestSendMessageAllowedLink(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.login(t, adminEmail, adminPass)
	_, err := f.portal.AddApprovedLink(ctx, models.ApprovedLink{Title: "Catalog", URL: "https://shop.example/catalog"})
	require.NoError(t, err)
	require.NoError(t, f.portal.Logout(ctx))

	f.login(t, agentEmail, agentPass)
	_, err = f.portal.SendMessage(ctx, "t_1", "see https://Shop.Example/Catalog")
	require.NoError(t, err)
	assert.Equal(t, 1, f.platform.sentCount())
}

func TestSendMessagePlatformFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, agentEmail, agentPass)
	f.platform.sendErr = &graph.PlatformError{Code: graph.CodePermissionDenied, Message: "outside the messaging window"}

	msg, err := f.portal.SendMessage(ctx, "t_1", "hello")
	require.Error(t, err)
	assert.Equal(t, models.DeliveryFailed, msg.DeliveryState)
	assert.Equal(t, "outside the messaging window", msg.FailureReason)
}

func TestServesCacheWhenStoreDown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, agentEmail, agentPass)

	f.store.SetDown(true)
	convs, err := f.portal.ListVisibleConversations(ctx)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, StatusError, f.portal.Status())

	_, err = f.portal.UpdateConversationStatus(ctx, "t_1", models.ConversationPending)
	assert.True(t, docstore.IsUnavailable(err))

	f.store.SetDown(false)
	require.NoError(t, f.portal.Load(ctx))
	assert.Equal(t, StatusConnected, f.portal.Status())
}

func TestUnconfigured(t *testing.T) {
	logger := testLogger()
	session := access.NewSessionState(access.NewMemoryStore(), logger)
	p := New(Deps{
		Gateway: docstore.NewMemory(),
		Auth:    access.NewAuthenticator(access.FallbackAdmin("Master", adminEmail, adminPass), docstore.NewMemory(), nil, nil, logger),
		Session: session,
		Logger:  logger,
	})
	require.NoError(t, p.Load(context.Background()))
	assert.Equal(t, StatusUnconfigured, p.Status())
	assert.Len(t, p.ListAgents(), 1)
}

func TestSyncNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, agentEmail, agentPass)

	at := time.Now().UTC().Add(time.Minute)
	f.platform.convs["page-1"] = []models.Conversation{{
		ID: "t_1", PageID: "page-1", CustomerID: "cust-1", CustomerName: "Bob",
		LastMessage: "are you open?", LastTimestamp: at, Status: models.ConversationOpen, UnreadCount: 3,
	}}
	f.platform.threads["t_1"] = []models.Message{{
		ID: "m_1", ConversationID: "t_1", SenderID: "cust-1", Text: "are you open?", Timestamp: at, IsIncoming: true,
	}}

	summary, err := f.portal.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ConversationsUpserted)
	assert.Equal(t, StatusConnected, f.portal.Status())

	conv, ok := f.portal.Cache().Conversation("t_1")
	require.True(t, ok)
	assert.Equal(t, "are you open?", conv.LastMessage)
	assert.Len(t, f.portal.Cache().Messages("t_1"), 1)

	last, at2 := f.portal.LastSync()
	assert.Same(t, summary, last)
	assert.False(t, at2.IsZero())
}

func TestAgentAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.login(t, agentEmail, agentPass)
	_, err := f.portal.AddAgent(ctx, NewAgent{Name: "Carol", Email: "carol@example.com", Credential: "pw"})
	assert.True(t, access.IsDenied(err))
	require.NoError(t, f.portal.Logout(ctx))

	f.login(t, adminEmail, adminPass)
	carol, err := f.portal.AddAgent(ctx, NewAgent{Name: "Carol", Email: " Carol@Example.com ", Credential: "pw"})
	require.NoError(t, err)
	assert.Contains(t, carol.ID, "agent-")
	assert.Equal(t, models.PresenceOffline, carol.Status)
	assert.Equal(t, models.RoleAgent, carol.Role)
	assert.Empty(t, carol.Credential)

	_, err = f.portal.AddAgent(ctx, NewAgent{Name: "Dup", Email: "carol@example.com", Credential: "pw"})
	var input *InputError
	assert.ErrorAs(t, err, &input)

	require.NoError(t, f.portal.AssignAgentToPage(ctx, "page-2", carol.ID))
	page, _ := f.portal.Cache().Page("page-2")
	assert.Equal(t, []string{carol.ID}, page.AssignedAgentIDs)

	updated, err := f.portal.ChangeRole(ctx, carol.ID, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, updated.Role)

	err = f.portal.RemoveAgent(ctx, access.FallbackAdminID)
	assert.True(t, access.IsDenied(err))

	require.NoError(t, f.portal.RemoveAgent(ctx, carol.ID))
	_, ok := f.portal.Cache().Agent(carol.ID)
	assert.False(t, ok)
	assert.Empty(t, f.portal.Cache().Relation().AgentsFor("page-2"))
	require.NoError(t, f.portal.Logout(ctx))

	// the new credential is hashed and usable
	f.login(t, agentEmail, agentPass)
	require.NoError(t, f.portal.ChangeCredential(ctx, "agent-alice", "new-pass"))
	require.NoError(t, f.portal.Logout(ctx))
	_, _, err = f.portal.Login(ctx, agentEmail, agentPass)
	assert.ErrorIs(t, err, access.ErrAuthenticationFailed)
	f.login(t, agentEmail, "new-pass")
}

func TestSetPresence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, agentEmail, agentPass)

	agent, err := f.portal.SetPresence(ctx, models.PresenceBusy)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceBusy, agent.Status)
	current, ok := f.portal.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, models.PresenceBusy, current.Status)

	_, err = f.portal.SetPresence(ctx, "away")
	var input *InputError
	assert.ErrorAs(t, err, &input)
}

func TestPageAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.login(t, adminEmail, adminPass)

	f.platform.pages = []models.Page{
		{ID: "page-1", Name: "Shop renamed", AccessToken: "tok-1b", IsConnected: true},
		{ID: "page-3", Name: "New", AccessToken: "tok-3", IsConnected: true},
	}
	imported, err := f.portal.ImportPages(ctx, "user-token")
	require.NoError(t, err)
	require.Len(t, imported, 2)
	page, _ := f.portal.Cache().Page("page-1")
	assert.Equal(t, "Shop renamed", page.Name)
	assert.Equal(t, []string{"agent-alice"}, page.AssignedAgentIDs)

	f.platform.valid["page-3"] = false
	ok, err := f.portal.VerifyPage(ctx, "page-3")
	require.NoError(t, err)
	assert.False(t, ok)
	page, _ = f.portal.Cache().Page("page-3")
	assert.False(t, page.IsConnected)

	require.NoError(t, f.portal.RemovePage(ctx, "page-1"))
	_, found := f.portal.Cache().Page("page-1")
	assert.False(t, found)
	assert.Empty(t, f.portal.Cache().Relation().PagesFor("agent-alice"))
}

func TestConversationAdministration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.login(t, agentEmail, agentPass)
	conv, err := f.portal.UpdateConversationStatus(ctx, "t_1", models.ConversationResolved)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationResolved, conv.Status)
	_, err = f.portal.UpdateConversationStatus(ctx, "t_1", "ARCHIVED")
	var input *InputError
	assert.ErrorAs(t, err, &input)

	assert.True(t, access.IsDenied(f.portal.DeleteConversation(ctx, "t_1")))
	require.NoError(t, f.portal.Logout(ctx))

	f.login(t, adminEmail, adminPass)
	_, err = f.portal.SendMessage(ctx, "t_1", "hi")
	require.NoError(t, err)
	require.NoError(t, f.portal.DeleteConversation(ctx, "t_1"))
	assert.Zero(t, f.store.Count(docstore.KindMessages))
	_, ok := f.portal.Cache().Conversation("t_1")
	assert.False(t, ok)

	require.NoError(t, f.portal.ClearLocalChats(ctx))
	assert.Zero(t, f.store.Count(docstore.KindConversations))
	assert.Empty(t, f.portal.Cache().Conversations())
}
