// Package portal is the core surface used by the HTTP API: it ties the store, the messaging
// platform, reconciliation, access control and the compliance gate to one cached view.
package portal

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/access"
	"github.com/Ramsey-B/clover/pkg/compliance"
	appctx "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
)

// Status is the portal connection state shown to agents.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusSyncing      Status = "syncing"
	StatusConnected    Status = "connected"
	StatusError        Status = "error"
	StatusUnconfigured Status = "unconfigured"
)

// Platform is the messaging client surface the portal needs.
type Platform interface {
	reconcile.Platform
	ListAccessiblePages(ctx context.Context, userToken string) ([]models.Page, error)
	VerifyPageToken(ctx context.Context, pageID, token string) (bool, error)
}

// Deps are the collaborators a Portal is built from.
type Deps struct {
	Gateway  docstore.Gateway
	Platform Platform
	Engine   *reconcile.Engine
	Outbox   *reconcile.Outbox
	Auth     *access.Authenticator
	Session  *access.SessionState
	Verifier access.CredentialVerifier
	// Configured is false when no store endpoint was given; the portal then reports unconfigured.
	Configured bool
	Logger     ectologger.Logger
}

// Portal is the agent-facing core: session, cache, admin operations and sync.
type Portal struct {
	gateway       docstore.Gateway
	platform      Platform
	engine        *reconcile.Engine
	outbox        *reconcile.Outbox
	auth          *access.Authenticator
	session       *access.SessionState
	verifier      access.CredentialVerifier
	assignments   *access.Assignments
	library       *compliance.Library
	agents        *docstore.Collection[models.Agent]
	pages         *docstore.Collection[models.Page]
	conversations *docstore.Collection[models.Conversation]
	messages      *docstore.Collection[models.Message]
	cache         *Cache
	configured    bool
	logger        ectologger.Logger

	statusMu   sync.RWMutex
	status     Status
	lastSync   *reconcile.SyncSummary
	lastSyncAt time.Time
}

// New builds a portal. It starts initializing, or unconfigured without a store endpoint.
func New(deps Deps) *Portal {
	logger := deps.Logger
	p := &Portal{
		gateway:       deps.Gateway,
		platform:      deps.Platform,
		engine:        deps.Engine,
		outbox:        deps.Outbox,
		auth:          deps.Auth,
		session:       deps.Session,
		verifier:      deps.Verifier,
		assignments:   access.NewAssignments(deps.Gateway, logger),
		library:       compliance.NewLibrary(deps.Gateway, logger),
		agents:        docstore.NewCollection[models.Agent](deps.Gateway, docstore.KindAgents, logger),
		pages:         docstore.NewCollection[models.Page](deps.Gateway, docstore.KindPages, logger),
		conversations: docstore.NewCollection[models.Conversation](deps.Gateway, docstore.KindConversations, logger),
		messages:      docstore.NewCollection[models.Message](deps.Gateway, docstore.KindMessages, logger),
		cache:         NewCache(),
		configured:    deps.Configured,
		logger:        logger,
		status:        StatusInitializing,
	}
	if p.verifier == nil {
		p.verifier = access.NewBcryptVerifier()
	}
	if !p.configured {
		p.status = StatusUnconfigured
	}
	return p
}

// Status returns the current connection state.
func (p *Portal) Status() Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.status
}

func (p *Portal) setStatus(s Status) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	if !p.configured {
		p.status = StatusUnconfigured
		return
	}
	p.status = s
}

// LastSync returns the most recent pass summary, or nil before the first pass.
func (p *Portal) LastSync() (*reconcile.SyncSummary, time.Time) {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	return p.lastSync, p.lastSyncAt
}

// Cache exposes the in-memory view of the last load and sync.
func (p *Portal) Cache() *Cache { return p.cache }

// Namespace is the store namespace requests run against when the caller did not pick one.
func (p *Portal) Namespace() string {
	return p.session.Preferences().Namespace
}

func (p *Portal) scope(ctx context.Context) context.Context {
	if appctx.GetNamespace(ctx) != "" {
		return ctx
	}
	if ns := p.Namespace(); ns != "" {
		return appctx.SetNamespace(ctx, ns)
	}
	return ctx
}

// readFailed records a read error. Unavailable stores leave the cache in place.
func (p *Portal) readFailed(ctx context.Context, kind docstore.Kind, err error) error {
	if docstore.IsUnavailable(err) {
		p.setStatus(StatusError)
		p.logger.WithContext(ctx).WithError(err).Warnf("store unavailable, serving cached %s", kind)
		return nil
	}
	return err
}

// writeFailed records a write error and returns it.
func (p *Portal) writeFailed(err error) error {
	if docstore.IsUnavailable(err) {
		p.setStatus(StatusError)
	}
	return err
}

// Load pings the store and fills the cache. Each collection is loaded independently; a failing
// collection keeps its cached contents.
func (p *Portal) Load(ctx context.Context) error {
	ctx = p.scope(ctx)
	log := p.logger.WithContext(ctx)
	if !p.configured {
		log.Warn("no store endpoint configured, running from local state only")
		p.cache.SetAgents(p.directoryAgents(nil))
		return nil
	}

	p.setStatus(StatusSyncing)
	if !p.gateway.Ping(ctx) {
		p.setStatus(StatusError)
		if len(p.cache.Agents()) == 0 {
			p.cache.SetAgents(p.directoryAgents(nil))
		}
		log.Warn("store ping failed")
		return nil
	}

	failed := false
	note := func(kind docstore.Kind, err error) {
		failed = true
		log.WithError(err).Warnf("failed to load %s", kind)
	}

	agents, err := p.agents.List(ctx, nil)
	if err != nil {
		note(docstore.KindAgents, err)
	} else {
		p.cache.SetAgents(p.directoryAgents(agents))
	}
	pages, err := p.pages.List(ctx, nil)
	if err != nil {
		note(docstore.KindPages, err)
	} else {
		p.cache.SetPages(pages)
	}
	convs, err := p.conversations.List(ctx, nil)
	if err != nil {
		note(docstore.KindConversations, err)
	} else {
		p.cache.SetConversations(convs)
	}
	msgs, err := p.messages.List(ctx, nil)
	if err != nil {
		note(docstore.KindMessages, err)
	} else {
		p.cache.SetMessages(msgs)
	}
	links, err := p.library.Links(ctx)
	if err != nil {
		note(docstore.KindLinks, err)
	} else {
		p.cache.SetLinks(links)
	}
	media, err := p.library.Media(ctx)
	if err != nil {
		note(docstore.KindMedia, err)
	} else {
		p.cache.SetMedia(media)
	}
	rel, err := p.assignments.Load(ctx, p.cache.Pages(), p.cache.Agents())
	if err != nil {
		note(docstore.KindAssignments, err)
	} else {
		p.cache.SetRelation(rel)
	}

	if failed {
		p.setStatus(StatusError)
	} else {
		p.setStatus(StatusConnected)
	}
	log.WithFields(map[string]any{
		"agents":        len(p.cache.Agents()),
		"pages":         len(p.cache.Pages()),
		"conversations": len(p.cache.Conversations()),
	}).Info("portal state loaded")
	return nil
}

// directoryAgents is the stored agents plus the fallback admin and static agents that are not
// shadowed by a stored agent with the same id.
func (p *Portal) directoryAgents(stored []models.Agent) []models.Agent {
	seen := make(map[string]struct{}, len(stored))
	out := make([]models.Agent, 0, len(stored)+2)
	for _, a := range stored {
		seen[a.ID] = struct{}{}
		out = append(out, a.Public())
	}
	local := append([]models.Agent{p.auth.Fallback()}, p.auth.Static()...)
	for _, a := range local {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		out = append(out, a)
	}
	return out
}

// SetNamespace switches the store namespace, persists the choice and reloads.
func (p *Portal) SetNamespace(ctx context.Context, namespace string) error {
	actor, err := p.actor()
	if err != nil {
		return err
	}
	if err := access.RequireAdmin(actor, "change namespace"); err != nil {
		return err
	}
	if err := p.session.SetPreferences(ctx, access.Preferences{Namespace: namespace}); err != nil {
		return err
	}
	p.cache.Reset()
	p.logger.WithContext(ctx).WithField("namespace", namespace).Info("store namespace changed")
	return p.Load(appctx.SetNamespace(ctx, namespace))
}
