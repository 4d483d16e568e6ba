package portal

import (
	"context"
	"strings"

	"github.com/Gobusters/ectolinq"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/access"
	"github.com/Ramsey-B/clover/pkg/models"
)

// NewAgent is the input for AddAgent.
type NewAgent struct {
	Name       string      `json:"name"`
	Email      string      `json:"email"`
	Credential string      `json:"password"`
	Role       models.Role `json:"role"`
	Avatar     string      `json:"avatar"`
}

// ListAgents returns cached agents without credentials.
func (p *Portal) ListAgents() []models.Agent {
	return ectolinq.Map(p.cache.Agents(), func(a models.Agent) models.Agent { return a.Public() })
}

func (p *Portal) ListPages() []models.Page {
	return p.cache.Pages()
}

func (p *Portal) ListApprovedLinks() []models.ApprovedLink {
	return p.cache.Links()
}

func (p *Portal) ListApprovedMedia() []models.ApprovedMedia {
	return p.cache.Media()
}

// AddAgent creates an agent. Admin only.
func (p *Portal) AddAgent(ctx context.Context, in NewAgent) (models.Agent, error) {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return models.Agent{}, err
	}
	if err := access.RequireAdmin(actor, "add agent"); err != nil {
		return models.Agent{}, err
	}

	email := access.NormalizeEmail(in.Email)
	if strings.TrimSpace(in.Name) == "" || email == "" || in.Credential == "" {
		return models.Agent{}, invalid("agent", "name, email and password are required")
	}
	taken := ectolinq.Find(p.cache.Agents(), func(a models.Agent) bool { return strings.EqualFold(a.Email, email) })
	if taken.ID != "" {
		return models.Agent{}, invalid("email", "already used by another agent")
	}
	hash, err := p.verifier.Hash(in.Credential)
	if err != nil {
		return models.Agent{}, err
	}

	agent := models.Agent{
		ID:              "agent-" + uuid.NewString(),
		Name:            strings.TrimSpace(in.Name),
		Email:           email,
		Credential:      hash,
		Role:            models.ParseRole(string(in.Role)),
		Status:          models.PresenceOffline,
		AssignedPageIDs: []string{},
		Avatar:          in.Avatar,
	}
	if err := p.agents.Upsert(ctx, agent); err != nil {
		return models.Agent{}, p.writeFailed(err)
	}
	p.cache.PutAgent(agent.Public())
	p.logger.WithContext(ctx).WithField("agent_id", agent.ID).Info("agent added")
	return agent.Public(), nil
}

// RemoveAgent deletes an agent and its page assignments. The fallback administrator is kept.
func (p *Portal) RemoveAgent(ctx context.Context, agentID string) error {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return err
	}
	if err := access.CanDeleteAgent(actor, agentID); err != nil {
		return err
	}
	if agentID == access.FallbackAdminID {
		return &access.DeniedError{ActorID: actor.ID, Action: "delete agent", Reason: "the fallback administrator cannot be removed"}
	}
	if err := p.agents.Delete(ctx, agentID); err != nil {
		return p.writeFailed(err)
	}
	rel, err := p.assignments.RemoveAgent(ctx, p.cache.Relation(), agentID)
	if err != nil {
		return p.writeFailed(err)
	}
	p.cache.SetRelation(rel)
	p.cache.RemoveAgent(agentID)
	p.logger.WithContext(ctx).WithField("agent_id", agentID).Info("agent removed")
	return nil
}

// storedAgent loads an agent record with its credential.
func (p *Portal) storedAgent(ctx context.Context, agentID string) (models.Agent, error) {
	agent, ok, err := p.agents.Get(ctx, agentID)
	if err != nil {
		return models.Agent{}, p.writeFailed(err)
	}
	if !ok {
		return models.Agent{}, notFound("agent", agentID)
	}
	return agent, nil
}

// ChangeCredential replaces an agent's stored credential with a new hash.
func (p *Portal) ChangeCredential(ctx context.Context, agentID, credential string) error {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return err
	}
	if err := access.CanChangeCredential(actor, agentID); err != nil {
		return err
	}
	if credential == "" {
		return invalid("password", "must not be empty")
	}
	agent, err := p.storedAgent(ctx, agentID)
	if err != nil {
		return err
	}
	hash, err := p.verifier.Hash(credential)
	if err != nil {
		return err
	}
	agent.Credential = hash
	if err := p.agents.Upsert(ctx, agent); err != nil {
		return p.writeFailed(err)
	}
	p.logger.WithContext(ctx).WithField("agent_id", agentID).Info("credential changed")
	return nil
}

// ChangeRole switches an agent between ADMIN and AGENT.
func (p *Portal) ChangeRole(ctx context.Context, agentID string, role models.Role) (models.Agent, error) {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return models.Agent{}, err
	}
	if err := access.CanChangeRole(actor, agentID); err != nil {
		return models.Agent{}, err
	}
	if role != models.RoleAdmin && role != models.RoleAgent {
		return models.Agent{}, invalid("role", "must be ADMIN or AGENT")
	}
	agent, err := p.storedAgent(ctx, agentID)
	if err != nil {
		return models.Agent{}, err
	}
	agent.Role = role
	if err := p.agents.Upsert(ctx, agent); err != nil {
		return models.Agent{}, p.writeFailed(err)
	}
	p.cache.PutAgent(agent.Public())
	return agent.Public(), nil
}

// SetPresence updates the current user's status. Agents outside the store only change the session.
func (p *Portal) SetPresence(ctx context.Context, presence models.Presence) (models.Agent, error) {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return models.Agent{}, err
	}
	switch presence {
	case models.PresenceOnline, models.PresenceOffline, models.PresenceBusy:
	default:
		return models.Agent{}, invalid("status", "must be online, offline or busy")
	}

	updated := actor
	if stored, ok, err := p.agents.Get(ctx, actor.ID); err != nil {
		return models.Agent{}, p.writeFailed(err)
	} else if ok {
		stored.Status = presence
		if err := p.agents.Upsert(ctx, stored); err != nil {
			return models.Agent{}, p.writeFailed(err)
		}
		updated = stored.Public()
	}
	updated.Status = presence
	p.cache.PutAgent(updated)
	if err := p.session.Refresh(ctx, updated); err != nil {
		return models.Agent{}, err
	}
	return updated, nil
}

// AssignAgentToPage grants an agent access to a page's conversations. Admin only.
func (p *Portal) AssignAgentToPage(ctx context.Context, pageID, agentID string) error {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return err
	}
	if _, ok := p.cache.Page(pageID); !ok {
		return notFound("page", pageID)
	}
	if _, ok := p.cache.Agent(agentID); !ok {
		return notFound("agent", agentID)
	}
	rel, err := p.assignments.Assign(ctx, actor, p.cache.Relation(), pageID, agentID)
	if err != nil {
		return p.writeFailed(err)
	}
	p.applyRelation(rel, pageID, agentID)
	return nil
}

// UnassignAgentFromPage revokes a page grant. Admin only.
func (p *Portal) UnassignAgentFromPage(ctx context.Context, pageID, agentID string) error {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return err
	}
	rel, err := p.assignments.Unassign(ctx, actor, p.cache.Relation(), pageID, agentID)
	if err != nil {
		return p.writeFailed(err)
	}
	p.applyRelation(rel, pageID, agentID)
	return nil
}

func (p *Portal) applyRelation(rel *access.Relation, pageID, agentID string) {
	p.cache.SetRelation(rel)
	if page, ok := p.cache.Page(pageID); ok {
		page.AssignedAgentIDs = rel.AgentsFor(pageID)
		p.cache.PutPage(page)
	}
	if agent, ok := p.cache.Agent(agentID); ok {
		agent.AssignedPageIDs = rel.PagesFor(agentID)
		p.cache.PutAgent(agent)
	}
}

// ImportPages stores every page the platform user token can manage. Existing assignments are kept.
func (p *Portal) ImportPages(ctx context.Context, userToken string) ([]models.Page, error) {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return nil, err
	}
	if err := access.RequireAdmin(actor, "import pages"); err != nil {
		return nil, err
	}
	if userToken == "" {
		return nil, invalid("userToken", "must not be empty")
	}

	found, err := p.platform.ListAccessiblePages(ctx, userToken)
	if err != nil {
		return nil, err
	}
	rel := p.cache.Relation()
	imported := make([]models.Page, 0, len(found))
	for _, page := range found {
		page.AssignedAgentIDs = rel.AgentsFor(page.ID)
		if err := p.pages.Upsert(ctx, page); err != nil {
			return imported, p.writeFailed(err)
		}
		p.cache.PutPage(page)
		imported = append(imported, page)
	}
	p.logger.WithContext(ctx).WithField("pages", len(imported)).Info("pages imported")
	return imported, nil
}

// RemovePage deletes a page and its assignments. Admin only.
func (p *Portal) RemovePage(ctx context.Context, pageID string) error {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return err
	}
	if err := access.RequireAdmin(actor, "remove page"); err != nil {
		return err
	}
	if err := p.pages.Delete(ctx, pageID); err != nil {
		return p.writeFailed(err)
	}
	rel, err := p.assignments.RemovePage(ctx, p.cache.Relation(), pageID)
	if err != nil {
		return p.writeFailed(err)
	}
	p.cache.SetRelation(rel)
	p.cache.RemovePage(pageID)
	return nil
}

// VerifyPage checks the page token with the platform and records the connection state.
func (p *Portal) VerifyPage(ctx context.Context, pageID string) (bool, error) {
	ctx = p.scope(ctx)
	if _, err := p.actor(); err != nil {
		return false, err
	}
	page, ok := p.cache.Page(pageID)
	if !ok {
		return false, notFound("page", pageID)
	}
	if page.AccessToken == "" {
		return false, nil
	}
	valid, err := p.platform.VerifyPageToken(ctx, page.ID, page.AccessToken)
	if err != nil {
		return false, err
	}
	if page.IsConnected != valid {
		page.IsConnected = valid
		if err := p.pages.Upsert(ctx, page); err != nil {
			return valid, p.writeFailed(err)
		}
		p.cache.PutPage(page)
	}
	return valid, nil
}

// AddApprovedLink adds a URL agents may send.
func (p *Portal) AddApprovedLink(ctx context.Context, link models.ApprovedLink) (models.ApprovedLink, error) {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return models.ApprovedLink{}, err
	}
	saved, err := p.library.AddLink(ctx, actor, link)
	if err != nil {
		return models.ApprovedLink{}, p.writeFailed(err)
	}
	p.cache.PutLink(saved)
	return saved, nil
}

func (p *Portal) RemoveApprovedLink(ctx context.Context, id string) error {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return err
	}
	if err := p.library.RemoveLink(ctx, actor, id); err != nil {
		return p.writeFailed(err)
	}
	p.cache.RemoveLink(id)
	return nil
}

// AddApprovedMedia adds a media URL agents may send.
func (p *Portal) AddApprovedMedia(ctx context.Context, media models.ApprovedMedia) (models.ApprovedMedia, error) {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return models.ApprovedMedia{}, err
	}
	saved, err := p.library.AddMedia(ctx, actor, media)
	if err != nil {
		return models.ApprovedMedia{}, p.writeFailed(err)
	}
	p.cache.PutMedia(saved)
	return saved, nil
}

func (p *Portal) RemoveApprovedMedia(ctx context.Context, id string) error {
	ctx = p.scope(ctx)
	actor, err := p.actor()
	if err != nil {
		return err
	}
	if err := p.library.RemoveMedia(ctx, actor, id); err != nil {
		return p.writeFailed(err)
	}
	p.cache.RemoveMedia(id)
	return nil
}
