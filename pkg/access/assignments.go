package access

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Assignments owns the assignments collection. It is the only writer of the relation; the id
// lists on pages and agents are refreshed afterwards on a best-effort basis.
type Assignments struct {
	rows   *docstore.Collection[models.Assignment]
	pages  *docstore.Collection[models.Page]
	agents *docstore.Collection[models.Agent]
	logger ectologger.Logger
}

// NewAssignments reads and writes assignment rows and page/agent mirrors through gateway.
func NewAssignments(gateway docstore.Gateway, logger ectologger.Logger) *Assignments {
	return &Assignments{
		rows:   docstore.NewCollection[models.Assignment](gateway, docstore.KindAssignments, logger),
		pages:  docstore.NewCollection[models.Page](gateway, docstore.KindPages, logger),
		agents: docstore.NewCollection[models.Agent](gateway, docstore.KindAgents, logger),
		logger: logger,
	}
}

// Load reads the relation. When no rows exist yet it is rebuilt from the page and agent id
// lists and written back as rows, so later writes extend it instead of replacing it.
func (a *Assignments) Load(ctx context.Context, pages []models.Page, agents []models.Agent) (*Relation, error) {
	rows, err := a.rows.List(ctx, nil)
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return NewRelation(rows...), nil
	}

	rel := RelationFromMirrors(pages, agents)
	if err := a.migrate(ctx, rel.Rows()); err != nil {
		return nil, err
	}
	return rel, nil
}

// migrate writes rows all or nothing; written rows are removed again when one fails.
func (a *Assignments) migrate(ctx context.Context, rows []models.Assignment) error {
	if len(rows) == 0 {
		return nil
	}
	written := make([]string, 0, len(rows))
	for _, row := range rows {
		if err := a.rows.Upsert(ctx, row); err != nil {
			for _, id := range written {
				if delErr := a.rows.Delete(ctx, id); delErr != nil {
					a.logger.WithContext(ctx).WithError(delErr).WithField("assignment_id", id).Warn("failed to undo partial assignment migration")
				}
			}
			return fmt.Errorf("failed to migrate page assignments: %w", err)
		}
		written = append(written, row.ID)
	}
	a.logger.WithContext(ctx).WithField("rows", len(rows)).Info("migrated page assignments from page and agent lists")
	return nil
}

// Assign adds the pair. The returned relation is rel with the change applied.
func (a *Assignments) Assign(ctx context.Context, actor models.Agent, rel *Relation, pageID, agentID string) (*Relation, error) {
	if err := RequireAdmin(actor, "assign agent"); err != nil {
		return nil, err
	}
	if err := a.rows.Upsert(ctx, models.NewAssignment(pageID, agentID)); err != nil {
		return nil, err
	}
	next := rel.Clone()
	next.Add(pageID, agentID)
	a.refreshMirrors(ctx, next, pageID, agentID)
	return next, nil
}

// Unassign removes one page grant. Admin only.
func (a *Assignments) Unassign(ctx context.Context, actor models.Agent, rel *Relation, pageID, agentID string) (*Relation, error) {
	if err := RequireAdmin(actor, "unassign agent"); err != nil {
		return nil, err
	}
	if err := a.rows.Delete(ctx, models.AssignmentID(pageID, agentID)); err != nil {
		return nil, err
	}
	next := rel.Clone()
	next.Remove(pageID, agentID)
	a.refreshMirrors(ctx, next, pageID, agentID)
	return next, nil
}

// RemovePage drops every row for a page.
func (a *Assignments) RemovePage(ctx context.Context, rel *Relation, pageID string) (*Relation, error) {
	next := rel.Clone()
	for _, agentID := range rel.AgentsFor(pageID) {
		if err := a.rows.Delete(ctx, models.AssignmentID(pageID, agentID)); err != nil {
			return nil, err
		}
		next.Remove(pageID, agentID)
		a.refreshAgent(ctx, next, agentID)
	}
	return next, nil
}

// RemoveAgent drops every row for an agent.
func (a *Assignments) RemoveAgent(ctx context.Context, rel *Relation, agentID string) (*Relation, error) {
	next := rel.Clone()
	for _, pageID := range rel.PagesFor(agentID) {
		if err := a.rows.Delete(ctx, models.AssignmentID(pageID, agentID)); err != nil {
			return nil, err
		}
		next.Remove(pageID, agentID)
		a.refreshPage(ctx, next, pageID)
	}
	return next, nil
}

func (a *Assignments) refreshMirrors(ctx context.Context, rel *Relation, pageID, agentID string) {
	a.refreshPage(ctx, rel, pageID)
	a.refreshAgent(ctx, rel, agentID)
}

func (a *Assignments) refreshPage(ctx context.Context, rel *Relation, pageID string) {
	log := a.logger.WithContext(ctx).WithField("page_id", pageID)
	page, ok, err := a.pages.Get(ctx, pageID)
	if err != nil || !ok {
		log.WithError(err).Warn("page mirror not refreshed")
		return
	}
	page.AssignedAgentIDs = rel.AgentsFor(pageID)
	if err := a.pages.Upsert(ctx, page); err != nil {
		log.WithError(err).Warn("page mirror not refreshed")
	}
}

func (a *Assignments) refreshAgent(ctx context.Context, rel *Relation, agentID string) {
	log := a.logger.WithContext(ctx).WithField("agent_id", agentID)
	agent, ok, err := a.agents.Get(ctx, agentID)
	if err != nil || !ok {
		log.WithError(err).Warn("agent mirror not refreshed")
		return
	}
	agent.AssignedPageIDs = rel.PagesFor(agentID)
	if err := a.agents.Upsert(ctx, agent); err != nil {
		log.WithError(err).Warn("agent mirror not refreshed")
	}
}
