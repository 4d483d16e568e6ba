package access

import (
	"sort"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Relation is the agent to page assignment table. It is the only source of truth for who may
// act on which page; the id lists on Page and Agent are derived from it.
type Relation struct {
	byPage  map[string]map[string]struct{}
	byAgent map[string]map[string]struct{}
}

func NewRelation(rows ...models.Assignment) *Relation {
	r := &Relation{
		byPage:  make(map[string]map[string]struct{}),
		byAgent: make(map[string]map[string]struct{}),
	}
	for _, row := range rows {
		r.Add(row.PageID, row.AgentID)
	}
	return r
}

// RelationFromMirrors rebuilds the table from the id lists stored on pages and agents, for stores
// written before assignments had their own collection.
func RelationFromMirrors(pages []models.Page, agents []models.Agent) *Relation {
	r := NewRelation()
	for _, p := range pages {
		for _, agentID := range p.AssignedAgentIDs {
			r.Add(p.ID, agentID)
		}
	}
	for _, a := range agents {
		for _, pageID := range a.AssignedPageIDs {
			r.Add(pageID, a.ID)
		}
	}
	return r
}

func (r *Relation) Add(pageID, agentID string) {
	if pageID == "" || agentID == "" {
		return
	}
	if r.byPage[pageID] == nil {
		r.byPage[pageID] = make(map[string]struct{})
	}
	if r.byAgent[agentID] == nil {
		r.byAgent[agentID] = make(map[string]struct{})
	}
	r.byPage[pageID][agentID] = struct{}{}
	r.byAgent[agentID][pageID] = struct{}{}
}

func (r *Relation) Remove(pageID, agentID string) {
	delete(r.byPage[pageID], agentID)
	delete(r.byAgent[agentID], pageID)
}

func (r *Relation) Has(pageID, agentID string) bool {
	_, ok := r.byPage[pageID][agentID]
	return ok
}

// PagesFor returns the page ids assigned to an agent, sorted.
func (r *Relation) PagesFor(agentID string) []string {
	return sortedKeys(r.byAgent[agentID])
}

// AgentsFor returns the agent ids assigned to a page, sorted.
func (r *Relation) AgentsFor(pageID string) []string {
	return sortedKeys(r.byPage[pageID])
}

// Rows returns every pair as an assignment, ordered by id.
func (r *Relation) Rows() []models.Assignment {
	var rows []models.Assignment
	for pageID, agents := range r.byPage {
		for agentID := range agents {
			rows = append(rows, models.NewAssignment(pageID, agentID))
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

func (r *Relation) Clone() *Relation {
	return NewRelation(r.Rows()...)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
