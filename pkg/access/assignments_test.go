package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/Ramsey-B/clover/pkg/models"
)

func TestAssignAndUnassign(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	pages := docstore.NewCollection[models.Page](store, docstore.KindPages, testLogger())
	agents := docstore.NewCollection[models.Agent](store, docstore.KindAgents, testLogger())
	require.NoError(t, pages.Upsert(ctx, models.Page{ID: "p1", Name: "Shop", AccessToken: "tok"}))
	require.NoError(t, agents.Upsert(ctx, alice))

	assignments := NewAssignments(store, testLogger())
	rel, err := assignments.Load(ctx, nil, nil)
	require.NoError(t, err)

	_, err = assignments.Assign(ctx, alice, rel, "p1", alice.ID)
	assert.True(t, IsDenied(err))
	assert.Equal(t, 0, store.Count(docstore.KindAssignments))

	rel, err = assignments.Assign(ctx, admin, rel, "p1", alice.ID)
	require.NoError(t, err)
	assert.True(t, rel.Has("p1", alice.ID))
	assert.Equal(t, 1, store.Count(docstore.KindAssignments))

	page, _, err := pages.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{alice.ID}, page.AssignedAgentIDs)
	agent, _, err := agents.Get(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"p1"}, agent.AssignedPageIDs)

	// assigning twice keeps a single row
	rel, err = assignments.Assign(ctx, admin, rel, "p1", alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, store.Count(docstore.KindAssignments))

	reloaded, err := assignments.Load(ctx, nil, nil)
	require.NoError(t, err)
	assert.True(t, reloaded.Has("p1", alice.ID))

	rel, err = assignments.Unassign(ctx, admin, rel, "p1", alice.ID)
	require.NoError(t, err)
	assert.False(t, rel.Has("p1", alice.ID))
	assert.Equal(t, 0, store.Count(docstore.KindAssignments))
	page, _, err = pages.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, page.AssignedAgentIDs)
}

func TestAssignToleratesMissingMirror(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	assignments := NewAssignments(store, testLogger())

	rel, err := assignments.Assign(ctx, admin, NewRelation(), "p-unknown", "agent-unknown")
	require.NoError(t, err)
	assert.True(t, rel.Has("p-unknown", "agent-unknown"))
}

func TestAssignSurfacesStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	store.SetDown(true)
	assignments := NewAssignments(store, testLogger())

	rel := NewRelation()
	_, err := assignments.Assign(ctx, admin, rel, "p1", alice.ID)
	assert.True(t, docstore.IsUnavailable(err))
	assert.False(t, rel.Has("p1", alice.ID))
}

func TestLoadFallsBackToMirrors(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	assignments := NewAssignments(store, testLogger())
	rel, err := assignments.Load(ctx, nil, []models.Agent{{ID: alice.ID, AssignedPageIDs: []string{"p1"}}})
	require.NoError(t, err)
	assert.True(t, rel.Has("p1", alice.ID))
	assert.Equal(t, 1, store.Count(docstore.KindAssignments))
}

func TestMirrorAssignmentsSurviveFirstWrite(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	legacyPages := []models.Page{{ID: "p1", Name: "Shop", AssignedAgentIDs: []string{alice.ID}}}
	assignments := NewAssignments(store, testLogger())

	rel, err := assignments.Load(ctx, legacyPages, nil)
	require.NoError(t, err)
	require.True(t, rel.Has("p1", alice.ID))

	_, err = assignments.Assign(ctx, admin, rel, "p2", alice.ID)
	require.NoError(t, err)

	reloaded, err := assignments.Load(ctx, legacyPages, nil)
	require.NoError(t, err)
	assert.True(t, reloaded.Has("p1", alice.ID))
	assert.True(t, reloaded.Has("p2", alice.ID))
	assert.Equal(t, 2, store.Count(docstore.KindAssignments))
}

func TestLoadWithoutMirrorsWritesNothing(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	rel, err := NewAssignments(store, testLogger()).Load(ctx, []models.Page{{ID: "p1", Name: "Shop"}}, nil)
	require.NoError(t, err)
	assert.Empty(t, rel.Rows())
	assert.Zero(t, store.Calls(docstore.ActionUpdateOne))
}

func TestRemoveAgentRows(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemory()
	assignments := NewAssignments(store, testLogger())

	rel := NewRelation()
	rel, err := assignments.Assign(ctx, admin, rel, "p1", bob.ID)
	require.NoError(t, err)
	rel, err = assignments.Assign(ctx, admin, rel, "p2", bob.ID)
	require.NoError(t, err)

	rel, err = assignments.RemoveAgent(ctx, rel, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, rel.PagesFor(bob.ID))
	assert.Equal(t, 0, store.Count(docstore.KindAssignments))
}
