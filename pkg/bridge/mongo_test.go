package bridge

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMongoBackend(t *testing.T) {
	uri := os.Getenv("MONGO_URI")
	if testing.Short() || uri == "" {
		t.Skip("mongo integration test: set MONGO_URI to run")
	}

	ctx := context.Background()
	backend, err := NewMongoBackend(ctx, uri, 5*time.Second, getTestLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close(ctx) })

	ns := "test_" + uuid.NewString()[:8]
	require.NoError(t, backend.Ping(ctx, ns))

	res, err := backend.UpdateOne(ctx, ns, docstore.KindAgents, docstore.ByID("a1"), docstore.Document{"id": "a1", "name": "Sam"}, true)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Upserted)

	docs, err := backend.Find(ctx, ns, docstore.KindAgents, nil)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Sam", docs[0]["name"])
	assert.NotContains(t, docs[0], "_id")

	n, err := backend.DeleteMany(ctx, ns, docstore.KindAgents, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
