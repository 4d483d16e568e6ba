package bridge

import (
	"context"
	"os"
	"testing"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/docstore"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestDB(t *testing.T) *database.DatabaseInstance {
	if testing.Short() || os.Getenv("DB_HOST") == "" {
		t.Skip("postgres integration test: set DB_HOST to run")
	}

	cfg := database.Config{
		Driver:   "postgres",
		Host:     os.Getenv("DB_HOST"),
		Port:     "5432",
		User:     os.Getenv("DB_USER_NAME"),
		Password: os.Getenv("DB_PASSWORD"),
		Name:     os.Getenv("DB_NAME"),
		SSLMode:  "disable",
	}
	db, err := database.Open(context.Background(), cfg, getTestLogger())
	require.NoError(t, err, "Failed to connect to test database")

	ms := database.NewMigrationService(getTestLogger(), &database.MigrationConfig{MigrationFolderPath: "../../db/pg"})
	require.NoError(t, ms.MigratePostgres(db, cfg.Name))
	return db
}

func TestPostgresBackend(t *testing.T) {
	db := getTestDB(t)
	backend := NewPostgresBackend(db, getTestLogger())
	ctx := context.Background()
	ns := "test-" + uuid.NewString()

	require.NoError(t, backend.Ping(ctx, ns))

	_, err := backend.UpdateOne(ctx, ns, docstore.KindMessages, docstore.ByID("m1"), docstore.Document{"conversationId": "c1", "text": "hi"}, true)
	require.NoError(t, err)
	_, err = backend.UpdateOne(ctx, ns, docstore.KindMessages, docstore.ByID("m1"), docstore.Document{"text": "edited"}, true)
	require.NoError(t, err)
	_, err = backend.InsertOne(ctx, ns, docstore.KindMessages, docstore.Document{"id": "m2", "conversationId": "c2"})
	require.NoError(t, err)

	docs, err := backend.Find(ctx, ns, docstore.KindMessages, docstore.Filter{"conversationId": "c1"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "edited", docs[0]["text"])
	assert.Equal(t, "c1", docs[0]["conversationId"])

	n, err := backend.DeleteOne(ctx, ns, docstore.KindMessages, docstore.Filter{"conversationId": "c2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = backend.DeleteMany(ctx, ns, docstore.KindMessages, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
