package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql", "000003_index.up.sql", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
	}

	latest, err := getLatestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, latest)

	_, err = getLatestVersion(t.TempDir())
	assert.Error(t, err)
}

func TestLatestShippedMigration(t *testing.T) {
	latest, err := getLatestVersion("../../db/pg")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latest, 1)
}
