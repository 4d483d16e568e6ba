package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertBuilder_OnConflict(t *testing.T) {
	ib := NewInsertBuilder()
	ib.InsertInto("documents").Cols("id", "body").Values("a", "{}")
	ub := ib.OnConflict("id")
	ub.Set(ub.Assign("body", MergeExcluded("documents", "body")))

	sql, args := ib.Build()
	assert.Contains(t, sql, "INSERT INTO documents (id, body) VALUES ($1, $2)")
	assert.Contains(t, sql, "ON CONFLICT (id) DO UPDATE")
	assert.Contains(t, sql, "SET body = documents.body || EXCLUDED.body")
	assert.Equal(t, []any{"a", "{}"}, args)
}

func TestDocumentConditions(t *testing.T) {
	sb := NewSelectBuilder()
	sb.Select("body").From("documents").Where(Equals(sb, map[string]any{"namespace": "ns", "collection": "pages"})...)
	cond, err := Contains(sb, "body", map[string]any{"pageId": "p1"})
	require.NoError(t, err)
	sb.Where(cond)

	sql, args := sb.Build()
	assert.Equal(t, "SELECT body FROM documents WHERE collection = $1 AND namespace = $2 AND body @> $3::jsonb", sql)
	assert.Equal(t, []any{"pages", "ns", `{"pageId":"p1"}`}, args)

	_, err = Contains(sb, "body", map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestJSONB_Scan(t *testing.T) {
	var j JSONB[map[string]any]
	assert.NoError(t, j.Scan([]byte(`{"id":"x"}`)))
	assert.Equal(t, "x", j.GetValue()["id"])

	assert.NoError(t, j.Scan(`{"id":"y"}`))
	assert.Equal(t, "y", j.GetValue()["id"])

	assert.Error(t, j.Scan(42))
}
