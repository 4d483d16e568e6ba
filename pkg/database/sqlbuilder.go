package database

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Binder is the part of every go-sqlbuilder builder the condition helpers need.
type Binder interface {
	Var(arg any) string
	Equal(field string, value any) string
}

// Contains renders a JSONB containment condition (column @> value) for any JSON-encodable value.
func Contains(b Binder, column string, value any) (string, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("cannot encode containment value for %s: %w", column, err)
	}
	return fmt.Sprintf("%s @> %s::jsonb", column, b.Var(string(raw))), nil
}

// Equals returns one equality condition per column/value pair.
func Equals(b Binder, pairs map[string]any) []string {
	cols := make([]string, 0, len(pairs))
	for col := range pairs {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	conds := make([]string, 0, len(cols))
	for _, col := range cols {
		conds = append(conds, b.Equal(col, pairs[col]))
	}
	return conds
}

// MergeExcluded shallow-merges the conflicting row's JSONB column with the proposed one.
func MergeExcluded(table, column string) any {
	return sqlbuilder.Raw(fmt.Sprintf("%s.%s || EXCLUDED.%s", table, column, column))
}

func Now() any {
	return sqlbuilder.Raw("NOW()")
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

// OnConflict appends an upsert clause and returns the builder for its SET list.
func (b *InsertBuilder) OnConflict(columns ...string) *UpdateBuilder {
	ub := NewUpdateBuilder()
	b.SQL(fmt.Sprintf("ON CONFLICT (%s) DO UPDATE %s", strings.Join(columns, ", "), b.Var(ub)))
	return ub
}

func (b *InsertBuilder) OnConflictDoNothing() *InsertBuilder {
	b.SQL("ON CONFLICT DO NOTHING")
	return b
}

type UpdateBuilder struct {
	*sqlbuilder.UpdateBuilder
}

func NewUpdateBuilder() *UpdateBuilder {
	return &UpdateBuilder{sqlbuilder.PostgreSQL.NewUpdateBuilder()}
}

type DeleteBuilder struct {
	*sqlbuilder.DeleteBuilder
}

func NewDeleteBuilder() *DeleteBuilder {
	return &DeleteBuilder{sqlbuilder.PostgreSQL.NewDeleteBuilder()}
}

type SelectBuilder struct {
	*sqlbuilder.SelectBuilder
}

func NewSelectBuilder() *SelectBuilder {
	return &SelectBuilder{sqlbuilder.PostgreSQL.NewSelectBuilder()}
}
