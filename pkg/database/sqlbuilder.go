package database

import (
	"fmt"
	"strings"

	"github.com/huandu/go-sqlbuilder"
)

// Excluded renders "column = EXCLUDED.column" for an ON CONFLICT update.
func Excluded(column string) string {
	return fmt.Sprintf("%s = EXCLUDED.%s", column, column)
}

type InsertBuilder struct {
	*sqlbuilder.InsertBuilder
}

func NewInsertBuilder() *InsertBuilder {
	return &InsertBuilder{sqlbuilder.PostgreSQL.NewInsertBuilder()}
}

// OnConflict appends ON CONFLICT (columns) DO UPDATE SET sets. where, when
// non-empty, guards the update; a conflict that fails the guard affects no
// rows.
func (b *InsertBuilder) OnConflict(columns []string, sets []string, where string) *InsertBuilder {
	clause := fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(columns, ", "), strings.Join(sets, ", "))
	if where != "" {
		clause += " WHERE " + where
	}
	b.SQL(clause)
	return b
}

// OnConflictDoNothing targets a (possibly partial) unique index. where is the
// index predicate and may be empty.
func (b *InsertBuilder) OnConflictDoNothing(columns []string, where string) *InsertBuilder {
	clause := fmt.Sprintf("ON CONFLICT (%s)", strings.Join(columns, ", "))
	if where != "" {
		clause += " WHERE " + where
	}
	b.SQL(clause + " DO NOTHING")
	return b
}

func NewSelectBuilder() *sqlbuilder.SelectBuilder {
	return sqlbuilder.PostgreSQL.NewSelectBuilder()
}

func NewUpdateBuilder() *sqlbuilder.UpdateBuilder {
	return sqlbuilder.PostgreSQL.NewUpdateBuilder()
}

func NewDeleteBuilder() *sqlbuilder.DeleteBuilder {
	return sqlbuilder.PostgreSQL.NewDeleteBuilder()
}
