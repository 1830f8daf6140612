// Copyright 2020-2021 Dolthub, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memory

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/expression"
)

// widgetsSchema is a small two-column schema (integer primary key, text
// name) with a secondary index on name, shared by the scenarios below.
func widgetsSchema() *sql.Schema {
	return &sql.Schema{
		SchemaName: "main",
		TableName:  "widgets",
		Columns: []sql.Column{
			{Name: "id", Type: sql.KindInteger, PrimaryKey: true},
			{Name: "name", Type: sql.KindText, Nullable: true},
		},
		PrimaryKey: []sql.IndexColumn{{Index: 0}},
		Indexes: []sql.IndexDef{
			{Name: "idx_name", Columns: []sql.IndexColumn{{Index: 1}}},
		},
	}
}

func newWidgetsTable(t *testing.T) *Table {
	t.Helper()
	mod := NewModule(nil)
	tbl, err := mod.Connect("widgets", widgetsSchema(), nil)
	require.NoError(t, err)
	return tbl.(*Table)
}

// scanAll drains a full unfiltered primary scan through the sql.Cursor
// contract: Filter positions the cursor, EOF/Column/Next walk it.
func scanAll(t *testing.T, ctx *sql.Context, tbl *Table) []sql.Row {
	t.Helper()
	cur, err := tbl.OpenCursor(ctx)
	require.NoError(t, err)
	defer cur.Close(ctx)
	require.NoError(t, cur.Filter(ctx, 0, "scan", nil))
	width := len(tbl.Schema().Columns)
	var rows []sql.Row
	for !cur.EOF() {
		row := make(sql.Row, width)
		for i := range row {
			v, err := cur.Column(ctx, i)
			require.NoError(t, err)
			row[i] = v
		}
		rows = append(rows, row)
		require.NoError(t, cur.Next(ctx))
	}
	return rows
}

func insertWidget(t *testing.T, ctx *sql.Context, tbl *Table, id int64, name string) {
	t.Helper()
	row := sql.NewRow(sql.IntegerValue(id), sql.TextValue(name))
	res, err := tbl.Mutate(ctx, sql.OpInsert, row, nil, sql.ConflictAbort)
	require.NoError(t, err)
	require.Nil(t, res.Constraint)
}

// TestReadYourOwnWrites verifies that a connection sees its own pending
// insert before commit, per the data model's requirement that a
// session reads through its own uncommitted layer.
func TestReadYourOwnWrites(t *testing.T) {
	tbl := newWidgetsTable(t)
	ctx := sql.NewEmptyContext()

	require.NoError(t, tbl.Begin(ctx))
	insertWidget(t, ctx, tbl, 1, "cog")

	rows := scanAll(t, ctx, tbl)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0][0].Integer())
	require.Equal(t, "cog", rows[0][1].Text())

	require.NoError(t, tbl.Commit(ctx))

	// After commit the same session still sees the row via its
	// (now advanced) read layer.
	rows = scanAll(t, ctx, tbl)
	require.Len(t, rows, 1)
}

// TestUncommittedWritesAreIsolatedFromOtherSessions verifies that a
// second session's read layer, fixed at its own transaction start,
// does not observe a concurrent session's uncommitted insert.
func TestUncommittedWritesAreIsolatedFromOtherSessions(t *testing.T) {
	tbl := newWidgetsTable(t)
	writer := sql.NewEmptyContext().WithSession(1)
	reader := sql.NewEmptyContext().WithSession(2)

	require.NoError(t, tbl.Begin(writer))
	insertWidget(t, writer, tbl, 1, "cog")

	require.Empty(t, scanAll(t, reader, tbl))

	require.NoError(t, tbl.Commit(writer))
	require.Len(t, scanAll(t, reader, tbl), 1)
}

// TestSecondaryIndexVisibleWithPendingInsert verifies that a pending
// (uncommitted) insert is visible through a secondary-index lookup
// within the same connection, mirroring the primary-tree
// read-your-own-writes guarantee.
func TestSecondaryIndexVisibleWithPendingInsert(t *testing.T) {
	tbl := newWidgetsTable(t)
	ctx := sql.NewEmptyContext()

	require.NoError(t, tbl.Begin(ctx))
	insertWidget(t, ctx, tbl, 1, "cog")
	insertWidget(t, ctx, tbl, 2, "sprocket")

	cur, err := tbl.OpenCursor(ctx)
	require.NoError(t, err)
	defer cur.Close(ctx)

	require.NoError(t, cur.Filter(ctx, 100, "idx_name", []sql.Value{sql.TextValue("sprocket")}))
	require.False(t, cur.EOF())
	v, err := cur.Column(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, int64(2), v.Integer())
	require.NoError(t, cur.Next(ctx))
	require.True(t, cur.EOF())
}

// TestSavepointRollbackPreservesOuterWrites verifies that rolling back
// to a savepoint discards only the writes made after it, leaving
// writes made before the savepoint intact within the same explicit
// transaction.
func TestSavepointRollbackPreservesOuterWrites(t *testing.T) {
	tbl := newWidgetsTable(t)
	ctx := sql.NewEmptyContext()

	require.NoError(t, tbl.Begin(ctx))
	insertWidget(t, ctx, tbl, 1, "cog")

	require.NoError(t, tbl.Savepoint(ctx, 1))
	insertWidget(t, ctx, tbl, 2, "sprocket")

	rows := scanAll(t, ctx, tbl)
	require.Len(t, rows, 2)

	require.NoError(t, tbl.RollbackTo(ctx, 1))

	rows = scanAll(t, ctx, tbl)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0][0].Integer())

	require.NoError(t, tbl.Commit(ctx))
	require.Len(t, scanAll(t, ctx, tbl), 1)
}

// TestDuplicatePrimaryKeyReportsConstraintViolation verifies that
// inserting a row whose primary key already exists in the pending
// layer reports a constraint violation via UpdateResult rather than a
// Go error, per the mutation contract.
func TestDuplicatePrimaryKeyReportsConstraintViolation(t *testing.T) {
	tbl := newWidgetsTable(t)
	ctx := sql.NewEmptyContext()

	require.NoError(t, tbl.Begin(ctx))
	insertWidget(t, ctx, tbl, 1, "cog")

	row := sql.NewRow(sql.IntegerValue(1), sql.TextValue("duplicate"))
	res, err := tbl.Mutate(ctx, sql.OpInsert, row, nil, sql.ConflictAbort)
	require.NoError(t, err)
	require.NotNil(t, res.Constraint)
	require.Equal(t, sql.ConstraintUnique, res.Constraint.Constraint)
}

// gadgetsSchema has a NOT NULL "name" column and a CHECK constraint
// requiring price to be non-negative, exercising the constraint
// enforcement mutateInsert/mutateUpdate apply beyond primary-key
// uniqueness.
func gadgetsSchema() *sql.Schema {
	priceAttr := sql.NewAttributeID()
	return &sql.Schema{
		SchemaName: "main",
		TableName:  "gadgets",
		Columns: []sql.Column{
			{Name: "id", Type: sql.KindInteger, PrimaryKey: true},
			{Name: "name", Type: sql.KindText, Nullable: false},
			{Name: "price", Type: sql.KindInteger, Nullable: true, AttrID: priceAttr},
		},
		PrimaryKey: []sql.IndexColumn{{Index: 0}},
		Checks: []sql.CheckConstraint{
			{
				Name: "price_non_negative",
				Predicate: expression.NewBinaryOp(expression.BinGE,
					expression.NewColumnReference(priceAttr, "price", sql.KindInteger),
					expression.NewLiteral(sql.IntegerValue(0))),
			},
		},
	}
}

func newGadgetsTable(t *testing.T) *Table {
	t.Helper()
	mod := NewModule(nil)
	tbl, err := mod.Connect("gadgets", gadgetsSchema(), nil)
	require.NoError(t, err)
	return tbl.(*Table)
}

// TestNotNullColumnRejectsNullValue verifies that inserting a NULL into
// a non-nullable column reports a ConstraintNotNull violation via
// UpdateResult rather than writing the row.
func TestNotNullColumnRejectsNullValue(t *testing.T) {
	tbl := newGadgetsTable(t)
	ctx := sql.NewEmptyContext()
	require.NoError(t, tbl.Begin(ctx))

	row := sql.NewRow(sql.IntegerValue(1), sql.NullValue, sql.IntegerValue(5))
	res, err := tbl.Mutate(ctx, sql.OpInsert, row, nil, sql.ConflictAbort)
	require.NoError(t, err)
	require.NotNil(t, res.Constraint)
	require.Equal(t, sql.ConstraintNotNull, res.Constraint.Constraint)
	require.Empty(t, scanAll(t, ctx, tbl))
}

// TestCheckConstraintRejectsViolatingRow verifies that a row failing a
// schema CHECK predicate reports a ConstraintCheck violation and is
// never written, while a row satisfying (or NULL against) the
// predicate is accepted.
func TestCheckConstraintRejectsViolatingRow(t *testing.T) {
	tbl := newGadgetsTable(t)
	ctx := sql.NewEmptyContext()
	require.NoError(t, tbl.Begin(ctx))

	bad := sql.NewRow(sql.IntegerValue(1), sql.TextValue("widget"), sql.IntegerValue(-5))
	res, err := tbl.Mutate(ctx, sql.OpInsert, bad, nil, sql.ConflictAbort)
	require.NoError(t, err)
	require.NotNil(t, res.Constraint)
	require.Equal(t, sql.ConstraintCheck, res.Constraint.Constraint)

	good := sql.NewRow(sql.IntegerValue(1), sql.TextValue("widget"), sql.IntegerValue(5))
	res, err = tbl.Mutate(ctx, sql.OpInsert, good, nil, sql.ConflictAbort)
	require.NoError(t, err)
	require.Nil(t, res.Constraint)
	require.Len(t, scanAll(t, ctx, tbl), 1)
}

// TestDeleteThenRollbackRestoresRow verifies that rolling back an
// explicit transaction undoes a delete recorded in its pending layer.
func TestDeleteThenRollbackRestoresRow(t *testing.T) {
	tbl := newWidgetsTable(t)
	ctx := sql.NewEmptyContext()

	require.NoError(t, tbl.Begin(ctx))
	insertWidget(t, ctx, tbl, 1, "cog")
	require.NoError(t, tbl.Commit(ctx))

	require.NoError(t, tbl.Begin(ctx))
	res, err := tbl.Mutate(ctx, sql.OpDelete, nil, sql.NewRow(sql.IntegerValue(1)), sql.ConflictAbort)
	require.NoError(t, err)
	require.Nil(t, res.Constraint)
	require.Empty(t, scanAll(t, ctx, tbl))

	require.NoError(t, tbl.Rollback(ctx))
	require.Len(t, scanAll(t, ctx, tbl), 1)
}
