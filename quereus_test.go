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

package quereus

import (
	"io"
	"testing"

	"github.com/dolthub/vitess/go/sqltypes"
	"github.com/stretchr/testify/require"

	"github.com/quereus/quereus/memory"
	"github.com/quereus/quereus/sql"
)

func widgetsSchema() *sql.Schema {
	return &sql.Schema{
		Columns: []sql.Column{
			{Name: "id", Type: sql.KindInteger, PrimaryKey: true},
			{Name: "name", Type: sql.KindText, Nullable: true},
		},
		PrimaryKey: []sql.IndexColumn{{Index: 0}},
	}
}

func openWithWidgets(t *testing.T) *Database {
	t.Helper()
	db, err := Open(nil)
	require.NoError(t, err)
	db.RegisterModule("memory", memory.NewModule(nil))
	_, err = db.CreateTable("memory", "main", "widgets", widgetsSchema(), nil)
	require.NoError(t, err)
	return db
}

func drainRows(t *testing.T, ctx *sql.Context, it sql.RowIter) []sql.Row {
	t.Helper()
	defer it.Close(ctx)
	var out []sql.Row
	for {
		row, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		out = append(out, row.Copy())
	}
	return out
}

// TestExecInsertThenSelectAutocommits verifies a bare Exec of an INSERT
// commits immediately (autocommit), and a subsequent Prepare/Run SELECT
// against a fresh autocommit context observes it.
func TestExecInsertThenSelectAutocommits(t *testing.T) {
	req := require.New(t)
	db := openWithWidgets(t)
	ctx := db.NewSessionContext(nil)
	req.True(db.GetAutocommit(ctx))

	res, err := db.Exec(ctx, "insert into widgets (id, name) values (1, 'cog')")
	req.NoError(err)
	req.Equal(int64(1), res.RowsAffected)

	stmt, err := db.Prepare("select id, name from widgets")
	req.NoError(err)

	readCtx := db.NewSessionContext(nil)
	it, err := stmt.Run(readCtx)
	req.NoError(err)
	rows := drainRows(t, readCtx, it)
	req.Len(rows, 1)
	req.Equal(int64(1), rows[0][0].Integer())
	req.Equal("cog", rows[0][1].Text())
}

// TestExplicitTransactionIsolatesUntilCommit verifies a Begin'd
// session's insert is invisible to a separate autocommit reader until
// Commit, mirroring the coordinator's snapshot contract.
func TestExplicitTransactionIsolatesUntilCommit(t *testing.T) {
	req := require.New(t)
	db := openWithWidgets(t)

	writer := db.NewSessionContext(nil)
	db.Begin(writer)
	req.False(db.GetAutocommit(writer))

	_, err := db.Exec(writer, "insert into widgets (id, name) values (1, 'cog')")
	req.NoError(err)

	reader := db.NewSessionContext(nil)
	stmt, err := db.Prepare("select id from widgets")
	req.NoError(err)
	it, err := stmt.Run(reader)
	req.NoError(err)
	req.Empty(drainRows(t, reader, it))

	req.NoError(db.Commit(writer))

	reader2 := db.NewSessionContext(nil)
	it2, err := stmt.Run(reader2)
	req.NoError(err)
	req.Len(drainRows(t, reader2, it2), 1)
}

// TestRollbackDiscardsExplicitTransactionWrites verifies an explicit
// transaction's insert is gone after Rollback.
func TestRollbackDiscardsExplicitTransactionWrites(t *testing.T) {
	req := require.New(t)
	db := openWithWidgets(t)

	ctx := db.NewSessionContext(nil)
	db.Begin(ctx)
	_, err := db.Exec(ctx, "insert into widgets (id, name) values (1, 'cog')")
	req.NoError(err)
	req.NoError(db.Rollback(ctx))

	readCtx := db.NewSessionContext(nil)
	stmt, err := db.Prepare("select id from widgets")
	req.NoError(err)
	it, err := stmt.Run(readCtx)
	req.NoError(err)
	req.Empty(drainRows(t, readCtx, it))
}

// TestExecUpdateAndDeleteReportAffectedRows verifies Exec reports the
// affected-row count for UPDATE and DELETE, not just INSERT.
func TestExecUpdateAndDeleteReportAffectedRows(t *testing.T) {
	req := require.New(t)
	db := openWithWidgets(t)
	ctx := db.NewSessionContext(nil)

	_, err := db.Exec(ctx, "insert into widgets (id, name) values (1, 'cog')")
	req.NoError(err)
	_, err = db.Exec(ctx, "insert into widgets (id, name) values (2, 'sprocket')")
	req.NoError(err)

	updRes, err := db.Exec(ctx, "update widgets set name = 'gear' where id = 1")
	req.NoError(err)
	req.Equal(int64(1), updRes.RowsAffected)

	delRes, err := db.Exec(ctx, "delete from widgets where id = 2")
	req.NoError(err)
	req.Equal(int64(1), delRes.RowsAffected)

	readCtx := db.NewSessionContext(nil)
	stmt, err := db.Prepare("select id, name from widgets")
	req.NoError(err)
	it, err := stmt.Run(readCtx)
	req.NoError(err)
	rows := drainRows(t, readCtx, it)
	req.Len(rows, 1)
	req.Equal("gear", rows[0][1].Text())
}

// TestColumnTypesReportsWireTypesPerAttribute verifies ColumnTypes maps
// the logical value kinds of a prepared statement's published
// attributes to their vitess wire type codes, in column order.
func TestColumnTypesReportsWireTypesPerAttribute(t *testing.T) {
	req := require.New(t)
	db := openWithWidgets(t)
	stmt, err := db.Prepare("select id, name from widgets")
	req.NoError(err)

	types := stmt.ColumnTypes()
	req.Equal([]sqltypes.Type{sqltypes.Int64, sqltypes.VarChar}, types)
}

// TestExplainPlanRendersNestedPlanTree verifies ExplainPlan produces an
// indented, recursive rendering mentioning every node on the path from
// root to leaf scan.
func TestExplainPlanRendersNestedPlanTree(t *testing.T) {
	req := require.New(t)
	db := openWithWidgets(t)
	stmt, err := db.Prepare("select name from widgets where id = 1 order by name")
	req.NoError(err)

	out := stmt.ExplainPlan()
	req.Contains(out, "Sort")
	req.Contains(out, "Project")
	req.Contains(out, "widgets")
}

// TestQueryReturnsOriginalSQLText verifies Query() echoes back the
// exact text Prepare was given.
func TestQueryReturnsOriginalSQLText(t *testing.T) {
	req := require.New(t)
	db := openWithWidgets(t)
	const q = "select id from widgets"
	stmt, err := db.Prepare(q)
	req.NoError(err)
	req.Equal(q, stmt.Query())
}

// schemaChangeRecorder implements Listener, recording schema-change
// notifications for TestCreateTableNotifiesListeners.
type schemaChangeRecorder struct {
	schemaName, tableName string
	calls                 int
}

func (r *schemaChangeRecorder) OnSchemaChange(schemaName, tableName string) {
	r.schemaName, r.tableName = schemaName, tableName
	r.calls++
}
func (r *schemaChangeRecorder) OnDataChange(string, string, sql.Op, int64) {}

// TestCreateTableNotifiesListeners verifies CreateTable fires
// OnSchemaChange exactly once with the registered schema/table names.
func TestCreateTableNotifiesListeners(t *testing.T) {
	req := require.New(t)
	db, err := Open(nil)
	req.NoError(err)
	rec := &schemaChangeRecorder{}
	db.AddListener(rec)
	db.RegisterModule("memory", memory.NewModule(nil))

	_, err = db.CreateTable("memory", "main", "widgets", widgetsSchema(), nil)
	req.NoError(err)
	req.Equal(1, rec.calls)
	req.Equal("main", rec.schemaName)
	req.Equal("widgets", rec.tableName)
}

// dataChangeRecorder implements Listener, recording data-change
// notifications for TestExecInsertNotifiesDataChangeListeners.
type dataChangeRecorder struct {
	op       sql.Op
	affected int64
	calls    int
}

func (r *dataChangeRecorder) OnSchemaChange(string, string) {}
func (r *dataChangeRecorder) OnDataChange(schemaName, tableName string, op sql.Op, affected int64) {
	r.op, r.affected = op, affected
	r.calls++
}

// TestExecInsertNotifiesDataChangeListeners verifies a committed INSERT
// fires exactly one OnDataChange with the affected-row count, and that
// a zero-affected statement fires none.
func TestExecInsertNotifiesDataChangeListeners(t *testing.T) {
	req := require.New(t)
	db := openWithWidgets(t)
	rec := &dataChangeRecorder{}
	db.AddListener(rec)

	ctx := db.NewSessionContext(nil)
	_, err := db.Exec(ctx, "insert into widgets (id, name) values (1, 'cog')")
	req.NoError(err)
	req.Equal(1, rec.calls)
	req.Equal(sql.OpInsert, rec.op)
	req.Equal(int64(1), rec.affected)

	_, err = db.Exec(ctx, "delete from widgets where id = 999")
	req.NoError(err)
	req.Equal(1, rec.calls, "a zero-row delete must not notify")
}

// TestUnknownModuleNameIsMisuse verifies CreateTable reports a Misuse
// error rather than a panic when the named module was never
// registered.
func TestUnknownModuleNameIsMisuse(t *testing.T) {
	req := require.New(t)
	db, err := Open(nil)
	req.NoError(err)
	_, err = db.CreateTable("no-such-module", "main", "widgets", widgetsSchema(), nil)
	req.Error(err)
	req.True(sql.IsKind(err, sql.KindMisuse))
}
