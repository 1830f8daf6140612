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

package analyzer

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quereus/quereus/memory"
	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/expression"
	"github.com/quereus/quereus/sql/plan"
	"github.com/quereus/quereus/sql/rowexec"
)

func widgetsSchema() *sql.Schema {
	return &sql.Schema{
		SchemaName: "main",
		TableName:  "widgets",
		Columns: []sql.Column{
			{Name: "id", Type: sql.KindInteger, PrimaryKey: true},
			{Name: "name", Type: sql.KindText},
		},
		PrimaryKey: []sql.IndexColumn{{Index: 0}},
	}
}

func newWidgetsScan(t *testing.T, ctx *sql.Context, rows ...sql.Row) (*plan.TableScan, []sql.Attribute) {
	t.Helper()
	mod := memory.NewModule(nil)
	tbl, err := mod.Connect("widgets", widgetsSchema(), nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Begin(ctx))
	for _, r := range rows {
		res, err := tbl.Mutate(ctx, sql.OpInsert, r, nil, sql.ConflictAbort)
		require.NoError(t, err)
		require.Nil(t, res.Constraint)
	}
	require.NoError(t, tbl.Commit(ctx))

	attrs := []sql.Attribute{
		{ID: sql.NewAttributeID(), Name: "id", Type: sql.KindInteger},
		{ID: sql.NewAttributeID(), Name: "name", Type: sql.KindText},
	}
	return plan.NewTableScan(tbl, "widgets", "widgets", attrs), attrs
}

func drainIter(t *testing.T, ctx *sql.Context, node plan.Node) []sql.Row {
	t.Helper()
	it, err := rowexec.Compile(ctx, node)
	require.NoError(t, err)
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

// TestPushdownEqualityFullyOmitsFilter verifies that an equality
// predicate on the primary key is pushed entirely into BestIndex: the
// rewrite returns the bare TableScan (no residual Filter/
// VerifyConstraints needed) because the in-memory module reports the
// constraint as omittable.
func TestPushdownEqualityFullyOmitsFilter(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()
	scan, attrs := newWidgetsScan(t, ctx,
		sql.NewRow(sql.IntegerValue(1), sql.TextValue("cog")),
		sql.NewRow(sql.IntegerValue(2), sql.TextValue("sprocket")),
	)
	idRef := expression.NewColumnReference(attrs[0].ID, "id", sql.KindInteger)
	pred := expression.NewBinaryOp(expression.BinEQ, idRef, expression.NewLiteral(sql.IntegerValue(2)))
	filter := plan.NewFilter(scan, pred)

	rewritten, err := Optimize(nil, filter)
	req.NoError(err)

	out, ok := rewritten.(*plan.TableScan)
	req.True(ok, "a fully-omittable equality constraint should collapse the Filter away")
	req.Equal("pk_eq", out.IdxStr)

	rows := drainIter(t, ctx, out)
	req.Len(rows, 1)
	req.Equal("sprocket", rows[0][1].Text())
}

// TestPushdownRangeKeepsVerifyConstraints verifies that a non-omittable
// range predicate is still pushed down as an index hint, but the
// optimizer wraps the scan in VerifyConstraints rather than trusting
// the table to enforce the comparison exactly.
func TestPushdownRangeKeepsVerifyConstraints(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()
	scan, attrs := newWidgetsScan(t, ctx,
		sql.NewRow(sql.IntegerValue(1), sql.TextValue("cog")),
		sql.NewRow(sql.IntegerValue(2), sql.TextValue("sprocket")),
		sql.NewRow(sql.IntegerValue(3), sql.TextValue("gear")),
	)
	idRef := expression.NewColumnReference(attrs[0].ID, "id", sql.KindInteger)
	pred := expression.NewBinaryOp(expression.BinGE, idRef, expression.NewLiteral(sql.IntegerValue(2)))
	filter := plan.NewFilter(scan, pred)

	rewritten, err := Optimize(nil, filter)
	req.NoError(err)

	verify, ok := rewritten.(*plan.VerifyConstraints)
	req.True(ok, "a non-omittable range constraint must stay guarded by VerifyConstraints")
	inner, ok := verify.Source.(*plan.TableScan)
	req.True(ok)
	req.Equal("pk_range", inner.IdxStr)

	rows := drainIter(t, ctx, verify)
	req.Len(rows, 2)
}

// TestPushdownUnindexedColumnKeepsFullScanGuarded verifies that a
// predicate over a column with no declared index is still checked
// correctly: BestIndex reports it unusable (full scan, ArgvIndex 0),
// so the optimizer wraps the plain scan in VerifyConstraints rather
// than silently dropping the predicate.
func TestPushdownUnindexedColumnKeepsFullScanGuarded(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()
	scan, attrs := newWidgetsScan(t, ctx,
		sql.NewRow(sql.IntegerValue(1), sql.TextValue("cog")),
		sql.NewRow(sql.IntegerValue(2), sql.TextValue("sprocket")),
	)
	nameRef := expression.NewColumnReference(attrs[1].ID, "name", sql.KindText)
	pred := expression.NewBinaryOp(expression.BinEQ, nameRef, expression.NewLiteral(sql.TextValue("sprocket")))
	filter := plan.NewFilter(scan, pred)

	rewritten, err := Optimize(nil, filter)
	req.NoError(err)

	verify, ok := rewritten.(*plan.VerifyConstraints)
	req.True(ok, "an unindexed column predicate must still be enforced via VerifyConstraints")
	inner, ok := verify.Source.(*plan.TableScan)
	req.True(ok)
	req.Equal("scan", inner.IdxStr, "BestIndex had nothing usable to offer, so the scan stays a full scan")

	rows := drainIter(t, ctx, verify)
	req.Len(rows, 1)
	req.Equal("sprocket", rows[0][1].Text())
}
