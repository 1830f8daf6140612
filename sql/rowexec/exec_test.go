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

package rowexec

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quereus/quereus/memory"
	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/expression"
	"github.com/quereus/quereus/sql/expression/aggregation"
	"github.com/quereus/quereus/sql/plan"
)

func employeesSchema() *sql.Schema {
	return &sql.Schema{
		SchemaName: "main",
		TableName:  "employees",
		Columns: []sql.Column{
			{Name: "id", Type: sql.KindInteger, PrimaryKey: true},
			{Name: "dept", Type: sql.KindText},
			{Name: "salary", Type: sql.KindInteger},
		},
		PrimaryKey: []sql.IndexColumn{{Index: 0}},
	}
}

func newEmployeesTable(t *testing.T, ctx *sql.Context, rows ...sql.Row) sql.Table {
	t.Helper()
	mod := memory.NewModule(nil)
	tbl, err := mod.Connect("employees", employeesSchema(), nil)
	require.NoError(t, err)
	require.NoError(t, tbl.Begin(ctx))
	for _, r := range rows {
		res, err := tbl.Mutate(ctx, sql.OpInsert, r, nil, sql.ConflictAbort)
		require.NoError(t, err)
		require.Nil(t, res.Constraint)
	}
	require.NoError(t, tbl.Commit(ctx))
	return tbl
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

func scanNode(tbl sql.Table, tableName string) (*plan.TableScan, []sql.Attribute) {
	schema := tbl.Schema()
	attrs := make([]sql.Attribute, len(schema.Columns))
	for i, c := range schema.Columns {
		attrs[i] = sql.Attribute{ID: sql.NewAttributeID(), Name: c.Name, Type: c.Type}
	}
	return plan.NewTableScan(tbl, tableName, tableName, attrs), attrs
}

// TestCompileFilterAppliesPredicate verifies that a Filter node over a
// TableScan keeps only matching rows, exercising ColumnReference
// binding against the scan's published attributes.
func TestCompileFilterAppliesPredicate(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()
	tbl := newEmployeesTable(t, ctx,
		sql.NewRow(sql.IntegerValue(1), sql.TextValue("eng"), sql.IntegerValue(100)),
		sql.NewRow(sql.IntegerValue(2), sql.TextValue("sales"), sql.IntegerValue(50)),
		sql.NewRow(sql.IntegerValue(3), sql.TextValue("eng"), sql.IntegerValue(120)),
	)
	scan, attrs := scanNode(tbl, "employees")
	deptRef := expression.NewColumnReference(attrs[1].ID, "dept", sql.KindText)
	pred := expression.NewBinaryOp(expression.BinEQ, deptRef, expression.NewLiteral(sql.TextValue("eng")))
	filter := plan.NewFilter(scan, pred)

	it, err := Compile(ctx, filter)
	req.NoError(err)
	rows := drainRows(t, ctx, it)
	req.Len(rows, 2)
	for _, r := range rows {
		req.Equal("eng", r[1].Text())
	}
}

// TestCompileProjectReordersAndComputes verifies Project evaluates an
// arbitrary expression list per row, independent of source column
// order.
func TestCompileProjectReordersAndComputes(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()
	tbl := newEmployeesTable(t, ctx,
		sql.NewRow(sql.IntegerValue(1), sql.TextValue("eng"), sql.IntegerValue(100)),
	)
	scan, attrs := scanNode(tbl, "employees")
	salaryRef := expression.NewColumnReference(attrs[2].ID, "salary", sql.KindInteger)
	bonus := expression.NewBinaryOp(expression.BinMul, salaryRef, expression.NewLiteral(sql.RealValue(1.1)))
	project := plan.NewProject(scan, []plan.ProjectColumn{
		{Expr: bonus, Attr: sql.Attribute{ID: sql.NewAttributeID(), Name: "bonus", Type: sql.KindReal}},
	})

	it, err := Compile(ctx, project)
	req.NoError(err)
	rows := drainRows(t, ctx, it)
	req.Len(rows, 1)
	req.InDelta(110.0, rows[0][0].Real(), 0.0001)
}

// TestCompileSortOrdersRows verifies Sort orders by the declared keys
// and direction.
func TestCompileSortOrdersRows(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()
	tbl := newEmployeesTable(t, ctx,
		sql.NewRow(sql.IntegerValue(1), sql.TextValue("eng"), sql.IntegerValue(100)),
		sql.NewRow(sql.IntegerValue(2), sql.TextValue("sales"), sql.IntegerValue(50)),
		sql.NewRow(sql.IntegerValue(3), sql.TextValue("eng"), sql.IntegerValue(120)),
	)
	scan, attrs := scanNode(tbl, "employees")
	salaryRef := expression.NewColumnReference(attrs[2].ID, "salary", sql.KindInteger)
	sort := plan.NewSort(scan, []plan.SortKey{{Expr: salaryRef, Direction: sql.Descending}})

	it, err := Compile(ctx, sort)
	req.NoError(err)
	rows := drainRows(t, ctx, it)
	req.Len(rows, 3)
	req.Equal(int64(120), rows[0][2].Integer())
	req.Equal(int64(100), rows[1][2].Integer())
	req.Equal(int64(50), rows[2][2].Integer())
}

// TestCompileAggregateGroupsAndSums verifies the streaming aggregate
// engine groups contiguous-by-key input rows and finalizes one output
// row per group, each with a fresh accumulator.
func TestCompileAggregateGroupsAndSums(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()
	tbl := newEmployeesTable(t, ctx,
		sql.NewRow(sql.IntegerValue(1), sql.TextValue("eng"), sql.IntegerValue(100)),
		sql.NewRow(sql.IntegerValue(3), sql.TextValue("eng"), sql.IntegerValue(120)),
		sql.NewRow(sql.IntegerValue(2), sql.TextValue("sales"), sql.IntegerValue(50)),
	)
	scan, attrs := scanNode(tbl, "employees")
	// Pre-sort by dept so the aggregate's grouping-by-contiguous-key
	// assumption holds, mirroring the Sort the plan builder inserts
	// ahead of a streaming Aggregate.
	deptRef := expression.NewColumnReference(attrs[1].ID, "dept", sql.KindText)
	salaryRef := expression.NewColumnReference(attrs[2].ID, "salary", sql.KindInteger)
	sort := plan.NewSort(scan, []plan.SortKey{{Expr: deptRef, Direction: sql.Ascending}})

	sumCall := &expression.AggregateFunctionCall{Name: "SUM", Schema: aggregation.NewSum(false), Args: []sql.Expression{salaryRef}}
	agg := plan.NewAggregate(sort,
		[]plan.GroupByTerm{{Expr: deptRef, Attr: sql.Attribute{ID: sql.NewAttributeID(), Name: "dept", Type: sql.KindText}}},
		[]plan.AggregateCall{{Call: sumCall, Attr: sql.Attribute{ID: sql.NewAttributeID(), Name: "total", Type: sql.KindReal}}},
	)

	it, err := Compile(ctx, agg)
	req.NoError(err)
	rows := drainRows(t, ctx, it)
	req.Len(rows, 2)

	totals := map[string]float64{}
	for _, r := range rows {
		totals[r[0].Text()] = r[1].Real()
	}
	req.Equal(220.0, totals["eng"])
	req.Equal(50.0, totals["sales"])
}

// TestCompileAggregateHavingResolvesPreAggregationColumn verifies a
// HAVING predicate referencing a column outside the GROUP BY/aggregate
// list resolves against the finalized group's captured representative
// row, not just the aggregate's own published group-key/result columns.
func TestCompileAggregateHavingResolvesPreAggregationColumn(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()
	tbl := newEmployeesTable(t, ctx,
		sql.NewRow(sql.IntegerValue(1), sql.TextValue("eng"), sql.IntegerValue(100)),
		sql.NewRow(sql.IntegerValue(3), sql.TextValue("eng"), sql.IntegerValue(120)),
		sql.NewRow(sql.IntegerValue(2), sql.TextValue("sales"), sql.IntegerValue(50)),
	)
	scan, attrs := scanNode(tbl, "employees")
	idRef := expression.NewColumnReference(attrs[0].ID, "id", sql.KindInteger)
	deptRef := expression.NewColumnReference(attrs[1].ID, "dept", sql.KindText)
	salaryRef := expression.NewColumnReference(attrs[2].ID, "salary", sql.KindInteger)
	sort := plan.NewSort(scan, []plan.SortKey{{Expr: deptRef, Direction: sql.Ascending}})

	sumCall := &expression.AggregateFunctionCall{Name: "SUM", Schema: aggregation.NewSum(false), Args: []sql.Expression{salaryRef}}
	agg := plan.NewAggregate(sort,
		[]plan.GroupByTerm{{Expr: deptRef, Attr: sql.Attribute{ID: sql.NewAttributeID(), Name: "dept", Type: sql.KindText}}},
		[]plan.AggregateCall{{Call: sumCall, Attr: sql.Attribute{ID: sql.NewAttributeID(), Name: "total", Type: sql.KindReal}}},
	)

	// "id" never appears in GroupBy or the aggregate's own output
	// attributes, so this predicate can only be satisfied by resolving
	// against the group's representative pre-aggregation row.
	having := plan.NewFilter(agg, expression.NewBinaryOp(expression.BinEQ, idRef, expression.NewLiteral(sql.IntegerValue(1))))

	it, err := Compile(ctx, having)
	req.NoError(err)
	rows := drainRows(t, ctx, it)
	req.Len(rows, 1)
	req.Equal("eng", rows[0][0].Text())
	req.Equal(220.0, rows[0][1].Real())
}
