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

package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/expression"
)

func idAttr(name string, kind sql.ValueKind) sql.Attribute {
	return sql.Attribute{ID: sql.NewAttributeID(), Name: name, Type: kind}
}

// TestTableScanPublishesItsAttrsAndNoChildren verifies a leaf node's
// Attributes pass through its declared Attrs and that it reports no
// Children for plan-tree traversal to stop at.
func TestTableScanPublishesItsAttrsAndNoChildren(t *testing.T) {
	req := require.New(t)
	attrs := []sql.Attribute{idAttr("id", sql.KindInteger)}
	scan := NewTableScan(nil, "widgets", "w", attrs)

	req.Equal(attrs, scan.Attributes())
	req.Nil(scan.Children())
	req.Contains(scan.String(), "widgets")
	req.Contains(scan.String(), "w")
}

// TestTableScanAliasOmittedWhenEqualToName verifies the String form
// doesn't redundantly repeat an alias identical to the table name.
func TestTableScanAliasOmittedWhenEqualToName(t *testing.T) {
	req := require.New(t)
	scan := NewTableScan(nil, "widgets", "widgets", nil)
	req.Equal("TableScan(widgets)", scan.String())
}

// TestFilterPassesThroughSourceAttributesAndChildren verifies a
// single-source node forwards its source's published attributes
// unchanged and reports that source as its only child.
func TestFilterPassesThroughSourceAttributesAndChildren(t *testing.T) {
	req := require.New(t)
	attrs := []sql.Attribute{idAttr("id", sql.KindInteger)}
	scan := NewTableScan(nil, "widgets", "widgets", attrs)
	pred := expression.NewLiteral(sql.BooleanValue(true))
	filter := NewFilter(scan, pred)

	req.Equal(attrs, filter.Attributes())
	req.Equal([]Node{scan}, filter.Children())
}

// TestProjectAttributesComeFromItsOwnColumnListNotSource verifies a
// Project publishes the attribute of each of its own ProjectColumns,
// not the source's attributes, since Project may reorder or compute
// entirely new columns.
func TestProjectAttributesComeFromItsOwnColumnListNotSource(t *testing.T) {
	req := require.New(t)
	scan := NewTableScan(nil, "widgets", "widgets", []sql.Attribute{idAttr("id", sql.KindInteger)})
	outAttr := idAttr("doubled", sql.KindInteger)
	project := NewProject(scan, []ProjectColumn{
		{Expr: expression.NewLiteral(sql.IntegerValue(2)), Attr: outAttr},
	})

	got := project.Attributes()
	req.Len(got, 1)
	req.Equal(outAttr, got[0])
}

// TestJoinConcatenatesLeftThenRightAttributesAndReportsBothChildren
// verifies a binary node's Attributes() is left-then-right
// concatenation and Children() exposes both sides for traversal.
func TestJoinConcatenatesLeftThenRightAttributesAndReportsBothChildren(t *testing.T) {
	req := require.New(t)
	leftAttr := idAttr("a", sql.KindInteger)
	rightAttr := idAttr("b", sql.KindText)
	left := NewTableScan(nil, "l", "l", []sql.Attribute{leftAttr})
	right := NewTableScan(nil, "r", "r", []sql.Attribute{rightAttr})
	join := NewJoin(left, right, InnerJoin, nil)

	req.Equal([]sql.Attribute{leftAttr, rightAttr}, join.Attributes())
	req.Equal([]Node{left, right}, join.Children())
}

// TestAggregateAttributesAreGroupKeysThenAggregateResultsInOrder
// verifies the output row shape documented for the streaming aggregate
// node: GroupBy attributes first, then each AggregateCall's attribute,
// in declared order.
func TestAggregateAttributesAreGroupKeysThenAggregateResultsInOrder(t *testing.T) {
	req := require.New(t)
	scan := NewTableScan(nil, "sales", "sales", []sql.Attribute{idAttr("region", sql.KindText), idAttr("amount", sql.KindInteger)})
	groupAttr := idAttr("region", sql.KindText)
	sumAttr := idAttr("total", sql.KindReal)
	agg := NewAggregate(scan,
		[]GroupByTerm{{Expr: expression.NewLiteral(sql.NullValue), Attr: groupAttr}},
		[]AggregateCall{{Call: &expression.AggregateFunctionCall{Name: "SUM"}, Attr: sumAttr}},
	)

	req.Equal([]sql.Attribute{groupAttr, sumAttr}, agg.Attributes())
	req.Equal([]Node{scan}, agg.Children())
}

// TestWindowAttributesAppendCallResultsAfterSourceColumns verifies a
// Window node keeps every source column and appends one attribute per
// window call, rather than replacing the row shape the way Project
// does.
func TestWindowAttributesAppendCallResultsAfterSourceColumns(t *testing.T) {
	req := require.New(t)
	srcAttr := idAttr("amount", sql.KindInteger)
	scan := NewTableScan(nil, "sales", "sales", []sql.Attribute{srcAttr})
	rankAttr := idAttr("rank", sql.KindInteger)
	win := NewWindow(scan, []WindowCall{{Call: &expression.WindowFunctionCall{Name: "RANK"}, Attr: rankAttr}})

	req.Equal([]sql.Attribute{srcAttr, rankAttr}, win.Attributes())
}

// TestSetOperationUsesItsOwnDeclaredAttrsNotEitherSide verifies a
// SetOperation publishes the attribute list supplied at construction
// (the left side's shape, by SQL compound-statement convention) rather
// than deriving it from Left or Right directly.
func TestSetOperationUsesItsOwnDeclaredAttrsNotEitherSide(t *testing.T) {
	req := require.New(t)
	attrs := []sql.Attribute{idAttr("id", sql.KindInteger)}
	left := NewTableScan(nil, "a", "a", attrs)
	right := NewTableScan(nil, "b", "b", []sql.Attribute{idAttr("id", sql.KindInteger)})
	set := NewSetOperation(left, right, Union, false, attrs)

	req.Equal(attrs, set.Attributes())
	req.Equal([]Node{left, right}, set.Children())
}

// TestDMLNodesPublishNoAttributesButExposeTheirSourceAsChild verifies
// Insert/Update/Delete are row-producing in effect only (no SELECT-able
// output row), while still exposing Source for traversal/compilation.
func TestDMLNodesPublishNoAttributesButExposeTheirSourceAsChild(t *testing.T) {
	req := require.New(t)
	values := NewValues([][]sql.Expression{{expression.NewLiteral(sql.IntegerValue(1))}}, []sql.Attribute{idAttr("id", sql.KindInteger)})
	target := TableReference{Table: nil, TableName: "widgets"}

	insert := NewInsert(target, values, []int{0}, sql.ConflictAbort)
	req.Nil(insert.Attributes())
	req.Equal([]Node{values}, insert.Children())
	req.Contains(insert.String(), "widgets")

	scan := NewTableScan(nil, "widgets", "widgets", nil)
	del := NewDelete(target, scan)
	req.Nil(del.Attributes())
	req.Equal([]Node{scan}, del.Children())

	upd := NewUpdate(target, scan, []Assignment{{Column: 0, Expr: expression.NewLiteral(sql.IntegerValue(5))}}, sql.ConflictAbort)
	req.Nil(upd.Attributes())
	req.Equal([]Node{scan}, upd.Children())
}

// TestCTEReferenceDelegatesToItsTarget verifies a CTE reference forwards
// Attributes and Children to the bound relation it names, since the
// reference itself holds no rows.
func TestCTEReferenceDelegatesToItsTarget(t *testing.T) {
	req := require.New(t)
	attrs := []sql.Attribute{idAttr("id", sql.KindInteger)}
	target := NewTableScan(nil, "cte_source", "cte_source", attrs)
	ref := &CTEReference{Name: "recent", Target: target}

	req.Equal(attrs, ref.Attributes())
	req.Equal([]Node{target}, ref.Children())
	req.Contains(ref.String(), "recent")
}

// TestSingleRowIsTheZeroColumnLeaf verifies the implicit FROM-less
// relation publishes no attributes and no children.
func TestSingleRowIsTheZeroColumnLeaf(t *testing.T) {
	req := require.New(t)
	sr := &SingleRow{}
	req.Nil(sr.Attributes())
	req.Nil(sr.Children())
}
