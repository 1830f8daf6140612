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

package planbuilder

import (
	"strings"

	"github.com/dolthub/vitess/go/vt/sqlparser"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/expression"
	"github.com/quereus/quereus/sql/expression/aggregation"
	"github.com/quereus/quereus/sql/plan"
)

var aggregateNames = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true,
}

func isAggregateName(name string) bool { return aggregateNames[strings.ToUpper(name)] }

// aggregateSchema maps an aggregate function name to a built-in schema.
// Every schema is built without DISTINCT tracking: no caller reads the
// DISTINCT keyword from the FuncExpr, so an aggregate written with
// DISTINCT steps every row like its plain form. COUNT(*) is handled by the caller via FuncExpr.Exprs containing a
// StarExpr, since a bare CountStar takes no arguments.
func aggregateSchema(name string) (expression.AggregateSchema, bool) {
	switch strings.ToUpper(name) {
	case "COUNT":
		return aggregation.NewCount(false), true
	case "SUM":
		return aggregation.NewSum(false), true
	case "AVG":
		return aggregation.NewAvg(false), true
	case "MIN":
		return aggregation.NewMin(false), true
	case "MAX":
		return aggregation.NewMax(false), true
	default:
		return nil, false
	}
}

// containsAggregate reports whether expr contains an aggregate
// function call anywhere in its tree, the signal that a SELECT needs
// an Aggregate node even without an explicit GROUP BY (e.g. `SELECT
// COUNT(*) FROM t`).
func containsAggregate(e sqlparser.Expr) bool {
	found := false
	sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		if f, ok := node.(*sqlparser.FuncExpr); ok && isAggregateName(f.Name.String()) {
			found = true
			return false, nil
		}
		return true, nil
	}, e)
	return found
}

func selectContainsAggregate(s *sqlparser.Select) bool {
	for _, se := range s.SelectExprs {
		if ae, ok := se.(*sqlparser.AliasedExpr); ok && containsAggregate(ae.Expr) {
			return true
		}
	}
	if s.Having != nil && containsAggregate(s.Having.Expr) {
		return true
	}
	return false
}

// collectAggregates builds the GroupByTerm and AggregateCall lists for
// one SELECT: GROUP BY expressions resolve against the pre-aggregate
// scope and (when a simple column reference) keep that column's
// existing attribute id, so downstream references to the grouped
// column continue to resolve without remapping; every distinct
// aggregate call expression in the select list or HAVING clause gets
// one freshly minted attribute, recorded in sc.aggrBindings keyed by
// its canonical text so a second occurrence of the same aggregate
// expression (e.g. in both the select list and ORDER BY) binds to the
// same slot instead of being recomputed.
func (b *Builder) collectAggregates(sc *scope, s *sqlparser.Select) ([]plan.GroupByTerm, []plan.AggregateCall, error) {
	if len(s.GroupBy) == 0 && !selectContainsAggregate(s) {
		return nil, nil, nil
	}

	sc.aggrBindings = map[string]sql.AttributeID{}

	var groupTerms []plan.GroupByTerm
	for _, g := range s.GroupBy {
		ex, err := b.buildExpr(sc, g)
		if err != nil {
			return nil, nil, err
		}
		attr := attrForGroupKey(ex, g)
		groupTerms = append(groupTerms, plan.GroupByTerm{Expr: ex, Attr: attr})
		sc.aggrBindings[sqlparser.String(g)] = attr.ID
	}

	var aggCalls []plan.AggregateCall
	collect := func(e sqlparser.Expr) error {
		return b.collectAggregateCalls(sc, e, &aggCalls)
	}
	for _, se := range s.SelectExprs {
		if ae, ok := se.(*sqlparser.AliasedExpr); ok {
			if err := collect(ae.Expr); err != nil {
				return nil, nil, err
			}
		}
	}
	if s.Having != nil {
		if err := collect(s.Having.Expr); err != nil {
			return nil, nil, err
		}
	}
	return groupTerms, aggCalls, nil
}

func attrForGroupKey(ex sql.Expression, node sqlparser.Expr) sql.Attribute {
	if cr, ok := ex.(*expression.ColumnReference); ok {
		return sql.Attribute{ID: cr.ID, Name: cr.Name, Type: cr.Typ}
	}
	return sql.Attribute{ID: sql.NewAttributeID(), Name: sqlparser.String(node), Type: sql.KindNull}
}

// collectAggregateCalls walks e looking for aggregate FuncExprs not
// already bound, builds each as an AggregateCall with a fresh
// attribute, and records the binding so later stages (projection,
// HAVING, ORDER BY) resolve the same textual call to the same slot.
func (b *Builder) collectAggregateCalls(sc *scope, e sqlparser.Expr, out *[]plan.AggregateCall) error {
	var walkErr error
	sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		f, ok := node.(*sqlparser.FuncExpr)
		if !ok || !isAggregateName(f.Name.String()) {
			return true, nil
		}
		key := sqlparser.String(f)
		if _, bound := sc.aggrBindings[key]; bound {
			return false, nil
		}
		schema, ok := aggregateSchema(f.Name.String())
		if !ok {
			return true, nil
		}
		args, err := b.buildSelectExprsAsScalars(sc, f.Exprs)
		if err != nil {
			walkErr = err
			return false, err
		}
		if strings.EqualFold(f.Name.String(), "COUNT") && len(f.Exprs) == 1 {
			if _, star := f.Exprs[0].(*sqlparser.StarExpr); star {
				schema = aggregation.NewCountStar()
			}
		}
		call := &expression.AggregateFunctionCall{Name: strings.ToUpper(f.Name.String()), Schema: schema, Args: args}
		attr := sql.Attribute{ID: sql.NewAttributeID(), Name: key, Type: sql.KindNull}
		*out = append(*out, plan.AggregateCall{Call: call, Attr: attr})
		sc.aggrBindings[key] = attr.ID
		return false, nil
	}, e)
	return walkErr
}
