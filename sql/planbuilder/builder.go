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

// Package planbuilder turns a parsed statement (the vitess sqlparser
// AST — parsing itself is out of scope, per SPEC_FULL.md) into a
// plan.Node tree: it builds scope, resolves names to attribute ids,
// and assembles relational and scalar nodes mirroring the statement's
// shape.
package planbuilder

import (
	"github.com/dolthub/vitess/go/vt/sqlparser"
	"github.com/pkg/errors"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/expression"
	"github.com/quereus/quereus/sql/plan"
)

// Catalog resolves table names to virtual tables, the minimal surface
// the builder needs from the engine's schema registry.
type Catalog interface {
	Table(schemaName, tableName string) (sql.Table, bool)
}

// Builder converts statements into plans against one catalog. It is
// not safe for concurrent use; callers build one Builder per
// statement (or reuse after resetting scope).
type Builder struct {
	cat Catalog
}

// New creates a plan builder against cat.
func New(cat Catalog) *Builder {
	return &Builder{cat: cat}
}

// scope tracks the name bindings visible to the expression builder at
// one point in the statement: one entry per FROM-clause source, each
// contributing its row descriptor and table alias, plus an optional
// outer scope for correlated subqueries.
type scope struct {
	outer   *scope
	sources []*sourceBinding
	ctes    map[string]plan.Node

	// aggrBindings maps a GROUP BY or aggregate call expression's
	// canonical text to the attribute id an Aggregate node publishes
	// for it, populated by collectAggregates and consulted by buildExpr
	// so references above the Aggregate node resolve to its output
	// instead of re-descending into the pre-aggregate scope.
	aggrBindings map[string]sql.AttributeID
}

type sourceBinding struct {
	alias string
	desc  *sql.RowDescriptor
	cols  []string
}

func newScope(outer *scope) *scope {
	return &scope{outer: outer, ctes: map[string]plan.Node{}}
}

func (s *scope) addSource(alias string, desc *sql.RowDescriptor, cols []string) {
	s.sources = append(s.sources, &sourceBinding{alias: alias, desc: desc, cols: cols})
}

// resolve finds the attribute id bound to a possibly-qualified column
// name, searching this scope's sources before falling back to the
// outer scope — the mechanism that makes a reference inside a
// subquery's WHERE correlated to the enclosing row.
func (s *scope) resolve(qualifier, name string) (sql.AttributeID, bool, error) {
	var match *sourceBinding
	var attrIdx = -1
	for _, src := range s.sources {
		if qualifier != "" && src.alias != "" && qualifier != src.alias {
			continue
		}
		for i, c := range src.cols {
			if c == name {
				if match != nil {
					return 0, false, errors.Errorf("ambiguous column reference %q", name)
				}
				match = src
				attrIdx = i
			}
		}
	}
	if match != nil {
		return match.desc.Attributes()[attrIdx].ID, true, nil
	}
	if s.outer != nil {
		return s.outer.resolve(qualifier, name)
	}
	return 0, false, nil
}

func (s *scope) lookupCTE(name string) (plan.Node, bool) {
	if n, ok := s.ctes[name]; ok {
		return n, true
	}
	if s.outer != nil {
		return s.outer.lookupCTE(name)
	}
	return nil, false
}

// Build constructs a plan for one top-level statement.
func (b *Builder) Build(stmt sqlparser.Statement) (plan.Node, error) {
	sc := newScope(nil)
	switch n := stmt.(type) {
	case *sqlparser.Select:
		return b.buildSelect(sc, n)
	case *sqlparser.Union:
		return b.buildUnion(sc, n)
	case *sqlparser.Insert:
		return b.buildInsert(sc, n)
	case *sqlparser.Update:
		return b.buildUpdate(sc, n)
	case *sqlparser.Delete:
		return b.buildDelete(sc, n)
	default:
		return nil, errors.Errorf("unsupported statement type %T", stmt)
	}
}

func (b *Builder) buildUnion(sc *scope, u *sqlparser.Union) (plan.Node, error) {
	left, err := b.buildSelectOrUnion(sc, u.Left)
	if err != nil {
		return nil, err
	}
	right, err := b.buildSelectOrUnion(sc, u.Right)
	if err != nil {
		return nil, err
	}
	kind := plan.Union
	switch u.Type {
	case sqlparser.IntersectStr:
		kind = plan.Intersect
	case sqlparser.ExceptStr:
		kind = plan.Except
	}
	return &plan.SetOperation{Kind: kind, All: u.Type == sqlparser.UnionAllStr, Left: left, Right: right, Attrs: left.Attributes()}, nil
}

func (b *Builder) buildSelectOrUnion(sc *scope, n sqlparser.SelectStatement) (plan.Node, error) {
	switch t := n.(type) {
	case *sqlparser.Select:
		return b.buildSelect(sc, t)
	case *sqlparser.Union:
		return b.buildUnion(sc, t)
	case *sqlparser.ParenSelect:
		return b.buildSelectOrUnion(sc, t.Select)
	default:
		return nil, errors.Errorf("unsupported select statement %T", n)
	}
}

// buildSelect assembles a SELECT's plan bottom-up: CTEs, FROM/JOIN,
// WHERE, GROUP BY/aggregates, HAVING, projection, DISTINCT, ORDER BY,
// LIMIT/OFFSET — each stage wrapping the previous node, mirroring the
// emitter's expectation that row-context flows strictly upward through
// the tree.
func (b *Builder) buildSelect(sc *scope, s *sqlparser.Select) (plan.Node, error) {
	if err := b.bindCTEs(sc, s.With); err != nil {
		return nil, err
	}

	node, err := b.buildFrom(sc, s.From)
	if err != nil {
		return nil, err
	}

	if s.Where != nil {
		pred, err := b.buildExpr(sc, s.Where.Expr)
		if err != nil {
			return nil, err
		}
		node = &plan.Filter{Source: node, Predicate: pred}
	}

	groupTerms, aggCalls, err := b.collectAggregates(sc, s)
	if err != nil {
		return nil, err
	}
	if len(groupTerms) > 0 || len(aggCalls) > 0 {
		if len(groupTerms) > 0 {
			keys := make([]plan.SortKey, len(groupTerms))
			for i, g := range groupTerms {
				keys[i] = plan.SortKey{Expr: g.Expr, Direction: sql.Ascending}
			}
			node = &plan.Sort{Source: node, Keys: keys}
		}
		node = &plan.Aggregate{Source: node, GroupBy: groupTerms, Aggregates: aggCalls}
		if s.Having != nil {
			pred, err := b.buildExpr(sc, s.Having.Expr)
			if err != nil {
				return nil, err
			}
			node = &plan.Filter{Source: node, Predicate: pred}
		}
	}

	proj, err := b.buildProjection(sc, s.SelectExprs)
	if err != nil {
		return nil, err
	}
	node = &plan.Project{Source: node, Columns: proj}

	if s.Distinct == sqlparser.DistinctStr {
		node = &plan.Distinct{Source: node}
	}

	if len(s.OrderBy) > 0 {
		keys, err := b.buildOrderBy(sc, s.OrderBy)
		if err != nil {
			return nil, err
		}
		node = &plan.Sort{Source: node, Keys: keys}
	}

	if s.Limit != nil {
		limitExpr, offsetExpr, err := b.buildLimit(sc, s.Limit)
		if err != nil {
			return nil, err
		}
		node = &plan.LimitOffset{Source: node, Limit: limitExpr, Offset: offsetExpr}
	}

	return node, nil
}

func (b *Builder) bindCTEs(sc *scope, with *sqlparser.With) error {
	if with == nil {
		return nil
	}
	for _, cte := range with.CTEs {
		inner := newScope(sc)
		n, err := b.buildSelectOrUnion(inner, cte.Subquery.Select)
		if err != nil {
			return errors.Wrapf(err, "building CTE %s", cte.ID.String())
		}
		sc.ctes[cte.ID.String()] = n
	}
	return nil
}

func (b *Builder) buildLimit(sc *scope, l *sqlparser.Limit) (sql.Expression, sql.Expression, error) {
	var limitExpr, offsetExpr sql.Expression
	var err error
	if l.Rowcount != nil {
		limitExpr, err = b.buildExpr(sc, l.Rowcount)
		if err != nil {
			return nil, nil, err
		}
	}
	if l.Offset != nil {
		offsetExpr, err = b.buildExpr(sc, l.Offset)
		if err != nil {
			return nil, nil, err
		}
	}
	return limitExpr, offsetExpr, nil
}

func (b *Builder) buildOrderBy(sc *scope, ob sqlparser.OrderBy) ([]plan.SortKey, error) {
	keys := make([]plan.SortKey, len(ob))
	for i, o := range ob {
		e, err := b.buildExpr(sc, o.Expr)
		if err != nil {
			return nil, err
		}
		dir := sql.Ascending
		if o.Direction == sqlparser.DescScr {
			dir = sql.Descending
		}
		keys[i] = plan.SortKey{Expr: e, Direction: dir}
	}
	return keys, nil
}

func (b *Builder) buildProjection(sc *scope, exprs sqlparser.SelectExprs) ([]plan.ProjectColumn, error) {
	var out []plan.ProjectColumn
	for _, se := range exprs {
		switch e := se.(type) {
		case *sqlparser.StarExpr:
			tbl := ""
			if !e.TableName.IsEmpty() {
				tbl = e.TableName.Name.String()
			}
			for _, src := range sc.sources {
				if tbl != "" && src.alias != tbl {
					continue
				}
				for i, col := range src.cols {
					attr := src.desc.Attributes()[i]
					out = append(out, plan.ProjectColumn{
						Attr: attr,
						Expr: expression.NewColumnReference(attr.ID, col, attr.Type),
					})
				}
			}
		case *sqlparser.AliasedExpr:
			ex, err := b.buildExpr(sc, e.Expr)
			if err != nil {
				return nil, err
			}
			name := e.As.String()
			if name == "" {
				name = ex.String()
			}
			attr := sql.Attribute{ID: sql.NewAttributeID(), Name: name, Type: exprType(ex)}
			out = append(out, plan.ProjectColumn{Attr: attr, Expr: ex})
		default:
			return nil, errors.Errorf("unsupported select expr %T", se)
		}
	}
	return out, nil
}

// exprType reports the logical type a projected expression publishes,
// when known statically (column references and casts); other
// expressions publish KindNull, resolved dynamically at evaluation
// time like the rest of this value model.
func exprType(e sql.Expression) sql.ValueKind {
	switch t := e.(type) {
	case *expression.ColumnReference:
		return t.Typ
	case *expression.Literal:
		return t.Value.Kind()
	case *expression.Cast:
		return t.Typ
	default:
		return sql.KindNull
	}
}
