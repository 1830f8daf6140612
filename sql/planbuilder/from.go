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
	"github.com/dolthub/vitess/go/vt/sqlparser"
	"github.com/pkg/errors"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/plan"
)

// buildFrom assembles the FROM clause: a comma-separated list becomes
// a chain of CrossJoins (per SQL's implicit-join-then-filter
// semantics), and registers each source's columns in sc so WHERE,
// SELECT, GROUP BY and ORDER BY can resolve unqualified and
// table-qualified names against it.
func (b *Builder) buildFrom(sc *scope, from sqlparser.TableExprs) (plan.Node, error) {
	if len(from) == 0 {
		return &plan.SingleRow{}, nil
	}
	var node plan.Node
	for _, te := range from {
		n, err := b.buildTableExpr(sc, te)
		if err != nil {
			return nil, err
		}
		if node == nil {
			node = n
			continue
		}
		node = &plan.Join{Left: node, Right: n, Kind: plan.CrossJoin}
	}
	return node, nil
}

func (b *Builder) buildTableExpr(sc *scope, te sqlparser.TableExpr) (plan.Node, error) {
	switch t := te.(type) {
	case *sqlparser.AliasedTableExpr:
		return b.buildAliasedTableExpr(sc, t)
	case *sqlparser.JoinTableExpr:
		return b.buildJoinTableExpr(sc, t)
	case *sqlparser.ParenTableExpr:
		if len(t.Exprs) != 1 {
			return nil, errors.New("parenthesized join of more than one table expression is not supported")
		}
		return b.buildTableExpr(sc, t.Exprs[0])
	default:
		return nil, errors.Errorf("unsupported table expression %T", te)
	}
}

func (b *Builder) buildAliasedTableExpr(sc *scope, t *sqlparser.AliasedTableExpr) (plan.Node, error) {
	switch e := t.Expr.(type) {
	case sqlparser.TableName:
		tableName := e.Name.String()
		alias := t.As.String()
		if alias == "" {
			alias = tableName
		}
		if cteNode, ok := sc.lookupCTE(tableName); ok {
			attrs := cteNode.Attributes()
			b.registerSource(sc, alias, attrs)
			return &plan.CTEReference{Name: tableName, Target: cteNode}, nil
		}
		schemaName := e.Qualifier.String()
		tbl, ok := b.cat.Table(schemaName, tableName)
		if !ok {
			return nil, errors.Errorf("no such table: %s", tableName)
		}
		attrs := attrsFromSchema(tbl.Schema())
		b.registerSource(sc, alias, attrs)
		return &plan.TableScan{Table: tbl, TableName: tableName, Alias: alias, Attrs: attrs}, nil
	case *sqlparser.Subquery:
		inner := newScope(sc.outer)
		n, err := b.buildSelectOrUnion(inner, e.Select)
		if err != nil {
			return nil, err
		}
		alias := t.As.String()
		b.registerSource(sc, alias, n.Attributes())
		return n, nil
	default:
		return nil, errors.Errorf("unsupported aliased table expression %T", t.Expr)
	}
}

func (b *Builder) buildJoinTableExpr(sc *scope, j *sqlparser.JoinTableExpr) (plan.Node, error) {
	left, err := b.buildTableExpr(sc, j.LeftExpr)
	if err != nil {
		return nil, err
	}
	right, err := b.buildTableExpr(sc, j.RightExpr)
	if err != nil {
		return nil, err
	}
	kind := plan.InnerJoin
	switch j.Join {
	case sqlparser.LeftJoinStr, sqlparser.NaturalLeftJoinStr:
		kind = plan.LeftJoin
	case sqlparser.RightJoinStr, sqlparser.NaturalRightJoinStr:
		kind = plan.RightJoin
	case sqlparser.JoinStr, sqlparser.StraightJoinStr, sqlparser.NaturalJoinStr:
		kind = plan.InnerJoin
	}
	var cond sql.Expression
	if j.Condition.On != nil {
		cond, err = b.buildExpr(sc, j.Condition.On)
		if err != nil {
			return nil, err
		}
	}
	return &plan.Join{Left: left, Right: right, Kind: kind, Condition: cond}, nil
}

func attrsFromSchema(schema *sql.Schema) []sql.Attribute {
	attrs := make([]sql.Attribute, len(schema.Columns))
	for i, c := range schema.Columns {
		attrs[i] = sql.Attribute{ID: sql.NewAttributeID(), Name: c.Name, Type: c.Type}
	}
	return attrs
}

func (b *Builder) registerSource(sc *scope, alias string, attrs []sql.Attribute) {
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.Name
	}
	sc.addSource(alias, sql.NewRowDescriptor(attrs), names)
}
