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

func (b *Builder) resolveTarget(tableName string) (sql.Table, error) {
	tbl, ok := b.cat.Table("", tableName)
	if !ok {
		return nil, errors.Errorf("no such table: %s", tableName)
	}
	return tbl, nil
}

// buildInsert handles both `INSERT ... VALUES (...)` (source is a
// literal Values node) and `INSERT ... SELECT ...` (source is a
// sub-plan), per spec.md §4.10's general INSERT operation.
func (b *Builder) buildInsert(sc *scope, n *sqlparser.Insert) (plan.Node, error) {
	tableName := n.Table.Name.String()
	tbl, err := b.resolveTarget(tableName)
	if err != nil {
		return nil, err
	}
	schema := tbl.Schema()

	columns := make([]int, len(n.Columns))
	if len(n.Columns) == 0 {
		columns = make([]int, len(schema.Columns))
		for i := range schema.Columns {
			columns[i] = i
		}
	} else {
		for i, c := range n.Columns {
			idx := schema.ColumnIndex(c.String())
			if idx < 0 {
				return nil, errors.Errorf("no such column: %s", c.String())
			}
			columns[i] = idx
		}
	}

	var source plan.Node
	switch rows := n.Rows.(type) {
	case sqlparser.Values:
		attrs := make([]sql.Attribute, len(columns))
		for i, ci := range columns {
			attrs[i] = sql.Attribute{ID: sql.NewAttributeID(), Name: schema.Columns[ci].Name, Type: schema.Columns[ci].Type}
		}
		exprRows := make([][]sql.Expression, len(rows))
		for ri, tuple := range rows {
			if len(tuple) != len(columns) {
				return nil, errors.Errorf("row %d has %d values, expected %d", ri, len(tuple), len(columns))
			}
			row := make([]sql.Expression, len(tuple))
			for ci, e := range tuple {
				ex, err := b.buildExpr(sc, e)
				if err != nil {
					return nil, err
				}
				row[ci] = ex
			}
			exprRows[ri] = row
		}
		source = &plan.Values{Rows: exprRows, Attrs: attrs}
	case sqlparser.SelectStatement:
		inner := newScope(sc)
		n, err := b.buildSelectOrUnion(inner, rows)
		if err != nil {
			return nil, err
		}
		source = n
	default:
		return nil, errors.Errorf("unsupported INSERT source %T", n.Rows)
	}

	conflict := sql.ConflictAbort
	if n.Ignore != "" {
		conflict = sql.ConflictIgnore
	}
	if n.Action == sqlparser.ReplaceStr {
		conflict = sql.ConflictReplace
	}

	return &plan.Insert{
		Target:   plan.TableReference{Table: tbl, TableName: tableName},
		Source:   source,
		Columns:  columns,
		Conflict: conflict,
	}, nil
}

// buildUpdate handles `UPDATE t SET col = expr, ... WHERE ...`: the
// source is a Filter over a TableScan (or bare scan, absent WHERE) so
// the runtime drives the same cursor-based row stream DELETE and
// SELECT use, mutating each row as it passes per spec.md §4.10.
func (b *Builder) buildUpdate(sc *scope, n *sqlparser.Update) (plan.Node, error) {
	if len(n.TableExprs) != 1 {
		return nil, errors.New("UPDATE supports exactly one target table")
	}
	ate, ok := n.TableExprs[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return nil, errors.New("UPDATE target must be a simple table reference")
	}
	tableName, ok := ate.Expr.(sqlparser.TableName)
	if !ok {
		return nil, errors.New("UPDATE target must be a simple table reference")
	}
	name := tableName.Name.String()
	tbl, err := b.resolveTarget(name)
	if err != nil {
		return nil, err
	}
	schema := tbl.Schema()
	attrs := attrsFromSchema(schema)
	alias := ate.As.String()
	if alias == "" {
		alias = name
	}
	b.registerSource(sc, alias, attrs)

	var source plan.Node = &plan.TableScan{Table: tbl, TableName: name, Alias: alias, Attrs: attrs}
	if n.Where != nil {
		pred, err := b.buildExpr(sc, n.Where.Expr)
		if err != nil {
			return nil, err
		}
		source = &plan.Filter{Source: source, Predicate: pred}
	}

	assignments := make([]plan.Assignment, len(n.Exprs))
	for i, ue := range n.Exprs {
		colName := ue.Name.Name.String()
		idx := schema.ColumnIndex(colName)
		if idx < 0 {
			return nil, errors.Errorf("no such column: %s", colName)
		}
		ex, err := b.buildExpr(sc, ue.Expr)
		if err != nil {
			return nil, err
		}
		assignments[i] = plan.Assignment{Column: idx, Expr: ex}
	}

	return &plan.Update{
		Target:      plan.TableReference{Table: tbl, TableName: name},
		Source:      source,
		Assignments: assignments,
		Conflict:    sql.ConflictAbort,
	}, nil
}

func (b *Builder) buildDelete(sc *scope, n *sqlparser.Delete) (plan.Node, error) {
	if len(n.TableExprs) != 1 {
		return nil, errors.New("DELETE supports exactly one target table")
	}
	ate, ok := n.TableExprs[0].(*sqlparser.AliasedTableExpr)
	if !ok {
		return nil, errors.New("DELETE target must be a simple table reference")
	}
	tableName, ok := ate.Expr.(sqlparser.TableName)
	if !ok {
		return nil, errors.New("DELETE target must be a simple table reference")
	}
	name := tableName.Name.String()
	tbl, err := b.resolveTarget(name)
	if err != nil {
		return nil, err
	}
	attrs := attrsFromSchema(tbl.Schema())
	alias := ate.As.String()
	if alias == "" {
		alias = name
	}
	b.registerSource(sc, alias, attrs)

	var source plan.Node = &plan.TableScan{Table: tbl, TableName: name, Alias: alias, Attrs: attrs}
	if n.Where != nil {
		pred, err := b.buildExpr(sc, n.Where.Expr)
		if err != nil {
			return nil, err
		}
		source = &plan.Filter{Source: source, Predicate: pred}
	}

	return &plan.Delete{
		Target: plan.TableReference{Table: tbl, TableName: name},
		Source: source,
	}, nil
}
