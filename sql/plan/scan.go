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
	"fmt"

	"github.com/quereus/quereus/sql"
)

// TableScan reads rows from a virtual table, optionally annotated by
// the optimizer with an index plan chosen via BestIndex.
type TableScan struct {
	Table     sql.Table
	TableName string
	Alias     string
	Attrs     []sql.Attribute

	// IdxNum/IdxStr/Args are populated by the optimizer's predicate
	// pushdown rewrite (C7); zero value means "no pushdown, full scan".
	IdxNum int
	IdxStr string
	Args   []sql.Expression
}

func NewTableScan(table sql.Table, tableName, alias string, attrs []sql.Attribute) *TableScan {
	return &TableScan{Table: table, TableName: tableName, Alias: alias, Attrs: attrs}
}

func (t *TableScan) Attributes() []sql.Attribute { return t.Attrs }
func (t *TableScan) Children() []Node            { return nil }
func (t *TableScan) String() string {
	if t.Alias != "" && t.Alias != t.TableName {
		return fmt.Sprintf("TableScan(%s AS %s)", t.TableName, t.Alias)
	}
	return fmt.Sprintf("TableScan(%s)", t.TableName)
}

// TableFunctionCall invokes a table-valued function with scalar
// arguments, producing a relation.
type TableFunctionCall struct {
	Name  string
	Args  []sql.Expression
	Attrs []sql.Attribute
	Call  func(ctx *sql.Context, args []sql.Value) (sql.RowIter, error)
}

func (t *TableFunctionCall) Attributes() []sql.Attribute { return t.Attrs }
func (t *TableFunctionCall) Children() []Node            { return nil }
func (t *TableFunctionCall) String() string              { return fmt.Sprintf("TableFunctionCall(%s)", t.Name) }

// Values is a literal row set, e.g. the source of `INSERT ... VALUES`
// or a bare `VALUES (...)` statement.
type Values struct {
	Rows  [][]sql.Expression
	Attrs []sql.Attribute
}

func NewValues(rows [][]sql.Expression, attrs []sql.Attribute) *Values {
	return &Values{Rows: rows, Attrs: attrs}
}

func (v *Values) Attributes() []sql.Attribute { return v.Attrs }
func (v *Values) Children() []Node            { return nil }
func (v *Values) String() string              { return fmt.Sprintf("Values(%d rows)", len(v.Rows)) }

// SingleRow is the implicit one-row, zero-column relation used as the
// FROM-less source of a scalar SELECT (`SELECT 1+1`).
type SingleRow struct{}

func (s *SingleRow) Attributes() []sql.Attribute { return nil }
func (s *SingleRow) Children() []Node            { return nil }
func (s *SingleRow) String() string              { return "SingleRow" }

// CTEReference is a reference to a WITH-bound relation, resolved by
// the scope that registered the CTE. Plan nodes form a DAG: the same
// CTE node may be the Target of more than one CTEReference.
type CTEReference struct {
	Name   string
	Target Node
}

func (c *CTEReference) Attributes() []sql.Attribute { return c.Target.Attributes() }
func (c *CTEReference) Children() []Node            { return []Node{c.Target} }
func (c *CTEReference) String() string              { return fmt.Sprintf("CTEReference(%s)", c.Name) }
