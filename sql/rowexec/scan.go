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

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/plan"
)

// compileTableScan opens a cursor on the scan's table and filters it
// with whatever index plan the optimizer chose; scan.Args are
// evaluated against the row context active at compile time so a
// correlated subquery's scan can reference the outer row pushed by its
// enclosing Exists/In evaluation.
func compileTableScan(ctx *sql.Context, n *plan.TableScan) (sql.RowIter, error) {
	cur, err := n.Table.OpenCursor(ctx)
	if err != nil {
		return nil, err
	}
	args := make([]sql.Value, len(n.Args))
	for i, e := range n.Args {
		if e == nil {
			continue
		}
		v, err := e.Eval(ctx, sql.Row{})
		if err != nil {
			cur.Close(ctx)
			return nil, err
		}
		args[i] = v
	}
	if err := cur.Filter(ctx, n.IdxNum, n.IdxStr, args); err != nil {
		cur.Close(ctx)
		return nil, err
	}
	return &cursorRowIter{cur: cur, numCols: len(n.Attrs)}, nil
}

type cursorRowIter struct {
	cur     sql.Cursor
	numCols int
}

func (it *cursorRowIter) Next(ctx *sql.Context) (sql.Row, error) {
	if it.cur.EOF() {
		return nil, io.EOF
	}
	row := make(sql.Row, it.numCols)
	for i := 0; i < it.numCols; i++ {
		v, err := it.cur.Column(ctx, i)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	if err := it.cur.Next(ctx); err != nil {
		return nil, err
	}
	return row, nil
}

func (it *cursorRowIter) Close(ctx *sql.Context) error { return it.cur.Close(ctx) }

func compileValues(ctx *sql.Context, n *plan.Values) (sql.RowIter, error) {
	rows := make([]sql.Row, len(n.Rows))
	for ri, exprs := range n.Rows {
		row := make(sql.Row, len(exprs))
		for ci, e := range exprs {
			v, err := e.Eval(ctx, sql.Row{})
			if err != nil {
				return nil, err
			}
			row[ci] = v
		}
		rows[ri] = row
	}
	return sql.RowsToRowIter(rows...), nil
}

func compileTableFunctionCall(ctx *sql.Context, n *plan.TableFunctionCall) (sql.RowIter, error) {
	args := make([]sql.Value, len(n.Args))
	for i, e := range n.Args {
		v, err := e.Eval(ctx, sql.Row{})
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return n.Call(ctx, args)
}
