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
	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/plan"
)

func compileProject(ctx *sql.Context, n *plan.Project) (sql.RowIter, error) {
	src, err := Compile(ctx, n.Source)
	if err != nil {
		return nil, err
	}
	for _, c := range n.Columns {
		bindExpr(c.Expr)
	}
	desc := sql.NewRowDescriptor(n.Source.Attributes())
	return &projectIter{src: src, desc: desc, cols: n.Columns}, nil
}

type projectIter struct {
	src  sql.RowIter
	desc *sql.RowDescriptor
	cols []plan.ProjectColumn
}

func (it *projectIter) Next(ctx *sql.Context) (sql.Row, error) {
	row, err := it.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	release := ctx.PushRow(it.desc, row)
	defer release()
	out := make(sql.Row, len(it.cols))
	for i, c := range it.cols {
		v, err := c.Expr.Eval(ctx, row)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (it *projectIter) Close(ctx *sql.Context) error { return it.src.Close(ctx) }
