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

// compileJoin evaluates Join as nested-loop, materializing both sides
// up front: no cost-based join reordering is in scope, so the runtime
// simply honors whatever order the planner produced. Both rows are
// pushed onto the context stack (outer side first, inner side second)
// while the join condition evaluates, so a condition referencing
// either side's columns by attribute id resolves correctly.
func compileJoin(ctx *sql.Context, n *plan.Join) (sql.RowIter, error) {
	if n.Condition != nil {
		bindExpr(n.Condition)
	}
	leftIter, err := Compile(ctx, n.Left)
	if err != nil {
		return nil, err
	}
	left, err := drain(ctx, leftIter)
	if err != nil {
		return nil, err
	}
	rightIter, err := Compile(ctx, n.Right)
	if err != nil {
		return nil, err
	}
	right, err := drain(ctx, rightIter)
	if err != nil {
		return nil, err
	}

	leftDesc := sql.NewRowDescriptor(n.Left.Attributes())
	rightDesc := sql.NewRowDescriptor(n.Right.Attributes())
	rightWidth := len(n.Right.Attributes())
	leftWidth := len(n.Left.Attributes())

	rightMatched := make([]bool, len(right))
	var out []sql.Row
	for _, lr := range left {
		matched := false
		for ri, rr := range right {
			ok := true
			if n.Condition != nil {
				releaseL := ctx.PushRow(leftDesc, lr)
				releaseR := ctx.PushRow(rightDesc, rr)
				v, err := n.Condition.Eval(ctx, lr)
				releaseR()
				releaseL()
				if err != nil {
					return nil, err
				}
				ok = !v.IsNull() && v.Bool()
			}
			if !ok {
				continue
			}
			matched = true
			rightMatched[ri] = true
			out = append(out, combine(lr, rr))
		}
		if !matched && n.Kind == plan.LeftJoin {
			out = append(out, combine(lr, nullRow(rightWidth)))
		}
	}
	if n.Kind == plan.RightJoin {
		for ri, rr := range right {
			if !rightMatched[ri] {
				out = append(out, combine(nullRow(leftWidth), rr))
			}
		}
	}
	return sql.RowsToRowIter(out...), nil
}

func combine(left, right sql.Row) sql.Row {
	out := make(sql.Row, 0, len(left)+len(right))
	out = append(out, left...)
	out = append(out, right...)
	return out
}

func nullRow(width int) sql.Row {
	out := make(sql.Row, width)
	for i := range out {
		out[i] = sql.NullValue
	}
	return out
}
