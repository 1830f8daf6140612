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

// Package rowexec implements the emitter and scheduler (C8): it
// compiles a plan.Node tree into a tree of sql.RowIter, pushing and
// popping row-context frames around every operator's yield per
// spec.md §4.8, and the streaming aggregate/window execution (C9)
// that drives expression.AggregateSchema over an already-ordered
// input.
package rowexec

import (
	"github.com/pkg/errors"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/expression"
	"github.com/quereus/quereus/sql/plan"
)

// Compile builds the row iterator for node, the single entry point the
// statement runner and DML executors call.
func Compile(ctx *sql.Context, node plan.Node) (sql.RowIter, error) {
	switch n := node.(type) {
	case *plan.TableScan:
		return compileTableScan(ctx, n)
	case *plan.Values:
		return compileValues(ctx, n)
	case *plan.SingleRow:
		return sql.RowsToRowIter(sql.Row{}), nil
	case *plan.Filter:
		return compileFilter(ctx, n)
	case *plan.VerifyConstraints:
		return compileVerifyConstraints(ctx, n)
	case *plan.Project:
		return compileProject(ctx, n)
	case *plan.Distinct:
		return compileDistinct(ctx, n)
	case *plan.Sort:
		return compileSort(ctx, n)
	case *plan.LimitOffset:
		return compileLimitOffset(ctx, n)
	case *plan.Join:
		return compileJoin(ctx, n)
	case *plan.Aggregate:
		return compileAggregate(ctx, n)
	case *plan.Window:
		return compileWindow(ctx, n)
	case *plan.SetOperation:
		return compileSetOperation(ctx, n)
	case *plan.CTEReference:
		return Compile(ctx, n.Target)
	case *plan.TableFunctionCall:
		return compileTableFunctionCall(ctx, n)
	default:
		return nil, errors.Errorf("rowexec: unsupported plan node %T", node)
	}
}

// bindExpr recursively arms every *expression.Exists node reachable
// from e with a Subquery runner that compiles and executes its Plan
// fresh on every call — necessary because a correlated subquery must
// re-evaluate against whatever outer row is on the context stack at
// the moment Eval runs, which differs on every invocation.
func bindExpr(e sql.Expression) {
	switch n := e.(type) {
	case *expression.Exists:
		if n.Subquery == nil {
			target := n.Plan
			n.Subquery = func(ctx *sql.Context) (sql.RowIter, error) {
				pn, ok := target.(plan.Node)
				if !ok {
					return nil, errors.New("rowexec: EXISTS subquery plan was not built")
				}
				return Compile(ctx, pn)
			}
		}
	case *expression.UnaryOp:
		bindExpr(n.Child)
	case *expression.BinaryOp:
		bindExpr(n.Left)
		bindExpr(n.Right)
	case *expression.Collate:
		bindExpr(n.Child)
	case *expression.Cast:
		bindExpr(n.Child)
	case *expression.Case:
		if n.Operand != nil {
			bindExpr(n.Operand)
		}
		for _, w := range n.Whens {
			bindExpr(w.Condition)
			bindExpr(w.Result)
		}
		if n.Else != nil {
			bindExpr(n.Else)
		}
	case *expression.In:
		bindExpr(n.Left)
		for _, c := range n.Candidates {
			bindExpr(c)
		}
	case *expression.ScalarFunctionCall:
		for _, a := range n.Args {
			bindExpr(a)
		}
	case *expression.AggregateFunctionCall:
		for _, a := range n.Args {
			bindExpr(a)
		}
	case *expression.WindowFunctionCall:
		for _, a := range n.Args {
			bindExpr(a)
		}
		for _, p := range n.Frame.PartitionBy {
			bindExpr(p)
		}
		for _, o := range n.Frame.OrderBy {
			bindExpr(o)
		}
	}
}
