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
	"github.com/quereus/quereus/sql/expression"
	"github.com/quereus/quereus/sql/plan"
)

// compileAggregate implements the StreamAggregate contract of C9: it
// assumes Source is already ordered by GroupBy (the builder/optimizer
// is responsible for that), takes a fresh accumulator per group
// boundary, steps every contributing row, and emits one row per group
// on the key change, plus a closing flush for the final group. A
// GROUP-BY-less aggregate query over zero source rows still emits one
// row (e.g. COUNT(*) = 0), matching scalar aggregate semantics.
func compileAggregate(ctx *sql.Context, n *plan.Aggregate) (sql.RowIter, error) {
	src, err := Compile(ctx, n.Source)
	if err != nil {
		return nil, err
	}
	for _, c := range n.Aggregates {
		bindExpr(c.Call)
	}
	desc := sql.NewRowDescriptor(n.Source.Attributes())

	newAccs := func() []expression.Accumulator {
		a := make([]expression.Accumulator, len(n.Aggregates))
		for i, c := range n.Aggregates {
			a[i] = c.Call.Schema.NewAccumulator()
		}
		return a
	}

	var out []sql.Row
	var reprs []sql.Row
	var curKey []sql.Value
	var curRepr sql.Row
	var accs []expression.Accumulator
	haveGroup := false

	// finishGroup finalizes the current group's accumulators and also
	// captures curRepr, the first pre-aggregation row this group saw, in
	// reprs (parallel to out). A HAVING predicate or correlated subquery
	// over a column outside GroupBy/Aggregates resolves against this
	// representative row, per the contract aggregateRowIter enforces on
	// yield.
	finishGroup := func() error {
		if !haveGroup {
			return nil
		}
		row := make(sql.Row, 0, len(n.GroupBy)+len(n.Aggregates))
		row = append(row, curKey...)
		for _, a := range accs {
			v, err := a.Finalize(ctx)
			if err != nil {
				return err
			}
			row = append(row, v)
		}
		out = append(out, row)
		reprs = append(reprs, curRepr)
		return nil
	}

	for {
		row, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			src.Close(ctx)
			return nil, err
		}

		key, err := evalKeys(ctx, desc, row, groupExprs(n.GroupBy))
		if err != nil {
			src.Close(ctx)
			return nil, err
		}

		if !haveGroup || !groupKeyEqual(curKey, key) {
			if err := finishGroup(); err != nil {
				src.Close(ctx)
				return nil, err
			}
			curKey = key
			curRepr = row.Copy()
			accs = newAccs()
			haveGroup = true
		}

		release := ctx.PushRow(desc, row)
		for i, c := range n.Aggregates {
			args, err := c.Call.EvalArgs(ctx, row)
			if err != nil {
				release()
				src.Close(ctx)
				return nil, err
			}
			if err := accs[i].Step(ctx, args); err != nil {
				release()
				src.Close(ctx)
				return nil, err
			}
		}
		release()
	}
	if err := finishGroup(); err != nil {
		src.Close(ctx)
		return nil, err
	}
	if err := src.Close(ctx); err != nil {
		return nil, err
	}

	if !haveGroup && len(n.GroupBy) == 0 && len(n.Aggregates) > 0 {
		row := make(sql.Row, 0, len(n.Aggregates))
		for _, a := range newAccs() {
			v, err := a.Finalize(ctx)
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		out = append(out, row)
		// No source row ever arrived, so there is no representative row
		// to bind; an all-NULL row of the source's shape keeps Resolve's
		// row[pos] indexing in range if a HAVING predicate reaches for a
		// pre-aggregation column anyway.
		reprs = append(reprs, make(sql.Row, len(desc.Attributes())))
	}
	return &aggregateRowIter{desc: desc, rows: out, reprs: reprs}, nil
}

// aggregateRowIter yields the finalized group rows built by
// compileAggregate. Per spec.md §4.9, finalizing a group pushes a row
// descriptor bound to that group's captured representative
// pre-aggregation row before yielding, and pops it once the caller has
// pulled the next row (or closed the iterator) — the same
// guaranteed-release discipline filterIter uses, just spanning the
// yield boundary instead of a single Eval call, since the representative
// row must still be resolvable while a HAVING Filter built directly atop
// this node evaluates its predicate against the yielded row.
type aggregateRowIter struct {
	desc    *sql.RowDescriptor
	rows    []sql.Row
	reprs   []sql.Row
	pos     int
	release func()
}

func (it *aggregateRowIter) Next(ctx *sql.Context) (sql.Row, error) {
	if it.release != nil {
		it.release()
		it.release = nil
	}
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	row := it.rows[it.pos]
	repr := it.reprs[it.pos]
	it.pos++
	it.release = ctx.PushRow(it.desc, repr)
	return row, nil
}

func (it *aggregateRowIter) Close(ctx *sql.Context) error {
	if it.release != nil {
		it.release()
		it.release = nil
	}
	return nil
}

func groupExprs(terms []plan.GroupByTerm) []sql.Expression {
	out := make([]sql.Expression, len(terms))
	for i, t := range terms {
		out[i] = t.Expr
	}
	return out
}

func groupKeyEqual(a, b []sql.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !sql.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
