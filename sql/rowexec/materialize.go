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
	"sort"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/plan"
)

// drain exhausts it into a slice, closing it on every exit path.
func drain(ctx *sql.Context, it sql.RowIter) ([]sql.Row, error) {
	var rows []sql.Row
	for {
		row, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			it.Close(ctx)
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := it.Close(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func rowsEqual(a, b sql.Row) bool {
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

func dedupe(rows []sql.Row) []sql.Row {
	var out []sql.Row
	for _, r := range rows {
		dup := false
		for _, o := range out {
			if rowsEqual(r, o) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, r)
		}
	}
	return out
}

// compileDistinct de-duplicates its source by full-row SQL equality.
// O(n^2) against the materialized set: acceptable for the scale this
// engine targets, and it keeps the comparison exactly as simple as
// Compare/Equal already define it, with no auxiliary hashing scheme to
// keep in sync with the value model.
func compileDistinct(ctx *sql.Context, n *plan.Distinct) (sql.RowIter, error) {
	src, err := Compile(ctx, n.Source)
	if err != nil {
		return nil, err
	}
	rows, err := drain(ctx, src)
	if err != nil {
		return nil, err
	}
	return sql.RowsToRowIter(dedupe(rows)...), nil
}

// compileSort materializes its source, evaluates every sort key once
// per row up front (so an evaluation error surfaces cleanly instead of
// from inside a sort.Slice comparator), then stably sorts by key.
func compileSort(ctx *sql.Context, n *plan.Sort) (sql.RowIter, error) {
	src, err := Compile(ctx, n.Source)
	if err != nil {
		return nil, err
	}
	rows, err := drain(ctx, src)
	if err != nil {
		return nil, err
	}
	for _, k := range n.Keys {
		bindExpr(k.Expr)
	}
	desc := sql.NewRowDescriptor(n.Source.Attributes())

	keys := make([][]sql.Value, len(rows))
	for i, row := range rows {
		vals, err := evalKeys(ctx, desc, row, keysOf(n.Keys))
		if err != nil {
			return nil, err
		}
		keys[i] = vals
	}

	idxs := make([]int, len(rows))
	for i := range idxs {
		idxs[i] = i
	}
	sort.SliceStable(idxs, func(a, b int) bool {
		ia, ib := idxs[a], idxs[b]
		for ki, k := range n.Keys {
			c := sql.Compare(keys[ia][ki], keys[ib][ki])
			if c == 0 {
				continue
			}
			if k.Direction == sql.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	out := make([]sql.Row, len(rows))
	for i, idx := range idxs {
		out[i] = rows[idx]
	}
	return sql.RowsToRowIter(out...), nil
}

func keysOf(keys []plan.SortKey) []sql.Expression {
	out := make([]sql.Expression, len(keys))
	for i, k := range keys {
		out[i] = k.Expr
	}
	return out
}

func evalKeys(ctx *sql.Context, desc *sql.RowDescriptor, row sql.Row, exprs []sql.Expression) ([]sql.Value, error) {
	release := ctx.PushRow(desc, row)
	defer release()
	vals := make([]sql.Value, len(exprs))
	for i, e := range exprs {
		v, err := e.Eval(ctx, row)
		if err != nil {
			return nil, err
		}
		vals[i] = v
	}
	return vals, nil
}

func compileLimitOffset(ctx *sql.Context, n *plan.LimitOffset) (sql.RowIter, error) {
	src, err := Compile(ctx, n.Source)
	if err != nil {
		return nil, err
	}
	var offset int64
	if n.Offset != nil {
		v, err := n.Offset.Eval(ctx, sql.Row{})
		if err != nil {
			src.Close(ctx)
			return nil, err
		}
		offset = v.Integer()
	}
	limit := int64(-1)
	if n.Limit != nil {
		v, err := n.Limit.Eval(ctx, sql.Row{})
		if err != nil {
			src.Close(ctx)
			return nil, err
		}
		limit = v.Integer()
	}
	return &limitIter{src: src, offset: offset, limit: limit}, nil
}

type limitIter struct {
	src            sql.RowIter
	offset, limit  int64
	skipped, emitted int64
}

func (it *limitIter) Next(ctx *sql.Context) (sql.Row, error) {
	if it.limit >= 0 && it.emitted >= it.limit {
		return nil, io.EOF
	}
	for it.skipped < it.offset {
		if _, err := it.src.Next(ctx); err != nil {
			return nil, err
		}
		it.skipped++
	}
	row, err := it.src.Next(ctx)
	if err != nil {
		return nil, err
	}
	it.emitted++
	return row, nil
}

func (it *limitIter) Close(ctx *sql.Context) error { return it.src.Close(ctx) }

// compileSetOperation materializes both sides and combines them per
// SQL compound-statement semantics; All disables de-duplication.
func compileSetOperation(ctx *sql.Context, n *plan.SetOperation) (sql.RowIter, error) {
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

	var out []sql.Row
	switch n.Kind {
	case plan.Union:
		out = append(append(out, left...), right...)
		if !n.All {
			out = dedupe(out)
		}
	case plan.Intersect:
		out = intersect(left, right, n.All)
	case plan.Except:
		out = except(left, right, n.All)
	}
	return sql.RowsToRowIter(out...), nil
}

func intersect(left, right []sql.Row, all bool) []sql.Row {
	used := make([]bool, len(right))
	var out []sql.Row
	for _, l := range left {
		for i, r := range right {
			if used[i] {
				continue
			}
			if rowsEqual(l, r) {
				out = append(out, l)
				used[i] = true
				break
			}
		}
	}
	if !all {
		return dedupe(out)
	}
	return out
}

func except(left, right []sql.Row, all bool) []sql.Row {
	used := make([]bool, len(right))
	var out []sql.Row
	for _, l := range left {
		found := false
		for i, r := range right {
			if used[i] {
				continue
			}
			if rowsEqual(l, r) {
				used[i] = true
				found = true
				break
			}
		}
		if !found {
			out = append(out, l)
		}
	}
	if !all {
		return dedupe(out)
	}
	return out
}
