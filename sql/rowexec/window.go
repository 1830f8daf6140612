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
	"sort"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/plan"
)

// compileWindow materializes Source and evaluates each window call as
// a running aggregate over its partition in its ORDER BY order: the
// value assigned to a row is the accumulator's state after stepping
// every row from the partition's start through that row, the common
// default absent an explicit frame clause (full frame semantics are
// deliberately under-specified beyond this, matching the scope of the
// Window node).
func compileWindow(ctx *sql.Context, n *plan.Window) (sql.RowIter, error) {
	src, err := Compile(ctx, n.Source)
	if err != nil {
		return nil, err
	}
	rows, err := drain(ctx, src)
	if err != nil {
		return nil, err
	}
	desc := sql.NewRowDescriptor(n.Source.Attributes())

	results := make([][]sql.Value, len(rows))
	for i := range results {
		results[i] = make([]sql.Value, len(n.Calls))
	}

	for ci, wc := range n.Calls {
		bindExpr(wc.Call)
		frame := wc.Call.Frame

		partitionKeys := make([][]sql.Value, len(rows))
		orderKeys := make([][]sql.Value, len(rows))
		for i, row := range rows {
			pk, err := evalKeys(ctx, desc, row, frame.PartitionBy)
			if err != nil {
				return nil, err
			}
			ok, err := evalKeys(ctx, desc, row, frame.OrderBy)
			if err != nil {
				return nil, err
			}
			partitionKeys[i] = pk
			orderKeys[i] = ok
		}

		type bucket struct {
			key  []sql.Value
			idxs []int
		}
		var buckets []*bucket
		for i := range rows {
			var b *bucket
			for _, cand := range buckets {
				if groupKeyEqual(cand.key, partitionKeys[i]) {
					b = cand
					break
				}
			}
			if b == nil {
				b = &bucket{key: partitionKeys[i]}
				buckets = append(buckets, b)
			}
			b.idxs = append(b.idxs, i)
		}

		for _, b := range buckets {
			idxs := b.idxs
			sort.SliceStable(idxs, func(x, y int) bool {
				ix, iy := idxs[x], idxs[y]
				for k := range orderKeys[ix] {
					c := sql.Compare(orderKeys[ix][k], orderKeys[iy][k])
					if c == 0 {
						continue
					}
					if k < len(frame.Directions) && frame.Directions[k] == sql.Descending {
						return c > 0
					}
					return c < 0
				}
				return false
			})

			acc := wc.Call.Schema.NewAccumulator()
			for _, idx := range idxs {
				release := ctx.PushRow(desc, rows[idx])
				args, err := wc.Call.EvalArgs(ctx, rows[idx])
				if err != nil {
					release()
					return nil, err
				}
				if err := acc.Step(ctx, args); err != nil {
					release()
					return nil, err
				}
				v, err := acc.Finalize(ctx)
				release()
				if err != nil {
					return nil, err
				}
				results[idx][ci] = v
			}
		}
	}

	out := make([]sql.Row, len(rows))
	for i, row := range rows {
		full := make(sql.Row, 0, len(row)+len(n.Calls))
		full = append(full, row...)
		full = append(full, results[i]...)
		out[i] = full
	}
	return sql.RowsToRowIter(out...), nil
}
