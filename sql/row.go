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

package sql

import "io"

// Row is an ordered, immutable-once-published sequence of values whose
// length equals the producing table's column count.
type Row []Value

// NewRow builds a Row from the given values.
func NewRow(values ...Value) Row { return Row(values) }

// Copy returns an independent copy of the row, used whenever a row must
// outlive the storage it was read from (e.g. captured as a
// representative row by an aggregate).
func (r Row) Copy() Row {
	out := make(Row, len(r))
	copy(out, r)
	return out
}

// RowIter is a lazy, finite, single-consumer, cancellable sequence of
// rows. Next returns io.EOF when exhausted. Suspension between rows is
// expressed simply by the synchronous call returning: the scheduler
// (C8) is single-threaded cooperative, so there is no separate
// Pending state to model in Go — the call stack itself is the
// coroutine.
type RowIter interface {
	Next(ctx *Context) (Row, error)
	// Close releases any cursor, lock, or savepoint snapshot held by
	// the iterator. It is called exactly once, on every exit path:
	// normal exhaustion, error, or cancellation by the consumer
	// dropping the iterator early.
	Close(ctx *Context) error
}

// RowsToRowIter adapts a fixed slice of rows into a RowIter, used by
// Values nodes and by tests.
func RowsToRowIter(rows ...Row) RowIter {
	return &sliceRowIter{rows: rows}
}

type sliceRowIter struct {
	rows []Row
	pos  int
}

func (it *sliceRowIter) Next(ctx *Context) (Row, error) {
	if it.pos >= len(it.rows) {
		return nil, io.EOF
	}
	r := it.rows[it.pos]
	it.pos++
	return r, nil
}

func (it *sliceRowIter) Close(ctx *Context) error { return nil }

// EmptyRowIter is a RowIter that yields no rows.
var EmptyRowIter RowIter = RowsToRowIter()
