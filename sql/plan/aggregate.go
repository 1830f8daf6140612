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
	"github.com/quereus/quereus/sql/expression"
)

// GroupByTerm is one GROUP BY key: an expression plus the attribute id
// it publishes in the aggregate's output row.
type GroupByTerm struct {
	Expr sql.Expression
	Attr sql.Attribute
}

// AggregateCall is one aggregate function invocation within an
// Aggregate node's select list, plus the attribute id its finalized
// value publishes.
type AggregateCall struct {
	Call *expression.AggregateFunctionCall
	Attr sql.Attribute
}

// Aggregate is the StreamAggregate node from C9: it assumes Source is
// already ordered by GroupBy (the plan builder prepends a Sort on the
// GROUP BY keys whenever GroupBy is non-empty), and emits one
// row per group: GroupBy values first, aggregate results second,
// exactly matching spec.md §4.9's StreamAggregate contract.
type Aggregate struct {
	Source     Node
	GroupBy    []GroupByTerm
	Aggregates []AggregateCall
}

func NewAggregate(source Node, groupBy []GroupByTerm, aggregates []AggregateCall) *Aggregate {
	return &Aggregate{Source: source, GroupBy: groupBy, Aggregates: aggregates}
}

func (a *Aggregate) Attributes() []sql.Attribute {
	out := make([]sql.Attribute, 0, len(a.GroupBy)+len(a.Aggregates))
	for _, g := range a.GroupBy {
		out = append(out, g.Attr)
	}
	for _, c := range a.Aggregates {
		out = append(out, c.Attr)
	}
	return out
}

func (a *Aggregate) Children() []Node { return []Node{a.Source} }
func (a *Aggregate) String() string {
	return fmt.Sprintf("Aggregate(%d group keys, %d aggregates)", len(a.GroupBy), len(a.Aggregates))
}

// WindowCall is one window function invocation within a Window node's
// output list.
type WindowCall struct {
	Call *expression.WindowFunctionCall
	Attr sql.Attribute
}

// Window consumes a partitioned/ordered Source and produces its rows
// augmented with one column per window call, per spec.md §4.9's
// window contract (present but deliberately under-specified beyond the
// standard semantics).
type Window struct {
	Source Node
	Calls  []WindowCall
}

func NewWindow(source Node, calls []WindowCall) *Window { return &Window{Source: source, Calls: calls} }

func (w *Window) Attributes() []sql.Attribute {
	out := append([]sql.Attribute{}, w.Source.Attributes()...)
	for _, c := range w.Calls {
		out = append(out, c.Attr)
	}
	return out
}
func (w *Window) Children() []Node { return []Node{w.Source} }
func (w *Window) String() string   { return fmt.Sprintf("Window(%d calls)", len(w.Calls)) }
