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

// Package aggregation implements the built-in aggregate schemas
// (COUNT, SUM, AVG, MIN, MAX) driven by the streaming aggregate engine
// in package rowexec via the step/finalize/initial-value-factory
// contract of expression.AggregateSchema.
package aggregation

import (
	"github.com/shopspring/decimal"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/expression"
)

// CountStar implements COUNT(*): counts rows regardless of NULLs,
// returning 0 (not NULL) on an empty group per the boundary behavior
// in spec.md §8.
type CountStar struct{ distinct bool }

func NewCountStar() *CountStar { return &CountStar{} }

func (c *CountStar) NewAccumulator() expression.Accumulator { return &countAccumulator{} }
func (c *CountStar) Distinct() bool                         { return false }

type countAccumulator struct{ n int64 }

func (a *countAccumulator) Step(ctx *sql.Context, args []sql.Value) error {
	a.n++
	return nil
}
func (a *countAccumulator) Finalize(ctx *sql.Context) (sql.Value, error) {
	return sql.IntegerValue(a.n), nil
}

// Count implements COUNT(expr): counts rows whose expr is non-NULL.
type Count struct{ distinct bool }

func NewCount(distinct bool) *Count { return &Count{distinct: distinct} }

func (c *Count) NewAccumulator() expression.Accumulator { return &countExprAccumulator{} }
func (c *Count) Distinct() bool                         { return c.distinct }

type countExprAccumulator struct{ n int64 }

func (a *countExprAccumulator) Step(ctx *sql.Context, args []sql.Value) error {
	if len(args) > 0 && !args[0].IsNull() {
		a.n++
	}
	return nil
}
func (a *countExprAccumulator) Finalize(ctx *sql.Context) (sql.Value, error) {
	return sql.IntegerValue(a.n), nil
}

// Sum implements SUM(expr), returning NULL (not zero) when every
// contributing value was NULL, per spec.md §8.
type Sum struct{ distinct bool }

func NewSum(distinct bool) *Sum { return &Sum{distinct: distinct} }

func (s *Sum) NewAccumulator() expression.Accumulator { return &sumAccumulator{} }
func (s *Sum) Distinct() bool                         { return s.distinct }

type sumAccumulator struct {
	total decimal.Decimal
	any   bool
}

func (a *sumAccumulator) Step(ctx *sql.Context, args []sql.Value) error {
	if len(args) == 0 || args[0].IsNull() {
		return nil
	}
	a.total = a.total.Add(args[0].Decimal())
	a.any = true
	return nil
}

func (a *sumAccumulator) Finalize(ctx *sql.Context) (sql.Value, error) {
	if !a.any {
		return sql.NullValue, nil
	}
	f, _ := a.total.Float64()
	return sql.RealValue(f), nil
}

// Avg implements AVG(expr): NULL on an all-NULL (or empty) group.
type Avg struct{ distinct bool }

func NewAvg(distinct bool) *Avg { return &Avg{distinct: distinct} }

func (s *Avg) NewAccumulator() expression.Accumulator { return &avgAccumulator{} }
func (s *Avg) Distinct() bool                         { return s.distinct }

type avgAccumulator struct {
	total decimal.Decimal
	n     int64
}

func (a *avgAccumulator) Step(ctx *sql.Context, args []sql.Value) error {
	if len(args) == 0 || args[0].IsNull() {
		return nil
	}
	a.total = a.total.Add(args[0].Decimal())
	a.n++
	return nil
}

func (a *avgAccumulator) Finalize(ctx *sql.Context) (sql.Value, error) {
	if a.n == 0 {
		return sql.NullValue, nil
	}
	avg := a.total.Div(decimal.NewFromInt(a.n))
	f, _ := avg.Float64()
	return sql.RealValue(f), nil
}

// MinMax implements MIN/MAX(expr) using sql.Compare so NULLs never win.
type MinMax struct {
	max      bool
	distinct bool
}

func NewMin(distinct bool) *MinMax { return &MinMax{max: false, distinct: distinct} }
func NewMax(distinct bool) *MinMax { return &MinMax{max: true, distinct: distinct} }

func (m *MinMax) NewAccumulator() expression.Accumulator {
	return &minMaxAccumulator{max: m.max, current: sql.NullValue}
}
func (m *MinMax) Distinct() bool { return m.distinct }

type minMaxAccumulator struct {
	max     bool
	current sql.Value
	any     bool
}

func (a *minMaxAccumulator) Step(ctx *sql.Context, args []sql.Value) error {
	if len(args) == 0 || args[0].IsNull() {
		return nil
	}
	if !a.any {
		a.current = args[0]
		a.any = true
		return nil
	}
	cmp := sql.Compare(args[0], a.current)
	if (a.max && cmp > 0) || (!a.max && cmp < 0) {
		a.current = args[0]
	}
	return nil
}

func (a *minMaxAccumulator) Finalize(ctx *sql.Context) (sql.Value, error) {
	if !a.any {
		return sql.NullValue, nil
	}
	return a.current, nil
}
