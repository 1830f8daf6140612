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

package expression

import (
	"strings"

	"github.com/quereus/quereus/sql"
)

// ScalarFunc is a registered scalar SQL function: lower-upper, abs,
// coalesce, and the like.
type ScalarFunc func(ctx *sql.Context, args []sql.Value) (sql.Value, error)

var scalarFunctions = map[string]ScalarFunc{}

// RegisterScalarFunction installs a named scalar function, matching
// names case-insensitively as SQL identifiers conventionally do.
func RegisterScalarFunction(name string, fn ScalarFunc) {
	scalarFunctions[strings.ToUpper(name)] = fn
}

func lookupScalarFunction(name string) (ScalarFunc, bool) {
	fn, ok := scalarFunctions[strings.ToUpper(name)]
	return fn, ok
}

func init() {
	RegisterScalarFunction("ABS", func(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
		if len(args) != 1 || args[0].IsNull() {
			return sql.NullValue, nil
		}
		v := args[0]
		if v.Kind() == sql.KindInteger {
			if v.Integer() < 0 {
				return sql.IntegerValue(-v.Integer()), nil
			}
			return v, nil
		}
		if v.Real() < 0 {
			return sql.RealValue(-v.Real()), nil
		}
		return v, nil
	})
	RegisterScalarFunction("COALESCE", func(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return sql.NullValue, nil
	})
	RegisterScalarFunction("UPPER", func(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
		if len(args) != 1 || args[0].IsNull() {
			return sql.NullValue, nil
		}
		return sql.TextValue(strings.ToUpper(args[0].Text())), nil
	})
	RegisterScalarFunction("LOWER", func(ctx *sql.Context, args []sql.Value) (sql.Value, error) {
		if len(args) != 1 || args[0].IsNull() {
			return sql.NullValue, nil
		}
		return sql.TextValue(strings.ToLower(args[0].Text())), nil
	})
}

// ScalarFunctionCall evaluates a registered scalar function over its
// evaluated argument list.
type ScalarFunctionCall struct {
	Name string
	Args []sql.Expression
}

func NewScalarFunctionCall(name string, args []sql.Expression) *ScalarFunctionCall {
	return &ScalarFunctionCall{Name: name, Args: args}
}

func (f *ScalarFunctionCall) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	fn, ok := lookupScalarFunction(f.Name)
	if !ok {
		return sql.NullValue, sql.NewError(sql.KindResolutionError, "unknown function %s", f.Name)
	}
	args := make([]sql.Value, len(f.Args))
	for i, a := range f.Args {
		v, err := a.Eval(ctx, row)
		if err != nil {
			return sql.NullValue, err
		}
		args[i] = v
	}
	return fn(ctx, args)
}

func (f *ScalarFunctionCall) String() string { return f.Name + "(...)" }

// AggregateSchema is the per-aggregate contract the streaming
// aggregate engine (C9) drives: a fresh accumulator (never shared
// across groups), a step applied once per contributing row, and a
// finalize producing the group's output value.
type AggregateSchema interface {
	// NewAccumulator returns a fresh initial accumulator value. Called
	// once per group so accumulator state is never aliased across
	// groups, per the spec's explicit requirement.
	NewAccumulator() Accumulator
	// Distinct reports whether this aggregate call carries DISTINCT.
	Distinct() bool
}

// Accumulator is stepped once per contributing row and finalized once
// per group.
type Accumulator interface {
	Step(ctx *sql.Context, args []sql.Value) error
	Finalize(ctx *sql.Context) (sql.Value, error)
}

// AggregateFunctionCall is a call to an aggregate schema, evaluated not
// by Eval (which would make no sense outside a group context) but by
// the aggregate engine directly via Schema/Args. Eval exists only to
// satisfy sql.Expression and always reports an Internal error;
// references to the call above the Aggregate node (e.g. in HAVING) are
// built as ColumnReferences to the attribute the aggregate publishes.
type AggregateFunctionCall struct {
	Name   string
	Schema AggregateSchema
	Args   []sql.Expression
}

func (a *AggregateFunctionCall) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	return sql.NullValue, sql.NewError(sql.KindInternal, "aggregate function call %s evaluated outside aggregate phase", a.Name)
}

func (a *AggregateFunctionCall) String() string { return a.Name + "(...)" }

// EvalArgs evaluates this call's argument list against row, used by
// the streaming aggregate engine's step.
func (a *AggregateFunctionCall) EvalArgs(ctx *sql.Context, row sql.Row) ([]sql.Value, error) {
	args := make([]sql.Value, len(a.Args))
	for i, e := range a.Args {
		v, err := e.Eval(ctx, row)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// WindowFrame describes a window function call's partition, ordering,
// and frame bounds. Full frame semantics follow the standard
// window-function model per spec.md's design notes.
type WindowFrame struct {
	PartitionBy []sql.Expression
	OrderBy     []sql.Expression
	Directions  []sql.Direction
}

// WindowFunctionCall is a call to a window aggregate schema over a
// frame.
type WindowFunctionCall struct {
	Name   string
	Schema AggregateSchema
	Args   []sql.Expression
	Frame  WindowFrame
}

func (w *WindowFunctionCall) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	return sql.NullValue, sql.NewError(sql.KindInternal, "window function call %s evaluated outside window phase", w.Name)
}

func (w *WindowFunctionCall) String() string { return w.Name + "(...) OVER (...)" }

// EvalArgs evaluates this call's argument list against row, used by
// the window execution phase's per-row step.
func (w *WindowFunctionCall) EvalArgs(ctx *sql.Context, row sql.Row) ([]sql.Value, error) {
	args := make([]sql.Value, len(w.Args))
	for i, e := range w.Args {
		v, err := e.Eval(ctx, row)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}
