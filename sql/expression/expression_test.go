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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quereus/quereus/sql"
)

func lit(v sql.Value) *Literal { return NewLiteral(v) }

func TestBinaryOpThreeValuedLogic(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	cases := []struct {
		name string
		expr *BinaryOp
		want sql.Value
	}{
		{"true and null is null", NewBinaryOp(BinAnd, lit(sql.BooleanValue(true)), lit(sql.NullValue)), sql.NullValue},
		{"false and null is false", NewBinaryOp(BinAnd, lit(sql.BooleanValue(false)), lit(sql.NullValue)), sql.BooleanValue(false)},
		{"true or null is true", NewBinaryOp(BinOr, lit(sql.BooleanValue(true)), lit(sql.NullValue)), sql.BooleanValue(true)},
		{"false or null is null", NewBinaryOp(BinOr, lit(sql.BooleanValue(false)), lit(sql.NullValue)), sql.NullValue},
		{"eq against null is null", NewBinaryOp(BinEQ, lit(sql.IntegerValue(1)), lit(sql.NullValue)), sql.NullValue},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := c.expr.Eval(ctx, sql.Row{})
			req.NoError(err)
			if c.want.IsNull() {
				req.True(got.IsNull())
			} else {
				req.True(sql.Equal(c.want, got), "%s: want %v got %v", c.name, c.want, got)
			}
		})
	}
}

func TestBinaryOpArithmeticIntegerVsReal(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	sum, err := NewBinaryOp(BinAdd, lit(sql.IntegerValue(2)), lit(sql.IntegerValue(3))).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal(sql.KindInteger, sum.Kind())
	req.Equal(int64(5), sum.Integer())

	mixed, err := NewBinaryOp(BinAdd, lit(sql.IntegerValue(2)), lit(sql.RealValue(0.5))).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal(sql.KindReal, mixed.Kind())
	req.Equal(2.5, mixed.Real())

	div, err := NewBinaryOp(BinDiv, lit(sql.IntegerValue(1)), lit(sql.IntegerValue(0))).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.True(div.IsNull(), "division by zero yields NULL")
}

func TestUnaryOpNullPropagation(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	v, err := NewUnaryOp(UnaryNot, lit(sql.NullValue)).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.True(v.IsNull())

	isNull, err := NewUnaryOp(UnaryIsNull, lit(sql.NullValue)).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.True(isNull.Bool())

	neg, err := NewUnaryOp(UnaryMinus, lit(sql.IntegerValue(5))).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal(int64(-5), neg.Integer())
}

func TestColumnReferenceResolvesByAttributeID(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	attr := sql.Attribute{ID: sql.NewAttributeID(), Name: "x", Type: sql.KindInteger}
	desc := sql.NewRowDescriptor([]sql.Attribute{attr})
	ref := NewColumnReference(attr.ID, "x", sql.KindInteger)

	release := ctx.PushRow(desc, sql.Row{sql.IntegerValue(42)})
	v, err := ref.Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal(int64(42), v.Integer())
	release()

	_, err = ref.Eval(ctx, sql.Row{})
	req.Error(err, "column reference must fail once its row context is released")
}

func TestCaseFirstMatchWins(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	c := &Case{
		Whens: []CaseBranch{
			{Condition: lit(sql.BooleanValue(false)), Result: lit(sql.TextValue("no"))},
			{Condition: lit(sql.BooleanValue(true)), Result: lit(sql.TextValue("first"))},
			{Condition: lit(sql.BooleanValue(true)), Result: lit(sql.TextValue("second"))},
		},
		Else: lit(sql.TextValue("else")),
	}
	v, err := c.Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal("first", v.Text())
}

func TestCaseFallsThroughToElse(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	c := &Case{
		Whens: []CaseBranch{{Condition: lit(sql.BooleanValue(false)), Result: lit(sql.TextValue("no"))}},
		Else:  lit(sql.TextValue("else")),
	}
	v, err := c.Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal("else", v.Text())
}

func TestInMatchesAndThreeValuedNull(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	in := &In{
		Left:       lit(sql.IntegerValue(2)),
		Candidates: []sql.Expression{lit(sql.IntegerValue(1)), lit(sql.IntegerValue(2))},
	}
	v, err := in.Eval(ctx, sql.Row{})
	req.NoError(err)
	req.True(v.Bool())

	inWithNull := &In{
		Left:       lit(sql.IntegerValue(3)),
		Candidates: []sql.Expression{lit(sql.IntegerValue(1)), lit(sql.NullValue)},
	}
	v, err = inWithNull.Eval(ctx, sql.Row{})
	req.NoError(err)
	req.True(v.IsNull(), "no match but a NULL candidate means unknown, not false")
}

func TestCastCoercion(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	v, err := NewCast(lit(sql.TextValue("42")), sql.KindInteger).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal(int64(42), v.Integer())

	v, err = NewCast(lit(sql.IntegerValue(7)), sql.KindReal).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal(7.0, v.Real())

	v, err = NewCast(lit(sql.NullValue), sql.KindInteger).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.True(v.IsNull())
}

func TestScalarFunctionRegistry(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	v, err := NewScalarFunctionCall("upper", []sql.Expression{lit(sql.TextValue("abc"))}).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal("ABC", v.Text())

	v, err = NewScalarFunctionCall("ABS", []sql.Expression{lit(sql.IntegerValue(-3))}).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal(int64(3), v.Integer())

	v, err = NewScalarFunctionCall("coalesce", []sql.Expression{lit(sql.NullValue), lit(sql.NullValue), lit(sql.IntegerValue(9))}).Eval(ctx, sql.Row{})
	req.NoError(err)
	req.Equal(int64(9), v.Integer())

	_, err = NewScalarFunctionCall("no_such_function", nil).Eval(ctx, sql.Row{})
	req.Error(err)
	req.True(sql.IsKind(err, sql.KindResolutionError))
}

func TestAggregateFunctionCallEvalArgsAndRefusesDirectEval(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	call := &AggregateFunctionCall{Name: "SUM", Args: []sql.Expression{lit(sql.IntegerValue(5))}}
	args, err := call.EvalArgs(ctx, sql.Row{})
	req.NoError(err)
	req.Len(args, 1)
	req.Equal(int64(5), args[0].Integer())

	_, err = call.Eval(ctx, sql.Row{})
	req.Error(err, "aggregate calls must not be evaluated directly outside the aggregate phase")
}

func TestExistsReportsPresenceAndNegation(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()

	nonEmpty := &Exists{Subquery: func(ctx *sql.Context) (sql.RowIter, error) {
		return sql.RowsToRowIter(sql.Row{sql.IntegerValue(1)}), nil
	}}
	v, err := nonEmpty.Eval(ctx, sql.Row{})
	req.NoError(err)
	req.True(v.Bool())

	empty := &Exists{Subquery: func(ctx *sql.Context) (sql.RowIter, error) {
		return sql.EmptyRowIter, nil
	}}
	v, err = empty.Eval(ctx, sql.Row{})
	req.NoError(err)
	req.False(v.Bool())

	negated := &Exists{Negate: true, Subquery: func(ctx *sql.Context) (sql.RowIter, error) {
		return sql.EmptyRowIter, nil
	}}
	v, err = negated.Eval(ctx, sql.Row{})
	req.NoError(err)
	req.True(v.Bool())
}
