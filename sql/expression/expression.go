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

// Package expression implements the scalar half of the plan node
// taxonomy: Literal, ColumnReference, ParameterReference, UnaryOp,
// BinaryOp, Collate, Cast, Case, ScalarFunctionCall,
// AggregateFunctionCall, WindowFunctionCall, In, Exists.
package expression

import (
	"fmt"
	"io"

	"github.com/quereus/quereus/sql"
)

// Literal is a constant value.
type Literal struct {
	Value sql.Value
}

func NewLiteral(v sql.Value) *Literal { return &Literal{Value: v} }

func (l *Literal) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) { return l.Value, nil }
func (l *Literal) String() string                                        { return l.Value.String() }
func (l *Literal) Type() sql.ValueKind                                    { return l.Value.Kind() }

// ColumnReference binds by attribute id, not name or position, so it
// survives optimizer rewrites that reorder or reproject columns.
type ColumnReference struct {
	ID   sql.AttributeID
	Name string
	Typ  sql.ValueKind
}

func NewColumnReference(id sql.AttributeID, name string, typ sql.ValueKind) *ColumnReference {
	return &ColumnReference{ID: id, Name: name, Typ: typ}
}

func (c *ColumnReference) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	if v, ok := ctx.Resolve(c.ID); ok {
		return v, nil
	}
	return sql.NullValue, sql.NewError(sql.KindInternal, "column reference %s (attr %d) not bound in active row context", c.Name, c.ID)
}

func (c *ColumnReference) String() string     { return c.Name }
func (c *ColumnReference) Type() sql.ValueKind { return c.Typ }

// ParameterReference stands for `?`, `?N`, or `:name`; its value comes
// from the resolve function it was built with. The plan builder builds
// every `?` placeholder with no resolve function, so Eval reports a
// Misuse error for it.
type ParameterReference struct {
	Name     string // empty for positional
	Ordinal  int    // 1-based; 0 means "next positional"
	resolved func() (sql.Value, error)
}

// NewParameterReference builds a reference resolved lazily via resolve;
// a nil resolve leaves the reference unbound.
func NewParameterReference(name string, ordinal int, resolve func() (sql.Value, error)) *ParameterReference {
	return &ParameterReference{Name: name, Ordinal: ordinal, resolved: resolve}
}

func (p *ParameterReference) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	if p.resolved == nil {
		return sql.NullValue, sql.NewError(sql.KindMisuse, "parameter %s not bound", p.String())
	}
	return p.resolved()
}

func (p *ParameterReference) String() string {
	if p.Name != "" {
		return ":" + p.Name
	}
	if p.Ordinal > 0 {
		return fmt.Sprintf("?%d", p.Ordinal)
	}
	return "?"
}

// UnaryOpKind enumerates unary scalar operators.
type UnaryOpKind uint8

const (
	UnaryMinus UnaryOpKind = iota
	UnaryNot
	UnaryIsNull
	UnaryIsNotNull
)

type UnaryOp struct {
	Op    UnaryOpKind
	Child sql.Expression
}

func NewUnaryOp(op UnaryOpKind, child sql.Expression) *UnaryOp { return &UnaryOp{Op: op, Child: child} }

func (u *UnaryOp) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	v, err := u.Child.Eval(ctx, row)
	if err != nil {
		return sql.NullValue, err
	}
	switch u.Op {
	case UnaryIsNull:
		return sql.BooleanValue(v.IsNull()), nil
	case UnaryIsNotNull:
		return sql.BooleanValue(!v.IsNull()), nil
	case UnaryNot:
		if v.IsNull() {
			return sql.NullValue, nil
		}
		return sql.BooleanValue(!v.Bool()), nil
	case UnaryMinus:
		if v.IsNull() {
			return sql.NullValue, nil
		}
		switch v.Kind() {
		case sql.KindInteger:
			return sql.IntegerValue(-v.Integer()), nil
		case sql.KindReal:
			return sql.RealValue(-v.Real()), nil
		default:
			return sql.NullValue, sql.NewError(sql.KindTypeError, "cannot negate %s value", v.Kind())
		}
	}
	return sql.NullValue, sql.NewError(sql.KindInternal, "unknown unary op")
}

func (u *UnaryOp) String() string {
	switch u.Op {
	case UnaryMinus:
		return "-" + u.Child.String()
	case UnaryNot:
		return "NOT " + u.Child.String()
	case UnaryIsNull:
		return u.Child.String() + " IS NULL"
	case UnaryIsNotNull:
		return u.Child.String() + " IS NOT NULL"
	}
	return "?unary?"
}

// BinaryOpKind enumerates binary scalar operators, including the
// comparison set the optimizer scans for pushdown candidates.
type BinaryOpKind uint8

const (
	BinEQ BinaryOpKind = iota
	BinNE
	BinLT
	BinLE
	BinGT
	BinGE
	BinAnd
	BinOr
	BinAdd
	BinSub
	BinMul
	BinDiv
	BinLike
	BinGlob
	BinRegexp
	BinMatch
)

type BinaryOp struct {
	Op          BinaryOpKind
	Left, Right sql.Expression
}

func NewBinaryOp(op BinaryOpKind, left, right sql.Expression) *BinaryOp {
	return &BinaryOp{Op: op, Left: left, Right: right}
}

func (b *BinaryOp) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	// AND/OR short-circuit on a determining NULL-tolerant operand per
	// SQL three-valued logic.
	if b.Op == BinAnd || b.Op == BinOr {
		return b.evalLogical(ctx, row)
	}
	l, err := b.Left.Eval(ctx, row)
	if err != nil {
		return sql.NullValue, err
	}
	r, err := b.Right.Eval(ctx, row)
	if err != nil {
		return sql.NullValue, err
	}
	if l.IsNull() || r.IsNull() {
		switch b.Op {
		case BinEQ, BinNE, BinLT, BinLE, BinGT, BinGE, BinLike, BinGlob, BinRegexp, BinMatch:
			return sql.NullValue, nil
		}
	}
	switch b.Op {
	case BinEQ:
		return sql.BooleanValue(sql.Compare(l, r) == 0), nil
	case BinNE:
		return sql.BooleanValue(sql.Compare(l, r) != 0), nil
	case BinLT:
		return sql.BooleanValue(sql.Compare(l, r) < 0), nil
	case BinLE:
		return sql.BooleanValue(sql.Compare(l, r) <= 0), nil
	case BinGT:
		return sql.BooleanValue(sql.Compare(l, r) > 0), nil
	case BinGE:
		return sql.BooleanValue(sql.Compare(l, r) >= 0), nil
	case BinAdd, BinSub, BinMul, BinDiv:
		return evalArith(b.Op, l, r)
	case BinLike:
		return sql.BooleanValue(likeMatch(l.Text(), r.Text())), nil
	case BinGlob:
		return sql.BooleanValue(globMatch(l.Text(), r.Text())), nil
	case BinRegexp, BinMatch:
		return sql.BooleanValue(regexpMatch(l.Text(), r.Text())), nil
	default:
		return sql.NullValue, sql.NewError(sql.KindInternal, "unsupported binary op")
	}
}

func (b *BinaryOp) evalLogical(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	l, err := b.Left.Eval(ctx, row)
	if err != nil {
		return sql.NullValue, err
	}
	if b.Op == BinAnd && !l.IsNull() && !l.Bool() {
		return sql.BooleanValue(false), nil
	}
	if b.Op == BinOr && !l.IsNull() && l.Bool() {
		return sql.BooleanValue(true), nil
	}
	r, err := b.Right.Eval(ctx, row)
	if err != nil {
		return sql.NullValue, err
	}
	if l.IsNull() || r.IsNull() {
		if b.Op == BinAnd && ((!r.IsNull() && !r.Bool()) || (!l.IsNull() && !l.Bool())) {
			return sql.BooleanValue(false), nil
		}
		if b.Op == BinOr && ((!r.IsNull() && r.Bool()) || (!l.IsNull() && l.Bool())) {
			return sql.BooleanValue(true), nil
		}
		return sql.NullValue, nil
	}
	if b.Op == BinAnd {
		return sql.BooleanValue(l.Bool() && r.Bool()), nil
	}
	return sql.BooleanValue(l.Bool() || r.Bool()), nil
}

func evalArith(op BinaryOpKind, l, r sql.Value) (sql.Value, error) {
	if l.Kind() == sql.KindInteger && r.Kind() == sql.KindInteger {
		a, b := l.Integer(), r.Integer()
		switch op {
		case BinAdd:
			return sql.IntegerValue(a + b), nil
		case BinSub:
			return sql.IntegerValue(a - b), nil
		case BinMul:
			return sql.IntegerValue(a * b), nil
		case BinDiv:
			if b == 0 {
				return sql.NullValue, nil
			}
			return sql.IntegerValue(a / b), nil
		}
	}
	af, bf := toFloat(l), toFloat(r)
	switch op {
	case BinAdd:
		return sql.RealValue(af + bf), nil
	case BinSub:
		return sql.RealValue(af - bf), nil
	case BinMul:
		return sql.RealValue(af * bf), nil
	case BinDiv:
		if bf == 0 {
			return sql.NullValue, nil
		}
		return sql.RealValue(af / bf), nil
	}
	return sql.NullValue, sql.NewError(sql.KindInternal, "unsupported arithmetic op")
}

func toFloat(v sql.Value) float64 {
	if v.Kind() == sql.KindInteger {
		return float64(v.Integer())
	}
	return v.Real()
}

func (b *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), binOpSymbol(b.Op), b.Right.String())
}

func binOpSymbol(op BinaryOpKind) string {
	switch op {
	case BinEQ:
		return "="
	case BinNE:
		return "<>"
	case BinLT:
		return "<"
	case BinLE:
		return "<="
	case BinGT:
		return ">"
	case BinGE:
		return ">="
	case BinAnd:
		return "AND"
	case BinOr:
		return "OR"
	case BinAdd:
		return "+"
	case BinSub:
		return "-"
	case BinMul:
		return "*"
	case BinDiv:
		return "/"
	case BinLike:
		return "LIKE"
	case BinGlob:
		return "GLOB"
	case BinRegexp:
		return "REGEXP"
	case BinMatch:
		return "MATCH"
	}
	return "?"
}

// Collate applies a named collation to a TEXT expression, changing how
// downstream comparisons order it.
type Collate struct {
	Child     sql.Expression
	Collation string
}

func NewCollate(child sql.Expression, collation string) *Collate {
	return &Collate{Child: child, Collation: collation}
}

func (c *Collate) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) { return c.Child.Eval(ctx, row) }
func (c *Collate) String() string                                        { return c.Child.String() + " COLLATE " + c.Collation }

// Cast coerces a value to a target logical type.
type Cast struct {
	Child sql.Expression
	Typ   sql.ValueKind
}

func NewCast(child sql.Expression, typ sql.ValueKind) *Cast { return &Cast{Child: child, Typ: typ} }

func (c *Cast) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	v, err := c.Child.Eval(ctx, row)
	if err != nil {
		return sql.NullValue, err
	}
	return CoerceTo(v, c.Typ)
}

func (c *Cast) String() string { return fmt.Sprintf("CAST(%s AS %s)", c.Child.String(), c.Typ) }

// CoerceTo converts v to the target kind following SQL's permissive
// affinity rules and never returns an error (e.g. non-numeric TEXT to
// INTEGER is left as the zero value per SQLite-like affinity, matching the data
// model's general tolerance — strict rejection is reserved for the
// column-level type check during mutate()).
func CoerceTo(v sql.Value, typ sql.ValueKind) (sql.Value, error) {
	if v.IsNull() || v.Kind() == typ {
		return v, nil
	}
	switch typ {
	case sql.KindInteger:
		switch v.Kind() {
		case sql.KindReal:
			return sql.IntegerValue(int64(v.Real())), nil
		case sql.KindText:
			return parseIntLoose(v.Text()), nil
		}
	case sql.KindReal:
		switch v.Kind() {
		case sql.KindInteger:
			return sql.RealValue(float64(v.Integer())), nil
		case sql.KindText:
			return parseFloatLoose(v.Text()), nil
		}
	case sql.KindText:
		return sql.TextValue(v.String()), nil
	case sql.KindBlob:
		return sql.BlobValue([]byte(v.String())), nil
	}
	return v, nil
}

func parseIntLoose(s string) sql.Value {
	var i int64
	var any bool
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		i = i*10 + int64(r-'0')
		any = true
	}
	if !any {
		return sql.IntegerValue(0)
	}
	return sql.IntegerValue(i)
}

func parseFloatLoose(s string) sql.Value {
	var f float64
	fmt.Sscanf(s, "%g", &f)
	return sql.RealValue(f)
}

// Case implements CASE WHEN ... THEN ... ELSE ... END, evaluating
// conditions in order and returning the first matching result, or the
// else expression (NULL if absent).
type Case struct {
	Operand sql.Expression // non-nil for the "CASE x WHEN ..." form
	Whens   []CaseBranch
	Else    sql.Expression
}

type CaseBranch struct {
	Condition sql.Expression
	Result    sql.Expression
}

func (c *Case) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	var operand sql.Value
	if c.Operand != nil {
		v, err := c.Operand.Eval(ctx, row)
		if err != nil {
			return sql.NullValue, err
		}
		operand = v
	}
	for _, w := range c.Whens {
		cv, err := w.Condition.Eval(ctx, row)
		if err != nil {
			return sql.NullValue, err
		}
		matched := false
		if c.Operand != nil {
			matched = sql.Equal(operand, cv)
		} else {
			matched = !cv.IsNull() && cv.Bool()
		}
		if matched {
			return w.Result.Eval(ctx, row)
		}
	}
	if c.Else != nil {
		return c.Else.Eval(ctx, row)
	}
	return sql.NullValue, nil
}

func (c *Case) String() string { return "CASE ... END" }

// In implements `expr IN (candidates...)`.
type In struct {
	Left       sql.Expression
	Candidates []sql.Expression
	Negate     bool
}

func (in *In) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	l, err := in.Left.Eval(ctx, row)
	if err != nil {
		return sql.NullValue, err
	}
	if l.IsNull() {
		return sql.NullValue, nil
	}
	sawNull := false
	for _, c := range in.Candidates {
		v, err := c.Eval(ctx, row)
		if err != nil {
			return sql.NullValue, err
		}
		if v.IsNull() {
			sawNull = true
			continue
		}
		if sql.Equal(l, v) {
			return sql.BooleanValue(!in.Negate), nil
		}
	}
	if sawNull {
		return sql.NullValue, nil
	}
	return sql.BooleanValue(in.Negate), nil
}

func (in *In) String() string { return in.Left.String() + " IN (...)" }

// Exists wraps a correlated subquery's row iterator factory: true iff
// the subquery produces at least one row for the current outer row
// context. Plan carries the subquery's plan.Node (typed as
// interface{} to avoid an import cycle with package plan); the
// emitter compiles it into Subquery before execution, re-running the
// subquery once per outer row so it observes the current row context.
type Exists struct {
	Plan     interface{}
	Subquery func(ctx *sql.Context) (sql.RowIter, error)
	Negate   bool
}

func (e *Exists) Eval(ctx *sql.Context, row sql.Row) (sql.Value, error) {
	iter, err := e.Subquery(ctx)
	if err != nil {
		return sql.NullValue, err
	}
	defer iter.Close(ctx)
	_, err = iter.Next(ctx)
	if err != nil && err != io.EOF {
		return sql.NullValue, err
	}
	found := err == nil
	return sql.BooleanValue(found != e.Negate), nil
}

func (e *Exists) String() string { return "EXISTS(...)" }
