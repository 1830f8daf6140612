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

package planbuilder

import (
	"strconv"
	"strings"

	"github.com/dolthub/vitess/go/vt/sqlparser"
	"github.com/pkg/errors"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/expression"
)

// buildExpr translates one vitess scalar expression node into a
// sql.Expression, resolving column references against sc (and its
// outer chain, for correlated subqueries).
func (b *Builder) buildExpr(sc *scope, e sqlparser.Expr) (sql.Expression, error) {
	if id, ok := lookupAggrBinding(sc, e); ok {
		return expression.NewColumnReference(id, sqlparser.String(e), sql.KindNull), nil
	}
	switch n := e.(type) {
	case *sqlparser.ColName:
		qualifier := n.Qualifier.Name.String()
		name := n.Name.String()
		id, ok, err := sc.resolve(qualifier, name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.Errorf("unresolved column reference %q", name)
		}
		return expression.NewColumnReference(id, name, sql.KindNull), nil

	case *sqlparser.SQLVal:
		return buildSQLVal(n)

	case *sqlparser.NullVal:
		return expression.NewLiteral(sql.NullValue), nil

	case sqlparser.BoolVal:
		return expression.NewLiteral(sql.BooleanValue(bool(n))), nil

	case *sqlparser.AndExpr:
		l, err := b.buildExpr(sc, n.Left)
		if err != nil {
			return nil, err
		}
		r, err := b.buildExpr(sc, n.Right)
		if err != nil {
			return nil, err
		}
		return expression.NewBinaryOp(expression.BinAnd, l, r), nil

	case *sqlparser.OrExpr:
		l, err := b.buildExpr(sc, n.Left)
		if err != nil {
			return nil, err
		}
		r, err := b.buildExpr(sc, n.Right)
		if err != nil {
			return nil, err
		}
		return expression.NewBinaryOp(expression.BinOr, l, r), nil

	case *sqlparser.NotExpr:
		c, err := b.buildExpr(sc, n.Expr)
		if err != nil {
			return nil, err
		}
		return expression.NewUnaryOp(expression.UnaryNot, c), nil

	case *sqlparser.ParenExpr:
		return b.buildExpr(sc, n.Expr)

	case *sqlparser.ComparisonExpr:
		return b.buildComparison(sc, n)

	case *sqlparser.BinaryExpr:
		return b.buildArith(sc, n)

	case *sqlparser.UnaryExpr:
		c, err := b.buildExpr(sc, n.Expr)
		if err != nil {
			return nil, err
		}
		if n.Operator == sqlparser.UMinusStr {
			return expression.NewUnaryOp(expression.UnaryMinus, c), nil
		}
		return c, nil

	case *sqlparser.IsExpr:
		c, err := b.buildExpr(sc, n.Expr)
		if err != nil {
			return nil, err
		}
		switch n.Operator {
		case sqlparser.IsNullStr:
			return expression.NewUnaryOp(expression.UnaryIsNull, c), nil
		case sqlparser.IsNotNullStr:
			return expression.NewUnaryOp(expression.UnaryIsNotNull, c), nil
		default:
			return nil, errors.Errorf("unsupported IS operator %q", n.Operator)
		}

	case *sqlparser.RangeCond:
		return b.buildRangeCond(sc, n)

	case *sqlparser.FuncExpr:
		return b.buildFuncExpr(sc, n)

	case *sqlparser.CaseExpr:
		return b.buildCaseExpr(sc, n)

	case *sqlparser.ConvertExpr:
		c, err := b.buildExpr(sc, n.Expr)
		if err != nil {
			return nil, err
		}
		return expression.NewCast(c, convertTypeKind(n.Type)), nil

	case *sqlparser.CollateExpr:
		c, err := b.buildExpr(sc, n.Expr)
		if err != nil {
			return nil, err
		}
		return expression.NewCollate(c, n.Charset), nil

	case *sqlparser.ExistsExpr:
		inner := newScope(sc)
		sub, err := b.buildSelectOrUnion(inner, n.Subquery.Select)
		if err != nil {
			return nil, err
		}
		return &expression.Exists{Plan: sub}, nil

	default:
		return nil, errors.Errorf("unsupported expression type %T", e)
	}
}

func (b *Builder) buildComparison(sc *scope, n *sqlparser.ComparisonExpr) (sql.Expression, error) {
	l, err := b.buildExpr(sc, n.Left)
	if err != nil {
		return nil, err
	}

	if n.Operator == sqlparser.InStr || n.Operator == sqlparser.NotInStr {
		vt, ok := n.Right.(sqlparser.ValTuple)
		if !ok {
			return nil, errors.New("IN operator requires a literal tuple on the right")
		}
		candidates := make([]sql.Expression, len(vt))
		for i, e := range vt {
			ce, err := b.buildExpr(sc, e)
			if err != nil {
				return nil, err
			}
			candidates[i] = ce
		}
		return &expression.In{Left: l, Candidates: candidates, Negate: n.Operator == sqlparser.NotInStr}, nil
	}

	r, err := b.buildExpr(sc, n.Right)
	if err != nil {
		return nil, err
	}
	var op expression.BinaryOpKind
	switch n.Operator {
	case sqlparser.EqualStr:
		op = expression.BinEQ
	case sqlparser.NotEqualStr:
		op = expression.BinNE
	case sqlparser.LessThanStr:
		op = expression.BinLT
	case sqlparser.LessEqualStr:
		op = expression.BinLE
	case sqlparser.GreaterThanStr:
		op = expression.BinGT
	case sqlparser.GreaterEqualStr:
		op = expression.BinGE
	case sqlparser.LikeStr:
		op = expression.BinLike
	case sqlparser.NotLikeStr:
		return expression.NewUnaryOp(expression.UnaryNot, expression.NewBinaryOp(expression.BinLike, l, r)), nil
	case sqlparser.RegexpStr:
		op = expression.BinRegexp
	default:
		return nil, errors.Errorf("unsupported comparison operator %q", n.Operator)
	}
	return expression.NewBinaryOp(op, l, r), nil
}

func (b *Builder) buildArith(sc *scope, n *sqlparser.BinaryExpr) (sql.Expression, error) {
	l, err := b.buildExpr(sc, n.Left)
	if err != nil {
		return nil, err
	}
	r, err := b.buildExpr(sc, n.Right)
	if err != nil {
		return nil, err
	}
	var op expression.BinaryOpKind
	switch n.Operator {
	case sqlparser.PlusStr:
		op = expression.BinAdd
	case sqlparser.MinusStr:
		op = expression.BinSub
	case sqlparser.MultStr:
		op = expression.BinMul
	case sqlparser.DivStr:
		op = expression.BinDiv
	default:
		return nil, errors.Errorf("unsupported arithmetic operator %q", n.Operator)
	}
	return expression.NewBinaryOp(op, l, r), nil
}

func (b *Builder) buildRangeCond(sc *scope, n *sqlparser.RangeCond) (sql.Expression, error) {
	left, err := b.buildExpr(sc, n.Left)
	if err != nil {
		return nil, err
	}
	from, err := b.buildExpr(sc, n.From)
	if err != nil {
		return nil, err
	}
	to, err := b.buildExpr(sc, n.To)
	if err != nil {
		return nil, err
	}
	ge := expression.NewBinaryOp(expression.BinGE, left, from)
	le := expression.NewBinaryOp(expression.BinLE, left, to)
	between := expression.NewBinaryOp(expression.BinAnd, ge, le)
	if n.Operator == sqlparser.NotBetweenStr {
		return expression.NewUnaryOp(expression.UnaryNot, between), nil
	}
	return between, nil
}

func (b *Builder) buildCaseExpr(sc *scope, n *sqlparser.CaseExpr) (sql.Expression, error) {
	c := &expression.Case{}
	if n.Expr != nil {
		operand, err := b.buildExpr(sc, n.Expr)
		if err != nil {
			return nil, err
		}
		c.Operand = operand
	}
	for _, w := range n.Whens {
		cond, err := b.buildExpr(sc, w.Cond)
		if err != nil {
			return nil, err
		}
		val, err := b.buildExpr(sc, w.Val)
		if err != nil {
			return nil, err
		}
		c.Whens = append(c.Whens, expression.CaseBranch{Condition: cond, Result: val})
	}
	if n.Else != nil {
		els, err := b.buildExpr(sc, n.Else)
		if err != nil {
			return nil, err
		}
		c.Else = els
	}
	return c, nil
}

func (b *Builder) buildFuncExpr(sc *scope, n *sqlparser.FuncExpr) (sql.Expression, error) {
	name := n.Name.String()
	if isAggregateName(name) {
		schema, ok := aggregateSchema(name)
		if ok {
			args, err := b.buildSelectExprsAsScalars(sc, n.Exprs)
			if err != nil {
				return nil, err
			}
			return &expression.AggregateFunctionCall{Name: strings.ToUpper(name), Schema: schema, Args: args}, nil
		}
	}
	args, err := b.buildSelectExprsAsScalars(sc, n.Exprs)
	if err != nil {
		return nil, err
	}
	return expression.NewScalarFunctionCall(strings.ToUpper(name), args), nil
}

func (b *Builder) buildSelectExprsAsScalars(sc *scope, exprs sqlparser.SelectExprs) ([]sql.Expression, error) {
	var out []sql.Expression
	for _, se := range exprs {
		switch e := se.(type) {
		case *sqlparser.StarExpr:
			continue // COUNT(*) carries no scalar arguments
		case *sqlparser.AliasedExpr:
			ex, err := b.buildExpr(sc, e.Expr)
			if err != nil {
				return nil, err
			}
			out = append(out, ex)
		}
	}
	return out, nil
}

func buildSQLVal(n *sqlparser.SQLVal) (sql.Expression, error) {
	switch n.Type {
	case sqlparser.StrVal:
		return expression.NewLiteral(sql.TextValue(string(n.Val))), nil
	case sqlparser.IntVal:
		i, err := strconv.ParseInt(string(n.Val), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing integer literal %q", n.Val)
		}
		return expression.NewLiteral(sql.IntegerValue(i)), nil
	case sqlparser.FloatVal:
		f, err := strconv.ParseFloat(string(n.Val), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing float literal %q", n.Val)
		}
		return expression.NewLiteral(sql.RealValue(f)), nil
	case sqlparser.HexVal, sqlparser.BitVal:
		return expression.NewLiteral(sql.BlobValue(n.Val)), nil
	case sqlparser.ValArg:
		return expression.NewParameterReference("", 0, nil), nil
	default:
		return nil, errors.Errorf("unsupported literal type %v", n.Type)
	}
}

// lookupAggrBinding checks whether e's canonical text was bound by
// collectAggregates to an Aggregate node's output attribute, searching
// outward through enclosing scopes so a HAVING or ORDER BY clause
// (built against the same scope as the select list) finds it.
func lookupAggrBinding(sc *scope, e sqlparser.Expr) (sql.AttributeID, bool) {
	for s := sc; s != nil; s = s.outer {
		if s.aggrBindings == nil {
			continue
		}
		if id, ok := s.aggrBindings[sqlparser.String(e)]; ok {
			return id, true
		}
	}
	return 0, false
}

func convertTypeKind(t *sqlparser.ConvertType) sql.ValueKind {
	switch strings.ToUpper(t.Type) {
	case "SIGNED", "UNSIGNED", "INT", "INTEGER", "BIGINT":
		return sql.KindInteger
	case "DECIMAL", "FLOAT", "DOUBLE", "REAL":
		return sql.KindReal
	case "BINARY", "BLOB":
		return sql.KindBlob
	default:
		return sql.KindText
	}
}
