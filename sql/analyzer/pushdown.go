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

// Package analyzer implements the optimizer (C7): predicate pushdown
// into a virtual table's BestIndex, and insertion of VerifyConstraints
// above a scan whose pushed-down constraints were not all fully
// omittable. The optimizer never changes query results, only how they
// are produced — no cost-based join reordering or rewrite that could
// alter semantics is in scope, per spec.md §1.
package analyzer

import (
	"github.com/sirupsen/logrus"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/expression"
	"github.com/quereus/quereus/sql/plan"
)

// Optimize rewrites root, pushing Filter predicates directly above a
// TableScan into the scan's BestIndex call and wrapping the result in
// VerifyConstraints when the virtual table could not fully omit every
// pushed constraint.
func Optimize(logger *logrus.Logger, root plan.Node) (plan.Node, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return rewrite(logger, root)
}

func rewrite(logger *logrus.Logger, n plan.Node) (plan.Node, error) {
	switch node := n.(type) {
	case *plan.Filter:
		src, err := rewrite(logger, node.Source)
		if err != nil {
			return nil, err
		}
		if scan, ok := src.(*plan.TableScan); ok {
			return pushdownFilter(logger, node.Predicate, scan)
		}
		node.Source = src
		return node, nil

	case *plan.Project:
		src, err := rewrite(logger, node.Source)
		if err != nil {
			return nil, err
		}
		node.Source = src
		return node, nil
	case *plan.Distinct:
		src, err := rewrite(logger, node.Source)
		if err != nil {
			return nil, err
		}
		node.Source = src
		return node, nil
	case *plan.Sort:
		src, err := rewrite(logger, node.Source)
		if err != nil {
			return nil, err
		}
		node.Source = src
		return node, nil
	case *plan.LimitOffset:
		src, err := rewrite(logger, node.Source)
		if err != nil {
			return nil, err
		}
		node.Source = src
		return node, nil
	case *plan.Aggregate:
		src, err := rewrite(logger, node.Source)
		if err != nil {
			return nil, err
		}
		node.Source = src
		return node, nil
	case *plan.Window:
		src, err := rewrite(logger, node.Source)
		if err != nil {
			return nil, err
		}
		node.Source = src
		return node, nil
	case *plan.Join:
		left, err := rewrite(logger, node.Left)
		if err != nil {
			return nil, err
		}
		right, err := rewrite(logger, node.Right)
		if err != nil {
			return nil, err
		}
		node.Left, node.Right = left, right
		return node, nil
	case *plan.SetOperation:
		left, err := rewrite(logger, node.Left)
		if err != nil {
			return nil, err
		}
		right, err := rewrite(logger, node.Right)
		if err != nil {
			return nil, err
		}
		node.Left, node.Right = left, right
		return node, nil
	case *plan.CTEReference:
		target, err := rewrite(logger, node.Target)
		if err != nil {
			return nil, err
		}
		node.Target = target
		return node, nil
	case *plan.Insert:
		src, err := rewrite(logger, node.Source)
		if err != nil {
			return nil, err
		}
		node.Source = src
		return node, nil
	case *plan.Update:
		src, err := rewrite(logger, node.Source)
		if err != nil {
			return nil, err
		}
		node.Source = src
		return node, nil
	case *plan.Delete:
		src, err := rewrite(logger, node.Source)
		if err != nil {
			return nil, err
		}
		node.Source = src
		return node, nil
	default:
		return n, nil
	}
}

// pushdownFilter decomposes predicate into a conjunction of simple
// (column, op, value) terms, offers them to scan's table via
// BestIndex, annotates the scan with the chosen index plan, and
// returns either the bare scan (every used term was omittable) or a
// VerifyConstraints wrapping it (the table kept a term it cannot fully
// enforce itself, or part of the predicate did not decompose into a
// pushable term at all).
func pushdownFilter(logger *logrus.Logger, predicate sql.Expression, scan *plan.TableScan) (plan.Node, error) {
	terms, residual := decompose(predicate)
	constraints, termExprs := constraintsFor(scan, terms)
	if len(constraints) == 0 {
		return &plan.Filter{Source: scan, Predicate: predicate}, nil
	}

	sel, err := scan.Table.BestIndex(constraints, nil)
	if err != nil {
		return nil, err
	}

	scan.IdxNum = sel.IdxNum
	scan.IdxStr = sel.IdxStr

	var kept []sql.Expression
	for i, usage := range sel.Usage {
		if usage.ArgvIndex == 0 {
			kept = append(kept, termExprs[i])
			continue
		}
		for len(scan.Args) < usage.ArgvIndex {
			scan.Args = append(scan.Args, nil)
		}
		scan.Args[usage.ArgvIndex-1] = termExprs[i].value
		if !usage.Omit {
			kept = append(kept, termExprs[i])
		}
	}

	logger.WithFields(logrus.Fields{
		"table": scan.TableName, "idx": sel.IdxStr, "cost": sel.EstimatedCost, "rows": sel.EstimatedRows,
	}).Debug("pushdown: chose index plan")

	verify := append(kept, residual...)
	if len(verify) == 0 {
		return scan, nil
	}
	return plan.NewVerifyConstraints(scan, verify), nil
}

// term is one decomposed (column, op, value) conjunct plus the scalar
// expression that originally carried it, so it can be re-added to the
// VerifyConstraints set.
type term struct {
	col   int
	op    sql.ConstraintOp
	value sql.Expression
	orig  sql.Expression
}

// decompose splits predicate on top-level ANDs into simple comparison
// terms involving one ColumnReference and one non-column operand;
// anything else (ORs, function calls, cross-column comparisons) is
// left as opaque residual, still applied via a Filter/VerifyConstraints
// since the optimizer never alters results.
func decompose(predicate sql.Expression) ([]term, []sql.Expression) {
	var terms []term
	var residual []sql.Expression
	var walk func(e sql.Expression)
	walk = func(e sql.Expression) {
		if b, ok := e.(*expression.BinaryOp); ok && b.Op == expression.BinAnd {
			walk(b.Left)
			walk(b.Right)
			return
		}
		if t, ok := asTerm(e); ok {
			terms = append(terms, t)
			return
		}
		residual = append(residual, e)
	}
	walk(predicate)
	return terms, residual
}

func asTerm(e sql.Expression) (term, bool) {
	b, ok := e.(*expression.BinaryOp)
	if !ok {
		return term{}, false
	}
	op, ok := constraintOp(b.Op)
	if !ok {
		return term{}, false
	}
	if _, ok := b.Left.(*expression.ColumnReference); !ok {
		return term{}, false
	}
	if _, isCol := b.Right.(*expression.ColumnReference); isCol {
		return term{}, false
	}
	return term{col: -1, op: op, value: b.Right, orig: e}, true
}

func constraintOp(op expression.BinaryOpKind) (sql.ConstraintOp, bool) {
	switch op {
	case expression.BinEQ:
		return sql.OpEQ, true
	case expression.BinLT:
		return sql.OpLT, true
	case expression.BinLE:
		return sql.OpLE, true
	case expression.BinGT:
		return sql.OpGT, true
	case expression.BinGE:
		return sql.OpGE, true
	case expression.BinLike:
		return sql.OpLike, true
	case expression.BinGlob:
		return sql.OpGlob, true
	case expression.BinRegexp:
		return sql.OpRegexp, true
	default:
		return 0, false
	}
}

// constraintsFor resolves each decomposed term's ColumnReference to an
// ordinal in scan's schema (via its attribute id), discarding terms
// whose column the scan does not publish (can't happen for a
// single-table scan's own WHERE, but guards a misbuilt plan).
func constraintsFor(scan *plan.TableScan, terms []term) ([]sql.Constraint, []term) {
	var cs []sql.Constraint
	var out []term
	for _, t := range terms {
		b, ok := t.orig.(*expression.BinaryOp)
		if !ok {
			continue
		}
		colRef, ok := b.Left.(*expression.ColumnReference)
		if !ok {
			continue
		}
		ordinal := -1
		for i, a := range scan.Attrs {
			if a.ID == colRef.ID {
				ordinal = i
				break
			}
		}
		if ordinal < 0 {
			continue
		}
		cs = append(cs, sql.Constraint{Column: ordinal, Op: t.op, Value: t.value})
		out = append(out, term{col: ordinal, op: t.op, value: t.value, orig: t.orig})
	}
	return cs, out
}
