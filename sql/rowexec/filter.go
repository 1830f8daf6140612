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
	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/plan"
)

func compileFilter(ctx *sql.Context, n *plan.Filter) (sql.RowIter, error) {
	src, err := Compile(ctx, n.Source)
	if err != nil {
		return nil, err
	}
	bindExpr(n.Predicate)
	desc := sql.NewRowDescriptor(n.Source.Attributes())
	return &filterIter{src: src, desc: desc, predicates: []sql.Expression{n.Predicate}}, nil
}

func compileVerifyConstraints(ctx *sql.Context, n *plan.VerifyConstraints) (sql.RowIter, error) {
	src, err := Compile(ctx, n.Source)
	if err != nil {
		return nil, err
	}
	for _, p := range n.Predicates {
		bindExpr(p)
	}
	desc := sql.NewRowDescriptor(n.Source.Attributes())
	return &filterIter{src: src, desc: desc, predicates: n.Predicates}, nil
}

// filterIter keeps rows from src for which every predicate evaluates
// truthy (NULL counts as not-truthy), pushing src's row context for
// the duration of each evaluation so a correlated Exists/scalar
// subquery inside a predicate resolves against the row under test.
type filterIter struct {
	src        sql.RowIter
	desc       *sql.RowDescriptor
	predicates []sql.Expression
}

func (it *filterIter) Next(ctx *sql.Context) (sql.Row, error) {
	for {
		row, err := it.src.Next(ctx)
		if err != nil {
			return nil, err
		}
		ok, err := it.eval(ctx, row)
		if err != nil {
			return nil, err
		}
		if ok {
			return row, nil
		}
	}
}

func (it *filterIter) eval(ctx *sql.Context, row sql.Row) (bool, error) {
	release := ctx.PushRow(it.desc, row)
	defer release()
	for _, p := range it.predicates {
		v, err := p.Eval(ctx, row)
		if err != nil {
			return false, err
		}
		if v.IsNull() || !v.Bool() {
			return false, nil
		}
	}
	return true, nil
}

func (it *filterIter) Close(ctx *sql.Context) error { return it.src.Close(ctx) }
