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
)

// Filter keeps rows from Source for which Predicate evaluates truthy.
type Filter struct {
	Source    Node
	Predicate sql.Expression
}

func NewFilter(source Node, predicate sql.Expression) *Filter {
	return &Filter{Source: source, Predicate: predicate}
}

func (f *Filter) Attributes() []sql.Attribute { return f.Source.Attributes() }
func (f *Filter) Children() []Node            { return []Node{f.Source} }
func (f *Filter) String() string              { return fmt.Sprintf("Filter(%s)", f.Predicate.String()) }

// VerifyConstraints wraps a scan whose BestIndex-selected constraints
// were not all fully omittable: it re-checks the kept constraints
// against each row the cursor returns, per the optimizer's pushdown
// rewrite (C7), guarding against a cursor that claimed to satisfy a
// constraint it does not exactly enforce (spec.md §8 scenario 5).
type VerifyConstraints struct {
	Source      Node
	Predicates  []sql.Expression
}

func NewVerifyConstraints(source Node, predicates []sql.Expression) *VerifyConstraints {
	return &VerifyConstraints{Source: source, Predicates: predicates}
}

func (v *VerifyConstraints) Attributes() []sql.Attribute { return v.Source.Attributes() }
func (v *VerifyConstraints) Children() []Node            { return []Node{v.Source} }
func (v *VerifyConstraints) String() string              { return fmt.Sprintf("VerifyConstraints(%d)", len(v.Predicates)) }

// ProjectColumn is one output column of a Project: an expression plus
// the attribute id it publishes downstream.
type ProjectColumn struct {
	Expr sql.Expression
	Attr sql.Attribute
}

// Project evaluates a fixed list of expressions per source row.
type Project struct {
	Source  Node
	Columns []ProjectColumn
}

func NewProject(source Node, columns []ProjectColumn) *Project {
	return &Project{Source: source, Columns: columns}
}

func (p *Project) Attributes() []sql.Attribute {
	out := make([]sql.Attribute, len(p.Columns))
	for i, c := range p.Columns {
		out[i] = c.Attr
	}
	return out
}
func (p *Project) Children() []Node { return []Node{p.Source} }
func (p *Project) String() string   { return fmt.Sprintf("Project(%d cols)", len(p.Columns)) }

// Distinct removes duplicate rows (by full-row SQL equality) from its
// source.
type Distinct struct {
	Source Node
}

func NewDistinct(source Node) *Distinct { return &Distinct{Source: source} }

func (d *Distinct) Attributes() []sql.Attribute { return d.Source.Attributes() }
func (d *Distinct) Children() []Node            { return []Node{d.Source} }
func (d *Distinct) String() string              { return "Distinct" }

// SortKey is one ORDER BY term compiled to an expression plus
// direction.
type SortKey struct {
	Expr      sql.Expression
	Direction sql.Direction
}

// Sort orders its source by a sequence of sort keys.
type Sort struct {
	Source Node
	Keys   []SortKey
}

func NewSort(source Node, keys []SortKey) *Sort { return &Sort{Source: source, Keys: keys} }

func (s *Sort) Attributes() []sql.Attribute { return s.Source.Attributes() }
func (s *Sort) Children() []Node            { return []Node{s.Source} }
func (s *Sort) String() string              { return fmt.Sprintf("Sort(%d keys)", len(s.Keys)) }

// LimitOffset bounds the number of rows and/or skips a prefix.
type LimitOffset struct {
	Source Node
	Limit  sql.Expression // nil means unbounded
	Offset sql.Expression // nil means 0
}

func NewLimitOffset(source Node, limit, offset sql.Expression) *LimitOffset {
	return &LimitOffset{Source: source, Limit: limit, Offset: offset}
}

func (l *LimitOffset) Attributes() []sql.Attribute { return l.Source.Attributes() }
func (l *LimitOffset) Children() []Node            { return []Node{l.Source} }
func (l *LimitOffset) String() string              { return "LimitOffset" }
