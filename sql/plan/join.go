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

// JoinKind enumerates the supported join types.
type JoinKind uint8

const (
	InnerJoin JoinKind = iota
	LeftJoin
	RightJoin
	CrossJoin
)

// Join combines rows from Left and Right matching Condition. The
// runtime evaluates it as nested-loop with row-context pushed for both
// sides, since no cost-based join reordering is in scope (spec.md §1
// non-goals).
type Join struct {
	Left, Right Node
	Kind        JoinKind
	Condition   sql.Expression // nil for CrossJoin
}

func NewJoin(left, right Node, kind JoinKind, cond sql.Expression) *Join {
	return &Join{Left: left, Right: right, Kind: kind, Condition: cond}
}

func (j *Join) Attributes() []sql.Attribute {
	return append(append([]sql.Attribute{}, j.Left.Attributes()...), j.Right.Attributes()...)
}
func (j *Join) Children() []Node { return []Node{j.Left, j.Right} }
func (j *Join) String() string   { return fmt.Sprintf("Join(%d)", j.Kind) }

// SetOperationKind enumerates UNION [ALL] / INTERSECT / EXCEPT.
type SetOperationKind uint8

const (
	Union SetOperationKind = iota
	Intersect
	Except
)

// SetOperation combines the rows of Left and Right per SQL compound
// statement semantics; All disables de-duplication (UNION ALL).
type SetOperation struct {
	Left, Right Node
	Kind        SetOperationKind
	All         bool
	Attrs       []sql.Attribute
}

func NewSetOperation(left, right Node, kind SetOperationKind, all bool, attrs []sql.Attribute) *SetOperation {
	return &SetOperation{Left: left, Right: right, Kind: kind, All: all, Attrs: attrs}
}

func (s *SetOperation) Attributes() []sql.Attribute { return s.Attrs }
func (s *SetOperation) Children() []Node            { return []Node{s.Left, s.Right} }
func (s *SetOperation) String() string              { return fmt.Sprintf("SetOperation(%d)", s.Kind) }
