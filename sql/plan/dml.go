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

// TableReference names the table a DML node writes to.
type TableReference struct {
	Table     sql.Table
	TableName string
}

// Insert produces new rows in Table from Source (Values, a SELECT, or
// any relation whose attributes align with the target columns).
type Insert struct {
	Target    TableReference
	Source    Node
	Columns   []int // ordinal target columns Source's row maps onto, in order
	Conflict  sql.ConflictPolicy
}

func NewInsert(target TableReference, source Node, columns []int, conflict sql.ConflictPolicy) *Insert {
	return &Insert{Target: target, Source: source, Columns: columns, Conflict: conflict}
}

func (i *Insert) Attributes() []sql.Attribute { return nil }
func (i *Insert) Children() []Node            { return []Node{i.Source} }
func (i *Insert) String() string              { return fmt.Sprintf("Insert(%s)", i.Target.TableName) }

// Assignment is one `col = expr` of an UPDATE's SET clause; Expr is
// built against the per-row new-row expression scope (it may reference
// the row's own old values by attribute id).
type Assignment struct {
	Column int
	Expr   sql.Expression
}

// Update produces a new-row value per source row via Assignments and
// writes it back under Conflict policy.
type Update struct {
	Target      TableReference
	Source      Node // filtered scan of the rows to update
	Assignments []Assignment
	Conflict    sql.ConflictPolicy
}

func NewUpdate(target TableReference, source Node, assignments []Assignment, conflict sql.ConflictPolicy) *Update {
	return &Update{Target: target, Source: source, Assignments: assignments, Conflict: conflict}
}

func (u *Update) Attributes() []sql.Attribute { return nil }
func (u *Update) Children() []Node            { return []Node{u.Source} }
func (u *Update) String() string              { return fmt.Sprintf("Update(%s)", u.Target.TableName) }

// Delete removes every row produced by Source (a filtered scan) from
// Table.
type Delete struct {
	Target TableReference
	Source Node
}

func NewDelete(target TableReference, source Node) *Delete {
	return &Delete{Target: target, Source: source}
}

func (d *Delete) Attributes() []sql.Attribute { return nil }
func (d *Delete) Children() []Node            { return []Node{d.Source} }
func (d *Delete) String() string              { return fmt.Sprintf("Delete(%s)", d.Target.TableName) }
