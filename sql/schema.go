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

package sql

// Direction is the sort direction of an index or an ORDER BY term.
type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

// Column describes one column of a table schema: name, logical type,
// nullability, default expression (typed by the Expression interface
// below, since expression types live in package expression and would
// create an import cycle here; the INSERT executor evaluates it for
// each row that does not supply the column), and an optional named
// collation.
type Column struct {
	Name       string
	Type       ValueKind
	Nullable   bool
	Default    Expression
	Collation  string
	Generated  bool
	PrimaryKey bool
	// AttrID is the stable attribute id a CheckConstraint's Predicate
	// binds to when referencing this column via a ColumnReference; it
	// is independent of (and never mutated by) the fresh per-scan
	// attribute ids TableScan mints, since a CHECK is evaluated
	// directly against a candidate row rather than through a plan.
	AttrID AttributeID
}

// Expression is the minimal surface Schema needs from the scalar
// expression model (package expression) without importing it: anything
// that can be evaluated against an empty row to produce a default
// value. The concrete scalar AST is defined in package expression and
// satisfies this interface.
type Expression interface {
	Eval(ctx *Context, row Row) (Value, error)
	String() string
}

// IndexColumn names one column of a key (primary or secondary) and its
// sort direction.
type IndexColumn struct {
	Index     int // ordinal into Schema.Columns
	Direction Direction
}

// IndexDef describes a secondary index: name, ordered column list,
// and an optional collation override per column via the column's own
// Collation field.
type IndexDef struct {
	Name    string
	Columns []IndexColumn
	Unique  bool
}

// CheckConstraint is a row-level CHECK constraint; Predicate is
// evaluated against the candidate row and must be true (or NULL) for
// the row to be accepted.
type CheckConstraint struct {
	Name      string
	Predicate Expression
}

// Schema is the table schema record from the data model: schema name,
// table name, column list, primary-key definition, secondary indexes,
// CHECK constraints, and generated-column markers (folded into Column
// above). The virtual-table module reference lives on the owning Table
// value, not here, to keep Schema a plain data record.
type Schema struct {
	SchemaName string
	TableName  string
	Columns    []Column
	PrimaryKey []IndexColumn
	Indexes    []IndexDef
	Checks     []CheckConstraint
}

// ColumnIndex returns the ordinal of the named column, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// PrimaryKeyValues projects row over the schema's primary-key columns.
// Per the data model, a single-column PK yields a scalar Value and a
// composite PK yields a Row compared lexicographically; both are
// represented here as Row (length 1 for the scalar case) since the key
// codec (C1) encodes either uniformly.
func (s *Schema) PrimaryKeyValues(row Row) Row {
	if len(s.PrimaryKey) == 0 {
		return nil
	}
	out := make(Row, len(s.PrimaryKey))
	for i, pk := range s.PrimaryKey {
		out[i] = row[pk.Index]
	}
	return out
}

// ValidatePrimaryKey enforces the schema invariant that PK column
// indices are always valid for the current column list.
func (s *Schema) ValidatePrimaryKey() error {
	for _, pk := range s.PrimaryKey {
		if pk.Index < 0 || pk.Index >= len(s.Columns) {
			return NewError(KindInternal, "primary key references invalid column index %d", pk.Index)
		}
	}
	return nil
}
