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

// Op is a mutation operation kind.
type Op uint8

const (
	OpInsert Op = iota
	OpUpdate
	OpDelete
)

// ConflictPolicy governs how a mutation reacts to a PK collision.
type ConflictPolicy uint8

const (
	ConflictAbort ConflictPolicy = iota
	ConflictIgnore
	ConflictReplace
	ConflictFail
	ConflictRollback
)

// ConstraintOp is one of the comparison operators the optimizer can
// extract from a WHERE predicate for pushdown into a virtual table's
// BestIndex, named after the xBestIndex protocol spec.md §4.7
// describes.
type ConstraintOp uint8

const (
	OpEQ ConstraintOp = iota
	OpLT
	OpLE
	OpGT
	OpGE
	OpIs
	OpIsNot
	OpLike
	OpGlob
	OpRegexp
	OpMatch
	OpIsNull
	OpIsNotNull
)

// Constraint is one simple (column, op, value) conjunct extracted from
// a Filter directly above a TableScan.
type Constraint struct {
	Column int // ordinal into the table's schema
	Op     ConstraintOp
	Value  Expression // nil for IsNull/IsNotNull
}

// OrderingTerm is one ORDER BY term the optimizer offers a virtual
// table the chance to satisfy natively.
type OrderingTerm struct {
	Column    int
	Direction Direction
}

// ConstraintUsage reports, for one input Constraint at the same index,
// whether and how the virtual table plans to use it.
type ConstraintUsage struct {
	ArgvIndex int // 1-based position in the args passed to Cursor.Filter; 0 = unused
	Omit      bool
}

// IndexSelection is what BestIndex returns: which index plan the table
// chose, how each input constraint will be used, and cost/row estimates
// (which the optimizer logs; it does not compare them across plans).
type IndexSelection struct {
	IdxNum         int
	IdxStr         string
	Usage          []ConstraintUsage // parallel to the Constraints slice passed in
	EstimatedCost  float64
	EstimatedRows  int64
	OrderConsumed  bool
}

// Capabilities reports what a module supports, consulted by the
// optimizer and the coordinator.
type Capabilities struct {
	SupportsIsolation       bool
	SupportsSavepoints      bool
	SupportsSecondaryIndexes bool
}

// UpdateResult is the explicit result union mutate() returns instead of
// throwing, per the error-handling design: expected outcomes are
// values, not exceptions.
type UpdateResult struct {
	// Row is the resulting effective row on success (nil for a no-op
	// IGNORE or a DELETE of an absent row).
	Row Row
	// RowID is populated for INSERT against a table with an implicit
	// row identifier.
	RowID int64
	// Constraint is non-nil when the mutation could not proceed as
	// requested; the caller's conflict policy decides what happens
	// next.
	Constraint *Error
}

// Module is a virtual-table module: it connects named tables against a
// schema and options, and reports a capability set.
type Module interface {
	Connect(tableName string, schema *Schema, options map[string]string) (Table, error)
	Capabilities() Capabilities
}

// Table is a virtual table consumed by the planner and runtime. The
// in-memory module (package memory) implements this on top of the
// layer stack and ordered tree.
type Table interface {
	Schema() *Schema

	// BestIndex implements the xBestIndex-style protocol: given a set
	// of candidate constraints and the ORDER BY the optimizer would
	// like satisfied, choose an index plan.
	BestIndex(constraints []Constraint, orderBy []OrderingTerm) (IndexSelection, error)

	OpenCursor(ctx *Context) (Cursor, error)

	// Mutate applies one row-level operation under the given conflict
	// policy. newRow is nil for Delete; oldKeyValues is nil for
	// Insert.
	Mutate(ctx *Context, op Op, newRow Row, oldKeyValues Row, conflict ConflictPolicy) (UpdateResult, error)

	// Transaction hooks, called by the Transaction Coordinator (C10).
	Begin(ctx *Context) error
	Sync(ctx *Context) error
	Commit(ctx *Context) error
	Rollback(ctx *Context) error
	Savepoint(ctx *Context, depth int) error
	Release(ctx *Context, depth int) error
	RollbackTo(ctx *Context, depth int) error
}

// Coordinator is optionally implemented by tables that participate in a
// coordinated multi-table commit (C10): the Transaction Coordinator
// collects every touched table's pending-layer parent via
// PendingParent before any table commits, then passes the whole set to
// CommitCoordinated so each table accepts a sibling's pending layer as
// a legitimate commit parent, not only its own current committed
// layer. Layer identity is opaque to the coordinator; only the virtual
// table module that produced it knows how to compare it.
type Coordinator interface {
	PendingParent(ctx *Context) interface{}
	CurrentLayer() interface{}
	CommitCoordinated(ctx *Context, siblingParents map[interface{}]bool) error
}

// IndexCreator is implemented by tables that support CREATE/DROP INDEX.
type IndexCreator interface {
	CreateIndex(ctx *Context, def IndexDef) error
	DropIndex(ctx *Context, name string) error
}

// Cursor is a virtual-table cursor: filter, then iterate next/eof/column
// until exhausted.
type Cursor interface {
	Filter(ctx *Context, idxNum int, idxStr string, args []Value) error
	Next(ctx *Context) error
	EOF() bool
	Column(ctx *Context, i int) (Value, error)
	RowID(ctx *Context) (int64, error)
	Close(ctx *Context) error
}
