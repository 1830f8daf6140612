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

package memory

import (
	"sync"

	"github.com/quereus/quereus/sql"
)

// Table implements sql.Table atop a TableManager. It keeps one
// Connection per SQL session (keyed by ctx.Session), matching the data
// model's "one connection per SQL session per table".
type Table struct {
	manager *TableManager

	mu    sync.Mutex
	conns map[uint64]*Connection
}

// NewTable builds an in-memory virtual table for schema under manager.
func NewTable(manager *TableManager) *Table {
	return &Table{manager: manager, conns: map[uint64]*Connection{}}
}

func (t *Table) connFor(ctx *sql.Context) *Connection {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.conns[ctx.Session]
	if !ok {
		c = t.manager.NewConnection()
		t.conns[ctx.Session] = c
	}
	return c
}

func (t *Table) Schema() *sql.Schema { return t.manager.Schema() }

// BestIndex implements the xBestIndex-style protocol (C7/spec.md
// §4.7): it recognizes equality and lower-bound (GT/GE) range
// constraints on the primary key, and equality on the first column of a
// declared secondary index, and proposes to use them,
// reporting which constraints it can fully omit (exact equality on a
// unique key) versus which the optimizer must still verify.
func (t *Table) BestIndex(constraints []sql.Constraint, orderBy []sql.OrderingTerm) (sql.IndexSelection, error) {
	schema := t.manager.Schema()
	usage := make([]sql.ConstraintUsage, len(constraints))

	pkCols := map[int]bool{}
	for _, pk := range schema.PrimaryKey {
		pkCols[pk.Index] = true
	}

	best := sql.IndexSelection{
		IdxNum:        0,
		IdxStr:        "scan",
		Usage:         usage,
		EstimatedCost: float64(1 << 20),
		EstimatedRows: 1 << 20,
	}

	argv := 1
	for i, c := range constraints {
		if !pkCols[c.Column] {
			continue
		}
		switch c.Op {
		case sql.OpEQ:
			usage[i] = sql.ConstraintUsage{ArgvIndex: argv, Omit: true}
			argv++
			best.IdxNum = 1
			best.IdxStr = "pk_eq"
			best.EstimatedCost = 1
			best.EstimatedRows = 1
		case sql.OpGT, sql.OpGE:
			usage[i] = sql.ConstraintUsage{ArgvIndex: argv, Omit: false}
			argv++
			if best.IdxStr != "pk_eq" {
				best.IdxNum = 2
				best.IdxStr = "pk_range"
				best.EstimatedCost = 100
				best.EstimatedRows = 1000
			}
		}
	}
	if best.IdxStr == "scan" {
		for idxPos, idx := range schema.Indexes {
			if len(idx.Columns) == 0 {
				continue
			}
			col := idx.Columns[0].Index
			for i, c := range constraints {
				if c.Column != col {
					continue
				}
				if c.Op == sql.OpEQ {
					usage[i] = sql.ConstraintUsage{ArgvIndex: argv, Omit: idx.Unique}
					argv++
					best.IdxNum = 100 + idxPos
					best.IdxStr = idx.Name
					best.EstimatedCost = 10
					best.EstimatedRows = 10
				}
			}
		}
	}
	return best, nil
}

func (t *Table) OpenCursor(ctx *sql.Context) (sql.Cursor, error) {
	conn := t.connFor(ctx)
	return &cursor{table: t, conn: conn}, nil
}

func (t *Table) Mutate(ctx *sql.Context, op sql.Op, newRow sql.Row, oldKeyValues sql.Row, conflict sql.ConflictPolicy) (sql.UpdateResult, error) {
	conn := t.connFor(ctx)
	return conn.Mutate(ctx, op, newRow, oldKeyValues, conflict)
}

func (t *Table) Begin(ctx *sql.Context) error {
	t.connFor(ctx).Begin()
	return nil
}

func (t *Table) Sync(ctx *sql.Context) error { return nil }

func (t *Table) Commit(ctx *sql.Context) error {
	return t.connFor(ctx).Commit(nil)
}

// CommitCoordinated implements sql.Coordinator: it is called by the
// transaction coordinator (C10) during a coordinated multi-table
// commit, accepting sibling pending layers as legitimate parents for
// the commit's parent-chain check.
func (t *Table) CommitCoordinated(ctx *sql.Context, siblingParents map[interface{}]bool) error {
	layers := make(map[*Layer]bool, len(siblingParents))
	for k, v := range siblingParents {
		if v {
			if l, ok := k.(*Layer); ok {
				layers[l] = true
			}
		}
	}
	return t.connFor(ctx).Commit(layers)
}

func (t *Table) Rollback(ctx *sql.Context) error {
	t.connFor(ctx).Rollback()
	return nil
}

func (t *Table) Savepoint(ctx *sql.Context, depth int) error {
	t.connFor(ctx).CreateSavepoint(depth)
	return nil
}

func (t *Table) Release(ctx *sql.Context, depth int) error {
	t.connFor(ctx).ReleaseSavepoint(depth)
	return nil
}

func (t *Table) RollbackTo(ctx *sql.Context, depth int) error {
	return t.connFor(ctx).RollbackToSavepoint(depth)
}

// PendingParent implements sql.Coordinator: it exposes the
// connection's pending layer's parent, used by the transaction
// coordinator to build the sibling-parent set for a coordinated
// commit. Returns nil (as interface{}) if there is no pending layer.
func (t *Table) PendingParent(ctx *sql.Context) interface{} {
	c := t.connFor(ctx)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil || c.pending.parent == nil {
		return nil
	}
	return c.pending.parent
}

// CurrentLayer implements sql.Coordinator, exposing the table's
// current committed layer so the coordinator can build the
// sibling-parent set.
func (t *Table) CurrentLayer() interface{} { return t.manager.currentLayer() }

// Manager exposes the underlying TableManager, e.g. for ALTER TABLE
// support (schema-change safety, C3).
func (t *Table) Manager() *TableManager { return t.manager }
