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
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quereus/quereus/sql"
)

// TableManager owns the base layer, the current committed layer, the
// set of live connections, and the table's schema. Commits and schema
// changes are serialized through named latches (commit, collapse,
// schema-change, consolidate), matching the shared-resource policy in
// spec.md §5.
type TableManager struct {
	name   string
	logger *logrus.Logger

	mu       sync.Mutex // guards the fields below; the "named latches" are modeled as sections of this single mutex plus a dedicated collapseMu for the best-effort, non-blocking collapse path
	schema   *sql.Schema
	base     *Layer
	current  *Layer // current committed layer; base or a committed transaction layer
	conns    map[ConnID]*Connection

	collapseMu sync.Mutex

	listeners []Listener
}

// Listener receives post-commit data-change notifications, the
// optional session hook spec.md §6 allows.
type Listener interface {
	OnDataChange(table string, entries []ChangeLogEntry)
}

// NewTableManager creates a table manager with a fresh base layer.
func NewTableManager(name string, schema *sql.Schema, logger *logrus.Logger) *TableManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	base := newBaseLayer(schema)
	return &TableManager{
		name:    name,
		logger:  logger,
		schema:  schema,
		base:    base,
		current: base,
		conns:   map[ConnID]*Connection{},
	}
}

func (m *TableManager) AddListener(l Listener) { m.listeners = append(m.listeners, l) }

// Schema returns the table's current schema.
func (m *TableManager) Schema() *sql.Schema {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.schema
}

// NewConnection opens a connection reading from the current committed
// layer.
func (m *TableManager) NewConnection() *Connection {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &Connection{
		id:      nextConnID(),
		manager: m,
		read:    m.current,
	}
	m.conns[c.id] = c
	return c
}

// closeConnection removes a connection from the live set and attempts
// an opportunistic collapse, since one fewer reader may free the
// parent chain.
func (m *TableManager) closeConnection(id ConnID) {
	m.mu.Lock()
	delete(m.conns, id)
	m.mu.Unlock()
	m.tryCollapse()
}

// currentLayer returns the table's current committed layer.
func (m *TableManager) currentLayer() *Layer {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// referencedLayers returns the set of every layer on the parent chains
// of any live connection's read layer, pending layer, or savepoint
// snapshots, used by the collapse protocol to decide whether a layer's
// parent chain is still needed.
func (m *TableManager) referencedLayers() map[*Layer]bool {
	refs := map[*Layer]bool{}
	for _, c := range m.conns {
		c.mu.Lock()
		for n := c.read; n != nil; n = n.parent {
			refs[n] = true
		}
		if c.pending != nil {
			for n := c.pending; n != nil; n = n.parent {
				refs[n] = true
			}
		}
		for _, sp := range c.savepoints {
			for n := sp; n != nil; n = n.parent {
				refs[n] = true
			}
		}
		c.mu.Unlock()
	}
	return refs
}

// tryCollapse implements the collapse protocol (C2): when the current
// committed layer is a transaction layer and no connection references
// its parent chain, its trees clear their base pointer and become
// independent; since no connection references the former parent, no
// connection's read layer changes. Collapse is opportunistic:
// it takes collapseMu with a short timeout and gives up silently
// (logged) on contention, since correctness never depends on collapse
// happening.
func (m *TableManager) tryCollapse() {
	locked := make(chan struct{}, 1)
	go func() {
		m.collapseMu.Lock()
		locked <- struct{}{}
	}()
	select {
	case <-locked:
		defer m.collapseMu.Unlock()
	case <-time.After(10 * time.Millisecond):
		// The waiting goroutine still acquires collapseMu later; release
		// it as soon as it does so later rounds are not locked out.
		go func() {
			<-locked
			m.collapseMu.Unlock()
		}()
		m.logger.WithField("table", m.name).Warn("collapse: lock contended, skipping this round")
		return
	}

	m.mu.Lock()
	cur := m.current
	if cur == m.base || cur.parent == nil {
		m.mu.Unlock()
		return
	}
	refs := m.referencedLayers()
	m.mu.Unlock()

	if refs[cur.parent] {
		return
	}

	cur.primary.ClearBase()
	for _, t := range cur.indexes {
		t.ClearBase()
	}
	cur.parent = nil
	m.logger.WithFields(logrus.Fields{"table": m.name, "layer": cur.id}).Debug("collapse: layer promoted to independent base")
}

// Connection is one SQL session's per-table transaction state: a read
// layer (what SELECTs observe), an optional pending transaction layer,
// an explicit-transaction flag, and a stack of savepoint snapshots
// indexed by depth.
type Connection struct {
	id      ConnID
	manager *TableManager

	mu         sync.Mutex
	read       *Layer
	pending    *Layer
	explicit   bool
	savepoints map[int]*Layer
}

func (c *Connection) ID() ConnID { return c.id }

// Close releases the connection; it must not be used afterward.
func (c *Connection) Close() { c.manager.closeConnection(c.id) }

// Begin marks the connection as participating in an explicit
// transaction and, when that starts a new transaction, fixes the read
// layer at the current committed layer. It is idempotent.
func (c *Connection) Begin() {
	cur := c.manager.currentLayer()
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.explicit && c.pending == nil {
		c.read = cur
	}
	c.explicit = true
}

// Autocommit reports whether the connection is outside an explicit
// transaction.
func (c *Connection) Autocommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.explicit
}

// ensurePending creates the connection's pending transaction layer,
// rooted at the table's current committed layer, if one does not
// already exist.
func (c *Connection) ensurePending() *Layer {
	if c.pending == nil {
		cur := c.manager.currentLayer()
		c.pending = newTransactionLayer(cur, true)
	}
	return c.pending
}

// ReadLayer returns the layer SELECTs should scan: the pending layer
// if one exists (so a connection sees its own writes), otherwise,
// inside an explicit transaction, the read layer fixed at transaction
// start (snapshot isolation), and outside one the current committed
// layer.
func (c *Connection) ReadLayer() *Layer {
	c.mu.Lock()
	pending, read, explicit := c.pending, c.read, c.explicit
	c.mu.Unlock()
	if pending != nil {
		return pending
	}
	if !explicit {
		return c.manager.currentLayer()
	}
	return read
}

// Mutate implements the mutation contract (C3 §4.3): ensure a pending
// layer, validate/default the row (the caller — package rowexec — is
// responsible for type validation and default application before
// calling Mutate, since that needs the expression evaluator), then
// apply insert/update/delete semantics against the primary tree and
// every secondary index tree.
func (c *Connection) Mutate(ctx *sql.Context, op sql.Op, newRow sql.Row, oldKeyValues sql.Row, conflict sql.ConflictPolicy) (sql.UpdateResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending := c.ensurePending()
	schema := pending.schema

	switch op {
	case sql.OpInsert:
		if violation := validateRow(ctx, schema, newRow); violation != nil {
			return sql.UpdateResult{Constraint: violation}, nil
		}
		return c.mutateInsert(pending, schema, newRow, conflict)
	case sql.OpUpdate:
		if violation := validateRow(ctx, schema, newRow); violation != nil {
			return sql.UpdateResult{Constraint: violation}, nil
		}
		return c.mutateUpdate(pending, schema, newRow, oldKeyValues, conflict)
	case sql.OpDelete:
		return c.mutateDelete(pending, schema, oldKeyValues)
	default:
		return sql.UpdateResult{}, sql.NewError(sql.KindInternal, "unknown mutation op")
	}
}

// validateRow enforces the row-level constraints the table schema
// declares beyond primary-key uniqueness (which mutateInsert/
// mutateUpdate check themselves, since that needs the tree lookup):
// NOT NULL columns and CHECK predicates. A CHECK predicate that
// evaluates to NULL passes, matching SQL's three-valued-logic CHECK
// semantics; only an explicit false rejects the row.
func validateRow(ctx *sql.Context, schema *sql.Schema, row sql.Row) *sql.Error {
	for i, col := range schema.Columns {
		if !col.Nullable && row[i].IsNull() {
			return sql.NewConstraintError(sql.ConstraintNotNull, nil, "column %s may not be NULL", col.Name)
		}
	}
	if len(schema.Checks) == 0 {
		return nil
	}
	attrs := make([]sql.Attribute, len(schema.Columns))
	for i, col := range schema.Columns {
		attrs[i] = sql.Attribute{ID: col.AttrID, Name: col.Name, Type: col.Type}
	}
	release := ctx.PushRow(sql.NewRowDescriptor(attrs), row)
	defer release()
	for _, chk := range schema.Checks {
		v, err := chk.Predicate.Eval(ctx, row)
		if err != nil {
			return sql.NewConstraintError(sql.ConstraintCheck, nil, "check %s: %v", chk.Name, err)
		}
		if !v.IsNull() && !v.Bool() {
			return sql.NewConstraintError(sql.ConstraintCheck, row, "check constraint %q violated", chk.Name)
		}
	}
	return nil
}

func (c *Connection) mutateInsert(pending *Layer, schema *sql.Schema, newRow sql.Row, conflict sql.ConflictPolicy) (sql.UpdateResult, error) {
	pk := schema.PrimaryKeyValues(newRow)
	key, err := EncodeKey(pk)
	if err != nil {
		return sql.UpdateResult{}, err
	}
	existing, tombstoned, present := pending.primary.Get(key)
	// A tombstoned key is "absent" for insert purposes, per the
	// open-question decision in spec.md §9: insert over an
	// all-tombstoned key succeeds rather than resurrecting or failing.
	if present && !tombstoned {
		switch conflict {
		case sql.ConflictIgnore:
			return sql.UpdateResult{Row: existing}, nil
		case sql.ConflictReplace:
			// fall through to overwrite
		default: // Abort, Fail, Rollback all resolve to an error here;
			// the coordinator/runtime decides how to react to it.
			return sql.UpdateResult{Constraint: sql.NewConstraintError(sql.ConstraintUnique, existing, "duplicate primary key")}, nil
		}
	}
	pending.primary.Insert(key, newRow)
	pending.record(ChangeLogEntry{Op: sql.OpInsert, Key: key, Before: existing, After: newRow})
	if err := c.updateSecondaryIndexes(pending, schema, nil, newRow); err != nil {
		return sql.UpdateResult{}, err
	}
	return sql.UpdateResult{Row: newRow}, nil
}

func (c *Connection) mutateUpdate(pending *Layer, schema *sql.Schema, newRow sql.Row, oldKeyValues sql.Row, conflict sql.ConflictPolicy) (sql.UpdateResult, error) {
	oldKey, err := EncodeKey(oldKeyValues)
	if err != nil {
		return sql.UpdateResult{}, err
	}
	oldRow, tombstoned, present := pending.primary.Get(oldKey)
	if !present || tombstoned {
		return sql.UpdateResult{}, sql.ErrNotFound
	}
	newPK := schema.PrimaryKeyValues(newRow)
	newKey, err := EncodeKey(newPK)
	if err != nil {
		return sql.UpdateResult{}, err
	}
	if CompareKeys(oldKey, newKey) != 0 {
		existing, existingTombstoned, existingPresent := pending.primary.Get(newKey)
		if existingPresent && !existingTombstoned {
			switch conflict {
			case sql.ConflictIgnore:
				return sql.UpdateResult{Row: existing}, nil
			case sql.ConflictReplace:
				// fall through
			default:
				return sql.UpdateResult{Constraint: sql.NewConstraintError(sql.ConstraintUnique, existing, "update would duplicate primary key")}, nil
			}
		}
		pending.primary.Tombstone(oldKey)
		pending.primary.Insert(newKey, newRow)
		pending.record(ChangeLogEntry{Op: sql.OpDelete, Key: oldKey, Before: oldRow})
		pending.record(ChangeLogEntry{Op: sql.OpInsert, Key: newKey, After: newRow})
	} else {
		pending.primary.Insert(oldKey, newRow)
		pending.record(ChangeLogEntry{Op: sql.OpUpdate, Key: oldKey, Before: oldRow, After: newRow})
	}
	if err := c.updateSecondaryIndexes(pending, schema, oldRow, newRow); err != nil {
		return sql.UpdateResult{}, err
	}
	return sql.UpdateResult{Row: newRow}, nil
}

func (c *Connection) mutateDelete(pending *Layer, schema *sql.Schema, keyValues sql.Row) (sql.UpdateResult, error) {
	key, err := EncodeKey(keyValues)
	if err != nil {
		return sql.UpdateResult{}, err
	}
	prior, present := pending.primary.Tombstone(key)
	if !present {
		return sql.UpdateResult{}, nil
	}
	pending.record(ChangeLogEntry{Op: sql.OpDelete, Key: key, Before: prior})
	if err := c.updateSecondaryIndexes(pending, schema, prior, nil); err != nil {
		return sql.UpdateResult{}, err
	}
	return sql.UpdateResult{Row: prior}, nil
}

// updateSecondaryIndexes keeps every declared secondary index tree in
// sync with a primary-tree change: remove the old index entry (if
// oldRow is non-nil) and add the new one (if newRow is non-nil). The
// secondary index tree is keyed by the index's column encoding followed
// by the row's primary-key values (so rows sharing an index value keep
// distinct entries) and stores the full row, mirroring the primary tree's shape so a
// covering scan needs no further primary lookup.
func (c *Connection) updateSecondaryIndexes(pending *Layer, schema *sql.Schema, oldRow, newRow sql.Row) error {
	for _, idx := range schema.Indexes {
		tree := pending.indexes[idx.Name]
		if tree == nil {
			continue
		}
		if oldRow != nil {
			k, err := encodeIndexKey(schema, idx, oldRow)
			if err != nil {
				return err
			}
			tree.Tombstone(k)
		}
		if newRow != nil {
			k, err := encodeIndexKey(schema, idx, newRow)
			if err != nil {
				return err
			}
			tree.Insert(k, newRow)
		}
	}
	return nil
}

func encodeIndexKey(schema *sql.Schema, idx sql.IndexDef, row sql.Row) (Key, error) {
	vals := make(sql.Row, 0, len(idx.Columns)+len(schema.PrimaryKey))
	for _, c := range idx.Columns {
		vals = append(vals, row[c.Index])
	}
	vals = append(vals, schema.PrimaryKeyValues(row)...)
	return EncodeKey(vals)
}

// Commit implements the commit protocol (C3 §4.3): verify the pending
// layer's parent chain still contains the current committed layer (or,
// during a coordinated multi-table commit, that its parent is a
// sibling pending layer — see package txn), freeze it, install it as
// current, advance the read layer, clear transaction state, then
// notify listeners.
func (c *Connection) Commit(siblingParents map[*Layer]bool) error {
	c.mu.Lock()
	pending := c.pending
	c.mu.Unlock()
	if pending == nil {
		// Nothing to commit; still advance the read layer so a
		// read-only explicit transaction sees subsequent commits.
		c.mu.Lock()
		c.read = c.manager.currentLayer()
		c.explicit = false
		c.mu.Unlock()
		return nil
	}

	c.manager.mu.Lock()
	cur := c.manager.current
	ok := pending.hasAncestor(cur)
	if !ok && siblingParents != nil {
		ok = siblingParents[pending.parent]
	}
	if !ok {
		c.manager.mu.Unlock()
		return sql.NewError(sql.KindConcurrentUpdate, "pending layer's parent chain no longer contains the current committed layer")
	}
	pending.Freeze()
	c.manager.current = pending
	c.manager.mu.Unlock()

	changes := pending.ChangeLog()

	c.mu.Lock()
	c.read = pending
	c.pending = nil
	c.savepoints = nil
	c.explicit = false
	c.mu.Unlock()

	for _, l := range c.manager.listeners {
		l.OnDataChange(c.manager.name, changes)
	}
	c.manager.tryCollapse()
	return nil
}

// Rollback drops the pending layer and resets the read layer to the
// current committed layer; the savepoint stack is cleared.
func (c *Connection) Rollback() {
	c.mu.Lock()
	c.pending = nil
	c.savepoints = nil
	c.explicit = false
	c.read = c.manager.currentLayer()
	c.mu.Unlock()
	c.manager.tryCollapse()
}

// CreateSavepoint snapshots the current pending layer (creating one
// implicitly if needed) and pushes it onto the stack at depth.
func (c *Connection) CreateSavepoint(depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	pending := c.ensurePending()
	snap := pending.snapshot(pending.parent)
	if c.savepoints == nil {
		c.savepoints = map[int]*Layer{}
	}
	c.savepoints[depth] = snap
}

// ReleaseSavepoint pops the stack down to depth, discarding deeper
// snapshots (but keeping the one at depth, as SAVEPOINT/RELEASE does
// not itself change pending state).
func (c *Connection) ReleaseSavepoint(depth int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for d := range c.savepoints {
		if d > depth {
			delete(c.savepoints, d)
		}
	}
}

// RollbackToSavepoint rebuilds a fresh mutable pending layer whose
// parent is the snapshot at depth, preserving that snapshot on the
// stack so the savepoint remains re-rollback-able per the SQL
// standard, and discards deeper snapshots. Per the resolved open
// question in spec.md §9, the restored state is exactly the snapshot
// recorded at depth, regardless of intervening path.
func (c *Connection) RollbackToSavepoint(depth int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.savepoints[depth]
	if !ok {
		return sql.NewError(sql.KindMisuse, "no savepoint at depth %d", depth)
	}
	for d := range c.savepoints {
		if d > depth {
			delete(c.savepoints, d)
		}
	}
	c.pending = newTransactionLayer(snap, true)
	return nil
}

// Consolidate implements the schema-change safety rule: the table may
// be altered only when the current committed layer equals the base
// layer. If not, and no active connection still references an older
// layer, the in-flight transaction layer's effective rows are copied
// into the base and it is promoted; otherwise Busy is returned.
func (m *TableManager) Consolidate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == m.base {
		return nil
	}
	refs := m.referencedLayers()
	for l := m.current; l != m.base && l != nil; l = l.parent {
		if refs[l] {
			return sql.NewError(sql.KindBusy, "cannot alter table: transactions are still outstanding")
		}
	}
	for _, re := range m.current.primary.Range(nil, nil, Ascending) {
		m.base.primary.Insert(re.Key, re.Row)
	}
	for name, t := range m.current.indexes {
		dst := m.base.indexes[name]
		if dst == nil {
			continue
		}
		for _, re := range t.Range(nil, nil, Ascending) {
			dst.Insert(re.Key, re.Row)
		}
	}
	m.current = m.base
	for _, c := range m.conns {
		c.mu.Lock()
		if c.pending == nil {
			c.read = m.base
		}
		c.mu.Unlock()
	}
	return nil
}
