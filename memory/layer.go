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
	"sync/atomic"

	"github.com/quereus/quereus/sql"
)

// LayerID is a process-wide monotonic layer identifier (design notes:
// global counters need not persist, only be unique per engine
// instance).
type LayerID uint64

var layerCounter uint64

func nextLayerID() LayerID { return LayerID(atomic.AddUint64(&layerCounter, 1)) }

// ConnID is a process-wide monotonic connection identifier.
type ConnID uint64

var connCounter uint64

func nextConnID() ConnID { return ConnID(atomic.AddUint64(&connCounter, 1)) }

// Layer is one versioned snapshot of a table's data: either the base
// layer (owns the canonical trees) or a transaction layer (owns child
// trees inheriting from its parent). Every layer carries a
// monotonically assigned id, a parent pointer (nil for base), a
// frozen/committed flag, and the schema it targets.
type Layer struct {
	id       LayerID
	parent   *Layer
	frozen   atomic.Bool
	schema   *sql.Schema
	primary  *Tree
	indexes  map[string]*Tree // secondary index name -> tree of index-key -> row

	// changeLog records (key -> before/after) pairs while tracking is
	// enabled, used by data-change event emission at commit.
	mu        sync.Mutex
	changeLog []ChangeLogEntry
	tracking  bool
}

// ChangeLogEntry records one pending change for post-commit
// notification.
type ChangeLogEntry struct {
	Op     sql.Op
	Key    Key
	Before sql.Row
	After  sql.Row
}

// newBaseLayer builds the root layer of a table: a fresh primary tree
// and one fresh tree per declared secondary index.
func newBaseLayer(schema *sql.Schema) *Layer {
	l := &Layer{
		id:      nextLayerID(),
		schema:  schema,
		primary: NewTree(),
		indexes: map[string]*Tree{},
	}
	for _, idx := range schema.Indexes {
		l.indexes[idx.Name] = NewTree()
	}
	l.frozen.Store(true) // transactions never write to the base layer; only TableManager.Consolidate copies rows into it
	return l
}

// newTransactionLayer builds a layer whose trees are children
// inheriting from parent's trees, per the layer stack invariant that a
// pending layer's parent is the table's current committed layer at
// creation time.
func newTransactionLayer(parent *Layer, tracking bool) *Layer {
	l := &Layer{
		id:       nextLayerID(),
		parent:   parent,
		schema:   parent.schema,
		primary:  NewChildTree(parent.primary),
		indexes:  map[string]*Tree{},
		tracking: tracking,
	}
	for name, t := range parent.indexes {
		l.indexes[name] = NewChildTree(t)
	}
	return l
}

func (l *Layer) ID() LayerID    { return l.id }
func (l *Layer) Parent() *Layer { return l.parent }
func (l *Layer) Frozen() bool   { return l.frozen.Load() }
func (l *Layer) Schema() *sql.Schema { return l.schema }

// Freeze marks the layer committed; after this its trees are treated
// as immutable (C2 "Layer freeze").
func (l *Layer) Freeze() { l.frozen.Store(true) }

// record appends a change-log entry when change tracking is enabled,
// used to emit post-commit data-change events.
func (l *Layer) record(e ChangeLogEntry) {
	if !l.tracking {
		return
	}
	l.mu.Lock()
	l.changeLog = append(l.changeLog, e)
	l.mu.Unlock()
}

// ChangeLog returns a snapshot of the recorded pending changes.
func (l *Layer) ChangeLog() []ChangeLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ChangeLogEntry, len(l.changeLog))
	copy(out, l.changeLog)
	return out
}

// hasAncestor reports whether anc appears in l's parent chain, or l
// itself is anc — used by the commit protocol's parent-chain check.
func (l *Layer) hasAncestor(anc *Layer) bool {
	for n := l; n != nil; n = n.parent {
		if n == anc {
			return true
		}
	}
	return false
}

// snapshot builds an immutable committed layer copied from l's
// effective entries, rooted at rootParent — the mechanism behind both
// savepoint snapshots and schema-change consolidation.
func (l *Layer) snapshot(rootParent *Layer) *Layer {
	out := newTransactionLayer(rootParent, false)
	for _, re := range l.primary.Range(nil, nil, Ascending) {
		out.primary.Insert(re.Key, re.Row)
	}
	for name, t := range l.indexes {
		dst, ok := out.indexes[name]
		if !ok {
			dst = NewChildTree(rootParent.indexes[name])
			out.indexes[name] = dst
		}
		for _, re := range t.Range(nil, nil, Ascending) {
			dst.Insert(re.Key, re.Row)
		}
	}
	out.Freeze()
	return out
}
