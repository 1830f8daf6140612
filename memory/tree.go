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
	"sort"

	"github.com/quereus/quereus/sql"
)

// entry is one local slot of a Tree: either a live row or a tombstone
// shadowing an ancestor.
type entry struct {
	key       Key
	row       sql.Row
	tombstone bool
}

// Tree is a sorted map keyed by an encoded Key, presenting the merged
// view of its own local entries atop an optional parent Tree (C1's
// "ordered tree with inheritance"). A child's local entry — including
// a tombstone — always shadows whatever the parent would report for
// the same key.
//
// The local store is a sorted slice searched by binary search. No
// third-party ordered-map library in the retrieved corpus models
// parent/child overlay with tombstone shadowing (that overlay
// semantics is this spec's own invention, not a generic ordered-map
// feature), so the local store is built directly on sort.Search over a
// slice rather than reaching for an unrelated library — see DESIGN.md.
type Tree struct {
	parent  *Tree
	entries []entry
}

// NewTree returns an empty root tree (a base layer's tree has no
// parent).
func NewTree() *Tree { return &Tree{} }

// NewChildTree returns a tree whose effective view overlays parent's.
func NewChildTree(parent *Tree) *Tree { return &Tree{parent: parent} }

func (t *Tree) find(key Key) (int, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return CompareKeys(t.entries[i].key, key) >= 0
	})
	if i < len(t.entries) && CompareKeys(t.entries[i].key, key) == 0 {
		return i, true
	}
	return i, false
}

// localPut inserts or overwrites the local entry at key.
func (t *Tree) localPut(key Key, e entry) {
	i, ok := t.find(key)
	if ok {
		t.entries[i] = e
		return
	}
	t.entries = append(t.entries, entry{})
	copy(t.entries[i+1:], t.entries[i:])
	t.entries[i] = e
}

// Get performs a point lookup, traversing the inheritance chain.
// Returns (row, tombstone, present).
func (t *Tree) Get(key Key) (row sql.Row, tombstone bool, present bool) {
	for n := t; n != nil; n = n.parent {
		if i, ok := n.find(key); ok {
			e := n.entries[i]
			return e.row, e.tombstone, true
		}
	}
	return nil, false, false
}

// Insert records an override on the local tree and returns the prior
// effective value (if any) for change tracking.
func (t *Tree) Insert(key Key, row sql.Row) (prior sql.Row, priorTombstone bool, priorPresent bool) {
	prior, priorTombstone, priorPresent = t.Get(key)
	t.localPut(key, entry{key: key, row: row})
	return
}

// Tombstone records a deletion marker shadowing any ancestor entry.
func (t *Tree) Tombstone(key Key) (prior sql.Row, priorPresent bool) {
	prior, wasTombstone, present := t.Get(key)
	t.localPut(key, entry{key: key, tombstone: true})
	if wasTombstone {
		return nil, false
	}
	return prior, present
}

// Count returns the local entry count (including tombstones), not the
// effective merged count; callers aggregate across the chain where an
// effective count is needed.
func (t *Tree) Count() int { return len(t.entries) }

// Direction selects scan order.
type Direction uint8

const (
	Ascending Direction = iota
	Descending
)

// RangeEntry is one (key, row) pair yielded by Range.
type RangeEntry struct {
	Key Key
	Row sql.Row
}

// Range yields (key, row) in the requested direction over [lo, hi)
// (nil bounds are open-ended), merging local entries and non-shadowed
// ancestor entries; tombstones produce no output. A range with lo > hi
// yields zero rows, the boundary case spec.md §8 calls out explicitly.
func (t *Tree) Range(lo, hi Key, dir Direction) []RangeEntry {
	if lo != nil && hi != nil && CompareKeys(lo, hi) > 0 {
		return nil
	}
	merged := t.mergedView(lo, hi)
	keys := make([]Key, 0, len(merged))
	for k := range merged {
		keys = append(keys, Key(k))
	}
	sort.Slice(keys, func(i, j int) bool {
		if dir == Ascending {
			return CompareKeys(keys[i], keys[j]) < 0
		}
		return CompareKeys(keys[i], keys[j]) > 0
	})
	out := make([]RangeEntry, 0, len(keys))
	for _, k := range keys {
		e := merged[string(k)]
		if e.tombstone {
			continue
		}
		out = append(out, RangeEntry{Key: k, Row: e.row})
	}
	return out
}

// mergedView collapses the full ancestor chain into one map, with
// entries closer to t (including t's own) shadowing ancestors, scoped
// to [lo, hi).
func (t *Tree) mergedView(lo, hi Key) map[string]entry {
	merged := map[string]entry{}
	var chain []*Tree
	for n := t; n != nil; n = n.parent {
		chain = append(chain, n)
	}
	// Walk from the oldest ancestor to the newest (t itself) so later
	// writes in the loop overwrite — i.e. shadow — earlier ones.
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		for _, e := range n.entries {
			if lo != nil && CompareKeys(e.key, lo) < 0 {
				continue
			}
			if hi != nil && CompareKeys(e.key, hi) >= 0 {
				continue
			}
			merged[string(e.key)] = e
		}
	}
	return merged
}

// First returns the smallest effective key/row, or !ok if empty.
func (t *Tree) First() (RangeEntry, bool) {
	r := t.Range(nil, nil, Ascending)
	if len(r) == 0 {
		return RangeEntry{}, false
	}
	return r[0], true
}

// Last returns the largest effective key/row, or !ok if empty.
func (t *Tree) Last() (RangeEntry, bool) {
	r := t.Range(nil, nil, Descending)
	if len(r) == 0 {
		return RangeEntry{}, false
	}
	return r[0], true
}

// ClearBase materializes the tree's current effective view into its
// own local storage and detaches the parent pointer, so the parent may
// be reclaimed once no sibling still depends on it. This is the
// operation collapse (C2) drives once no connection still references
// the parent chain.
func (t *Tree) ClearBase() {
	if t.parent == nil {
		return
	}
	merged := t.mergedView(nil, nil)
	entries := make([]entry, 0, len(merged))
	for _, e := range merged {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return CompareKeys(entries[i].key, entries[j].key) < 0 })
	t.entries = entries
	t.parent = nil
}

// HasParent reports whether the tree still inherits from a parent.
func (t *Tree) HasParent() bool { return t.parent != nil }
