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

import "sync/atomic"

// AttributeID uniquely identifies one column produced by one plan node,
// stable across optimizer rewrites. Downstream nodes that republish a
// column forward its id so references bind by identity, not name or
// position.
type AttributeID uint64

var attributeCounter uint64

// NewAttributeID returns the next process-wide monotonic attribute id.
// The counter is a package-level global per the design notes on global
// mutable state: unique per engine instance, no persistence required.
func NewAttributeID() AttributeID {
	return AttributeID(atomic.AddUint64(&attributeCounter, 1))
}

// Attribute is the planner-level (id, name, logical type) triple
// identifying one column.
type Attribute struct {
	ID   AttributeID
	Name string
	Type ValueKind
}

// RowDescriptor maps attribute ids to their position in a row produced
// by one relational node.
type RowDescriptor struct {
	positions map[AttributeID]int
	attrs     []Attribute
}

// NewRowDescriptor builds a descriptor from an ordered attribute list,
// the row position of attrs[i] being i.
func NewRowDescriptor(attrs []Attribute) *RowDescriptor {
	positions := make(map[AttributeID]int, len(attrs))
	for i, a := range attrs {
		positions[a.ID] = i
	}
	return &RowDescriptor{positions: positions, attrs: attrs}
}

// Position returns the row offset of attr, or (-1, false) if this
// descriptor does not publish it.
func (d *RowDescriptor) Position(id AttributeID) (int, bool) {
	p, ok := d.positions[id]
	return p, ok
}

func (d *RowDescriptor) Attributes() []Attribute { return d.attrs }
