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

import (
	"context"

	"github.com/sirupsen/logrus"
)

// rowFrame is one entry of the row-context stack: a descriptor plus the
// row currently bound under it.
type rowFrame struct {
	desc *RowDescriptor
	row  Row
}

// Context carries the per-statement execution environment: a
// cancellation context, a logger, and the row-context stack described
// by the emitter/scheduler design — a mapping from row descriptor to
// "current row provider" that correlated subqueries and HAVING
// predicates consult to resolve column references by attribute id.
//
// The stack must be respected through every yield point of every lazy
// sequence: operators push before yielding downstream and pop after,
// using a guaranteed-release pattern so cancellation mid-iteration
// never leaks a frame (see PushRow).
type Context struct {
	context.Context
	Logger *logrus.Logger

	// Session identifies the SQL session this Context executes on
	// behalf of. Virtual-table implementations that keep per-session
	// state (the in-memory module's per-table Connection) key it by
	// this id.
	Session uint64

	frames []rowFrame
}

// NewContext wraps a cancellation context with a fresh, empty row-stack.
func NewContext(parent context.Context, logger *logrus.Logger) *Context {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Context{Context: parent, Logger: logger}
}

// WithSession returns a shallow copy of ctx bound to the given session
// id, used when the coordinator dispatches work on behalf of a
// particular session.
func (c *Context) WithSession(session uint64) *Context {
	cp := *c
	cp.Session = session
	return &cp
}

// NewEmptyContext returns a Context suitable for tests and simple
// evaluations with no cancellation and the standard logger.
func NewEmptyContext() *Context {
	return NewContext(context.Background(), nil)
}

// PushRow pushes desc/row onto the stack and returns a release function
// that pops it. Callers must invoke the release function on every exit
// path:
//
//	release := ctx.PushRow(desc, row)
//	defer release()
//
// This mirrors the spec's requirement that pushes occur before a
// yield and pops happen in a guaranteed-release block.
func (c *Context) PushRow(desc *RowDescriptor, row Row) (release func()) {
	c.frames = append(c.frames, rowFrame{desc: desc, row: row})
	depth := len(c.frames)
	return func() {
		if len(c.frames) >= depth {
			c.frames = c.frames[:depth-1]
		}
	}
}

// Resolve looks up attr in the active row-context stack, most-recently
// pushed frame first, so a nested operation resolves against the
// innermost row that publishes the attribute.
func (c *Context) Resolve(id AttributeID) (Value, bool) {
	for i := len(c.frames) - 1; i >= 0; i-- {
		f := c.frames[i]
		if pos, ok := f.desc.Position(id); ok {
			return f.row[pos], true
		}
	}
	return NullValue, false
}

// FrameDepth reports the current row-stack depth, used by tests to
// assert that every push is matched by a pop (spec.md §8: "D is popped
// before Op's sequence terminates or is cancelled").
func (c *Context) FrameDepth() int { return len(c.frames) }
