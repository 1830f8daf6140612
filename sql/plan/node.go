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

// Package plan implements the relational half of the plan node
// taxonomy: TableScan, TableFunctionCall, Values, SingleRow, Filter,
// Project, Distinct, Sort, Aggregate, Window, LimitOffset, Join,
// SetOperation, CTEReference, Insert, Update, Delete.
//
// Per the design notes, plan nodes form a DAG, never a cycle (a CTE may
// be referenced twice); the closed set of variants below replaces a
// deep/virtual class hierarchy with a tagged sum. Shared behavior
// (Attributes/Children/String) is the thin Node interface; concrete
// variants are plain structs holding immutable references to their
// sources.
package plan

import "github.com/quereus/quereus/sql"

// Node is the relational plan node interface. Every concrete variant
// publishes the attributes of the row it produces, its child nodes
// (for traversal by the optimizer and emitter), and a printable form
// for EXPLAIN-style output.
type Node interface {
	Attributes() []sql.Attribute
	Children() []Node
	String() string
}

// attrsOf is a small helper used throughout this package to build the
// []sql.Attribute slice nodes publish.
func attrsOf(attrs ...sql.Attribute) []sql.Attribute { return attrs }
