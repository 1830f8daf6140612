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

	"github.com/sirupsen/logrus"

	"github.com/quereus/quereus/sql"
)

// Module is the in-memory virtual-table module (C4): it connects
// named tables against a schema, backing each with its own
// TableManager (C3) built on the layer stack (C2) and ordered tree
// (C1).
type Module struct {
	logger *logrus.Logger

	mu     sync.Mutex
	tables map[string]*Table
}

// NewModule builds an in-memory module. logger may be nil to use the
// standard logger.
func NewModule(logger *logrus.Logger) *Module {
	return &Module{logger: logger, tables: map[string]*Table{}}
}

func (m *Module) Capabilities() sql.Capabilities {
	return sql.Capabilities{
		SupportsIsolation:        true,
		SupportsSavepoints:       true,
		SupportsSecondaryIndexes: true,
	}
}

// Connect creates (or re-opens) the named table against schema.
func (m *Module) Connect(tableName string, schema *sql.Schema, options map[string]string) (sql.Table, error) {
	if err := schema.ValidatePrimaryKey(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tables[tableName]; ok {
		return t, nil
	}
	manager := NewTableManager(tableName, schema, m.logger)
	t := NewTable(manager)
	m.tables[tableName] = t
	return t, nil
}

// Drop removes a table from the module, used by DROP TABLE.
func (m *Module) Drop(tableName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, tableName)
}

// Lookup returns a previously connected table, if any.
func (m *Module) Lookup(tableName string) (*Table, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[tableName]
	return t, ok
}

// Tables returns the names of every table currently connected through
// this module, used by schema introspection.
func (m *Module) Tables() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.tables))
	for name := range m.tables {
		names = append(names, name)
	}
	return names
}
