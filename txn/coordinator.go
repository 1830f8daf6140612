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

// Package txn implements the Transaction Coordinator (C10): it tracks,
// per session, which tables an explicit transaction has touched and
// drives BEGIN/COMMIT/ROLLBACK and SAVEPOINT/RELEASE/ROLLBACK TO
// against every one of them in a coordinated fashion, so a statement
// that writes to several virtual tables commits (or rolls back) all of
// them as one unit.
package txn

import (
	"github.com/sirupsen/logrus"

	"github.com/quereus/quereus/sql"
)

// Session is the coordinator's per-connection state: whether the
// session is currently inside an explicit transaction, and the ordered
// set of tables that transaction has touched so far. Tables are
// recorded in first-touch order and Begin is invoked on each at most
// once per transaction, mirroring clearAutocommitTransaction's
// single-pass bookkeeping in the engine this design is adapted from.
type Session struct {
	logger *logrus.Logger

	explicit bool
	touched  []sql.Table
	seen     map[sql.Table]bool

	savepointDepth int
	savepoints     []string
}

// NewSession creates a coordinator session in autocommit mode.
func NewSession(logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Session{logger: logger, seen: map[sql.Table]bool{}}
}

// Autocommit reports whether the session is outside an explicit
// transaction.
func (s *Session) Autocommit() bool { return !s.explicit }

// Begin starts an explicit transaction. It is idempotent: a second
// BEGIN before COMMIT/ROLLBACK is a no-op, matching the relaxed
// behavior most embedding engines give nested BEGIN.
func (s *Session) Begin() {
	s.explicit = true
}

// Touch registers table as participating in the current transaction,
// calling its Begin hook the first time it is seen this transaction.
// Touch must be called by the executor before any read or write
// against table, whether or not the session is in an explicit
// transaction — autocommit statements run as a single-table
// transaction that begins and commits around the one statement.
func (s *Session) Touch(ctx *sql.Context, table sql.Table) error {
	if s.seen[table] {
		return nil
	}
	if s.seen == nil {
		s.seen = map[sql.Table]bool{}
	}
	s.seen[table] = true
	s.touched = append(s.touched, table)
	return table.Begin(ctx)
}

// Commit drives the coordinated commit protocol across every table
// touched by the current transaction: first Sync every table (giving
// each a chance to validate deferred constraints against its own
// final state), then collect each Coordinator-capable table's pending
// parent into a shared sibling set, then Commit every table, passing
// that set so a table accepts another table's pending layer as a
// legitimate commit parent. A failure at any stage aborts the whole
// batch; callers are expected to treat a failed Commit as requiring
// Rollback, per spec.md §4.10.
func (s *Session) Commit(ctx *sql.Context) error {
	defer s.reset()

	for _, t := range s.touched {
		if err := t.Sync(ctx); err != nil {
			return err
		}
	}

	siblingParents := map[interface{}]bool{}
	for _, t := range s.touched {
		if c, ok := t.(sql.Coordinator); ok {
			if p := c.PendingParent(ctx); p != nil {
				siblingParents[p] = true
			}
		}
	}

	for _, t := range s.touched {
		var err error
		if c, ok := t.(sql.Coordinator); ok {
			err = c.CommitCoordinated(ctx, siblingParents)
		} else {
			err = t.Commit(ctx)
		}
		if err != nil {
			s.logger.WithError(err).Warn("coordinated commit failed partway; already-committed tables are not rolled back")
			return err
		}
	}
	return nil
}

// Rollback discards every touched table's pending transaction state.
func (s *Session) Rollback(ctx *sql.Context) error {
	defer s.reset()
	var firstErr error
	for _, t := range s.touched {
		if err := t.Rollback(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Session) reset() {
	s.explicit = false
	s.touched = nil
	s.seen = map[sql.Table]bool{}
	s.savepointDepth = 0
	s.savepoints = nil
}

// Savepoint creates a named savepoint at the next depth across every
// table touched so far in the current transaction.
func (s *Session) Savepoint(ctx *sql.Context, name string) error {
	depth := s.savepointDepth
	for _, t := range s.touched {
		if err := t.Savepoint(ctx, depth); err != nil {
			return err
		}
	}
	s.savepoints = append(s.savepoints, name)
	s.savepointDepth++
	return nil
}

// Release releases the named savepoint and every savepoint nested
// inside it, across every touched table.
func (s *Session) Release(ctx *sql.Context, name string) error {
	depth, ok := s.depthOf(name)
	if !ok {
		return sql.NewError(sql.KindMisuse, "no such savepoint: %s", name)
	}
	for _, t := range s.touched {
		if err := t.Release(ctx, depth); err != nil {
			return err
		}
	}
	s.savepoints = s.savepoints[:depth]
	s.savepointDepth = depth
	return nil
}

// RollbackTo rolls every touched table back to the named savepoint,
// discarding savepoints nested inside it but preserving the named one
// itself, per SQL standard ROLLBACK TO SAVEPOINT semantics.
func (s *Session) RollbackTo(ctx *sql.Context, name string) error {
	depth, ok := s.depthOf(name)
	if !ok {
		return sql.NewError(sql.KindMisuse, "no such savepoint: %s", name)
	}
	for _, t := range s.touched {
		if err := t.RollbackTo(ctx, depth); err != nil {
			return err
		}
	}
	s.savepoints = s.savepoints[:depth+1]
	s.savepointDepth = depth + 1
	return nil
}

func (s *Session) depthOf(name string) (int, bool) {
	for d := len(s.savepoints) - 1; d >= 0; d-- {
		if s.savepoints[d] == name {
			return d, true
		}
	}
	return 0, false
}
