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

// Package quereus wires the Database/Statement API (spec.md §6) on top
// of the plan builder (C5/C6), optimizer (C7), row-execution runtime
// (C8/C9), and transaction coordinator (C10): Open registers virtual-table
// modules, Exec and Prepare parse, build, optimize, and run statements
// against them.
package quereus

import (
	"context"
	"io"
	"sync"

	"github.com/dolthub/vitess/go/sqltypes"
	querypb "github.com/dolthub/vitess/go/vt/proto/query"
	"github.com/dolthub/vitess/go/vt/sqlparser"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/analyzer"
	"github.com/quereus/quereus/sql/plan"
	"github.com/quereus/quereus/sql/planbuilder"
	"github.com/quereus/quereus/sql/rowexec"
	"github.com/quereus/quereus/txn"
)

// Config configures a Database, mirroring the teacher's sqle.Config: a
// small struct of functional defaults applied by withDefaults.
type Config struct {
	// Logger receives structured diagnostics from the coordinator and
	// the table managers it drives. Defaults to logrus.StandardLogger().
	Logger *logrus.Logger
}

func (c *Config) withDefaults() *Config {
	cp := Config{}
	if c != nil {
		cp = *c
	}
	if cp.Logger == nil {
		cp.Logger = logrus.StandardLogger()
	}
	return &cp
}

// Listener receives post-commit data-change and schema-change
// notifications, the session-level hooks spec.md §6 calls optional.
type Listener interface {
	OnDataChange(schemaName, tableName string, op sql.Op, affected int64)
	OnSchemaChange(schemaName, tableName string)
}

// Database is the embeddable engine handle: it owns the registered
// virtual-table modules, the connected tables they back, and one
// transaction coordinator session per caller-assigned session id.
type Database struct {
	cfg    *Config
	logger *logrus.Logger

	mu       sync.Mutex
	modules  map[string]sql.Module
	tables   map[string]sql.Table // "schema.table" -> connected table
	byName   map[string]sql.Table // bare table name -> connected table, for unqualified lookups

	sessions map[uint64]*txn.Session
	nextSess uint64

	listenersMu sync.Mutex
	listeners   []Listener
}

// Open creates a Database ready to register modules and run statements.
// Call Close to release its background state when done.
func Open(cfg *Config) (*Database, error) {
	cfg = cfg.withDefaults()
	return &Database{
		cfg:      cfg,
		logger:   cfg.Logger,
		modules:  map[string]sql.Module{},
		tables:   map[string]sql.Table{},
		byName:   map[string]sql.Table{},
		sessions: map[uint64]*txn.Session{},
	}, nil
}

// Close releases the Database. The in-memory module holds no external
// resources, but Close exists so host code and future persistent
// modules have a single, uniform shutdown hook.
func (d *Database) Close() error {
	return nil
}

// RegisterModule installs a virtual-table module under name, making it
// available to CreateTable.
func (d *Database) RegisterModule(name string, module sql.Module) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.modules[name] = module
}

// AddListener registers a data-change/schema-change listener.
func (d *Database) AddListener(l Listener) {
	d.listenersMu.Lock()
	defer d.listenersMu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Database) notifySchemaChange(schemaName, tableName string) {
	d.listenersMu.Lock()
	ls := append([]Listener(nil), d.listeners...)
	d.listenersMu.Unlock()
	for _, l := range ls {
		l.OnSchemaChange(schemaName, tableName)
	}
}

func (d *Database) notifyDataChange(schemaName, tableName string, op sql.Op, affected int64) {
	if affected == 0 {
		return
	}
	d.listenersMu.Lock()
	ls := append([]Listener(nil), d.listeners...)
	d.listenersMu.Unlock()
	for _, l := range ls {
		l.OnDataChange(schemaName, tableName, op, affected)
	}
}

// CreateTable connects tableName against moduleName's module and
// registers the resulting virtual table under schemaName for lookup by
// the plan builder's Catalog. DDL metadata persistence is out of scope
// (spec.md §1); callers describe schemas directly in Go.
func (d *Database) CreateTable(moduleName, schemaName, tableName string, schema *sql.Schema, options map[string]string) (sql.Table, error) {
	d.mu.Lock()
	mod, ok := d.modules[moduleName]
	d.mu.Unlock()
	if !ok {
		return nil, sql.NewError(sql.KindMisuse, "no such module: %s", moduleName)
	}
	schema.SchemaName = schemaName
	schema.TableName = tableName
	t, err := mod.Connect(tableName, schema, options)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.tables[schemaName+"."+tableName] = t
	d.byName[tableName] = t
	d.mu.Unlock()
	d.notifySchemaChange(schemaName, tableName)
	return t, nil
}

// Table resolves a name against the connected-table registry, the
// planbuilder.Catalog contract. schemaName may be empty, in which case
// the table is looked up by its bare name only.
func (d *Database) Table(schemaName, tableName string) (sql.Table, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if schemaName != "" {
		t, ok := d.tables[schemaName+"."+tableName]
		return t, ok
	}
	t, ok := d.byName[tableName]
	return t, ok
}

// newSession allocates a session id and its coordinator state; a
// Database assigns one per caller-visible connection.
func (d *Database) newSession() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextSess++
	id := d.nextSess
	d.sessions[id] = txn.NewSession(d.logger)
	return id
}

func (d *Database) sessionFor(id uint64) *txn.Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sessions[id]
	if !ok {
		s = txn.NewSession(d.logger)
		d.sessions[id] = s
	}
	return s
}

// NewSessionContext builds a *sql.Context bound to a freshly assigned
// session id, wired to parent for cancellation.
func (d *Database) NewSessionContext(parent context.Context) *sql.Context {
	if parent == nil {
		parent = context.Background()
	}
	return sql.NewContext(parent, d.logger).WithSession(d.newSession())
}

// GetAutocommit reports whether ctx's session is outside an explicit
// transaction.
func (d *Database) GetAutocommit(ctx *sql.Context) bool {
	return d.sessionFor(ctx.Session).Autocommit()
}

// Begin starts an explicit transaction on ctx's session.
func (d *Database) Begin(ctx *sql.Context) {
	d.sessionFor(ctx.Session).Begin()
}

// Commit drives the coordinated commit protocol (C10) across every
// table ctx's session touched.
func (d *Database) Commit(ctx *sql.Context) error {
	return d.sessionFor(ctx.Session).Commit(ctx)
}

// Rollback discards every table ctx's session touched.
func (d *Database) Rollback(ctx *sql.Context) error {
	return d.sessionFor(ctx.Session).Rollback(ctx)
}

func (d *Database) Savepoint(ctx *sql.Context, name string) error {
	return d.sessionFor(ctx.Session).Savepoint(ctx, name)
}

func (d *Database) Release(ctx *sql.Context, name string) error {
	return d.sessionFor(ctx.Session).Release(ctx, name)
}

func (d *Database) RollbackTo(ctx *sql.Context, name string) error {
	return d.sessionFor(ctx.Session).RollbackTo(ctx, name)
}

// Result is what Exec returns: the number of rows affected by an
// INSERT/UPDATE/DELETE, or the number of rows a SELECT produced.
// LastInsertID is not populated by Exec and is always zero.
type Result struct {
	RowsAffected int64
	LastInsertID int64
}

// Exec parses, plans, optimizes, and runs sql to completion against
// ctx's session, driving the transaction coordinator's autocommit
// bookkeeping around the statement. For INSERT/UPDATE/DELETE the
// Result carries the affected-row count; a SELECT is run to completion
// and only its row count is returned, so callers that need the rows
// use Prepare.
func (d *Database) Exec(ctx *sql.Context, query string) (Result, error) {
	stmt, err := sqlparser.Parse(query)
	if err != nil {
		return Result{}, sql.Wrap(sql.KindParseError, err, "parse %q", query)
	}
	return d.execParsed(ctx, stmt)
}

func (d *Database) execParsed(ctx *sql.Context, stmt sqlparser.Statement) (Result, error) {
	session := d.sessionFor(ctx.Session)
	autocommit := session.Autocommit()

	node, err := planbuilder.New(d).Build(stmt)
	if err != nil {
		return Result{}, err
	}
	optimized, err := analyzer.Optimize(d.logger, node)
	if err != nil {
		return Result{}, err
	}

	if err := d.touchTargets(ctx, session, optimized); err != nil {
		return Result{}, err
	}

	res, execErr := d.runDML(ctx, optimized)

	if autocommit {
		if execErr != nil {
			_ = session.Rollback(ctx)
			return res, execErr
		}
		if err := session.Commit(ctx); err != nil {
			return res, err
		}
	} else if execErr != nil {
		return res, execErr
	}
	return res, nil
}

// runDML dispatches the three mutating statement shapes to their
// rowexec entry points, which return an affected-row count directly
// rather than a sql.RowIter (Compile never handles DML nodes — see
// DESIGN.md).
func (d *Database) runDML(ctx *sql.Context, node plan.Node) (Result, error) {
	switch n := node.(type) {
	case *plan.Insert:
		affected, err := rowexec.ExecInsert(ctx, n)
		if err != nil {
			return Result{RowsAffected: affected}, err
		}
		d.notifyDataChange(n.Target.Table.Schema().SchemaName, n.Target.TableName, sql.OpInsert, affected)
		return Result{RowsAffected: affected}, nil
	case *plan.Update:
		affected, err := rowexec.ExecUpdate(ctx, n)
		if err != nil {
			return Result{RowsAffected: affected}, err
		}
		d.notifyDataChange(n.Target.Table.Schema().SchemaName, n.Target.TableName, sql.OpUpdate, affected)
		return Result{RowsAffected: affected}, nil
	case *plan.Delete:
		affected, err := rowexec.ExecDelete(ctx, n)
		if err != nil {
			return Result{RowsAffected: affected}, err
		}
		d.notifyDataChange(n.Target.Table.Schema().SchemaName, n.Target.TableName, sql.OpDelete, affected)
		return Result{RowsAffected: affected}, nil
	default:
		// A SELECT reached through Exec rather than Prepare: run it to
		// completion and report the row count, discarding the rows
		// themselves, matching exec()'s "affected-row count" contract
		// for statements the caller did not Prepare.
		iter, err := rowexec.Compile(ctx, node)
		if err != nil {
			return Result{}, err
		}
		var count int64
		for {
			_, err := iter.Next(ctx)
			if err == io.EOF {
				break
			}
			if err != nil {
				iter.Close(ctx)
				return Result{RowsAffected: count}, err
			}
			count++
		}
		if err := iter.Close(ctx); err != nil {
			return Result{RowsAffected: count}, err
		}
		return Result{RowsAffected: count}, nil
	}
}

// touchTargets registers every table node writes to (or scans) with
// the session's coordinator before execution, so autocommit statements
// and explicit transactions alike drive Begin exactly once per table
// per transaction.
func (d *Database) touchTargets(ctx *sql.Context, session *txn.Session, node plan.Node) error {
	seen := map[sql.Table]bool{}
	var walk func(n plan.Node) error
	walk = func(n plan.Node) error {
		switch t := n.(type) {
		case *plan.TableScan:
			if !seen[t.Table] {
				seen[t.Table] = true
				if err := session.Touch(ctx, t.Table); err != nil {
					return err
				}
			}
		case *plan.Insert:
			if !seen[t.Target.Table] {
				seen[t.Target.Table] = true
				if err := session.Touch(ctx, t.Target.Table); err != nil {
					return err
				}
			}
		case *plan.Update:
			if !seen[t.Target.Table] {
				seen[t.Target.Table] = true
				if err := session.Touch(ctx, t.Target.Table); err != nil {
					return err
				}
			}
		case *plan.Delete:
			if !seen[t.Target.Table] {
				seen[t.Target.Table] = true
				if err := session.Touch(ctx, t.Target.Table); err != nil {
					return err
				}
			}
		}
		for _, c := range n.Children() {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(node)
}

// Statement is a prepared, optimized plan ready to run repeatedly,
// spec.md §6's prepare()/statement.run() pair.
type Statement struct {
	id       uuid.UUID
	db       *Database
	node     plan.Node
	isQuery  bool
	rawQuery string
}

// Prepare parses, builds, and optimizes query once; the resulting
// Statement may be Run multiple times. Run takes no parameter values:
// a `?` placeholder is built as a ParameterReference with no bound
// value, and evaluating it reports a Misuse error.
func (d *Database) Prepare(query string) (*Statement, error) {
	stmt, err := sqlparser.Parse(query)
	if err != nil {
		return nil, sql.Wrap(sql.KindParseError, err, "parse %q", query)
	}
	node, err := planbuilder.New(d).Build(stmt)
	if err != nil {
		return nil, err
	}
	optimized, err := analyzer.Optimize(d.logger, node)
	if err != nil {
		return nil, err
	}
	isQuery := isRowProducing(optimized)
	id := uuid.New()
	d.logger.WithField("statement", id).Debugf("prepared statement: %s", query)
	return &Statement{id: id, db: d, node: optimized, isQuery: isQuery, rawQuery: query}, nil
}

func isRowProducing(node plan.Node) bool {
	switch node.(type) {
	case *plan.Insert, *plan.Update, *plan.Delete:
		return false
	default:
		return true
	}
}

// Run executes the prepared statement against ctx, driving the
// coordinator's autocommit bookkeeping exactly as Exec does, and
// returns a lazy row sequence for a row-producing statement (SELECT)
// or, for DML, a one-row sequence whose single INTEGER value is the
// affected-row count.
func (s *Statement) Run(ctx *sql.Context) (sql.RowIter, error) {
	session := s.db.sessionFor(ctx.Session)
	autocommit := session.Autocommit()

	if err := s.db.touchTargets(ctx, session, s.node); err != nil {
		return nil, err
	}

	if !s.isQuery {
		res, err := s.db.runDML(ctx, s.node)
		if autocommit {
			if err != nil {
				_ = session.Rollback(ctx)
				return nil, err
			}
			if cErr := session.Commit(ctx); cErr != nil {
				return nil, cErr
			}
		} else if err != nil {
			return nil, err
		}
		return sql.RowsToRowIter(sql.Row{sql.IntegerValue(res.RowsAffected)}), nil
	}

	iter, err := rowexec.Compile(ctx, s.node)
	if err != nil {
		return nil, err
	}
	if autocommit {
		// A read-only autocommit statement still opens and closes a
		// single-statement transaction across every table it scans, per
		// the coordinator's contract (Touch is required before any read).
		return &autocommitRowIter{inner: iter, ctx: ctx, session: session}, nil
	}
	return iter, nil
}

// autocommitRowIter commits the coordinator session once the wrapped
// iterator is exhausted or closed, so an autocommit SELECT's snapshot
// is released promptly instead of leaking until GC.
type autocommitRowIter struct {
	inner   sql.RowIter
	ctx     *sql.Context
	session *txn.Session
	done    bool
}

func (it *autocommitRowIter) Next(ctx *sql.Context) (sql.Row, error) {
	row, err := it.inner.Next(ctx)
	if err != nil {
		it.finish()
	}
	return row, err
}

func (it *autocommitRowIter) Close(ctx *sql.Context) error {
	err := it.inner.Close(ctx)
	it.finish()
	return err
}

func (it *autocommitRowIter) finish() {
	if it.done {
		return
	}
	it.done = true
	_ = it.session.Commit(it.ctx)
}

// ExplainPlan renders the statement's optimized plan tree as one line
// per node (its String()), each child indented two spaces deeper than
// its parent.
func (s *Statement) ExplainPlan() string {
	return explainNode(s.node, 0)
}

// Query returns the original SQL text this statement was prepared
// from.
func (s *Statement) Query() string {
	return s.rawQuery
}

func explainNode(n plan.Node, depth int) string {
	indent := ""
	for i := 0; i < depth; i++ {
		indent += "  "
	}
	out := indent + n.String() + "\n"
	for _, c := range n.Children() {
		out += explainNode(c, depth+1)
	}
	return out
}

// ColumnTypes reports the vitess wire type code for each attribute the
// statement's plan publishes, the external-facing type reporting the
// domain stack wires sqltypes/querypb into.
func (s *Statement) ColumnTypes() []querypb.Type {
	attrs := s.node.Attributes()
	out := make([]querypb.Type, len(attrs))
	for i, a := range attrs {
		out[i] = wireType(a.Type)
	}
	return out
}

func wireType(k sql.ValueKind) querypb.Type {
	switch k {
	case sql.KindInteger:
		return sqltypes.Int64
	case sql.KindReal:
		return sqltypes.Float64
	case sql.KindText:
		return sqltypes.VarChar
	case sql.KindBlob:
		return sqltypes.VarBinary
	default:
		return sqltypes.Null
	}
}

