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
	"github.com/quereus/quereus/sql"
)

// cursor implements sql.Cursor over a Connection's read layer. Filter
// chooses which tree to scan and the key bounds based on idxNum/idxStr
// as BestIndex assigned them; Next/EOF/Column walk the resulting
// buffered row set (the ordered tree's Range already materializes the
// merged view, so the cursor itself is a simple forward index over
// that slice).
type cursor struct {
	table *Table
	conn  *Connection

	rows []RangeEntry
	pos  int
}

func (c *cursor) Filter(ctx *sql.Context, idxNum int, idxStr string, args []sql.Value) error {
	layer := c.conn.ReadLayer()
	switch idxStr {
	case "pk_eq":
		key, err := EncodeKey(sql.Row(args))
		if err != nil {
			return err
		}
		if row, tomb, present := layer.primary.Get(key); present && !tomb {
			c.rows = []RangeEntry{{Key: key, Row: row}}
		} else {
			c.rows = nil
		}
	case "pk_range":
		lo, hi, err := boundsFromArgs(args)
		if err != nil {
			return err
		}
		c.rows = layer.primary.Range(lo, hi, Ascending)
	default:
		if idxNum >= 100 {
			tree := layer.indexes[idxStr]
			if tree == nil {
				c.rows = layer.primary.Range(nil, nil, Ascending)
				break
			}
			if len(args) == 1 {
				key, err := EncodeKey(sql.Row(args))
				if err != nil {
					return err
				}
				c.rows = tree.Range(key, nextKey(key), Ascending)
			} else {
				c.rows = tree.Range(nil, nil, Ascending)
			}
		} else {
			c.rows = layer.primary.Range(nil, nil, Ascending)
		}
	}
	c.pos = 0
	return nil
}

// boundsFromArgs derives an inclusive lower bound from the first arg
// BestIndex's pk_range plan supplied (BestIndex offers that plan only
// for GT/GE constraints); hi is always nil, so the scan runs to the end
// of the tree and the residual filter enforces the exact comparison.
func boundsFromArgs(args []sql.Value) (lo, hi Key, err error) {
	if len(args) == 0 {
		return nil, nil, nil
	}
	k, err := EncodeKey(sql.Row{args[0]})
	if err != nil {
		return nil, nil, err
	}
	return k, nil, nil
}

// nextKey returns the lexicographically next key after k, used to turn
// an equality bound into a half-open [k, k+1) range over an index tree.
func nextKey(k Key) Key {
	out := make(Key, len(k)+1)
	copy(out, k)
	out[len(k)] = 0xff
	return out
}

func (c *cursor) Next(ctx *sql.Context) error {
	c.pos++
	return nil
}

func (c *cursor) EOF() bool { return c.pos >= len(c.rows) }

func (c *cursor) Column(ctx *sql.Context, i int) (sql.Value, error) {
	if c.EOF() {
		return sql.NullValue, sql.NewError(sql.KindInternal, "column read past EOF")
	}
	row := c.rows[c.pos].Row
	if i < 0 || i >= len(row) {
		return sql.NullValue, sql.NewError(sql.KindInternal, "column index %d out of range", i)
	}
	return row[i], nil
}

func (c *cursor) RowID(ctx *sql.Context) (int64, error) {
	if c.EOF() {
		return 0, sql.NewError(sql.KindInternal, "row id read past EOF")
	}
	return 0, nil
}

func (c *cursor) Close(ctx *sql.Context) error {
	c.rows = nil
	return nil
}
