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

package rowexec

import (
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/quereus/quereus/sql"
	"github.com/quereus/quereus/sql/plan"
)

// coerceColumnValue validates v against col's declared type and
// converts it when the conversion is unambiguous, per the table
// contract's requirement that mutate() "validate per-column types;
// apply default values; produce a typed row" before writing. Unlike
// expression.CoerceTo's permissive CAST affinity (which leaves a value
// it cannot parse as a zero rather than failing), this is the stricter
// column-level check CoerceTo's own doc comment reserves for mutate():
// TEXT that does not parse, or a kind with no conversion to col.Type,
// is rejected with a TypeError instead of silently stored as 0. A REAL
// stored into an INTEGER column is truncated toward zero.
func coerceColumnValue(v sql.Value, col sql.Column) (sql.Value, error) {
	if v.IsNull() || v.Kind() == col.Type {
		return v, nil
	}
	switch col.Type {
	case sql.KindInteger:
		switch v.Kind() {
		case sql.KindReal:
			return sql.IntegerValue(int64(v.Real())), nil
		case sql.KindText:
			i, err := strconv.ParseInt(strings.TrimSpace(v.Text()), 10, 64)
			if err != nil {
				return sql.NullValue, sql.NewError(sql.KindTypeError, "column %s: %q is not a valid integer", col.Name, v.Text())
			}
			return sql.IntegerValue(i), nil
		}
	case sql.KindReal:
		switch v.Kind() {
		case sql.KindInteger:
			return sql.RealValue(float64(v.Integer())), nil
		case sql.KindText:
			f, err := strconv.ParseFloat(strings.TrimSpace(v.Text()), 64)
			if err != nil {
				return sql.NullValue, sql.NewError(sql.KindTypeError, "column %s: %q is not a valid real", col.Name, v.Text())
			}
			return sql.RealValue(f), nil
		}
	case sql.KindText:
		switch v.Kind() {
		case sql.KindInteger, sql.KindReal:
			return sql.TextValue(v.String()), nil
		case sql.KindBlob:
			return sql.TextValue(string(v.Blob())), nil
		}
	case sql.KindBlob:
		if v.Kind() == sql.KindText {
			return sql.BlobValue([]byte(v.Text())), nil
		}
	}
	return sql.NullValue, sql.NewError(sql.KindTypeError, "column %s: cannot store %s as %s", col.Name, v.Kind(), col.Type)
}

// ExecInsert drives ins.Source and writes one row per source row
// through Target.Table.Mutate, filling any column ins.Columns does not
// cover from the schema's default expression (NULL absent one). It
// returns the count of rows accepted before the first constraint
// violation or error, which for ConflictIgnore/ConflictReplace never
// happens on a duplicate key since the table absorbs those itself.
func ExecInsert(ctx *sql.Context, ins *plan.Insert) (int64, error) {
	src, err := Compile(ctx, ins.Source)
	if err != nil {
		return 0, err
	}
	schema := ins.Target.Table.Schema()

	var affected int64
	for {
		row, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			src.Close(ctx)
			return affected, err
		}
		newRow, err := fillInsertRow(ctx, schema, ins.Columns, row)
		if err != nil {
			src.Close(ctx)
			return affected, err
		}
		res, err := ins.Target.Table.Mutate(ctx, sql.OpInsert, newRow, nil, ins.Conflict)
		if err != nil {
			src.Close(ctx)
			return affected, err
		}
		if res.Constraint != nil {
			src.Close(ctx)
			return affected, res.Constraint
		}
		affected++
	}
	if err := src.Close(ctx); err != nil {
		return affected, err
	}
	return affected, nil
}

func fillInsertRow(ctx *sql.Context, schema *sql.Schema, columns []int, src sql.Row) (sql.Row, error) {
	if len(src) != len(columns) {
		return nil, errors.Errorf("insert source produced %d values, expected %d", len(src), len(columns))
	}
	row := make(sql.Row, len(schema.Columns))
	for i, c := range schema.Columns {
		if c.Default != nil {
			v, err := c.Default.Eval(ctx, sql.Row{})
			if err != nil {
				return nil, err
			}
			row[i] = v
		} else {
			row[i] = sql.NullValue
		}
	}
	for i, colIdx := range columns {
		v, err := coerceColumnValue(src[i], schema.Columns[colIdx])
		if err != nil {
			return nil, err
		}
		row[colIdx] = v
	}
	return row, nil
}

// ExecUpdate drives upd.Source (a filtered full-table scan) and, for
// each row, evaluates the SET assignments against that row's own
// context before writing the mutated row back under the old row's
// primary key.
func ExecUpdate(ctx *sql.Context, upd *plan.Update) (int64, error) {
	src, err := Compile(ctx, upd.Source)
	if err != nil {
		return 0, err
	}
	for _, a := range upd.Assignments {
		bindExpr(a.Expr)
	}
	schema := upd.Target.Table.Schema()
	desc := sql.NewRowDescriptor(upd.Source.Attributes())

	var affected int64
	for {
		oldRow, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			src.Close(ctx)
			return affected, err
		}
		oldKey := schema.PrimaryKeyValues(oldRow)
		newRow := oldRow.Copy()

		release := ctx.PushRow(desc, oldRow)
		evalErr := func() error {
			for _, a := range upd.Assignments {
				v, err := a.Expr.Eval(ctx, oldRow)
				if err != nil {
					return err
				}
				v, err = coerceColumnValue(v, schema.Columns[a.Column])
				if err != nil {
					return err
				}
				newRow[a.Column] = v
			}
			return nil
		}()
		release()
		if evalErr != nil {
			src.Close(ctx)
			return affected, evalErr
		}

		res, err := upd.Target.Table.Mutate(ctx, sql.OpUpdate, newRow, oldKey, upd.Conflict)
		if err != nil {
			src.Close(ctx)
			return affected, err
		}
		if res.Constraint != nil {
			src.Close(ctx)
			return affected, res.Constraint
		}
		affected++
	}
	if err := src.Close(ctx); err != nil {
		return affected, err
	}
	return affected, nil
}

// ExecDelete drives del.Source (a filtered full-table scan) and
// removes each row it yields by primary key.
func ExecDelete(ctx *sql.Context, del *plan.Delete) (int64, error) {
	src, err := Compile(ctx, del.Source)
	if err != nil {
		return 0, err
	}
	schema := del.Target.Table.Schema()

	var affected int64
	for {
		row, err := src.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			src.Close(ctx)
			return affected, err
		}
		oldKey := schema.PrimaryKeyValues(row)
		res, err := del.Target.Table.Mutate(ctx, sql.OpDelete, nil, oldKey, sql.ConflictAbort)
		if err != nil {
			src.Close(ctx)
			return affected, err
		}
		if res.Constraint != nil {
			src.Close(ctx)
			return affected, res.Constraint
		}
		affected++
	}
	if err := src.Close(ctx); err != nil {
		return affected, err
	}
	return affected, nil
}
