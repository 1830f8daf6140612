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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quereus/quereus/sql"
)

// TestCoerceColumnValuePassesMatchingAndConvertibleKinds verifies the
// mutation-path coercion helper leaves NULL and already-matching values
// untouched and converts unambiguous numeric/text pairs.
func TestCoerceColumnValuePassesMatchingAndConvertibleKinds(t *testing.T) {
	req := require.New(t)
	intCol := sql.Column{Name: "n", Type: sql.KindInteger}

	v, err := coerceColumnValue(sql.NullValue, intCol)
	req.NoError(err)
	req.True(v.IsNull())

	v, err = coerceColumnValue(sql.IntegerValue(5), intCol)
	req.NoError(err)
	req.Equal(int64(5), v.Integer())

	v, err = coerceColumnValue(sql.RealValue(3.9), intCol)
	req.NoError(err)
	req.Equal(int64(3), v.Integer())

	v, err = coerceColumnValue(sql.TextValue(" 42 "), intCol)
	req.NoError(err)
	req.Equal(int64(42), v.Integer())
}

// TestCoerceColumnValueRejectsUnparseableText verifies that a TEXT value
// with no faithful integer representation is rejected with a
// KindTypeError rather than silently stored as zero, unlike
// expression.CoerceTo's permissive CAST semantics.
func TestCoerceColumnValueRejectsUnparseableText(t *testing.T) {
	req := require.New(t)
	intCol := sql.Column{Name: "n", Type: sql.KindInteger}

	_, err := coerceColumnValue(sql.TextValue("not a number"), intCol)
	req.Error(err)
	req.True(sql.IsKind(err, sql.KindTypeError))
}

// TestCoerceColumnValueRejectsUnrelatedKinds verifies that a BLOB value
// targeting an INTEGER column (no unambiguous conversion) is rejected.
func TestCoerceColumnValueRejectsUnrelatedKinds(t *testing.T) {
	req := require.New(t)
	intCol := sql.Column{Name: "n", Type: sql.KindInteger}

	_, err := coerceColumnValue(sql.BlobValue([]byte{1, 2, 3}), intCol)
	req.Error(err)
	req.True(sql.IsKind(err, sql.KindTypeError))
}

// TestExecInsertCoercesAssignableValues verifies that fillInsertRow,
// which builds each row ExecInsert writes, accepts a TEXT value
// supplied for an INTEGER column when it parses cleanly, yielding the
// coerced INTEGER rather than the original TEXT value.
func TestExecInsertCoercesAssignableValues(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()
	tbl := newEmployeesTable(t, ctx)
	require.NoError(t, tbl.Begin(ctx))

	schema := employeesSchema()
	row, err := fillInsertRow(ctx, schema, []int{0, 1, 2}, sql.NewRow(sql.TextValue("7"), sql.TextValue("eng"), sql.IntegerValue(90)))
	req.NoError(err)
	req.Equal(int64(7), row[0].Integer())
}

// TestExecInsertRejectsUncoercibleValue verifies fillInsertRow surfaces
// a KindTypeError when a supplied value cannot be coerced to its
// column's declared type, rather than storing it untyped.
func TestExecInsertRejectsUncoercibleValue(t *testing.T) {
	req := require.New(t)
	ctx := sql.NewEmptyContext()
	schema := employeesSchema()

	_, err := fillInsertRow(ctx, schema, []int{0, 1, 2}, sql.NewRow(sql.TextValue("nope"), sql.TextValue("eng"), sql.IntegerValue(90)))
	req.Error(err)
	req.True(sql.IsKind(err, sql.KindTypeError))
}
