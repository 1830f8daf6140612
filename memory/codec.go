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

// Package memory implements the in-memory virtual-table module: the
// key codec and ordered tree with inheritance (C1), the layer stack
// (C2), the table manager and per-connection transaction state (C3),
// and the sql.Table/sql.Cursor contract (C4) that the planner and
// runtime consume.
package memory

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/quereus/quereus/sql"
)

// Key is an order-preserving byte encoding of one or more sql.Values,
// such that bytes.Compare(k1, k2) == sql.Compare-chain(v1, v2) for any
// two encodable rows of values. It backs both primary-key and
// secondary-index lookups in the ordered tree.
type Key []byte

// tag bytes order NULL < numeric < TEXT < BLOB, matching the value
// kind ordering in package sql.
const (
	tagNull    byte = 0x01
	tagNumber  byte = 0x02
	tagText    byte = 0x03
	tagBlob    byte = 0x04
	fieldTerm  byte = 0x00 // separates composite-key fields
	escapeByte byte = 0x01
)

// EncodeValue appends the order-preserving encoding of v to buf and
// returns the result. Only NULL, INTEGER, REAL, TEXT, and BLOB are
// encodable; any other kind reports *sql.EncodingError as the data
// model specifies.
func EncodeValue(buf []byte, v sql.Value) ([]byte, error) {
	switch v.Kind() {
	case sql.KindNull:
		return append(buf, tagNull), nil
	case sql.KindInteger:
		buf = append(buf, tagNumber)
		return appendNumberKey(buf, float64(v.Integer()), true, v.Integer()), nil
	case sql.KindReal:
		buf = append(buf, tagNumber)
		return appendNumberKey(buf, v.Real(), false, 0), nil
	case sql.KindText:
		buf = append(buf, tagText)
		return appendEscaped(buf, []byte(v.Text())), nil
	case sql.KindBlob:
		buf = append(buf, tagBlob)
		return appendEscaped(buf, v.Blob()), nil
	default:
		return nil, &sql.EncodingError{Value: v}
	}
}

// appendNumberKey encodes a number so that byte order matches numeric
// order across both INTEGER and REAL: a two's-complement-biased
// integer encoding when isInt is true (exact, no float round-trip
// loss), otherwise an IEEE-754 sign-flipped encoding for reals. Both
// share the same tag and a one-byte sub-tag so INTEGER 5 and REAL 5.0
// compare equal in byte order, matching Compare's cross-type numeric
// rule.
func appendNumberKey(buf []byte, f float64, isInt bool, i int64) []byte {
	if isInt {
		// Bias so two's-complement ordering becomes unsigned byte
		// ordering: flip the sign bit.
		u := uint64(i) ^ (1 << 63)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], u)
		return append(buf, b[:]...)
	}
	bits := math.Float64bits(f)
	if f >= 0 {
		bits ^= 1 << 63
	} else {
		bits = ^bits
	}
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], bits)
	return append(buf, b[:]...)
}

// appendEscaped appends payload with the field terminator byte and the
// escape byte itself escaped, then writes the terminator, so the
// terminator never appears literally inside a TEXT/BLOB payload and
// composite keys remain unambiguous to decode and to compare.
func appendEscaped(buf, payload []byte) []byte {
	for _, b := range payload {
		if b == fieldTerm || b == escapeByte {
			buf = append(buf, escapeByte)
		}
		buf = append(buf, b)
	}
	return append(buf, fieldTerm)
}

// EncodeKey encodes a composite key (a Row of PK or index-column
// values) by concatenating each field's encoding. Single-column keys
// are the scalar case (a Row of length 1); composite keys compare
// lexicographically by construction, since EncodeValue never emits an
// unescaped field terminator.
func EncodeKey(values sql.Row) (Key, error) {
	var buf []byte
	var err error
	for _, v := range values {
		buf, err = EncodeValue(buf, v)
		if err != nil {
			return nil, err
		}
	}
	return Key(buf), nil
}

// CompareKeys orders two encoded keys by unsigned byte comparison,
// which by construction equals sql.Compare-chain on the original
// values.
func CompareKeys(a, b Key) int { return bytes.Compare(a, b) }
