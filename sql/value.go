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
	"bytes"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// ValueKind tags the dynamic type carried by a Value. Kinds are ordered
// the way SQL orders them: NULL sorts before every numeric kind, which
// sorts before TEXT, which sorts before BLOB.
type ValueKind uint8

const (
	KindNull ValueKind = iota
	KindInteger
	KindReal
	KindText
	KindBlob
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "NULL"
	case KindInteger:
		return "INTEGER"
	case KindReal:
		return "REAL"
	case KindText:
		return "TEXT"
	case KindBlob:
		return "BLOB"
	default:
		return "UNKNOWN"
	}
}

// Value is the tagged union described by the data model: NULL, INTEGER,
// REAL, TEXT, BLOB. BOOLEAN is represented as an INTEGER 0/1, matching
// the teacher's affinity rules and the data model's explicit note that
// booleans are stored as integers.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	s    string
	b    []byte
}

// NullValue is the canonical NULL.
var NullValue = Value{kind: KindNull}

func IntegerValue(v int64) Value { return Value{kind: KindInteger, i: v} }
func RealValue(v float64) Value  { return Value{kind: KindReal, f: v} }
func TextValue(v string) Value   { return Value{kind: KindText, s: v} }
func BlobValue(v []byte) Value   { return Value{kind: KindBlob, b: v} }

// BooleanValue stores a boolean as an INTEGER 0/1 per the data model.
func BooleanValue(v bool) Value {
	if v {
		return IntegerValue(1)
	}
	return IntegerValue(0)
}

func (v Value) Kind() ValueKind  { return v.kind }
func (v Value) IsNull() bool     { return v.kind == KindNull }
func (v Value) Integer() int64   { return v.i }
func (v Value) Real() float64    { return v.f }
func (v Value) Text() string     { return v.s }
func (v Value) Blob() []byte     { return v.b }

// Bool reports the truthiness of a value following SQL semantics: NULL
// and zero are false, everything else is true.
func (v Value) Bool() bool {
	switch v.kind {
	case KindNull:
		return false
	case KindInteger:
		return v.i != 0
	case KindReal:
		return v.f != 0
	case KindText:
		return v.s != ""
	case KindBlob:
		return len(v.b) != 0
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "NULL"
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindReal:
		return fmt.Sprintf("%v", v.f)
	case KindText:
		return v.s
	case KindBlob:
		return fmt.Sprintf("x'%x'", v.b)
	default:
		return "?"
	}
}

// Decimal returns a decimal.Decimal view of a numeric value (zero for
// any other kind), used by the SUM/AVG accumulators for exact
// accumulation beyond float64.
func (v Value) Decimal() decimal.Decimal {
	switch v.kind {
	case KindInteger:
		return decimal.NewFromInt(v.i)
	case KindReal:
		return decimal.NewFromFloat(v.f)
	default:
		return decimal.Zero
	}
}

// Compare implements the SQL ordering rule from the data model: NULL <
// others; within a type by natural order; cross-type REAL<->INTEGER
// compared numerically; TEXT/BLOB by unsigned byte comparison (a named
// collation may override TEXT comparison upstream of this function).
func Compare(a, b Value) int {
	if a.kind == KindNull || b.kind == KindNull {
		if a.kind == b.kind {
			return 0
		}
		if a.kind == KindNull {
			return -1
		}
		return 1
	}
	aNum := a.kind == KindInteger || a.kind == KindReal
	bNum := b.kind == KindInteger || b.kind == KindReal
	if aNum && bNum {
		if a.kind == KindInteger && b.kind == KindInteger {
			switch {
			case a.i < b.i:
				return -1
			case a.i > b.i:
				return 1
			default:
				return 0
			}
		}
		af, bf := asFloat(a), asFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	rank := func(v Value) int {
		switch v.kind {
		case KindInteger, KindReal:
			return 1
		case KindText:
			return 2
		case KindBlob:
			return 3
		default:
			return 0
		}
	}
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindText:
		return bytes.Compare([]byte(a.s), []byte(b.s))
	case KindBlob:
		return bytes.Compare(a.b, b.b)
	default:
		return 0
	}
}

func asFloat(v Value) float64 {
	if v.kind == KindInteger {
		return float64(v.i)
	}
	return v.f
}

// Equal reports whether two values compare equal under Compare, treating
// NaN reals as unequal to themselves per IEEE semantics.
func Equal(a, b Value) bool {
	if a.kind == KindReal && math.IsNaN(a.f) {
		return false
	}
	if b.kind == KindReal && math.IsNaN(b.f) {
		return false
	}
	return Compare(a, b) == 0
}
