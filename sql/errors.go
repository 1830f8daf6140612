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
	"fmt"

	"github.com/pkg/errors"
)

// ErrorKind enumerates the error taxonomy from the error handling
// design: parse/resolution/type/constraint/concurrency/misuse/internal.
type ErrorKind uint8

const (
	KindParseError ErrorKind = iota
	KindResolutionError
	KindTypeError
	KindConstraintViolation
	KindReadOnly
	KindBusy
	KindConcurrentUpdate
	KindMisuse
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindParseError:
		return "ParseError"
	case KindResolutionError:
		return "ResolutionError"
	case KindTypeError:
		return "TypeError"
	case KindConstraintViolation:
		return "ConstraintViolation"
	case KindReadOnly:
		return "ReadOnly"
	case KindBusy:
		return "Busy"
	case KindConcurrentUpdate:
		return "ConcurrentUpdate"
	case KindMisuse:
		return "Misuse"
	case KindInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// ConstraintKind further classifies a ConstraintViolation error.
type ConstraintKind uint8

const (
	ConstraintUnique ConstraintKind = iota
	ConstraintNotNull
	ConstraintCheck
)

// Error is the user-visible failure type: kind, message, optional SQL
// location, optional underlying cause, and — for UNIQUE violations —
// the row that was already present.
type Error struct {
	Kind       ErrorKind
	Constraint ConstraintKind
	Message    string
	Line       int
	Column     int
	Cause      error
	Existing   Row
}

func (e *Error) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: %s (line %d, col %d)", e.Kind, e.Message, e.Line, e.Column)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error of the given kind with a formatted message.
func NewError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches cause to a new Error of the given kind, preserving the
// pkg/errors stack trace on Cause for diagnostics.
func Wrap(kind ErrorKind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: errors.WithStack(cause)}
}

// NewConstraintError builds a ConstraintViolation error, attaching the
// pre-existing row for UNIQUE violations as the spec requires.
func NewConstraintError(kind ConstraintKind, existing Row, format string, args ...interface{}) *Error {
	return &Error{Kind: KindConstraintViolation, Constraint: kind, Existing: existing, Message: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

var (
	// ErrNotFound is returned by Update when old_key_values does not
	// resolve to an effective row.
	ErrNotFound = NewError(KindMisuse, "row not found")
)

// EncodingError is returned by the key codec (C1) for SQL values
// outside the supported set.
type EncodingError struct {
	Value Value
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("cannot encode value of kind %s", e.Value.Kind())
}
