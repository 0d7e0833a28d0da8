// Copyright 2026 Dolthub, Inc.
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

// Package errhand implements the error taxonomy of the distributed catalog
// system: every failure a caller needs to branch on is a typed
// VerboseError rather than a bare error string.
package errhand

import "fmt"

// VerboseError is an error that carries a short user-facing message
// separately from the full detail used for logging.
type VerboseError interface {
	error
	Verbose() string
}

// Kind enumerates the error taxonomy from the system's error handling
// design: InvalidParam, QueryError, IOError, SchemaError, Overlap
// violations, and missing match-table IDs.
type Kind int

const (
	// InvalidParamKind marks a malformed request: an empty db list, an
	// unknown db, a bad enum value. Always a permanent failure.
	InvalidParamKind Kind = iota
	// QueryKind marks a backing-store (SQL) error. May be retried
	// externally.
	QueryKind
	// IOKind marks a file read/write failure.
	IOKind
	// SchemaKind marks an incomplete or missing director-table schema.
	SchemaKind
	// OverlapViolationKind marks a match row whose endpoints exceed the
	// configured overlap radius.
	OverlapViolationKind
	// MissingIDKind marks a match-mode director lookup miss.
	MissingIDKind
)

func (k Kind) String() string {
	switch k {
	case InvalidParamKind:
		return "InvalidParam"
	case QueryKind:
		return "QueryError"
	case IOKind:
		return "IOError"
	case SchemaKind:
		return "SchemaError"
	case OverlapViolationKind:
		return "OverlapViolation"
	case MissingIDKind:
		return "MissingID"
	default:
		return "Unknown"
	}
}

// dError is the concrete VerboseError implementation. Build one with
// NewError or wrap an underlying cause with Wrap.
type dError struct {
	kind    Kind
	message string
	cause   error
}

func (e *dError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

func (e *dError) Verbose() string {
	return e.message
}

func (e *dError) Unwrap() error {
	return e.cause
}

// KindOf returns the taxonomy kind of err, if err is a VerboseError produced
// by this package. Ok is false for any other error, including nil.
func KindOf(err error) (kind Kind, ok bool) {
	de, ok := err.(*dError)
	if !ok {
		return 0, false
	}
	return de.kind, true
}

// NewError builds a VerboseError of the given kind with no underlying
// cause.
func NewError(kind Kind, format string, args ...interface{}) VerboseError {
	return &dError{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap builds a VerboseError of the given kind around an existing error,
// preserving it for Unwrap/errors.Is/errors.As.
func Wrap(kind Kind, cause error, format string, args ...interface{}) VerboseError {
	return &dError{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

func InvalidParam(format string, args ...interface{}) VerboseError {
	return NewError(InvalidParamKind, format, args...)
}

func QueryError(cause error, format string, args ...interface{}) VerboseError {
	return Wrap(QueryKind, cause, format, args...)
}

func IOError(cause error, format string, args ...interface{}) VerboseError {
	return Wrap(IOKind, cause, format, args...)
}

func SchemaError(format string, args ...interface{}) VerboseError {
	return NewError(SchemaKind, format, args...)
}

func OverlapViolation(format string, args ...interface{}) VerboseError {
	return NewError(OverlapViolationKind, format, args...)
}

func MissingID(format string, args ...interface{}) VerboseError {
	return NewError(MissingIDKind, format, args...)
}
