// Copyright 2026 The EdCell Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package edcell

import (
	"errors"
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// ErrEventQFull is returned by EventRing.Enqueue when the next write
// would collide with the consumer's cursor: the event is dropped at the
// producer rather than queued, and the pump counts it.
var ErrEventQFull = errors.New("event queue full")

// EventError carries a failure from an asynchronous producer (the file
// watcher, a back-end read) through the event queue, so the consumer
// sees it in input order instead of on a side channel. It is both a
// tcell.Event and an error.
type EventError struct {
	tcell.EventTime
	err error
}

func (ev *EventError) Error() string { return ev.err.Error() }

// Unwrap exposes the underlying failure for errors.Is/errors.As.
func (ev *EventError) Unwrap() error { return ev.err }

// NewEventError wraps err as a queueable event stamped with the current
// time.
func NewEventError(err error) *EventError {
	ev := &EventError{err: err}
	ev.SetEventNow()
	return ev
}

// ErrorKind widens the sentinel-error convention (ErrEventQFull above,
// tcell's own ErrNoScreen) to the closed set of error kinds the editor
// core distinguishes: wrong-type, wrong-range, undefined-color,
// file-error, void-function, void-variable, quit, and a catch-all error.
type ErrorKind int

const (
	KindError ErrorKind = iota
	KindWrongType
	KindWrongRange
	KindUndefinedColor
	KindFileError
	KindVoidFunction
	KindVoidVariable
	KindQuit
)

func (k ErrorKind) String() string {
	switch k {
	case KindWrongType:
		return "wrong-type"
	case KindWrongRange:
		return "wrong-range"
	case KindUndefinedColor:
		return "undefined-color"
	case KindFileError:
		return "file-error"
	case KindVoidFunction:
		return "void-function"
	case KindVoidVariable:
		return "void-variable"
	case KindQuit:
		return "quit"
	}
	return "error"
}

// KindedError is a typed error value carrying one of the error kinds
// above, a message, and optional data items (e.g. a path for file-error,
// the offending value for wrong-type/wrong-range), plus an optional inner
// error reachable via Unwrap so callers can errors.Is/errors.As against it
// the same way they already do against tcell's ErrNoScreen.
type KindedError struct {
	Kind    ErrorKind
	Message string
	Data    []any
	Inner   error
}

// Error renders "<ErrorKind>: <message>, <data>..."'s
// user-visible failure format.
func (e *KindedError) Error() string {
	s := e.Kind.String() + ": " + e.Message
	for _, d := range e.Data {
		s += fmt.Sprintf(", %v", d)
	}
	return s
}

// Unwrap exposes the wrapped error, if any, for errors.Is/errors.As.
func (e *KindedError) Unwrap() error { return e.Inner }

// NewKindedError constructs a KindedError of the given kind.
func NewKindedError(kind ErrorKind, message string, data ...any) *KindedError {
	return &KindedError{Kind: kind, Message: message, Data: data}
}

// NewFileError constructs a file-error, carrying the offending path and the underlying I/O/watch failure.
func NewFileError(path string, inner error) *KindedError {
	return &KindedError{Kind: KindFileError, Message: "file error", Data: []any{path}, Inner: inner}
}
