/*
 * vodbridge is a project to aggregate heterogeneous VOD sources behind a single local API.
 * Copyright (C) 2026  Vodbridge Contributors
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package types

import (
	"context"
	"errors"
	"fmt"
)

// ErrKind classifies failures across the whole pipeline. The kind, not the
// concrete type, is what reaches clients as {"error": "<kind>: <message>"}.
type ErrKind string

const (
	KindNetwork   ErrKind = "NetworkError"
	KindTimeout   ErrKind = "TimeoutError"
	KindParse     ErrKind = "ParseError"
	KindScript    ErrKind = "ScriptError"
	KindScriptTO  ErrKind = "ScriptTimeout"
	KindConfig    ErrKind = "ConfigError"
	KindCancelled ErrKind = "CancelledError"
	KindExtractor ErrKind = "ExtractorError"
)

// Error carries an ErrKind along a wrapped cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Msg != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds a classified error with a formatted message.
func NewError(kind ErrKind, format string, v ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, v...)}
}

// WrapError classifies an existing error. A nil cause yields nil.
func WrapError(kind ErrKind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the classification of err, mapping context errors to the
// timeout/cancellation kinds. Unclassified errors report as ParseError, the
// pipeline's catch-all for bad upstream payloads.
func KindOf(err error) ErrKind {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	return KindParse
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind ErrKind) bool {
	return err != nil && KindOf(err) == kind
}

// ClientError is the wire shape errors take when exposed over the local proxy.
type ClientError struct {
	Error string `json:"error"`
}

// ToClientError renders err for clients: kind plus message, no stack traces.
func ToClientError(err error) ClientError {
	if err == nil {
		return ClientError{}
	}
	var ve *Error
	if errors.As(err, &ve) {
		return ClientError{Error: ve.Error()}
	}
	return ClientError{Error: fmt.Sprintf("%s: %v", KindOf(err), err)}
}
