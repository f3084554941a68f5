/* Copyright 2019 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package core

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reason classifies an evaluation or matching failure.
type Reason string

const (
	MissingEncodingSpec Reason = "missing_encoding_spec"
	MissingKey          Reason = "missing_key"
	MissingContext      Reason = "missing_context"

	// NoMatch is the uniform reason for a structural pattern
	// mismatch.  Callers treat it as "try the next candidate".
	NoMatch Reason = "no_match"

	TypeMismatch   Reason = "type_mismatch"
	DivisionByZero Reason = "division_by_zero"
	InvalidSpec    Reason = "invalid_spec"

	NoSuchView    Reason = "no_such_view"
	NoSuchEncoder Reason = "no_such_encoder"
	NoSuchEffect  Reason = "no_such_effect"
	NoSuchUpdate  Reason = "no_update_implemented"

	NoDecoders          Reason = "no_decoders"
	AllDecodersFailed   Reason = "all_decoders_failed"
	AllConditionsFailed Reason = "all_conditions_failed"
	MissingEffect       Reason = "missing_effect"
)

// Error is the structured failure returned by evaluation and
// matching.
//
// Spec is the (sub)spec that failed, and Ctx is what it was evaluated
// against.  When an error is wrapped by an enclosing form, the
// enclosing Error takes the Reason of its Cause.
type Error struct {
	Spec   interface{} `json:"spec"`
	Ctx    *Context    `json:"ctx,omitempty"`
	Reason Reason      `json:"reason"`

	// Detail optionally says more, like the actual and expected
	// types for a TypeMismatch.
	Detail string `json:"detail,omitempty"`

	Cause error `json:"-"`
}

func (e *Error) Error() string {
	s := string(e.Reason)
	if e.Detail != "" {
		s += " (" + e.Detail + ")"
	}
	s += " at " + shortJSON(e.Spec)
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError makes an Error with the given reason.
func NewError(spec interface{}, ctx *Context, reason Reason, detail string) *Error {
	return &Error{
		Spec:   spec,
		Ctx:    ctx,
		Reason: reason,
		Detail: detail,
	}
}

// Wrap makes an Error for spec that inherits the reason of the given
// cause.
func Wrap(spec interface{}, ctx *Context, cause error) *Error {
	return &Error{
		Spec:   spec,
		Ctx:    ctx,
		Reason: ReasonOf(cause),
		Cause:  cause,
	}
}

// Mismatch makes a TypeMismatch error.
func Mismatch(spec interface{}, ctx *Context, expected string, actual interface{}) *Error {
	return NewError(spec, ctx, TypeMismatch, fmt.Sprintf("expected %s, got %s", expected, TypeOf(actual)))
}

// ReasonOf returns the Reason of the first *Error in err's chain.
//
// Returns InvalidSpec if there isn't one.
func ReasonOf(err error) Reason {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return InvalidSpec
}

// Is reports whether err is an *Error with the given reason.
func Is(err error, reason Reason) bool {
	if err == nil {
		return false
	}
	return ReasonOf(err) == reason
}

func shortJSON(x interface{}) string {
	js, err := json.Marshal(&x)
	if err != nil {
		return fmt.Sprintf("%#v", x)
	}
	if 70 < len(js) {
		js = append(js[0:70], []byte("...")...)
	}
	return string(js)
}
