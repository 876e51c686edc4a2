// Copyright 2020 Ahmad Sameh(asmsh)
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

package promise

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrAlreadySettled is returned by Settle/Reject when the root promise
	// has already been given a terminal value.
	ErrAlreadySettled = errors.New("promise: already settled")

	// ErrDependentSettle is returned by Settle/Reject when called on a
	// promise that has an upstream; a dependent can only settle via
	// propagation from its upstream.
	ErrDependentSettle = errors.New("promise: settle called on a dependent promise")

	// ErrClosed is returned by Then/Except when the promise no longer
	// accepts new dependents.
	ErrClosed = errors.New("promise: closed")

	// ErrNonCopyable is returned when a non-copyable payload must be
	// replicated to more than one dependent.
	ErrNonCopyable = errors.New("promise: value is not copyable")

	// ErrCancelled is the sentinel rejection used by the delay service,
	// both for explicit cancellation and for shutdown-time rejections.
	ErrCancelled = errors.New("promise: cancelled")

	// ErrAny rejects the Promise returned by Any when every input
	// promise rejected.
	ErrAny = errors.New("promise: all promises rejected")
)

// TypeMismatchError is produced when a callback's declared argument type
// does not match the concrete type of the settled value it is invoked
// with.
type TypeMismatchError struct {
	From reflect.Type
	To   reflect.Type
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("promise: type mismatch: cannot pass %s to callback expecting %s", e.From, e.To)
}

func newTypeMismatch(from, to reflect.Type) *TypeMismatchError {
	return &TypeMismatchError{From: from, To: to}
}

// UserError wraps an error or panic value produced by a user callback, so
// it can be told apart from errors raised by the promise machinery itself
// via errors.As.
type UserError struct {
	V any
}

func (e *UserError) Error() string {
	if err, ok := e.V.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("promise: callback error: %v", e.V)
}

func (e *UserError) Unwrap() error {
	if err, ok := e.V.(error); ok {
		return err
	}
	return nil
}

func newUserError(v any) *UserError {
	if ue, ok := v.(*UserError); ok {
		return ue
	}
	return &UserError{V: v}
}
