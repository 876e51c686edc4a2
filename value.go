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

import "reflect"

// kind tags the state of a value slot.
type kind uint8

const (
	kindUnset kind = iota
	kindFulfilled
	kindRejected
	kindMoved
)

func (k kind) String() string {
	switch k {
	case kindUnset:
		return "Unset"
	case kindFulfilled:
		return "Fulfilled"
	case kindRejected:
		return "Rejected"
	case kindMoved:
		return "Moved"
	default:
		return "unknown"
	}
}

// value is the type-erased carrier described in the data model: Unset,
// Fulfilled(v) for some concrete v, Rejected(err), or Moved.
type value struct {
	kind kind
	v    any
	typ  reflect.Type // concrete type token of v; nil for Rejected/Unset/Moved
	err  error
}

func unsetValue() value {
	return value{kind: kindUnset}
}

func fulfilledValue(v any) value {
	var typ reflect.Type
	if v != nil {
		typ = reflect.TypeOf(v)
	}
	return value{kind: kindFulfilled, v: v, typ: typ}
}

func rejectedValue(err error) value {
	return value{kind: kindRejected, err: err}
}

func movedValue() value {
	return value{kind: kindMoved}
}

func (v value) isFulfilled() bool { return v.kind == kindFulfilled }
func (v value) isRejected() bool  { return v.kind == kindRejected }
func (v value) isMoved() bool     { return v.kind == kindMoved }
func (v value) isUnset() bool     { return v.kind == kindUnset }

// seqValue is the synthetic Vec<Value> produced by All, carried as the
// fulfilled payload. It is distinguished from a literal []any fulfillment
// so the callback recomposition logic in callback.go can tell them apart.
type seqValue struct {
	elems []value
}

// Cloner is implemented by fulfilled payloads that know how to produce an
// independent copy of themselves. A payload that does not implement Cloner,
// and is not one of the built-in safely-copyable kinds (nil, primitives,
// strings, error values), is treated as non-copyable: replicating it to
// more than one dependent fails with ErrNonCopyable. Only the closing
// dependent, or the only dependent attached before settlement, receives the
// payload uncloned; a non-closing dependent attached after settlement always
// receives a clone, so a non-copyable payload rejects it with ErrNonCopyable.
type Cloner interface {
	Clone() (any, error)
}

// cloneFulfilled returns an independent copy of a fulfilled payload for
// delivery to a non-stealing dependent that does not receive the original.
// It never mutates the original.
func cloneFulfilled(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if sv, ok := v.(seqValue); ok {
		elems := make([]value, len(sv.elems))
		copy(elems, sv.elems)
		return seqValue{elems: elems}, nil
	}
	if c, ok := v.(Cloner); ok {
		return c.Clone()
	}
	if isBuiltinCopyable(v) {
		return v, nil
	}
	return nil, ErrNonCopyable
}

// isBuiltinCopyable reports whether v's kind is safe to hand to multiple
// readers without an explicit Clone: primitives, strings, and error values
// are immutable or conventionally treated as read-only once settled.
// Aggregate kinds (pointers, slices, maps, funcs, chans, structs, and
// interfaces wrapping them) are not, since the receiver could observe or
// cause mutation through the shared reference.
func isBuiltinCopyable(v any) bool {
	if _, ok := v.(error); ok {
		return true
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128,
		reflect.String:
		return true
	default:
		return false
	}
}
