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

// argKind tags how a callback's argument is derived from the settled value
// it is invoked with.
type argKind uint8

const (
	// argConcrete expects v's payload to be exactly argType.
	argConcrete argKind = iota
	// argAny receives the payload unconverted.
	argAny
	// argVoid ignores the payload entirely.
	argVoid
	// argValue receives the raw Value wrapper, unwrapped by the caller.
	argValue
	// argSeq expects the payload to be a synthetic sequence (produced by
	// All) and recomposes it into a concrete slice type.
	argSeq
	// argTuple expects the payload to be a synthetic sequence of fixed
	// length and recomposes it into a fixed-arity tuple.
	argTuple
)

// callback is the erased closure descriptor described in the data model: an
// argument kind, its static type(s) where known, whether it is the unique
// rvalue-consuming (closing) dependent, and a single invocation function
// that performs the actual conversion and call.
type callback struct {
	argKind  argKind
	argType  reflect.Type   // argConcrete, argSeq element type
	argTypes []reflect.Type // argTuple element types, in order
	resType  reflect.Type
	isReject bool
	byRvalue bool
	invoke   func(v value) (any, error)
}

// Value is the read-only view of a settled (or settling) value handed to a
// callback declared with FulfilFuncValue: it lets a callback inspect the
// erased carrier directly instead of requiring a concrete argument type.
type Value struct {
	inner value
}

// Fulfilled reports the payload and whether v carries a fulfilled value.
func (v Value) Fulfilled() (any, bool) {
	if v.inner.kind != kindFulfilled {
		return nil, false
	}
	return v.inner.v, true
}

// Rejected reports the error and whether v carries a rejected value.
func (v Value) Rejected() (error, bool) {
	if v.inner.kind != kindRejected {
		return nil, false
	}
	return v.inner.err, true
}

func resultType[R any]() reflect.Type {
	return reflect.TypeOf((*R)(nil)).Elem()
}

// FulfilFunc builds an onFulfil callback that receives its argument by
// shared reference (cloned when the promise has more than one dependent at
// settlement, or when the dependent is attached after settlement).
func FulfilFunc[T any, R any](f func(T) (R, error)) *callback {
	return fulfilFuncImpl[T, R](f, false)
}

// FulfilFuncMove builds an onFulfil callback that receives its argument by
// rvalue: attaching it closes the parent promise, and this dependent is
// guaranteed to be the one and only consumer of the value.
func FulfilFuncMove[T any, R any](f func(T) (R, error)) *callback {
	return fulfilFuncImpl[T, R](f, true)
}

func fulfilFuncImpl[T any, R any](f func(T) (R, error), byRvalue bool) *callback {
	var zero T
	argType := reflect.TypeOf(&zero).Elem()
	return &callback{
		argKind:  argConcrete,
		argType:  argType,
		resType:  resultType[R](),
		byRvalue: byRvalue,
		invoke: func(v value) (any, error) {
			tv, ok := v.v.(T)
			if !ok {
				return nil, newTypeMismatch(v.typ, argType)
			}
			return f(tv)
		},
	}
}

// FulfilFuncAny builds an onFulfil callback that accepts any fulfilled
// payload without a static type check.
func FulfilFuncAny[R any](f func(any) (R, error)) *callback {
	return &callback{
		argKind: argAny,
		resType: resultType[R](),
		invoke: func(v value) (any, error) {
			return f(v.v)
		},
	}
}

// FulfilFuncVoid builds an onFulfil callback that ignores its argument.
func FulfilFuncVoid[R any](f func() (R, error)) *callback {
	return &callback{
		argKind: argVoid,
		resType: resultType[R](),
		invoke: func(value) (any, error) {
			return f()
		},
	}
}

// FulfilFuncValue builds an onFulfil callback that receives the raw Value
// wrapper rather than an unwrapped payload.
func FulfilFuncValue[R any](f func(Value) (R, error)) *callback {
	return &callback{
		argKind: argValue,
		resType: resultType[R](),
		invoke: func(v value) (any, error) {
			return f(Value{inner: v})
		},
	}
}

// FulfilFuncSeq builds an onFulfil callback expecting the synthetic
// sequence produced by All, recomposed into a []T.
func FulfilFuncSeq[T any, R any](f func([]T) (R, error)) *callback {
	var zero T
	elemType := reflect.TypeOf(&zero).Elem()
	seqType := reflect.TypeOf([]T(nil))
	return &callback{
		argKind: argSeq,
		argType: elemType,
		resType: resultType[R](),
		invoke: func(v value) (any, error) {
			sv, ok := v.v.(seqValue)
			if !ok {
				return nil, newTypeMismatch(v.typ, seqType)
			}
			out := make([]T, len(sv.elems))
			for i, e := range sv.elems {
				if e.isRejected() {
					return nil, e.err
				}
				tv, ok := e.v.(T)
				if !ok {
					return nil, newTypeMismatch(e.typ, elemType)
				}
				out[i] = tv
			}
			return f(out)
		},
	}
}

// FulfilFuncTuple2 builds an onFulfil callback expecting the synthetic
// two-element sequence produced by All, recomposed into a (A, B) pair.
func FulfilFuncTuple2[A, B any, R any](f func(A, B) (R, error)) *callback {
	types := []reflect.Type{reflect.TypeOf((*A)(nil)).Elem(), reflect.TypeOf((*B)(nil)).Elem()}
	return &callback{
		argKind:  argTuple,
		argTypes: types,
		resType:  resultType[R](),
		invoke: func(v value) (any, error) {
			sv, ok := v.v.(seqValue)
			if !ok || len(sv.elems) != 2 {
				return nil, newTypeMismatch(v.typ, nil)
			}
			a, ok := sv.elems[0].v.(A)
			if !ok {
				return nil, newTypeMismatch(sv.elems[0].typ, types[0])
			}
			b, ok := sv.elems[1].v.(B)
			if !ok {
				return nil, newTypeMismatch(sv.elems[1].typ, types[1])
			}
			return f(a, b)
		},
	}
}

// FulfilFuncTuple3 builds an onFulfil callback expecting the synthetic
// three-element sequence produced by All, recomposed into a (A, B, C)
// triple.
func FulfilFuncTuple3[A, B, C any, R any](f func(A, B, C) (R, error)) *callback {
	types := []reflect.Type{
		reflect.TypeOf((*A)(nil)).Elem(),
		reflect.TypeOf((*B)(nil)).Elem(),
		reflect.TypeOf((*C)(nil)).Elem(),
	}
	return &callback{
		argKind:  argTuple,
		argTypes: types,
		resType:  resultType[R](),
		invoke: func(v value) (any, error) {
			sv, ok := v.v.(seqValue)
			if !ok || len(sv.elems) != 3 {
				return nil, newTypeMismatch(v.typ, nil)
			}
			a, ok := sv.elems[0].v.(A)
			if !ok {
				return nil, newTypeMismatch(sv.elems[0].typ, types[0])
			}
			b, ok := sv.elems[1].v.(B)
			if !ok {
				return nil, newTypeMismatch(sv.elems[1].typ, types[1])
			}
			c, ok := sv.elems[2].v.(C)
			if !ok {
				return nil, newTypeMismatch(sv.elems[2].typ, types[2])
			}
			return f(a, b, c)
		},
	}
}

// RejectFunc builds an onReject callback; the spec requires a reject
// callback's argument to be the error channel.
func RejectFunc[R any](f func(error) (R, error)) *callback {
	return &callback{
		argKind:  argConcrete,
		isReject: true,
		resType:  resultType[R](),
		invoke: func(v value) (any, error) {
			return f(v.err)
		},
	}
}

// invokeCallback runs cb against the settled value, recovering from a
// panic in user code and converting it into a UserError the same way a
// thrown error would be captured.
func invokeCallback(cb *callback, in value) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, newUserError(r)
		}
	}()
	out, err = cb.invoke(in)
	if err != nil {
		if _, ok := err.(*TypeMismatchError); !ok {
			err = newUserError(err)
		}
	}
	return out, err
}
