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

// Then attaches a dependent to p that runs onFulfil when p fulfils with a
// T, or onReject (if non-nil) when p rejects. It is the generic, statically
// typed counterpart of the erased (*Promise).thenCallback: the returned
// promise is a dependent, created and wired per the attachment algorithm.
// Then fails with ErrClosed if p is closed, or with a *TypeMismatchError if
// p's declared result type is concrete and differs from T.
func Then[T, R any](p *Promise, onFulfil func(T) (R, error), onReject func(error) (R, error)) (*Promise, error) {
	return p.thenCallback(FulfilFunc(onFulfil), rejectCallback(onReject))
}

// ThenMove is Then, except onFulfil receives its argument by rvalue: p
// closes the moment this dependent is attached, and this dependent is
// guaranteed to be the unique reader of p's eventual fulfilled value.
func ThenMove[T, R any](p *Promise, onFulfil func(T) (R, error), onReject func(error) (R, error)) (*Promise, error) {
	return p.thenCallback(FulfilFuncMove(onFulfil), rejectCallback(onReject))
}

// Except attaches a dependent that runs onReject when p rejects, and passes
// a fulfilled value through unchanged otherwise. It is shorthand for
// then(identity, onReject).
func Except[R any](p *Promise, onReject func(error) (R, error)) (*Promise, error) {
	return p.thenCallback(nil, RejectFunc(onReject))
}

// Finally attaches a dependent that runs f regardless of whether p fulfils
// or rejects, then passes p's fulfilled value through unchanged; a
// rejection is passed on as a *UserError wrapping p's error (unless it
// already is one), so errors.Is and errors.As still find the original.
func Finally(p *Promise, f func()) (*Promise, error) {
	onFulfil := &callback{
		argKind: argAny,
		invoke: func(v value) (any, error) {
			f()
			return v.v, nil
		},
	}
	onReject := &callback{
		argKind:  argAny,
		isReject: true,
		invoke: func(v value) (any, error) {
			f()
			return nil, v.err
		},
	}
	return p.thenCallback(onFulfil, onReject)
}

// ThenSeq attaches a dependent expecting p's fulfilled value to be the
// synthetic sequence produced by All, recomposed into a []T.
func ThenSeq[T, R any](p *Promise, onFulfil func([]T) (R, error)) (*Promise, error) {
	return p.thenCallback(FulfilFuncSeq(onFulfil), nil)
}

// ThenTuple2 attaches a dependent expecting p's fulfilled value to be the
// synthetic two-element sequence produced by All, recomposed into (A, B).
func ThenTuple2[A, B, R any](p *Promise, onFulfil func(A, B) (R, error)) (*Promise, error) {
	return p.thenCallback(FulfilFuncTuple2(onFulfil), nil)
}

// ThenTuple3 attaches a dependent expecting p's fulfilled value to be the
// synthetic three-element sequence produced by All, recomposed into
// (A, B, C).
func ThenTuple3[A, B, C, R any](p *Promise, onFulfil func(A, B, C) (R, error)) (*Promise, error) {
	return p.thenCallback(FulfilFuncTuple3(onFulfil), nil)
}

func rejectCallback[R any](onReject func(error) (R, error)) *callback {
	if onReject == nil {
		return nil
	}
	return RejectFunc(onReject)
}
