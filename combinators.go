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

import "sync/atomic"

// All returns a promise that fulfils once every input has fulfilled, with
// the synthetic sequence of their values in input order (position i holds
// input i's value, regardless of completion order); it rejects with the
// first error observed from any input. An empty input fulfils immediately
// with an empty sequence.
func All(ps ...*Promise) *Promise {
	q := New()
	n := len(ps)
	if n == 0 {
		q.terminalWrite(fulfilledValue(seqValue{}))
		return q
	}

	slots := make([]value, n)
	var remaining atomic.Int64
	remaining.Store(int64(n))
	var rejected atomic.Bool

	for i, p := range ps {
		i := i
		onFulfil := &callback{
			argKind: argAny,
			invoke: func(v value) (any, error) {
				slots[i] = v
				if remaining.Add(-1) == 0 && !rejected.Load() {
					out := make([]value, n)
					copy(out, slots)
					q.terminalWrite(fulfilledValue(seqValue{elems: out}))
				}
				return nil, nil
			},
		}
		onReject := &callback{
			argKind:  argAny,
			isReject: true,
			invoke: func(v value) (any, error) {
				if rejected.CompareAndSwap(false, true) {
					q.terminalWrite(rejectedValue(v.err))
				}
				remaining.Add(-1)
				return nil, nil
			},
		}
		p.thenCallback(onFulfil, onReject)
	}
	return q
}

// Any returns a promise that fulfils with whichever input is observed to
// fulfil first, forwarding only that value; it rejects with ErrAny once
// every input has rejected. An empty input rejects immediately with ErrAny.
func Any(ps ...*Promise) *Promise {
	q := New()
	n := len(ps)
	if n == 0 {
		q.terminalWrite(rejectedValue(ErrAny))
		return q
	}

	var remaining atomic.Int64
	remaining.Store(int64(n))
	var fulfilled atomic.Bool

	for _, p := range ps {
		onFulfil := &callback{
			argKind: argAny,
			invoke: func(v value) (any, error) {
				if fulfilled.CompareAndSwap(false, true) {
					q.terminalWrite(fulfilledValue(v.v))
				}
				return nil, nil
			},
		}
		onReject := &callback{
			argKind:  argAny,
			isReject: true,
			invoke: func(value) (any, error) {
				if remaining.Add(-1) == 0 && !fulfilled.Load() {
					q.terminalWrite(rejectedValue(ErrAny))
				}
				return nil, nil
			},
		}
		p.thenCallback(onFulfil, onReject)
	}
	return q
}
