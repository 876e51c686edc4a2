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
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Promise is a shared, single-assignment cell that settles exactly once to
// either a fulfilled value or a rejected error, and whose settlement
// propagates through every dependent attached to it. The zero value is not
// usable; construct one with New or NewWith.
type Promise struct {
	id uuid.UUID

	mu  sync.Mutex
	val value

	onFulfil *callback
	onReject *callback

	// resType is the static result type this promise will eventually
	// produce, taken from whichever callback installed it at creation
	// time. It is nil when unknown (e.g. a bare root promise), which
	// disables the early type check against dependents.
	resType reflect.Type

	upstream   *Promise
	downstream []*Promise
	closedBy   *Promise

	writeStarted atomic.Bool
	settled      atomic.Bool
	closed       atomic.Bool
	undelivered  atomic.Bool
}

// New creates an Unset, unclosed, root promise with no callbacks installed.
func New() *Promise {
	p := &Promise{id: uuid.New(), val: unsetValue()}
	inflight.Inc()
	runtime.SetFinalizer(p, finalizePromise)
	return p
}

// NewWith creates an Unset promise with one or both callbacks pre-installed
// to run on its own eventual settlement, the same as if it had been
// produced by then on some other promise. It panics if onFulfil and
// onReject are both non-nil but declare different result types — a
// construction-time contract violation, not a runtime condition.
func NewWith(onFulfil, onReject *callback) *Promise {
	validateCallbackPair(onFulfil, onReject)
	p := New()
	p.onFulfil, p.onReject = onFulfil, onReject
	p.resType = declaredResultType(onFulfil, onReject)
	return p
}

func validateCallbackPair(onFulfil, onReject *callback) {
	if onReject != nil && !onReject.isReject {
		panic("promise: onReject callback must take the error as its argument")
	}
	if onFulfil != nil && onFulfil.isReject {
		panic("promise: onFulfil callback must not take the error as its argument")
	}
	if onFulfil != nil && onReject != nil && onFulfil.resType != onReject.resType {
		panic(fmt.Sprintf("promise: onFulfil and onReject result types differ: %s vs %s", onFulfil.resType, onReject.resType))
	}
}

func declaredResultType(onFulfil, onReject *callback) reflect.Type {
	if onFulfil != nil {
		return onFulfil.resType
	}
	if onReject != nil {
		return onReject.resType
	}
	return nil
}

func finalizePromise(p *Promise) {
	if p.undelivered.Load() {
		undeliveredTotal.Inc()
		reportUndelivered(p.val.err)
	}
}

// String returns a short, stable identity for debugging and test failure
// messages.
func (p *Promise) String() string {
	return fmt.Sprintf("promise(%s)", p.id)
}

// Settled reports whether this promise has been given a terminal value.
func (p *Promise) Settled() bool {
	return p.settled.Load()
}

// Closed reports whether this promise no longer accepts new dependents.
func (p *Promise) Closed() bool {
	return p.closed.Load()
}

// Close marks the promise closed. Idempotent, and safe to call regardless
// of settlement state: close is a mutation of shared state, not of any
// particular handle.
func (p *Promise) Close() {
	p.mu.Lock()
	p.closed.Store(true)
	p.mu.Unlock()
}

// Settle performs a terminal write of a fulfilled value on a root
// (non-dependent) promise. It returns ErrAlreadySettled if called more than
// once, or ErrDependentSettle if p has an upstream.
func (p *Promise) Settle(v any) error {
	return p.terminalWrite(fulfilledValue(v))
}

// Reject performs a terminal write of a rejected error on a root
// (non-dependent) promise. It returns ErrAlreadySettled if called more than
// once, or ErrDependentSettle if p has an upstream.
func (p *Promise) Reject(err error) error {
	return p.terminalWrite(rejectedValue(err))
}

func (p *Promise) terminalWrite(v value) error {
	p.mu.Lock()
	if p.upstream != nil {
		p.mu.Unlock()
		return ErrDependentSettle
	}
	if p.settled.Load() || !p.writeStarted.CompareAndSwap(false, true) {
		p.mu.Unlock()
		return ErrAlreadySettled
	}
	p.mu.Unlock()
	p.settleWithCallback(v)
	return nil
}

// thenCallback implements the attachment algorithm (§4.1.2): it builds a
// dependent around the given callback pair and attaches it to p.
func (p *Promise) thenCallback(onFulfil, onReject *callback) (*Promise, error) {
	validateCallbackPair(onFulfil, onReject)
	closes := onFulfil != nil && onFulfil.byRvalue

	if mismatch := p.earlyTypeCheck(onFulfil); mismatch != nil {
		return nil, mismatch
	}

	next := New()
	next.onFulfil, next.onReject = onFulfil, onReject
	next.resType = declaredResultType(onFulfil, onReject)

	if err := p.attach(next, closes); err != nil {
		return nil, err
	}
	return next, nil
}

// earlyTypeCheck implements §4.1.3: when both endpoints declare concrete
// types, a mismatch is reported immediately instead of waiting for
// propagation.
func (p *Promise) earlyTypeCheck(onFulfil *callback) *TypeMismatchError {
	if p.resType == nil || onFulfil == nil {
		return nil
	}
	if onFulfil.argKind != argConcrete {
		return nil
	}
	// Interface types (such as any) and a Promise-returning upstream are not
	// concrete: the value actually delivered is only known at settlement.
	if p.resType.Kind() == reflect.Interface || p.resType == reflect.TypeOf((*Promise)(nil)) {
		return nil
	}
	if onFulfil.argType != nil && onFulfil.argType.Kind() != reflect.Interface && onFulfil.argType != p.resType {
		return newTypeMismatch(p.resType, onFulfil.argType)
	}
	return nil
}

// attach implements §4.1.2: link next below p, appending it to p's
// downstream set if p hasn't settled yet, or synchronously delivering p's
// already-committed value to next otherwise.
func (p *Promise) attach(next *Promise, closes bool) error {
	p.mu.Lock()
	if p.closed.Load() {
		p.mu.Unlock()
		return ErrClosed
	}
	next.upstream = p

	if !p.settled.Load() {
		p.downstream = append(p.downstream, next)
		if closes {
			p.closed.Store(true)
			p.closedBy = next
		}
		p.mu.Unlock()
		return nil
	}

	if closes {
		p.closed.Store(true)
		p.closedBy = next
	}
	v := p.val
	p.undelivered.Store(false)
	if closes && v.isFulfilled() {
		// The value is transferred out to its unique stealer; p's own slot
		// can no longer be observed as Fulfilled (§3, Moved state).
		p.val = movedValue()
	}
	p.mu.Unlock()

	next.settleFromUpstream(v, closes)
	return nil
}

// settleFromUpstream delivers a value propagated from an upstream promise:
// uncloned when move is set (the unique closing dependent, or the only
// dependent recorded at settlement), by clone otherwise.
func (p *Promise) settleFromUpstream(v value, move bool) {
	in := v
	if v.isFulfilled() && !move {
		cv, err := cloneFulfilled(v.v)
		if err != nil {
			in = rejectedValue(err)
		} else {
			in = fulfilledValue(cv)
		}
	}
	p.settleWithCallback(in)
}

// settleWithCallback implements §4.1.1: invoke the matching callback (if
// any), handle a TypeMismatch via the global handler, rewire onto a
// Promise-returning outcome, or commit a plain value and propagate.
func (p *Promise) settleWithCallback(in value) {
	p.mu.Lock()
	var cb *callback
	switch {
	case in.isFulfilled():
		cb = p.onFulfil
	case in.isRejected():
		cb = p.onReject
	}
	p.onFulfil, p.onReject = nil, nil
	p.mu.Unlock()

	if cb == nil {
		p.commit(in)
		return
	}

	out, err := invokeCallback(cb, in)
	if err != nil {
		if tme, ok := err.(*TypeMismatchError); ok {
			handleTypeMismatch(tme)
			p.commit(rejectedValue(tme))
			return
		}
		p.commit(rejectedValue(err))
		return
	}
	if q, ok := out.(*Promise); ok {
		p.rewireUpstream(q)
		return
	}
	p.commit(fulfilledValue(out))
}

// rewireUpstream implements §4.1.1 step 3: when a callback's outcome is
// itself a Promise, p does not store a value yet; it becomes q's dependent
// instead, and q's eventual settlement re-enters settle on p.
func (p *Promise) rewireUpstream(q *Promise) {
	if err := q.attach(p, false); err != nil {
		p.commit(rejectedValue(err))
	}
}

// commit implements §4.1.1 steps 4–5: write the terminal value, mark
// settled, clear upstream, and propagate to every dependent recorded at
// attach time, in attachment order.
func (p *Promise) commit(v value) {
	p.mu.Lock()
	p.val = v
	p.settled.Store(true)
	p.upstream = nil
	deps := p.downstream
	closedBy := p.closedBy
	p.downstream = nil
	p.mu.Unlock()

	inflight.Dec()
	if v.isRejected() {
		settledTotal.WithLabelValues("rejected").Inc()
	} else {
		settledTotal.WithLabelValues("fulfilled").Inc()
	}

	if len(deps) == 0 {
		if v.isRejected() {
			// Counted at finalization time, in finalizePromise, since
			// this flag may still be cleared by a later attach.
			p.undelivered.Store(true)
		}
		return
	}

	if closedBy != nil && v.isFulfilled() {
		p.mu.Lock()
		p.val = movedValue()
		p.mu.Unlock()
	}

	for _, d := range deps {
		d.settleFromUpstream(v, d == closedBy || len(deps) == 1)
	}
}
