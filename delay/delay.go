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

// Package delay implements a single-waiter timer service that settles
// promises at or after a requested monotonic deadline.
package delay

import (
	"sort"
	"sync"
	"time"

	"github.com/concurrentkit/promise"
)

type entry struct {
	deadline time.Time
	p        *promise.Promise
}

// Service is one background waiter serving a time-ordered multimap from
// deadline to promise. The zero value is not usable; construct one with
// NewService, and call Close to release its goroutine.
type Service struct {
	mu      sync.Mutex
	entries []entry
	closed  bool

	wake   chan struct{}
	doneCh chan struct{}
}

// NewService starts the waiter goroutine and returns a ready Service.
func NewService() *Service {
	s := &Service{
		wake:   make(chan struct{}, 1),
		doneCh: make(chan struct{}),
	}
	go s.waitLoop()
	return s
}

func (s *Service) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// After returns a promise that fulfils with the time it fired, at or after
// now+d.
func (s *Service) After(d time.Duration) *promise.Promise {
	p := promise.New()
	deadline := time.Now().Add(d)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		p.Reject(promise.ErrCancelled)
		return p
	}
	idx := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].deadline.After(deadline)
	})
	s.entries = append(s.entries, entry{})
	copy(s.entries[idx+1:], s.entries[idx:])
	s.entries[idx] = entry{deadline: deadline, p: p}
	wasFirst := idx == 0
	s.mu.Unlock()

	if wasFirst {
		s.notify()
	}
	return p
}

// Cancel locates p by identity among the still-pending entries; if found,
// it is removed and rejected with err (promise.ErrCancelled if err is
// nil). Cancel reports whether a live entry was removed. Lookup is O(n):
// entries are indexed by deadline, not by promise identity.
func (s *Service) Cancel(p *promise.Promise, err error) bool {
	if err == nil {
		err = promise.ErrCancelled
	}
	s.mu.Lock()
	for i := range s.entries {
		if s.entries[i].p != p {
			continue
		}
		s.entries = append(s.entries[:i], s.entries[i+1:]...)
		s.mu.Unlock()
		s.notify()
		p.Reject(err)
		return true
	}
	s.mu.Unlock()
	return false
}

// Close stops the waiter and rejects every remaining entry with
// promise.ErrCancelled, matching shutdown-time behavior. It blocks until
// the waiter goroutine has exited.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.notify()
	<-s.doneCh
}

func (s *Service) waitLoop() {
	for {
		s.mu.Lock()
		if s.closed {
			batch := s.entries
			s.entries = nil
			s.mu.Unlock()
			for _, e := range batch {
				e.p.Reject(promise.ErrCancelled)
			}
			close(s.doneCh)
			return
		}
		if len(s.entries) == 0 {
			s.mu.Unlock()
			<-s.wake
			continue
		}
		wait := time.Until(s.entries[0].deadline)
		s.mu.Unlock()

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-timer.C:
			case <-s.wake:
				timer.Stop()
			}
			continue
		}

		s.mu.Lock()
		now := time.Now()
		i := 0
		for i < len(s.entries) && !s.entries[i].deadline.After(now) {
			i++
		}
		batch := append([]entry(nil), s.entries[:i]...)
		s.entries = s.entries[i:]
		s.mu.Unlock()

		for _, e := range batch {
			e.p.Settle(now)
		}
	}
}
