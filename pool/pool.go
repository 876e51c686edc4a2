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

// Package pool implements a fixed-N worker ThreadPool that drives
// promises to settle on its own goroutines, consuming them from a
// promise/queue.ConcurrentQueue.
package pool

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"

	"github.com/concurrentkit/promise"
	"github.com/concurrentkit/promise/queue"
)

const numShards = 16

// metricsShard holds per-shard counters padded to a cache line so
// concurrent workers incrementing distinct shards don't false-share.
type metricsShard struct {
	submitted uint64
	completed uint64
	_         [64 - 16]byte
}

type worker struct {
	index   int
	running atomic.Bool
	done    chan struct{}
}

// ThreadPool is a fixed-N (dynamically resizable) worker set that settles
// promises pushed to its internal queue.
type ThreadPool struct {
	mu   sync.Mutex
	cond *sync.Cond
	q    *queue.ConcurrentQueue[*promise.Promise]

	workers []*worker
	nextIdx int

	shards [numShards]metricsShard

	log hclog.Logger
}

// New spawns n workers. n <= 0 is treated as runtime.GOMAXPROCS(0).
func New(n int) *ThreadPool {
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	p := &ThreadPool{
		q:   queue.New[*promise.Promise](),
		log: hclog.Default().Named("pool"),
	}
	p.cond = sync.NewCond(&p.mu)
	p.growLocked(n)
	return p
}

func (p *ThreadPool) shardFor(n int) *metricsShard {
	return &p.shards[n%numShards]
}

// goroutineID parses the calling goroutine's numeric id out of its stack
// trace header. Go has no public API for this; it is the accepted
// workaround for goroutine-local identity, used here to back Index and to
// pick the Stats shard that Post counts a submission in.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

var workerIndex sync.Map // goroutine id (uint64) -> int

// Index returns the 0-based index of the calling worker goroutine, or -1
// if the caller is not running on one of this pool's workers.
func (p *ThreadPool) Index() int {
	if v, ok := workerIndex.Load(goroutineID()); ok {
		return v.(int)
	}
	return -1
}

// GetThreadCount returns the current number of workers.
func (p *ThreadPool) GetThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.workers)
}

// SetThreadCount grows or shrinks the pool to n workers. It must not be
// called from one of the pool's own workers.
func (p *ThreadPool) SetThreadCount(n int) error {
	if p.Index() >= 0 {
		return errSetThreadCountFromWorker
	}
	if n < 0 {
		n = 0
	}
	p.mu.Lock()
	cur := len(p.workers)
	switch {
	case n > cur:
		p.growLocked(n - cur)
		p.mu.Unlock()
	case n < cur:
		removed := p.workers[n:]
		p.workers = p.workers[:n]
		for _, w := range removed {
			w.running.Store(false)
		}
		p.cond.Broadcast()
		p.mu.Unlock()
		for _, w := range removed {
			<-w.done
		}
	default:
		p.mu.Unlock()
	}
	return nil
}

// growLocked must be called with p.mu held.
func (p *ThreadPool) growLocked(count int) {
	for i := 0; i < count; i++ {
		w := &worker{index: p.nextIdx, done: make(chan struct{})}
		w.running.Store(true)
		p.nextIdx++
		p.workers = append(p.workers, w)
		go p.workerLoop(w)
	}
}

func (p *ThreadPool) workerLoop(w *worker) {
	gid := goroutineID()
	workerIndex.Store(gid, w.index)
	defer workerIndex.Delete(gid)
	defer close(w.done)

	for {
		if task, ok := p.q.Pop(); ok {
			p.settleTask(w.index, task)
			continue
		}

		p.mu.Lock()
		task, ok := p.q.Pop()
		if ok {
			p.mu.Unlock()
			p.settleTask(w.index, task)
			continue
		}
		if !w.running.Load() {
			p.mu.Unlock()
			return
		}
		p.cond.Wait()
		p.mu.Unlock()
	}
}

func (p *ThreadPool) settleTask(workerIdx int, task *promise.Promise) {
	task.Settle(struct{}{})
	atomic.AddUint64(&p.shardFor(workerIdx).completed, 1)
}

// Post wraps f as a promise whose fulfil callback is f, pushes it onto the
// queue, and returns the promise.
func (p *ThreadPool) Post(f func() (any, error)) *promise.Promise {
	task := promise.NewWith(promise.FulfilFuncVoid(f), nil)
	wasEmpty := p.q.Push(task)
	atomic.AddUint64(&p.shardFor(int(goroutineID())).submitted, 1)
	if wasEmpty {
		p.mu.Lock()
		p.cond.Signal()
		p.mu.Unlock()
	}
	return task
}

// Dispatch runs f synchronously if called from one of this pool's
// workers, returning an already-settled promise; otherwise it behaves
// like Post.
func (p *ThreadPool) Dispatch(f func() (any, error)) *promise.Promise {
	if p.Index() < 0 {
		return p.Post(f)
	}
	res, err := f()
	t := promise.New()
	if err != nil {
		t.Reject(err)
	} else {
		t.Settle(res)
	}
	return t
}

// Wrap returns a closure that calls Dispatch on f each time it is invoked.
func (p *ThreadPool) Wrap(f func() (any, error)) func() *promise.Promise {
	return func() *promise.Promise {
		return p.Dispatch(f)
	}
}

// Barrier is returned by Synchronize; Wait blocks until every worker has
// passed the synchronization point.
type Barrier struct {
	done chan struct{}
}

// Wait blocks the caller until the barrier completes. Calling Wait from
// one of the pool's own workers deadlocks the pool and is forbidden.
func (b *Barrier) Wait() {
	<-b.done
}

// Synchronize pushes one participant task per worker and returns a Barrier
// that completes once every worker has executed its participant task —
// a point in queue order that every worker is guaranteed to have passed.
func (p *ThreadPool) Synchronize() *Barrier {
	n := p.GetThreadCount()
	b := &Barrier{done: make(chan struct{})}
	if n == 0 {
		close(b.done)
		return b
	}

	var remaining atomic.Int64
	remaining.Store(int64(n))
	var once sync.Once

	for i := 0; i < n; i++ {
		task := promise.NewWith(promise.FulfilFuncVoid(func() (any, error) {
			if remaining.Add(-1) == 0 {
				once.Do(func() { close(b.done) })
			}
			// Block until every participant has run, so no worker can take
			// a second participant task.
			<-b.done
			return nil, nil
		}), nil)
		p.q.Push(task)
	}
	// Every worker must take one participant, so wake all of them.
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
	return b
}

// Stats is the aggregate submitted/completed counters across all shards.
type Stats struct {
	Submitted uint64
	Completed uint64
}

// Stats sums the pool's sharded counters.
func (p *ThreadPool) Stats() Stats {
	var s Stats
	for i := range p.shards {
		s.Submitted += atomic.LoadUint64(&p.shards[i].submitted)
		s.Completed += atomic.LoadUint64(&p.shards[i].completed)
	}
	return s
}

// Close shrinks the pool to zero workers, joining all of them.
func (p *ThreadPool) Close() error {
	return p.SetThreadCount(0)
}
