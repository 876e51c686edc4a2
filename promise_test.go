package promise

import (
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// runtimeGC forces two collection cycles: the first makes the dropped
// promise from the caller's stack frame collectable, the second runs its
// finalizer (Go defers a finalizer's execution to the GC cycle after the
// one that found the object unreachable).
func runtimeGC() {
	runtime.GC()
	runtime.GC()
}

func TestBasicChain(t *testing.T) {
	root := New()
	q, err := Then(root, func(x int) (int, error) {
		return x + 1, nil
	}, nil)
	require.NoError(t, err)
	q, err = Then(q, func(x int) (int, error) {
		return x * 2, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, root.Settle(3))

	waitSettled(t, q)
	v, ok := q.peekFulfilled()
	require.True(t, ok)
	require.Equal(t, 8, v)
}

func TestErrorRecovery(t *testing.T) {
	root := New()
	q, err := Then(root, func(int) (string, error) {
		return "", errors.New("e")
	}, nil)
	require.NoError(t, err)
	q, err = Except(q, func(error) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)

	require.NoError(t, root.Settle(0))

	waitSettled(t, q)
	v, ok := q.peekFulfilled()
	require.True(t, ok)
	require.Equal(t, "ok", v)
}

func TestPromiseReturningCallbackIsTransparent(t *testing.T) {
	inner := New()
	root := New()
	q, err := Then(root, func(int) (*Promise, error) {
		return inner, nil
	}, nil)
	require.NoError(t, err)

	require.NoError(t, root.Settle(0))
	require.False(t, q.Settled())

	require.NoError(t, inner.Settle("x"))

	waitSettled(t, q)
	v, ok := q.peekFulfilled()
	require.True(t, ok)
	require.Equal(t, "x", v)
}

func TestCloseOnRvalueAttach(t *testing.T) {
	root := New()
	_, err := ThenMove(root, func(v *int) (int, error) {
		return *v, nil
	}, nil)
	require.NoError(t, err)
	require.True(t, root.Closed())

	_, err = Then(root, func(int) (int, error) { return 0, nil }, nil)
	require.ErrorIs(t, err, ErrClosed)
}

func TestMoveAttachLeavesSourceUnobservable(t *testing.T) {
	root := New()
	require.NoError(t, root.Settle(7))

	_, err := ThenMove(root, func(x int) (int, error) { return x, nil }, nil)
	require.NoError(t, err)

	_, ok := root.peekFulfilled()
	require.False(t, ok, "a moved-from promise must not report a readable fulfilled value")
}

func TestMoveAttachBeforeSettleLeavesSourceUnobservable(t *testing.T) {
	root := New()
	dep, err := ThenMove(root, func(x int) (int, error) { return x, nil }, nil)
	require.NoError(t, err)

	require.NoError(t, root.Settle(9))
	waitSettled(t, dep)

	_, ok := root.peekFulfilled()
	require.False(t, ok, "a moved-from promise must not report a readable fulfilled value")
	v, ok := dep.peekFulfilled()
	require.True(t, ok)
	require.Equal(t, 9, v)
}

func TestSettleAfterSettleFails(t *testing.T) {
	root := New()
	require.NoError(t, root.Settle(1))
	require.ErrorIs(t, root.Settle(2), ErrAlreadySettled)
}

func TestSettleOnDependentFails(t *testing.T) {
	root := New()
	dep, err := Then(root, func(int) (int, error) { return 0, nil }, nil)
	require.NoError(t, err)
	require.ErrorIs(t, dep.Settle(1), ErrDependentSettle)
}

func TestRejectWithNoDependentIsReportedUndelivered(t *testing.T) {
	prevHandler := SetUndeliveredErrorHandler(nil)
	defer SetUndeliveredErrorHandler(prevHandler)

	var mu sync.Mutex
	var got error
	done := make(chan struct{})
	sentinel := errors.New("boom")
	SetUndeliveredErrorHandler(func(err error) {
		// The handler is process-global: undelivered rejections left by
		// other tests in this package are reported to it as well.
		if !errors.Is(err, sentinel) {
			return
		}
		mu.Lock()
		got = err
		mu.Unlock()
		close(done)
	})

	func() {
		p := New()
		require.NoError(t, p.Reject(sentinel))
	}()

	runtimeGC()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("undelivered handler was never invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.ErrorIs(t, got, sentinel)
}

func TestIdentityRoundTrip(t *testing.T) {
	root := New()
	cur := root
	var err error
	for i := 0; i < 10; i++ {
		cur, err = Then(cur, func(x int) (int, error) { return x, nil }, nil)
		require.NoError(t, err)
	}
	cur, err = Then(cur, func(x int) (int, error) { return x * 3, nil }, nil)
	require.NoError(t, err)

	require.NoError(t, root.Settle(7))
	waitSettled(t, cur)
	v, _ := cur.peekFulfilled()
	require.Equal(t, 21, v)
}

func TestAttachOrderingIsPreserved(t *testing.T) {
	root := New()
	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		i := i
		_, err := Then(root, func(int) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return i, nil
		}, nil)
		require.NoError(t, err)
	}
	require.NoError(t, root.Settle(0))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestAttachWhileSettlingRace(t *testing.T) {
	root := New()

	var g errgroup.Group
	results := make([]int, 20)
	for i := 0; i < 20; i++ {
		i := i
		g.Go(func() error {
			dep, err := Then(root, func(x int) (int, error) { return x, nil }, nil)
			if err != nil {
				return err
			}
			waitSettled(t, dep)
			v, ok := dep.peekFulfilled()
			if !ok {
				return errors.New("not fulfilled")
			}
			results[i] = v.(int)
			return nil
		})
	}
	require.NoError(t, root.Settle(42))
	require.NoError(t, g.Wait())
	for _, r := range results {
		require.Equal(t, 42, r)
	}
}

// waitSettled spins briefly; all settlement in this package happens
// synchronously on the settling goroutine, so this only needs to cover
// propagation that happened on another goroutine in the test itself.
func waitSettled(t *testing.T, p *Promise) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !p.Settled() {
		if time.Now().After(deadline) {
			t.Fatal("promise never settled")
		}
		time.Sleep(time.Millisecond)
	}
}

// peekFulfilled is a test-only accessor into the settled value.
func (p *Promise) peekFulfilled() (any, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.val.kind != kindFulfilled {
		return nil, false
	}
	return p.val.v, true
}

// peekRejected is a test-only accessor into the settled error.
func (p *Promise) peekRejected() (error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.val.kind != kindRejected {
		return nil, false
	}
	return p.val.err, true
}
