package delay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/concurrentkit/promise"
)

func TestAfterFulfilsInAscendingDeadlineOrder(t *testing.T) {
	s := NewService()
	defer s.Close()

	deadlines := []time.Duration{
		60 * time.Millisecond,
		10 * time.Millisecond,
		30 * time.Millisecond,
	}
	start := time.Now()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(len(deadlines))

	for i, d := range deadlines {
		i, d := i, d
		p := s.After(d)
		_, err := promise.Then(p, func(fired time.Time) (any, error) {
			require.GreaterOrEqual(t, fired.Sub(start), d)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
			return nil, nil
		}, nil)
		require.NoError(t, err)
	}

	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 0}, order)
}

func TestCancelRejectsWithCancelled(t *testing.T) {
	s := NewService()
	defer s.Close()

	p := s.After(time.Hour)
	ok := s.Cancel(p, nil)
	require.True(t, ok)

	require.Eventually(t, p.Settled, time.Second, time.Millisecond)
	require.False(t, s.Cancel(p, nil))
}

func TestCloseRejectsRemainingEntries(t *testing.T) {
	s := NewService()
	p := s.After(time.Hour)
	s.Close()
	require.True(t, p.Settled())
}
