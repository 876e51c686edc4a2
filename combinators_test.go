package promise

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestAllEmptyFulfilsWithEmptySequence(t *testing.T) {
	q := All()
	require.True(t, q.Settled())
	v, ok := q.peekFulfilled()
	require.True(t, ok)
	sv, ok := v.(seqValue)
	require.True(t, ok)
	require.Empty(t, sv.elems)
}

func TestAnyEmptyRejectsWithErrAny(t *testing.T) {
	q := Any()
	require.True(t, q.Settled())
	_, ok := q.peekFulfilled()
	require.False(t, ok)
	rerr, ok := q.peekRejected()
	require.True(t, ok)
	require.ErrorIs(t, rerr, ErrAny)
}

func TestAllHeterogeneousTuple(t *testing.T) {
	a, b, c := New(), New(), New()
	q := All(a, b, c)

	sum, terr := ThenTuple3(q, func(a, b int, c string) (int, error) {
		return a + b + len(c), nil
	})
	require.NoError(t, terr)

	require.NoError(t, a.Settle(1))
	require.NoError(t, c.Settle("foo"))
	require.NoError(t, b.Settle(2))

	waitSettled(t, sum)
	v, ok := sum.peekFulfilled()
	require.True(t, ok)
	require.Equal(t, 6, v)
}

func TestAnyFirstWins(t *testing.T) {
	a, b := New(), New()
	q := Any(a, b)
	result, err := Then(q, func(v int) (int, error) { return v, nil }, nil)
	require.NoError(t, err)

	require.NoError(t, a.Reject(errors.New("a failed")))
	require.False(t, result.Settled())

	require.NoError(t, b.Settle(7))
	waitSettled(t, result)
	v, ok := result.peekFulfilled()
	require.True(t, ok)
	require.Equal(t, 7, v)
}

func TestAllHomogeneousSeq(t *testing.T) {
	a, b, c := New(), New(), New()
	q := All(a, b, c)

	sum, terr := ThenSeq(q, func(vals []int) ([]int, error) {
		out := make([]int, len(vals))
		for i, v := range vals {
			out[i] = v * 10
		}
		return out, nil
	})
	require.NoError(t, terr)

	require.NoError(t, a.Settle(1))
	require.NoError(t, b.Settle(2))
	require.NoError(t, c.Settle(3))

	waitSettled(t, sum)
	v, ok := sum.peekFulfilled()
	require.True(t, ok)

	want := []int{10, 20, 30}
	if diff := cmp.Diff(want, v); diff != "" {
		t.Fatalf("unexpected sequence (-want +got):\n%s", diff)
	}
}

func TestAllRejectsOnFirstError(t *testing.T) {
	a, b := New(), New()
	q := All(a, b)
	sentinel := errors.New("nope")

	require.NoError(t, a.Reject(sentinel))
	require.NoError(t, b.Settle(1))

	waitSettled(t, q)
	_, ok := q.peekFulfilled()
	require.False(t, ok)
	rerr, ok := q.peekRejected()
	require.True(t, ok)
	require.ErrorIs(t, rerr, sentinel)
}
