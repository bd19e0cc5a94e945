package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recorder() (*Queue[string], *[]string) {
	var got []string
	q := New(func(s string) { got = append(got, s) })
	return q, &got
}

func TestAdvance_FiresInTimeOrder(t *testing.T) {
	q, got := recorder()
	q.Schedule(2.0, "c")
	q.Schedule(0.5, "a")
	q.Schedule(1.0, "b")

	assert.Equal(t, 0, q.Advance(0.25))
	assert.Empty(t, *got)

	assert.Equal(t, 2, q.Advance(0.75))
	assert.Equal(t, []string{"a", "b"}, *got)
	assert.Equal(t, 1, q.Len())

	q.Advance(5)
	assert.Equal(t, []string{"a", "b", "c"}, *got)
	assert.Equal(t, 0, q.Len())
}

func TestSchedule_EqualTimesKeepInsertionOrder(t *testing.T) {
	q, got := recorder()
	for _, s := range []string{"1", "2", "3", "4"} {
		q.Schedule(1.0, s)
	}
	q.Schedule(0.5, "0")
	q.Advance(1.0)
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, *got)
}

func TestSchedule_DelayIsRelativeToClock(t *testing.T) {
	q, got := recorder()
	q.Advance(10)
	q.Schedule(1, "late")
	require.Equal(t, 1, len(q.Pending()))
	assert.InDelta(t, 11.0, q.Pending()[0].FireAt, 1e-9)

	q.Advance(0.9)
	assert.Empty(t, *got)
	q.Advance(0.1)
	assert.Equal(t, []string{"late"}, *got)
}

func TestFireAll_PreservesOrderIgnoringTimer(t *testing.T) {
	q, got := recorder()
	q.Schedule(3, "c")
	q.Schedule(1, "a")
	q.Schedule(2, "b")

	assert.Equal(t, 3, q.FireAll())
	assert.Equal(t, []string{"a", "b", "c"}, *got)
	assert.Equal(t, 0.0, q.Now())
	assert.Equal(t, 0, q.FireAll())
}

func TestClear_DropsWithoutFiring(t *testing.T) {
	q, got := recorder()
	q.Advance(4)
	q.Schedule(1, "x")
	q.Clear()

	assert.Equal(t, 0, q.Len())
	assert.Equal(t, 0.0, q.Now())
	q.Advance(100)
	assert.Empty(t, *got)
}

func TestAdvance_ReentrantSchedule(t *testing.T) {
	var got []int
	var q *Queue[int]
	q = New(func(n int) {
		got = append(got, n)
		if n < 3 {
			q.Schedule(0, n+1)
		}
	})
	q.Schedule(1, 1)
	q.Advance(1)
	assert.Equal(t, []int{1, 2, 3}, got)
}
