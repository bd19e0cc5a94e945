// Package schedule is a frame-stepped timed action queue. Actions are plain
// values handed to a fire function, so pending work can be inspected and
// compared in tests.
package schedule

import "sort"

// Scheduled is one pending action.
type Scheduled[T any] struct {
	FireAt float64
	Action T
}

// Queue is not safe for concurrent use; it is driven from a single frame loop.
type Queue[T any] struct {
	now     float64
	pending []Scheduled[T]
	fire    func(T)
}

func New[T any](fire func(T)) *Queue[T] {
	return &Queue[T]{fire: fire}
}

// Now is the accumulated elapsed time since creation or the last Clear.
func (q *Queue[T]) Now() float64 { return q.now }

func (q *Queue[T]) Len() int { return len(q.pending) }

// Pending returns a copy of the queued actions in firing order.
func (q *Queue[T]) Pending() []Scheduled[T] {
	out := make([]Scheduled[T], len(q.pending))
	copy(out, q.pending)
	return out
}

// Schedule queues action to fire once delay more time has elapsed. Actions
// with equal fire times keep insertion order.
func (q *Queue[T]) Schedule(delay float64, action T) {
	if delay < 0 {
		delay = 0
	}
	s := Scheduled[T]{FireAt: q.now + delay, Action: action}

	i := sort.Search(len(q.pending), func(i int) bool {
		return q.pending[i].FireAt > s.FireAt
	})
	q.pending = append(q.pending, Scheduled[T]{})
	copy(q.pending[i+1:], q.pending[i:])
	q.pending[i] = s
}

// Advance moves the clock by dt and fires every due action in time order.
// Actions scheduled by a firing action fire in the same call if already due.
func (q *Queue[T]) Advance(dt float64) int {
	if dt > 0 {
		q.now += dt
	}
	fired := 0
	for len(q.pending) > 0 && q.pending[0].FireAt <= q.now {
		s := q.pending[0]
		q.pending = q.pending[1:]
		q.fire(s.Action)
		fired++
	}
	return fired
}

// FireAll fires every pending action immediately, in order, leaving the clock
// untouched.
func (q *Queue[T]) FireAll() int {
	fired := 0
	for len(q.pending) > 0 {
		s := q.pending[0]
		q.pending = q.pending[1:]
		q.fire(s.Action)
		fired++
	}
	return fired
}

// Clear drops all pending actions without firing them and resets the clock.
func (q *Queue[T]) Clear() {
	q.pending = nil
	q.now = 0
}
