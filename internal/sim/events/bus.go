package events

// Bus dispatches each event to the subscribers of its kind, then to the
// catch-all subscribers, in subscription order.
type Bus struct {
	nextID int
	byKind map[Kind][]subscription
	all    []subscription
}

type subscription struct {
	id int
	fn func(Event)
}

func NewBus() *Bus {
	return &Bus{byKind: map[Kind][]subscription{}}
}

// Subscribe registers fn for one kind and returns a function removing it.
func (b *Bus) Subscribe(kind Kind, fn func(Event)) func() {
	b.nextID++
	id := b.nextID
	b.byKind[kind] = append(b.byKind[kind], subscription{id: id, fn: fn})
	return func() { b.byKind[kind] = remove(b.byKind[kind], id) }
}

// SubscribeAll registers fn for every kind.
func (b *Bus) SubscribeAll(fn func(Event)) func() {
	b.nextID++
	id := b.nextID
	b.all = append(b.all, subscription{id: id, fn: fn})
	return func() { b.all = remove(b.all, id) }
}

func (b *Bus) Emit(ev Event) {
	for _, s := range b.byKind[ev.Kind()] {
		s.fn(ev)
	}
	for _, s := range b.all {
		s.fn(ev)
	}
}

// On subscribes fn to the variant E.
func On[E Event](b *Bus, fn func(E)) func() {
	var zero E
	return b.Subscribe(zero.Kind(), func(ev Event) {
		if e, ok := ev.(E); ok {
			fn(e)
		}
	})
}

func remove(subs []subscription, id int) []subscription {
	out := subs[:0:0]
	for _, s := range subs {
		if s.id != id {
			out = append(out, s)
		}
	}
	return out
}

// Recorder keeps every event it receives. Useful for tests and for draining a
// replay into a slice.
type Recorder struct {
	Events []Event
}

func (r *Recorder) Emit(ev Event) { r.Events = append(r.Events, ev) }

func (r *Recorder) Reset() { r.Events = nil }

func (r *Recorder) Kinds() []Kind {
	out := make([]Kind, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Kind()
	}
	return out
}

// Count is the number of recorded events of kind.
func (r *Recorder) Count(kind Kind) int {
	n := 0
	for _, ev := range r.Events {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

// Of returns the recorded events of variant E.
func Of[E Event](r *Recorder) []E {
	var out []E
	for _, ev := range r.Events {
		if e, ok := ev.(E); ok {
			out = append(out, e)
		}
	}
	return out
}
