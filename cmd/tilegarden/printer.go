package main

import (
	"encoding/json"
	"fmt"
	"io"

	"tilegarden.ai/internal/sim/events"
)

// eventPrinter writes every event to w, stamped with the caller's clock.
type eventPrinter struct {
	w      io.Writer
	format string
	clock  *float64
	seq    uint64
	counts map[events.Kind]int
}

func newEventPrinter(w io.Writer, format string, clock *float64) *eventPrinter {
	return &eventPrinter{w: w, format: format, clock: clock, counts: map[events.Kind]int{}}
}

func (p *eventPrinter) Emit(ev events.Event) {
	p.seq++
	p.counts[ev.Kind()]++
	env, err := events.Wrap(p.seq, ev)
	if err != nil {
		fmt.Fprintf(p.w, "# %v\n", err)
		return
	}
	if p.format == "json" {
		_ = json.NewEncoder(p.w).Encode(env)
		return
	}
	fmt.Fprintf(p.w, "%8.2fs %-22s %s\n", *p.clock, env.Type, env.Payload)
}
