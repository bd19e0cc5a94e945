package session

import (
	"slices"

	"tilegarden.ai/internal/sim/board"
	"tilegarden.ai/internal/sim/catalogs"
	"tilegarden.ai/internal/sim/events"
)

// Debug holds test-only mutators. It is nil unless Options.Debug was set.
type Debug struct {
	s *Session
}

func (s *Session) Debug() *Debug { return s.debug }

// ForceNextHand returns the hand to the back of the supply and draws again;
// a failed draw ends play.
func (d *Debug) ForceNextHand() bool {
	if d.s.hasHand {
		d.s.waiting = append(d.s.waiting, d.s.hand)
		d.s.hasHand = false
	}
	if d.s.drawNext() {
		return true
	}
	d.s.End()
	return false
}

// PlaceAt puts tile at pos without any fit check and runs completion.
func (d *Debug) PlaceAt(tile catalogs.PanelID, pos board.Pos, rotation int) {
	s := d.s
	s.totalPlaced++
	s.addTile(tile, pos, rotation)
	s.checkCompletions(pos)
	s.sink.Emit(events.PlacementOccurred{
		Tile:             tile,
		Pos:              pos,
		Rotation:         rotation,
		TotalPlaced:      s.totalPlaced,
		RemainingWaiting: len(s.waiting),
	})
}

// ToggleCountdown pauses or resumes the countdown and reports whether it now
// runs.
func (d *Debug) ToggleCountdown() bool {
	d.s.countdown = !d.s.countdown
	return d.s.countdown
}

// CycleHand swaps the hand for the panel delta ids away in the catalog,
// stepping on past panels already placed. The chosen panel leaves the supply
// and the old hand takes its place, so no panel is held twice.
func (d *Debug) CycleHand(delta int) catalogs.PanelID {
	s := d.s
	n := s.panels.Len()
	if n == 0 || delta == 0 {
		return s.hand
	}
	placed := make(map[catalogs.PanelID]bool)
	for _, ts := range s.field.Tiles() {
		placed[ts.Tile] = true
	}
	step := 1
	if delta < 0 {
		step = -1
	}
	wrap := func(v int) catalogs.PanelID { return catalogs.PanelID(((v % n) + n) % n) }

	id := wrap(int(s.hand) + delta)
	for tries := 0; tries < n && (placed[id] || (s.hasHand && id == s.hand)); tries++ {
		id = wrap(int(id) + step)
	}
	if placed[id] || (s.hasHand && id == s.hand) {
		return s.hand
	}

	i := slices.Index(s.waiting, id)
	switch {
	case i >= 0 && s.hasHand:
		s.waiting[i] = s.hand
	case i >= 0:
		s.waiting = slices.Delete(s.waiting, i, i+1)
	case s.hasHand:
		s.waiting = append(s.waiting, s.hand)
	}
	s.hand = id
	s.hasHand = true
	return s.hand
}

// ForceTimeUp zeroes the countdown; the next Update ends the session.
func (d *Debug) ForceTimeUp() {
	d.s.remaining = 0
}

// OverrideScore pins the total score used for ranking.
func (d *Debug) OverrideScore(score int) {
	d.s.scoreOverride = &score
}

// Recalculate recomputes results and queues a ranking broadcast after the
// replay score delay.
func (d *Debug) Recalculate() events.Results {
	s := d.s
	s.calcResults()
	res := s.Results()
	s.queue.Schedule(s.cfg.Replay.ScoreDelay, Command{Op: OpEmitFinish, Event: events.RankingUpdated{Results: res}})
	return res
}
