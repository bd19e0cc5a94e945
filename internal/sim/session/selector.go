package session

import (
	"fmt"

	"tilegarden.ai/internal/sim/board"
	"tilegarden.ai/internal/sim/catalogs"
	"tilegarden.ai/internal/sim/events"
)

// SetupPanels fills the supply. A tutorial uses the configured draw order,
// its first entry being the start panel, and has no time limit. Otherwise the
// start panel is a random START panel and the rest of the catalog is
// shuffled.
func (s *Session) SetupPanels(tutorial bool) error {
	s.tutorial = tutorial
	if tutorial {
		if len(s.cfg.Tutorial) == 0 {
			return fmt.Errorf("tutorial: %w", ErrNoPanels)
		}
		ids := make([]catalogs.PanelID, 0, len(s.cfg.Tutorial))
		for _, raw := range s.cfg.Tutorial {
			id := catalogs.PanelID(raw)
			if _, ok := s.panels.Get(id); !ok {
				return fmt.Errorf("tutorial: unknown panel %d", raw)
			}
			ids = append(ids, id)
		}
		s.startPanel = ids[0]
		s.waiting = ids[1:]
		s.timeLimited = false
		s.log.Printf("session %s: tutorial supply start=%d waiting=%d", s.id, s.startPanel, len(s.waiting))
		return nil
	}

	starts := s.panels.StartPanels()
	if len(starts) == 0 {
		return fmt.Errorf("start panel: %w", ErrNoPanels)
	}
	if len(starts) > 1 {
		s.rng.Shuffle(len(starts), func(i, j int) { starts[i], starts[j] = starts[j], starts[i] })
	}
	s.startPanel = starts[0]

	s.waiting = s.waiting[:0]
	for _, p := range s.panels.ByID {
		if p.ID != s.startPanel {
			s.waiting = append(s.waiting, p.ID)
		}
	}
	s.rng.Shuffle(len(s.waiting), func(i, j int) { s.waiting[i], s.waiting[j] = s.waiting[j], s.waiting[i] })
	s.timeLimited = true
	s.log.Printf("session %s: supply start=%d waiting=%d", s.id, s.startPanel, len(s.waiting))
	return nil
}

// PlaceStart puts the start panel at the configured start position with a
// random rotation and draws the first hand. It reports whether a hand could
// be drawn. The start panel does not count as placed.
func (s *Session) PlaceStart() bool {
	pos := board.Pos{X: s.cfg.StartPosition[0], Y: s.cfg.StartPosition[1]}
	rot := s.rng.Intn(4)
	s.addTile(s.startPanel, pos, rot)
	s.sink.Emit(events.PlacementOccurred{
		Tile:             s.startPanel,
		Pos:              pos,
		Rotation:         rot,
		IsFirst:          true,
		RemainingWaiting: len(s.waiting),
	})
	return s.drawNext()
}

// drawNext takes the first waiting panel that fits any open slot in any
// rotation and gives it a random rotation. Panels that do not fit keep their
// place in the supply.
func (s *Session) drawNext() bool {
	i := NextAdmissible(s.waiting, s.openSlots, s.field, s.panels)
	if i < 0 {
		s.hasHand = false
		if len(s.waiting) > 0 {
			s.log.Printf("session %s: deadlock, %d panels fit nowhere", s.id, len(s.waiting))
		} else {
			s.log.Printf("session %s: supply exhausted", s.id)
		}
		return false
	}
	s.hand = s.waiting[i]
	s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
	s.handRotation = s.rng.Intn(4)
	s.hasHand = true
	s.log.Printf("session %s: next panel=%d index=%d waiting=%d", s.id, s.hand, i, len(s.waiting))
	return true
}

// NextAdmissible returns the index of the first panel in waiting that the
// field admits at one of slots, or -1.
func NextAdmissible(waiting []catalogs.PanelID, slots []board.Pos, f board.Field, panels *catalogs.Panels) int {
	if len(slots) == 0 {
		return -1
	}
	for i, id := range waiting {
		p, ok := panels.Get(id)
		if !ok {
			continue
		}
		if f.Admits(p, slots) {
			return i
		}
	}
	return -1
}
