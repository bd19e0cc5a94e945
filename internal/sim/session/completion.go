package session

import (
	"tilegarden.ai/internal/sim/board"
	"tilegarden.ai/internal/sim/events"
	"tilegarden.ai/internal/sim/scoring"
)

var completionOrder = [...]board.Kind{board.Path, board.Forest, board.Church}

// checkCompletions records every region closed by the tile at pos, in path,
// forest, church order, and refreshes the counters once if anything closed.
func (s *Session) checkCompletions(pos board.Pos) {
	updated := false
	for _, kind := range completionOrder {
		regions := s.claim(kind, s.field.CompletedRegions(kind, pos))
		if len(regions) == 0 {
			continue
		}
		ev := events.RegionsCompleted{Attr: kind, Regions: regions}
		switch kind {
		case board.Path:
			for _, r := range regions {
				s.completedPaths = append(s.completedPaths, r)
				s.maxPath = max(s.maxPath, len(r))
			}
		case board.Forest:
			ev.Deep = make([]int, len(regions))
			for i, r := range regions {
				deep := s.field.DeepMetric(r, board.Forest)
				ev.Deep[i] = deep
				s.completedForests = append(s.completedForests, r)
				s.deepForest = append(s.deepForest, deep)
				s.maxForest = max(s.maxForest, len(r))
			}
		case board.Church:
			for _, r := range regions {
				s.completedChurch = append(s.completedChurch, r[0])
			}
		}
		s.log.Printf("session %s: %d %s completed at %s", s.id, len(regions), kind, pos)
		s.sink.Emit(ev)
		updated = true
	}
	if updated {
		s.updateCounters()
		s.sink.Emit(events.ScoresUpdated{Counters: s.counters})
	}
}

// claim drops regions that are empty or overlap an already completed region
// of the same kind, and marks the rest as completed.
func (s *Session) claim(kind board.Kind, regions []board.Region) []board.Region {
	seen := s.claimed[kind]
	out := regions[:0:0]
	for _, r := range regions {
		if len(r) == 0 {
			continue
		}
		dup := false
		for _, p := range r {
			if _, ok := seen[p]; ok {
				dup = true
				break
			}
		}
		if dup {
			s.log.Printf("session %s: ignoring %s region at %s, already completed", s.id, kind, r[0])
			continue
		}
		for _, p := range r {
			seen[p] = struct{}{}
		}
		out = append(out, r)
	}
	return out
}

func (s *Session) updateCounters() {
	var c scoring.Counters
	c[scoring.PathCount] = len(s.completedPaths)
	c[scoring.PathLength] = s.field.TotalAttribute(s.completedPaths)
	c[scoring.ForestCount] = len(s.completedForests)
	c[scoring.ForestArea] = s.field.TotalAttribute(s.completedForests)
	for _, d := range s.deepForest {
		if d > 0 {
			c[scoring.DeepForestCount]++
		}
	}
	c[scoring.TownCount] = s.field.TownCount(s.completedPaths)
	c[scoring.ChurchCount] = len(s.completedChurch)
	s.counters = c
}

// calcResults derives total score and rank from the current counters.
func (s *Session) calcResults() {
	in := scoring.Input{
		Paths:    make([]int, len(s.completedPaths)),
		Forests:  make([]scoring.Forest, len(s.completedForests)),
		Counters: s.counters,
		Placed:   s.totalPlaced,
		Perfect:  len(s.waiting) == 0 && !s.tutorial,
	}
	for i, r := range s.completedPaths {
		in.Paths[i] = len(r)
	}
	for i, r := range s.completedForests {
		in.Forests[i] = scoring.Forest{Area: len(r), Deep: s.deepForest[i]}
	}
	b := scoring.Compute(in, s.rates)
	s.totalScore = int(b.Total)
	if s.scoreOverride != nil {
		s.totalScore = *s.scoreOverride
	}
	s.rank = scoring.Rank(s.totalScore, s.rates)
	s.log.Printf("session %s: score path=%.1f forest=%.1f town=%.1f church=%.1f placed=%.1f perfect=%v total=%d rank=%d",
		s.id, b.Path, b.Forest, b.Town, b.Church, b.Placed, b.Bonus, s.totalScore, s.rank)
}

// Results snapshots the current score state.
func (s *Session) Results() events.Results {
	return events.Results{
		Counters:         s.counters,
		TotalScore:       s.totalScore,
		Rank:             s.rank,
		TotalPlaced:      s.totalPlaced,
		Perfect:          len(s.waiting) == 0 && !s.tutorial,
		RotationCount:    s.rotationCount,
		MoveCount:        s.moveCount,
		CompletedForests: cloneRegions(s.completedForests),
		CompletedPaths:   cloneRegions(s.completedPaths),
		Tutorial:         s.tutorial,
	}
}

func cloneRegions(in []board.Region) []board.Region {
	out := make([]board.Region, len(in))
	for i, r := range in {
		out[i] = append(board.Region(nil), r...)
	}
	return out
}
