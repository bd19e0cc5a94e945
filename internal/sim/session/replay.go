package session

import (
	"fmt"
	"math"

	"tilegarden.ai/internal/persistence/snapshot"
	"tilegarden.ai/internal/sim/board"
	"tilegarden.ai/internal/sim/catalogs"
	"tilegarden.ai/internal/sim/events"
	"tilegarden.ai/internal/sim/schedule"
)

// Op is the kind of a queued Command.
type Op int

const (
	OpEmitPlacement Op = iota
	OpEmitScores
	OpEmitFinish
)

func (o Op) String() string {
	switch o {
	case OpEmitPlacement:
		return "emit_placement"
	case OpEmitScores:
		return "emit_scores"
	case OpEmitFinish:
		return "emit_finish"
	default:
		return "unknown"
	}
}

// Command is a deferred emission. The event is captured when the command is
// scheduled.
type Command struct {
	Op    Op
	Event events.Event
}

func (s *Session) run(c Command) {
	if c.Event != nil {
		s.sink.Emit(c.Event)
	}
}

// PendingReplay lists the commands still queued, in firing order.
func (s *Session) PendingReplay() []schedule.Scheduled[Command] {
	return s.queue.Pending()
}

// SkipReplay fires every queued command now.
func (s *Session) SkipReplay() int {
	return s.queue.FireAll()
}

// Save captures the session. The grid is serialized by the field itself.
// Before the start panel is placed, hand_tile holds the start panel.
func (s *Session) Save() (snapshot.SnapshotV1, error) {
	grid, err := s.field.Serialize()
	if err != nil {
		return snapshot.SnapshotV1{}, fmt.Errorf("serialize field: %w", err)
	}
	hand := s.hand
	if len(s.field.Tiles()) == 0 {
		hand = s.startPanel
	}
	snap := snapshot.SnapshotV1{
		HandTile:         int(hand),
		HandRotation:     s.handRotation,
		WaitingTiles:     make([]int, len(s.waiting)),
		Grid:             grid,
		RemainingTime:    s.remaining,
		CompletedForests: encodeRegions(s.completedForests),
		DeepForest:       append(make([]int, 0, len(s.deepForest)), s.deepForest...),
		CompletedPaths:   encodeRegions(s.completedPaths),
		CompletedChurch:  make([][2]int, len(s.completedChurch)),
		RotationCount:    s.rotationCount,
		MoveCount:        s.moveCount,
		TutorialFlag:     s.tutorial,
	}
	for i, id := range s.waiting {
		snap.WaitingTiles[i] = int(id)
	}
	for i, p := range s.completedChurch {
		snap.CompletedChurch[i] = [2]int{p.X, p.Y}
	}
	return snap, nil
}

// SaveEncoded is Save followed by snapshot.Encode.
func (s *Session) SaveEncoded() ([]byte, error) {
	snap, err := s.Save()
	if err != nil {
		return nil, err
	}
	return snapshot.Encode(snap)
}

// LoadEncoded decodes b and loads it. Decode failures wrap both
// ErrCorruptData and snapshot.ErrCorrupt.
func (s *Session) LoadEncoded(b []byte, extraDelay float64) error {
	snap, err := snapshot.Decode(b)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCorruptData, err)
	}
	return s.Load(snap, extraDelay)
}

// restored is a fully validated snapshot, ready to commit.
type restored struct {
	field        board.Field
	hand         catalogs.PanelID
	hasHand      bool
	unstarted    bool
	waiting      []catalogs.PanelID
	forests      []board.Region
	paths        []board.Region
	church       []board.Pos
	claimed      map[board.Kind]map[board.Pos]struct{}
	tiles        []board.TileStatus
	maxForest    int
	maxPath      int
	handRotation int
}

// Load replaces the session state with snap and schedules a replay of every
// placed tile, starting after the configured replay delay plus extraDelay.
// On error nothing is changed.
func (s *Session) Load(snap snapshot.SnapshotV1, extraDelay float64) error {
	r, err := s.restore(snap)
	if err != nil {
		s.log.Printf("session %s: load rejected: %v", s.id, err)
		return err
	}

	s.queue.Clear()
	s.field = r.field
	s.openSlots = s.field.OpenSlots()
	s.hand, s.hasHand, s.handRotation = r.hand, r.hasHand, r.handRotation
	if r.unstarted {
		s.startPanel, s.hand = r.hand, 0
	}
	s.waiting = r.waiting
	s.remaining = snap.RemainingTime
	s.completedForests = r.forests
	s.deepForest = append([]int(nil), snap.DeepForest...)
	s.completedPaths = r.paths
	s.completedChurch = r.church
	s.claimed = r.claimed
	s.maxForest, s.maxPath = r.maxForest, r.maxPath
	s.rotationCount = snap.RotationCount
	s.moveCount = snap.MoveCount
	s.tutorial = snap.TutorialFlag
	s.timeLimited = !snap.TutorialFlag
	s.totalPlaced = max(len(r.tiles)-1, 0)

	s.updateCounters()
	s.calcResults()
	s.scheduleReplay(r, extraDelay)
	s.log.Printf("session %s: loaded tiles=%d waiting=%d score=%d replay=%d commands",
		s.id, len(r.tiles), len(s.waiting), s.totalScore, s.queue.Len())
	return nil
}

func (s *Session) scheduleReplay(r restored, extraDelay float64) {
	completed := make(map[board.Pos]bool)
	for _, set := range r.claimed {
		for p := range set {
			completed[p] = true
		}
	}
	live := 0
	if r.hasHand {
		live = 1
	}

	at := s.cfg.Replay.Delay + extraDelay
	last := at
	n := len(r.tiles)
	for i, ts := range r.tiles {
		last = at
		s.queue.Schedule(at, Command{Op: OpEmitPlacement, Event: events.PlacementOccurred{
			Tile:             ts.Tile,
			Pos:              ts.Pos,
			Rotation:         ts.Rotation,
			TotalPlaced:      i,
			IsFirst:          i == 0,
			RemainingWaiting: len(r.waiting) + live + (n - 1 - i),
			Replayed:         true,
			Completed:        completed[ts.Pos],
		}})
		at += s.cfg.Replay.Interval
	}

	scoreAt := math.Max(s.cfg.Replay.ScoreDelay+extraDelay, last)
	s.queue.Schedule(scoreAt, Command{Op: OpEmitScores, Event: events.ScoresUpdated{Counters: s.counters}})
	s.queue.Schedule(scoreAt, Command{Op: OpEmitFinish, Event: events.RankingUpdated{Results: s.Results()}})
}

func (s *Session) restore(snap snapshot.SnapshotV1) (restored, error) {
	var r restored
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrCorruptData, fmt.Sprintf(format, args...))
	}

	if math.IsNaN(snap.RemainingTime) || math.IsInf(snap.RemainingTime, 0) {
		return r, corrupt("remaining_time %v", snap.RemainingTime)
	}
	if snap.HandRotation < 0 || snap.HandRotation > 3 {
		return r, corrupt("hand_rotation %d", snap.HandRotation)
	}
	if snap.RotationCount < 0 || snap.MoveCount < 0 {
		return r, corrupt("negative statistics")
	}
	r.hand = catalogs.PanelID(snap.HandTile)
	if _, ok := s.panels.Get(r.hand); !ok {
		return r, corrupt("hand_tile %d not in catalog", snap.HandTile)
	}
	r.handRotation = snap.HandRotation

	field, err := s.codec.Decode(snap.Grid)
	if err != nil {
		return r, fmt.Errorf("%w: grid: %w", ErrCorruptData, err)
	}
	r.field = field
	r.tiles = field.Tiles()

	onField := make(map[catalogs.PanelID]bool, len(r.tiles))
	for _, ts := range r.tiles {
		onField[ts.Tile] = true
	}
	// An empty field has no hand yet: hand_tile is the start panel.
	// A hand already on the field is the last tile of a finished session.
	r.unstarted = len(r.tiles) == 0
	r.hasHand = !r.unstarted && !onField[r.hand]

	r.waiting = make([]catalogs.PanelID, 0, len(snap.WaitingTiles))
	seen := make(map[catalogs.PanelID]bool, len(snap.WaitingTiles))
	for _, raw := range snap.WaitingTiles {
		id := catalogs.PanelID(raw)
		if _, ok := s.panels.Get(id); !ok {
			return r, corrupt("waiting tile %d not in catalog", raw)
		}
		if id == r.hand {
			return r, corrupt("hand tile %d is also waiting", raw)
		}
		if seen[id] || onField[id] {
			return r, corrupt("waiting tile %d duplicated", raw)
		}
		seen[id] = true
		r.waiting = append(r.waiting, id)
	}

	if len(snap.DeepForest) != len(snap.CompletedForests) {
		return r, corrupt("deep_forest has %d entries for %d forests", len(snap.DeepForest), len(snap.CompletedForests))
	}
	r.claimed = newClaimed()
	if r.paths, err = decodeRegions(snap.CompletedPaths, field, r.claimed[board.Path]); err != nil {
		return r, fmt.Errorf("%w: completed_paths: %w", ErrCorruptData, err)
	}
	if r.forests, err = decodeRegions(snap.CompletedForests, field, r.claimed[board.Forest]); err != nil {
		return r, fmt.Errorf("%w: completed_forests: %w", ErrCorruptData, err)
	}
	churches := make([][][2]int, len(snap.CompletedChurch))
	for i, p := range snap.CompletedChurch {
		churches[i] = [][2]int{p}
	}
	cr, err := decodeRegions(churches, field, r.claimed[board.Church])
	if err != nil {
		return r, fmt.Errorf("%w: completed_church: %w", ErrCorruptData, err)
	}
	r.church = make([]board.Pos, len(cr))
	for i, reg := range cr {
		r.church[i] = reg[0]
	}

	for _, reg := range r.paths {
		r.maxPath = max(r.maxPath, len(reg))
	}
	for _, reg := range r.forests {
		r.maxForest = max(r.maxForest, len(reg))
	}
	return r, nil
}

func decodeRegions(in [][][2]int, f board.Field, claimed map[board.Pos]struct{}) ([]board.Region, error) {
	out := make([]board.Region, 0, len(in))
	for i, raw := range in {
		if len(raw) == 0 {
			return nil, fmt.Errorf("region %d is empty", i)
		}
		reg := make(board.Region, len(raw))
		for j, xy := range raw {
			p := board.Pos{X: xy[0], Y: xy[1]}
			if !f.HasTile(p) {
				return nil, fmt.Errorf("region %d: no tile at %s", i, p)
			}
			if _, ok := claimed[p]; ok {
				return nil, fmt.Errorf("region %d: %s already completed", i, p)
			}
			claimed[p] = struct{}{}
			reg[j] = p
		}
		out = append(out, reg)
	}
	return out, nil
}

func encodeRegions(in []board.Region) [][][2]int {
	out := make([][][2]int, len(in))
	for i, r := range in {
		out[i] = make([][2]int, len(r))
		for j, p := range r {
			out[i][j] = [2]int{p.X, p.Y}
		}
	}
	return out
}
