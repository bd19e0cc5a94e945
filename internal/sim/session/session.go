// Package session drives one play-through: the tile supply, placement,
// completion detection, scoring, the countdown and save/replay.
//
// A Session is single-threaded. The host calls Update once per frame and the
// input methods in between; every effect is reported through the events.Sink
// before the call returns.
package session

import (
	crand "crypto/rand"
	"encoding/binary"
	"errors"
	"io"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"tilegarden.ai/internal/sim/board"
	"tilegarden.ai/internal/sim/catalogs"
	"tilegarden.ai/internal/sim/events"
	"tilegarden.ai/internal/sim/schedule"
	"tilegarden.ai/internal/sim/scoring"
	"tilegarden.ai/internal/sim/tuning"
)

// ErrCorruptData is returned by Load when a snapshot cannot be restored. The
// session is left untouched in that case.
var ErrCorruptData = errors.New("corrupt session data")

var ErrNoPanels = errors.New("no panels to play")

type State int

const (
	NotStarted State = iota
	Playing
	Finished
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

type Options struct {
	// ID names the session in logs and storage. Empty means a fresh UUID.
	ID string
	// Seed fixes the random generator. Zero draws a seed from crypto/rand.
	Seed int64
	// Purchased selects the extended play time.
	Purchased bool
	// Debug enables the Debug capability.
	Debug  bool
	Logger *log.Logger
}

type Session struct {
	id     string
	cfg    tuning.Tuning
	rates  scoring.Rates
	panels *catalogs.Panels
	codec  board.Codec
	field  board.Field
	sink   events.Sink
	log    *log.Logger
	rng    *rand.Rand
	// cursor breaks NearestOpenSlot ties; it never touches the deal.
	cursor *rand.Rand
	queue  *schedule.Queue[Command]

	started     bool
	finished    bool
	timeLimited bool
	countdown   bool
	initialTime float64
	remaining   float64
	tutorial    bool

	startPanel   catalogs.PanelID
	waiting      []catalogs.PanelID
	hand         catalogs.PanelID
	handRotation int
	hasHand      bool
	openSlots    []board.Pos

	completedPaths   []board.Region
	completedForests []board.Region
	deepForest       []int
	completedChurch  []board.Pos
	// claimed holds every position already inside a completed region, per
	// kind, so a region is never scored twice.
	claimed map[board.Kind]map[board.Pos]struct{}

	rotationCount int
	moveCount     int
	totalPlaced   int
	maxPath       int
	maxForest     int

	counters      scoring.Counters
	totalScore    int
	rank          int
	scoreOverride *int

	debug *Debug
}

func New(t tuning.Tuning, panels *catalogs.Panels, codec board.Codec, sink events.Sink, opts Options) *Session {
	if sink == nil {
		sink = events.Discard
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = randomSeed()
	}

	s := &Session{
		id:          id,
		cfg:         t,
		rates:       t.Rates(),
		panels:      panels,
		codec:       codec,
		field:       codec.NewField(),
		sink:        sink,
		log:         logger,
		rng:         rand.New(rand.NewSource(seed)),
		cursor:      rand.New(rand.NewSource(seed ^ cursorSeedMix)),
		timeLimited: true,
		countdown:   true,
		initialTime: t.PlayTime,
		claimed:     newClaimed(),
	}
	if opts.Purchased {
		s.initialTime = t.PlayTimeExtend
	}
	s.remaining = s.initialTime
	s.queue = schedule.New(s.run)
	s.rank = scoring.Rank(0, s.rates)
	if opts.Debug {
		s.debug = &Debug{s: s}
	}
	s.log.Printf("session %s: created seed=%d play_time=%.1f", s.id, seed, s.initialTime)
	return s
}

func randomSeed() int64 {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return time.Now().UnixNano()
	}
	return int64(binary.LittleEndian.Uint64(b[:]))
}

func newClaimed() map[board.Kind]map[board.Pos]struct{} {
	return map[board.Kind]map[board.Pos]struct{}{
		board.Path:   {},
		board.Forest: {},
		board.Church: {},
	}
}

func (s *Session) ID() string { return s.id }

// Field exposes the grid for rendering. Callers must not mutate it.
func (s *Session) Field() board.Field { return s.field }

func (s *Session) State() State {
	switch {
	case s.finished:
		return Finished
	case s.started:
		return Playing
	default:
		return NotStarted
	}
}

func (s *Session) IsPlaying() bool { return s.started && !s.finished }

// Begin starts play. It has no effect once the session has started.
func (s *Session) Begin() {
	if s.started {
		return
	}
	s.started = true
	s.log.Printf("session %s: begin waiting=%d time_limited=%v", s.id, len(s.waiting), s.timeLimited)
}

// End finishes the session and emits SessionFinished with the final results.
// Calling it again is a no-op.
func (s *Session) End() {
	if s.finished {
		return
	}
	s.finished = true
	s.calcResults()
	s.log.Printf("session %s: finished placed=%d score=%d rank=%d", s.id, s.totalPlaced, s.totalScore, s.rank)
	s.sink.Emit(events.SessionFinished{
		Results:    s.Results(),
		MaxForest:  s.maxForest,
		MaxPath:    s.maxPath,
		DeepForest: append([]int(nil), s.deepForest...),
	})
}

// Abort stops the session without results.
func (s *Session) Abort() {
	if s.finished {
		return
	}
	s.finished = true
	s.log.Printf("session %s: aborted", s.id)
	s.sink.Emit(events.SessionAborted{})
}

// Update advances the callback queue and, while playing, the countdown.
func (s *Session) Update(dt float64) {
	s.queue.Advance(dt)
	if !s.IsPlaying() || !s.timeLimited || !s.countdown {
		return
	}
	s.remaining -= dt
	s.sink.Emit(events.TimeRemainingUpdated{Seconds: s.RemainingTime()})
	if s.remaining <= 0 {
		s.log.Printf("session %s: time up", s.id)
		s.End()
	}
}

// Place puts the hand tile at pos. It returns false, with no effect, when the
// session is not playing, there is no hand, pos is not an open slot or the
// tile does not fit there in its current rotation.
func (s *Session) Place(pos board.Pos) bool {
	if !s.IsPlaying() || !s.CanPlace(pos) {
		return false
	}
	s.totalPlaced++
	tile, rot := s.hand, s.handRotation
	s.hasHand = false
	s.addTile(tile, pos, rot)
	s.checkCompletions(pos)
	s.sink.Emit(events.PlacementOccurred{
		Tile:             tile,
		Pos:              pos,
		Rotation:         rot,
		TotalPlaced:      s.totalPlaced,
		RemainingWaiting: len(s.waiting),
	})
	if !s.drawNext() {
		s.End()
	}
	return true
}

func (s *Session) addTile(tile catalogs.PanelID, pos board.Pos, rot int) {
	p, _ := s.panels.Get(tile)
	s.field.AddTile(tile, pos, rot, p.EdgeSignature(rot))
	s.openSlots = s.field.OpenSlots()
}

// RotateHand turns the hand a quarter clockwise.
func (s *Session) RotateHand() {
	s.handRotation = (s.handRotation + 1) % 4
	s.rotationCount++
}

// MoveSelection records a cursor move; it only feeds the move statistic.
func (s *Session) MoveSelection(board.Pos) {
	s.moveCount++
}

func (s *Session) IsOpenSlot(pos board.Pos) bool {
	for _, p := range s.openSlots {
		if p == pos {
			return true
		}
	}
	return false
}

// CanPlace reports whether the hand fits at pos in its current rotation.
func (s *Session) CanPlace(pos board.Pos) bool {
	if !s.hasHand || !s.IsOpenSlot(pos) {
		return false
	}
	p, ok := s.panels.Get(s.hand)
	return ok && s.field.CanPlace(p, pos, s.handRotation)
}

func (s *Session) HasTile(pos board.Pos) bool { return s.field.HasTile(pos) }

func (s *Session) OpenSlots() []board.Pos {
	return append([]board.Pos(nil), s.openSlots...)
}

// Hand returns the tile in hand, if any.
func (s *Session) Hand() (catalogs.PanelID, bool) { return s.hand, s.hasHand }

func (s *Session) HandRotation() int { return s.handRotation }

// HandEdge is the rotated edge signature of the hand tile.
func (s *Session) HandEdge() uint64 {
	p, ok := s.panels.Get(s.hand)
	if !ok {
		return 0
	}
	return p.EdgeSignature(s.handRotation)
}

func (s *Session) Waiting() []catalogs.PanelID {
	return append([]catalogs.PanelID(nil), s.waiting...)
}

// RemainingTime is the countdown clamped at zero.
func (s *Session) RemainingTime() float64 {
	if s.remaining < 0 {
		return 0
	}
	return s.remaining
}

func (s *Session) LimitTime() float64 { return s.initialTime }

// PlayTimeRate is the elapsed share of the play time, in [0, 1].
func (s *Session) PlayTimeRate() float64 {
	if s.initialTime <= 0 {
		return 0
	}
	r := 1 - s.remaining/s.initialTime
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

func (s *Session) IsTimeLimited() bool { return s.timeLimited }
func (s *Session) IsTutorial() bool    { return s.tutorial }

func (s *Session) Counters() scoring.Counters { return s.counters }
func (s *Session) TotalScore() int            { return s.totalScore }
func (s *Session) Rank() int                  { return s.rank }
func (s *Session) TotalPlaced() int           { return s.totalPlaced }
func (s *Session) MaxForest() int             { return s.maxForest }
func (s *Session) MaxPath() int               { return s.maxPath }
func (s *Session) RotationCount() int         { return s.rotationCount }
func (s *Session) MoveCount() int             { return s.moveCount }

// cursorSeedMix derives the cursor generator's seed from the session seed.
const cursorSeedMix = 0x5DEECE66D

// NearestOpenSlot picks the open slot closest to from. Ties go to a random
// one of the closest, drawn from a generator separate from the deal.
func (s *Session) NearestOpenSlot(from board.Pos) (board.Pos, bool) {
	if len(s.openSlots) == 0 {
		return board.Pos{}, false
	}
	slots := s.OpenSlots()
	s.cursor.Shuffle(len(slots), func(i, j int) { slots[i], slots[j] = slots[j], slots[i] })
	best := slots[0]
	for _, p := range slots[1:] {
		if p.Dist2(from) < best.Dist2(from) {
			best = p
		}
	}
	return best, true
}

// SearchPanels lists the positions of placed tiles carrying attr.
func (s *Session) SearchPanels(attr catalogs.Attr) []board.Pos {
	var out []board.Pos
	for _, ts := range s.field.Tiles() {
		if p, ok := s.panels.Get(ts.Tile); ok && p.Has(attr) {
			out = append(out, ts.Pos)
		}
	}
	return out
}
