// Package events is the closed set of notifications the session core emits to
// rendering, UI, animation and storage collaborators.
//
// Each notification is its own struct type. Consumers either receive every
// event through a Sink, or subscribe to single variants on a Bus:
//
//	bus := events.NewBus()
//	events.On(bus, func(e events.PlacementOccurred) { ... })
//	s := session.New(cfg, panels, codec, bus, opts)
//
// Emission is synchronous: by the time a session method returns, every
// subscriber has seen the events it caused.
package events

import (
	"tilegarden.ai/internal/sim/board"
	"tilegarden.ai/internal/sim/catalogs"
	"tilegarden.ai/internal/sim/scoring"
)

// Kind names an event variant. It is also the "type" field of an Envelope.
type Kind string

const (
	KindPlacementOccurred    Kind = "PlacementOccurred"
	KindRegionsCompleted     Kind = "RegionsCompleted"
	KindScoresUpdated        Kind = "ScoresUpdated"
	KindSessionFinished      Kind = "SessionFinished"
	KindTimeRemainingUpdated Kind = "TimeRemainingUpdated"
	KindRankingUpdated       Kind = "RankingUpdated"
	KindSessionAborted       Kind = "SessionAborted"
)

// Kinds lists every variant.
var Kinds = []Kind{
	KindPlacementOccurred,
	KindRegionsCompleted,
	KindScoresUpdated,
	KindSessionFinished,
	KindTimeRemainingUpdated,
	KindRankingUpdated,
	KindSessionAborted,
}

// Event is implemented only by the variants in this package.
type Event interface {
	Kind() Kind
	isEvent()
}

// PlacementOccurred is sent for every tile put on the field, and again for
// every tile when a saved session is replayed. IsFirst is set only for the
// start tile, live or replayed. Replayed events are already on the field when
// they arrive: observers should show them settled rather than animate a new
// placement.
type PlacementOccurred struct {
	Tile             catalogs.PanelID `json:"tile"`
	Pos              board.Pos        `json:"pos"`
	Rotation         int              `json:"rotation"`
	TotalPlaced      int              `json:"total_placed"`
	IsFirst          bool             `json:"is_first"`
	RemainingWaiting int              `json:"remaining_waiting"`

	// Replayed marks events scheduled by a load; Completed tells whether the
	// position belongs to any completed region at load time.
	Replayed  bool `json:"replayed,omitempty"`
	Completed bool `json:"completed,omitempty"`
}

// RegionsCompleted carries the regions of one attribute closed by a placement.
type RegionsCompleted struct {
	Attr    board.Kind     `json:"kind"`
	Regions []board.Region `json:"regions"`
	// Deep is parallel to Regions for forests.
	Deep []int `json:"deep,omitempty"`
}

type ScoresUpdated struct {
	Counters scoring.Counters `json:"counters"`
}

// Results is the end-of-session summary shared by SessionFinished and
// RankingUpdated.
type Results struct {
	Counters      scoring.Counters `json:"counters"`
	TotalScore    int              `json:"total_score"`
	Rank          int              `json:"rank"`
	TotalPlaced   int              `json:"total_placed"`
	Perfect       bool             `json:"perfect"`
	RotationCount int              `json:"rotation_count"`
	MoveCount     int              `json:"move_count"`

	CompletedForests []board.Region `json:"completed_forests"`
	CompletedPaths   []board.Region `json:"completed_paths"`
	Tutorial         bool           `json:"tutorial"`
}

type SessionFinished struct {
	Results
	MaxForest  int   `json:"max_forest"`
	MaxPath    int   `json:"max_path"`
	DeepForest []int `json:"deep_forest"`
}

type TimeRemainingUpdated struct {
	Seconds float64 `json:"seconds"`
}

// RankingUpdated is the deferred results broadcast after a load.
type RankingUpdated struct {
	Results
}

type SessionAborted struct{}

func (PlacementOccurred) Kind() Kind    { return KindPlacementOccurred }
func (RegionsCompleted) Kind() Kind     { return KindRegionsCompleted }
func (ScoresUpdated) Kind() Kind        { return KindScoresUpdated }
func (SessionFinished) Kind() Kind      { return KindSessionFinished }
func (TimeRemainingUpdated) Kind() Kind { return KindTimeRemainingUpdated }
func (RankingUpdated) Kind() Kind       { return KindRankingUpdated }
func (SessionAborted) Kind() Kind       { return KindSessionAborted }

func (PlacementOccurred) isEvent()    {}
func (RegionsCompleted) isEvent()     {}
func (ScoresUpdated) isEvent()        {}
func (SessionFinished) isEvent()      {}
func (TimeRemainingUpdated) isEvent() {}
func (RankingUpdated) isEvent()       {}
func (SessionAborted) isEvent()       {}

// Sink receives events. Implementations must not call back into the session.
type Sink interface {
	Emit(ev Event)
}

type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(Event) {})

type multi []Sink

func (m multi) Emit(ev Event) {
	for _, s := range m {
		s.Emit(ev)
	}
}

// Multi fans out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
