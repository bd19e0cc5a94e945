package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tilegarden.ai/internal/persistence/archive"
	persistlog "tilegarden.ai/internal/persistence/log"
	"tilegarden.ai/internal/persistence/snapshot"
	"tilegarden.ai/internal/sim/events"
	"tilegarden.ai/internal/sim/field"
	"tilegarden.ai/internal/sim/session"
)

type PlayOptions struct {
	*RootOptions
	Seed      int64
	Tutorial  bool
	Purchased bool
	Frame     float64
	Think     float64
	MaxFrames int
	NoArchive bool
}

// PlaySummary is printed when a play finishes.
type PlaySummary struct {
	SessionID   string `json:"session_id"`
	TotalScore  int    `json:"total_score"`
	Rank        int    `json:"rank"`
	TotalPlaced int    `json:"total_placed"`
	Perfect     bool   `json:"perfect"`
	Snapshot    string `json:"snapshot"`
	Archived    string `json:"archived,omitempty"`
	EventLog    string `json:"event_log"`
}

func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play one session with the built-in auto-player",
		Long: `Play one session headlessly. The auto-player puts the hand on the first
open slot it fits, rotating as needed, every --think seconds of game time.

The event log, the final snapshot and the result row are written under --data.

Examples:
  tilegarden play --seed 7
  tilegarden play --tutorial --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, cmd)
		},
	}

	cmd.Flags().Int64Var(&opts.Seed, "seed", 0, "random seed (0: random)")
	cmd.Flags().BoolVar(&opts.Tutorial, "tutorial", false, "play the fixed tutorial supply without a time limit")
	cmd.Flags().BoolVar(&opts.Purchased, "purchased", false, "use the extended play time")
	cmd.Flags().Float64Var(&opts.Frame, "frame", 1.0/30, "seconds of game time per frame")
	cmd.Flags().Float64Var(&opts.Think, "think", 0.5, "seconds of game time between placements")
	cmd.Flags().IntVar(&opts.MaxFrames, "max_frames", 1_000_000, "stop after this many frames")
	cmd.Flags().BoolVar(&opts.NoArchive, "no_archive", false, "do not copy the final snapshot under <data>/archives")
	return cmd
}

func runPlay(opts *PlayOptions, cmd *cobra.Command) error {
	if opts.Frame <= 0 {
		return fmt.Errorf("--frame must be positive")
	}
	logger := opts.logger(cmd, "play")
	t, panels, err := opts.load()
	if err != nil {
		return err
	}
	idx, err := opts.openIndex()
	if err != nil {
		return err
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(panels, t); err != nil {
			logger.Printf("upsert catalogs: %v", err)
		}
	}

	id := uuid.NewString()
	evlog := persistlog.NewEventLogger(opts.DataDir, id)
	sinks := []events.Sink{evlog}
	if idx != nil {
		sinks = append(sinks, idx.Sink(id))
	}

	s := session.New(t, panels, field.Codec{Panels: panels}, events.Multi(sinks...), session.Options{
		ID:        id,
		Seed:      opts.Seed,
		Purchased: opts.Purchased,
		Logger:    logger,
	})
	if err := s.SetupPanels(opts.Tutorial); err != nil {
		_ = evlog.Close()
		return err
	}
	s.Begin()
	if !s.PlaceStart() {
		s.End()
	}

	think := 0.0
	for frame := 0; s.IsPlaying() && frame < opts.MaxFrames; frame++ {
		s.Update(opts.Frame)
		think += opts.Frame
		if think < opts.Think || !s.IsPlaying() {
			continue
		}
		think = 0
		if !autoPlace(s) {
			logger.Printf("auto-player found no slot for the hand")
			s.End()
		}
	}
	if s.IsPlaying() {
		s.End()
	}

	if err := evlog.Close(); err != nil {
		return fmt.Errorf("event log: %w", err)
	}
	snap, err := s.Save()
	if err != nil {
		return err
	}
	path := snapshotPath(opts.DataDir, id)
	h := snapshot.Header{SessionID: id, Placed: s.TotalPlaced()}
	if err := snapshot.WriteFile(path, h, snap); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	idx.RecordSnapshot(id, path, h, snap)

	res := s.Results()
	sum := PlaySummary{
		SessionID:   id,
		TotalScore:  res.TotalScore,
		Rank:        res.Rank,
		TotalPlaced: res.TotalPlaced,
		Perfect:     res.Perfect,
		Snapshot:    path,
		EventLog:    persistlog.EventsPath(opts.DataDir, id),
	}
	if !opts.NoArchive {
		archived, ok, err := archive.ArchiveFinishedSession(opts.DataDir, path, h, res)
		if err != nil {
			logger.Printf("archive: %v", err)
		} else if ok {
			sum.Archived = archived
		}
	}
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		return json.NewEncoder(out).Encode(sum)
	}
	fmt.Fprintf(out, "session %s: score=%d rank=%d placed=%d perfect=%v\n", sum.SessionID, sum.TotalScore, sum.Rank, sum.TotalPlaced, sum.Perfect)
	fmt.Fprintf(out, "snapshot %s\n", sum.Snapshot)
	return nil
}

// autoPlace puts the hand on the first open slot where it fits, trying each
// rotation in turn.
func autoPlace(s *session.Session) bool {
	for r := 0; r < 4; r++ {
		for _, p := range s.OpenSlots() {
			if s.CanPlace(p) {
				return s.Place(p)
			}
		}
		s.RotateHand()
	}
	return false
}
