package main

import (
	"fmt"

	"github.com/spf13/cobra"

	persistlog "tilegarden.ai/internal/persistence/log"
	"tilegarden.ai/internal/persistence/snapshot"
	"tilegarden.ai/internal/sim/events"
	"tilegarden.ai/internal/sim/field"
	"tilegarden.ai/internal/sim/session"
)

type ReplayOptions struct {
	*RootOptions
	Skip      bool
	Frame     float64
	Delay     float64
	EventsLog string
}

func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <snapshot.snap.zst>",
		Short: "Load a snapshot and print its replay",
		Long: `Load a saved session and run its replay queue, printing every event.

With --events the recorded event log is read as well, and the replay fails
when the number of placements differs from the log.

Examples:
  tilegarden replay data/snapshots/<id>.snap.zst
  tilegarden replay --skip --format json data/snapshots/<id>.snap.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Skip, "skip", false, "fire the whole replay at once")
	cmd.Flags().Float64Var(&opts.Frame, "frame", 1.0/30, "seconds of replay time per frame")
	cmd.Flags().Float64Var(&opts.Delay, "delay", 0, "extra delay before the first replayed placement")
	cmd.Flags().StringVar(&opts.EventsLog, "events", "", "event log (.jsonl.zst) to check the replay against")
	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command, path string) error {
	if opts.Frame <= 0 {
		return fmt.Errorf("--frame must be positive")
	}
	t, panels, err := opts.load()
	if err != nil {
		return err
	}
	h, snap, err := snapshot.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	clock := 0.0
	printer := newEventPrinter(cmd.OutOrStdout(), opts.Format, &clock)
	s := session.New(t, panels, field.Codec{Panels: panels}, printer, session.Options{
		ID:     h.SessionID,
		Logger: opts.logger(cmd, "replay"),
	})
	if err := s.Load(snap, opts.Delay); err != nil {
		return err
	}

	if opts.Skip {
		s.SkipReplay()
	} else {
		for len(s.PendingReplay()) > 0 {
			clock += opts.Frame
			s.Update(opts.Frame)
		}
	}

	if opts.EventsLog == "" {
		return nil
	}
	envs, err := persistlog.ReadEvents(opts.EventsLog)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}
	recorded := 0
	for _, env := range envs {
		if env.Type == events.KindPlacementOccurred {
			recorded++
		}
	}
	replayed := printer.counts[events.KindPlacementOccurred]
	if recorded != replayed {
		return fmt.Errorf("event log has %d placements, snapshot replayed %d", recorded, replayed)
	}
	if opts.Format == "text" {
		fmt.Fprintf(cmd.OutOrStdout(), "verified %d placements against %s\n", recorded, opts.EventsLog)
	}
	return nil
}
