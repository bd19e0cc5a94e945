package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tilegarden.ai/internal/observerproto"
	"tilegarden.ai/internal/persistence/snapshot"
	"tilegarden.ai/internal/sim/field"
	"tilegarden.ai/internal/sim/session"
	"tilegarden.ai/internal/transport/observer"
)

type ServeOptions struct {
	*RootOptions
	Addr  string
	Frame time.Duration
	Delay float64
	Once  bool
}

func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve <snapshot.snap.zst>",
		Short: "Replay a snapshot to websocket observers",
		Long: `Serve GET /observer/bootstrap and the /observer/ws stream, then replay the
snapshot in real time. Observers send SUBSCRIBE first.

Examples:
  tilegarden serve --addr 127.0.0.1:8080 data/snapshots/<id>.snap.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts, cmd, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "127.0.0.1:8080", "http listen address")
	cmd.Flags().DurationVar(&opts.Frame, "frame", 33*time.Millisecond, "wall time per frame")
	cmd.Flags().Float64Var(&opts.Delay, "delay", 3, "extra delay before the replay starts, for observers to connect")
	cmd.Flags().BoolVar(&opts.Once, "once", false, "exit when the replay is done")
	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions, cmd *cobra.Command, path string) error {
	if opts.Frame <= 0 {
		return fmt.Errorf("--frame must be positive")
	}
	logger := opts.logger(cmd, "serve")
	t, panels, err := opts.load()
	if err != nil {
		return err
	}
	h, snap, err := snapshot.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}

	var status atomic.Pointer[observerproto.SessionStatus]
	status.Store(&observerproto.SessionStatus{State: session.NotStarted.String()})
	hub := observer.NewServer(h.SessionID, func() observerproto.SessionStatus { return *status.Load() }, logger)

	s := session.New(t, panels, field.Codec{Panels: panels}, hub, session.Options{ID: h.SessionID, Logger: logger})
	if err := s.Load(snap, opts.Delay); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/observer/bootstrap", hub.BootstrapHandler())
	mux.HandleFunc("/observer/ws", hub.WSHandler())
	srv := &http.Server{Addr: opts.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	serveErr := make(chan error, 1)
	go func() {
		logger.Printf("listening on %s", opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "observer on http://%s/observer/ws session=%s\n", opts.Addr, h.SessionID)

	ticker := time.NewTicker(opts.Frame)
	defer ticker.Stop()
	done := false
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err, ok := <-serveErr:
			if ok && err != nil {
				return err
			}
			break loop
		case <-ticker.C:
			if done {
				continue
			}
			s.Update(opts.Frame.Seconds())
			status.Store(statusOf(s))
			if len(s.PendingReplay()) == 0 {
				done = true
				logger.Printf("replay finished, %d observers dropped %d messages", hub.Clients(), hub.Dropped())
				if opts.Once {
					break loop
				}
			}
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func statusOf(s *session.Session) *observerproto.SessionStatus {
	return &observerproto.SessionStatus{
		State:         s.State().String(),
		RemainingTime: s.RemainingTime(),
		LimitTime:     s.LimitTime(),
		TotalPlaced:   s.TotalPlaced(),
		Waiting:       len(s.Waiting()),
		Counters:      s.Counters(),
		Tiles:         s.Field().Tiles(),
	}
}
