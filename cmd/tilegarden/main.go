package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"tilegarden.ai/internal/persistence/indexdb"
	"tilegarden.ai/internal/sim/catalogs"
	"tilegarden.ai/internal/sim/tuning"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	Tuning    string
	Panels    string
	DataDir   string
	DBPath    string
	DisableDB bool
}

var validFormats = []string{"text", "json"}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tilegarden",
		Short: "Headless tile-placement sessions",
		Long:  "Play, replay and observe tile-placement puzzle sessions without a renderer.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range validFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, validFormats)
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log session internals to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Tuning, "tuning", "", "path to tuning.yaml (default: built-in values plus TILEGARDEN_* env)")
	cmd.PersistentFlags().StringVar(&opts.Panels, "panels", "", "path to panels.json (default: built-in catalog)")
	cmd.PersistentFlags().StringVar(&opts.DataDir, "data", "./data", "runtime data directory")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "results index path (default: <data>/index.sqlite)")
	cmd.PersistentFlags().BoolVar(&opts.DisableDB, "disable_db", false, "disable the results index")

	cmd.AddCommand(NewPlayCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewResultsCommand(opts))
	return cmd
}

func (o *RootOptions) logger(cmd *cobra.Command, prefix string) *log.Logger {
	if !o.Verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(cmd.ErrOrStderr(), "["+prefix+"] ", log.LstdFlags|log.Lmicroseconds)
}

func (o *RootOptions) load() (tuning.Tuning, *catalogs.Panels, error) {
	t, err := tuning.Load(o.Tuning)
	if err != nil {
		return t, nil, fmt.Errorf("load tuning: %w", err)
	}
	if strings.TrimSpace(o.Panels) == "" {
		return t, catalogs.Builtin(), nil
	}
	panels, err := catalogs.Load(o.Panels)
	if err != nil {
		return t, nil, fmt.Errorf("load panels: %w", err)
	}
	return t, panels, nil
}

// openIndex returns nil, nil when the index is disabled.
func (o *RootOptions) openIndex() (*indexdb.SQLiteIndex, error) {
	if o.DisableDB {
		return nil, nil
	}
	p := strings.TrimSpace(o.DBPath)
	if p == "" {
		p = filepath.Join(o.DataDir, "index.sqlite")
	}
	idx, err := indexdb.OpenSQLite(p)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	return idx, nil
}

func snapshotPath(dataDir, sessionID string) string {
	return filepath.Join(dataDir, "snapshots", sessionID+".snap.zst")
}
