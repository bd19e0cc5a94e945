package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"tilegarden.ai/internal/persistence/indexdb"
)

type ResultsOptions struct {
	*RootOptions
	Limit int
}

func NewResultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print the best recorded sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResults(opts, cmd)
		},
	}
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "number of rows")
	return cmd
}

func runResults(opts *ResultsOptions, cmd *cobra.Command) error {
	if opts.DisableDB {
		return fmt.Errorf("results need the index; drop --disable_db")
	}
	idx, err := opts.openIndex()
	if err != nil {
		return err
	}
	defer idx.Close()

	rows, err := idx.TopResults(cmd.Context(), opts.Limit)
	if err != nil {
		return fmt.Errorf("query results: %w", err)
	}
	out := cmd.OutOrStdout()
	if opts.Format == "json" {
		if rows == nil {
			rows = []indexdb.Result{}
		}
		return json.NewEncoder(out).Encode(rows)
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSCORE\tRANK\tPLACED\tPERFECT\tFINISHED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%v\t%s\n", r.SessionID, r.TotalScore, r.Rank, r.TotalPlaced, r.Perfect, r.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	return tw.Flush()
}
