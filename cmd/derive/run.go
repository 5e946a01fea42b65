package main

import (
	"fmt"
	"io"

	"github.com/ezachrisen/derive/memrepo"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type runOptions struct {
	*rootOptions
	Out string
}

func newRunCommand(rootOpts *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one full recompute over the item fixture",
		Long: `Initialize the behavior against the item fixture, which runs one full
recompute, and print the pass report and the writes it made.

With --db, the items are read from and written back to a SQLite database
instead.

Examples:
  derive run -c risk.xml --items backlog.yaml
  derive run -c risk.xml --items backlog.yaml --out backlog.yaml
  derive run -c risk.xml --db items.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the updated fixture to this file")
	return cmd
}

func runRun(cmd *cobra.Command, opts *runOptions) error {
	out := cmd.OutOrStdout()
	if opts.DB != "" {
		return runStore(cmd, opts)
	}
	if opts.Items == "" {
		return errItemsRequired
	}

	repo, err := opts.loadRepository()
	if err != nil {
		return err
	}

	b, err := opts.newBehavior(repo)
	if err != nil {
		return err
	}

	report, err := b.Initialize(cmd.Context())
	if err != nil {
		printInitError(out, err)
		return err
	}

	fmt.Fprintln(out, report)
	printWrites(out, repo.Writes())

	if opts.Out != "" {
		if err := repo.DumpFile(opts.Out); err != nil {
			return err
		}
		opts.logger.Info("Wrote fixture", zap.String("path", opts.Out))
	}
	return nil
}

// printWrites renders the recorded writes as a table.
func printWrites(w io.Writer, writes []memrepo.Write) {
	if len(writes) == 0 {
		fmt.Fprintln(w, "no writes")
		return
	}

	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Item", "View", "Column", "Old", "New"})
	for _, wr := range writes {
		tw.AppendRow(table.Row{wr.ItemID, wr.View, wr.Column, fmtValue(wr.Old), fmtValue(wr.New)})
	}
	tw.SetStyle(table.StyleLight)
	tw.Render()
}

func fmtValue(v any) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%v", v)
}

func runStore(cmd *cobra.Command, opts *runOptions) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	store, err := opts.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	b, err := opts.newBehavior(store)
	if err != nil {
		return err
	}

	report, err := b.Initialize(ctx)
	if err != nil {
		printInitError(out, err)
		return err
	}
	fmt.Fprintln(out, report)

	writes, err := store.Writes(ctx)
	if err != nil {
		return err
	}
	if report.Writes < len(writes) {
		writes = writes[len(writes)-report.Writes:]
	}
	recent := make([]memrepo.Write, 0, len(writes))
	for _, w := range writes {
		recent = append(recent, memrepo.Write{ItemID: w.ItemID, Column: w.Column, Old: w.Old, New: w.New, At: w.At})
	}
	printWrites(out, recent)
	return nil
}
