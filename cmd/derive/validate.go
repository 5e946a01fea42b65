package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Parse the behavior and compile its expressions",
		Long: `Parse the behavior XML and compile every column expression.

Compilation failures are reported together, one row per expression.
When --items is given, the behavior is also initialized against the fixture,
but nothing is written back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := opts.loadRepository()
			if err != nil {
				return err
			}

			b, err := opts.newBehavior(repo)
			if err != nil {
				return err
			}

			if _, err := b.Initialize(cmd.Context()); err != nil {
				printInitError(cmd.OutOrStdout(), err)
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), b)
			fmt.Fprintf(cmd.OutOrStdout(), "%d view(s) resolved\n", len(b.Views()))
			return nil
		},
	}
}
