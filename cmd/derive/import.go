package main

import (
	"fmt"

	"github.com/ezachrisen/derive"
	"github.com/spf13/cobra"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import",
		Short: "Copy the item fixture into a SQLite database",
		Long: `Copy the projects, custom columns and items of the YAML fixture into the
SQLite database, creating it if needed. Items already in the database are
replaced.

Example:
  derive import --items backlog.yaml --db items.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if opts.Items == "" {
				return errItemsRequired
			}
			if opts.DB == "" {
				return fmt.Errorf("--db is required")
			}

			repo, err := opts.loadRepository()
			if err != nil {
				return err
			}
			store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n := 0
			for _, p := range repo.Projects() {
				if err := store.AddProject(ctx, p.Name()); err != nil {
					return err
				}
				for _, kind := range []derive.ViewKind{derive.Backlog, derive.Bugs, derive.Scheduled} {
					v := p.ViewOf(kind)
					for _, c := range v.CustomColumns() {
						if err := store.AddCustomColumn(ctx, p.Name(), kind, c); err != nil {
							return err
						}
					}
					for _, it := range v.Items() {
						fields := it.Fields()
						custom, _ := fields[derive.CustomFieldsKey].(map[string]any)
						delete(fields, derive.CustomFieldsKey)
						if err := store.PutItem(ctx, p.Name(), kind, it.ID(), fields, custom); err != nil {
							return err
						}
						n++
					}
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "imported %d project(s), %d item(s)\n", len(repo.Projects()), n)
			return nil
		},
	}
}
