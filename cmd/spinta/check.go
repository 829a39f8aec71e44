package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/04d4/spinta/internal/storage"
)

func newCheckCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check MANIFEST",
		Short: "Validate a manifest and resolve its references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := storage.ParseLocation(args[0])
			if err != nil {
				return err
			}
			m, diags, err := a.store.Load(cmd.Context(), loc)
			if err != nil {
				printDiagnostics(cmd.ErrOrStderr(), diags)
				return fmt.Errorf("load %s: %w", loc, err)
			}
			diags = append(diags, m.ResolveReferences()...)
			printDiagnostics(cmd.ErrOrStderr(), diags)
			if errs := diags.Errors(); len(errs) > 0 {
				return fmt.Errorf("%s: %d errors", loc, len(errs))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", loc)
			return nil
		},
	}
}
