package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBackendsCmd(a *app) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "backends",
		Short: "List the available connectors",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKIND\tSCHEMES\tTYPES\tTITLE")
			for _, d := range a.registry.Descriptors() {
				fmt.Fprintf(w, "%s\t%s\t%s\tv%d\t%s\n",
					d.ID, d.Kind, strings.Join(d.Schemes, ","), a.types.Version(d.Kind), d.Title)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if !verbose {
				return nil
			}

			out := cmd.OutOrStdout()
			for _, d := range a.registry.Descriptors() {
				fmt.Fprintf(out, "\n%s: %s\n", d.ID, d.Description)
				if d.SampleURI != "" {
					fmt.Fprintf(out, "  example: %s\n", d.SampleURI)
				}
				for _, o := range d.Options {
					def := ""
					if o.DefaultValue != "" {
						def = " (default " + o.DefaultValue + ")"
					}
					fmt.Fprintf(out, "  option %s %s: %s%s\n", o.Key, o.ValueType, o.Label, def)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show descriptions, example URIs and options")
	return cmd
}
