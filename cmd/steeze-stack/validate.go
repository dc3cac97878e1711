package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/joeydtaylor/steeze-stack/pkg/core"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <manifest>",
		Short: "Validate a manifest and list its routes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			man, err := core.LoadConfig(args[0])
			if err != nil {
				return err
			}
			if _, err := core.BuildStack(man, core.BuildDeps{}); err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tMETHOD\tPATH\tSIDE\tTYPE")
			for _, rt := range man.Routes {
				method := rt.Method
				if method == "" {
					method = "*"
				}
				side := rt.Side
				if side == "" {
					side = "near"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rt.Name, method, rt.Path, side, rt.Handler.Type)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %d routes", len(man.Routes))
			if man.Handoff.Enabled {
				fmt.Fprintf(cmd.OutOrStdout(), ", hand-off to %q", man.Handoff.Topic)
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}
