package main

import (
	"github.com/joeydtaylor/steeze-stack/pkg/serverfx"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "steeze-stack",
		Short:         "Path-scoped handler stack server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newValidateCmd(), newDispatchCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the manifest in $STACK_MANIFEST (default manifest.toml)",
		RunE: func(cmd *cobra.Command, args []string) error {
			fx.New(serverfx.Module(serverfx.WithService(service))).Run()
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "steeze-stack", "service name for logs")
	return cmd
}
