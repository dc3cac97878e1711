package main

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/joeydtaylor/steeze-stack/pkg/codec"
	"github.com/joeydtaylor/steeze-stack/pkg/core"
	"github.com/joeydtaylor/steeze-stack/pkg/stack"
	"github.com/spf13/cobra"
)

type dispatchOptions struct {
	method string
	side   string
	output string
}

func newDispatchCmd() *cobra.Command {
	opts := dispatchOptions{}
	cmd := &cobra.Command{
		Use:   "dispatch <manifest> <url>",
		Short: "Show which handlers a request would reach, without running them",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, args[0], args[1], opts)
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&opts.method, "method", "GET", "request method")
	fs.StringVar(&opts.side, "side", "near", "side to dispatch as (near|far)")
	fs.StringVarP(&opts.output, "output", "o", "yaml", "output format (yaml|json)")
	return cmd
}

func runDispatch(cmd *cobra.Command, path, url string, opts dispatchOptions) error {
	side, err := stack.ParseSide(opts.side)
	if err != nil {
		return err
	}
	var enc codec.Codec
	switch strings.ToLower(opts.output) {
	case "yaml", "yml":
		enc = codec.YAML
	case "json":
		enc = codec.JSON
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	man, err := core.LoadConfig(path)
	if err != nil {
		return err
	}
	s, err := core.BuildStack(man, core.BuildDeps{Relay: core.NoopRelay{}})
	if err != nil {
		return err
	}

	ex := core.Explain(s, url, strings.ToUpper(opts.method), side)
	if ex.Handoff && !man.Handoff.Enabled {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning: far-side route matched but [handoff] is disabled")
	}
	b, err := enc.Marshal(ex)
	if err != nil {
		return err
	}
	if !bytes.HasSuffix(b, []byte("\n")) {
		b = append(b, '\n')
	}
	_, err = cmd.OutOrStdout().Write(b)
	return err
}
