package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLinkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "link <src> <dst>",
		Short: "Connect two nodes with an edge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			src, err := resolveID(ctx, s.gw, args[0])
			if err != nil {
				_ = s.close(ctx)
				return err
			}
			dst, err := resolveID(ctx, s.gw, args[1])
			if err != nil {
				_ = s.close(ctx)
				return err
			}

			edge, err := s.engine.CreateEdge(ctx, src, dst)
			if err != nil {
				_ = s.close(ctx)
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), edge.ID)
			return s.close(ctx)
		},
	}
}
