package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kittclouds/karta/internal/registry"
	"github.com/kittclouds/karta/internal/store"
)

func newCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <parentPath> <name>",
		Short: "Create a node under a parent",
		Long:  "Create a node under parentPath and place it in the parent's context next to the parent.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ntype, _ := cmd.Flags().GetString("type")
			parent := store.NormalizePath(args[0])

			s, err := a.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if err := s.engine.SwitchContext(ctx, parent); err != nil {
				_ = s.close(ctx)
				return err
			}

			x, y, _ := s.engine.FocalCenter()
			if cmd.Flags().Changed("x") {
				x, _ = cmd.Flags().GetFloat64("x")
			} else {
				x += a.cfg.Canvas.NeighborRadius
			}
			if cmd.Flags().Changed("y") {
				y, _ = cmd.Flags().GetFloat64("y")
			}

			n, err := s.engine.CreateNode(ctx, ntype, args[1], parent, x, y)
			if err != nil {
				_ = s.close(ctx)
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", n.Path, n.ID)
			return s.close(ctx)
		},
	}

	cmd.Flags().StringP("type", "t", registry.TypeGeneric, "node type")
	cmd.Flags().Float64("x", 0, "canvas x of the new node (default: right of the parent)")
	cmd.Flags().Float64("y", 0, "canvas y of the new node (default: level with the parent)")
	return cmd
}
