package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

func newContextsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "contexts [pattern]",
		Short: "List saved contexts",
		Long:  "List every saved context by focal path, optionally filtered by a glob pattern such as /root/**.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := ""
			if len(args) == 1 {
				pattern = args[0]
			}

			s, err := a.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer s.gw.Close()

			paths, err := s.engine.ContextPaths(cmd.Context(), pattern)
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(paths))
			for id := range paths {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return paths[ids[i]] < paths[ids[j]] })

			out := cmd.OutOrStdout()
			for _, id := range ids {
				_, _ = fmt.Fprintf(out, "%s\t%s\n", paths[id], id)
			}
			return nil
		},
	}
}
