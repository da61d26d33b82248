package main

import (
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kittclouds/karta/internal/engine"
	"github.com/kittclouds/karta/internal/viewport"
)

type shownNode struct {
	ID         string           `yaml:"id"`
	Path       string           `yaml:"path"`
	Type       string           `yaml:"type"`
	State      engine.ViewState `yaml:"state"`
	Attributes map[string]any   `yaml:"attributes,omitempty"`
}

type shownEdge struct {
	ID       string `yaml:"id"`
	Source   string `yaml:"source"`
	Target   string `yaml:"target"`
	Contains bool   `yaml:"contains,omitempty"`
}

type shownContext struct {
	ID       string           `yaml:"id"`
	Path     string           `yaml:"path"`
	Viewport *viewport.Camera `yaml:"viewport,omitempty"`
	Nodes    []shownNode      `yaml:"nodes"`
	Edges    []shownEdge      `yaml:"edges"`
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <handle>",
		Short: "Enter a context and print its layout",
		Long:  "Enter the context focused on a node id or path and print its ViewNodes in absolute canvas space as YAML.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := a.open(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			if err := s.engine.SwitchContext(ctx, args[0]); err != nil {
				_ = s.close(ctx)
				return err
			}

			c := s.engine.ActiveContext()
			g := s.engine.Graph()
			shown := shownContext{ID: c.ID, Viewport: c.Viewport}
			if focal := g.Node(c.ID); focal != nil {
				shown.Path = focal.Path
			}
			for _, id := range c.IDs() {
				vn := c.ViewNodes[id]
				node := shownNode{ID: id, State: vn.Target(), Attributes: vn.Attributes}
				if n := g.Node(id); n != nil {
					node.Path = n.Path
					node.Type = n.NType
				}
				shown.Nodes = append(shown.Nodes, node)
			}
			for _, e := range g.Edges() {
				shown.Edges = append(shown.Edges, shownEdge{ID: e.ID, Source: e.Source, Target: e.Target, Contains: e.Contains})
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(shown); err != nil {
				_ = s.close(ctx)
				return err
			}
			if err := enc.Close(); err != nil {
				_ = s.close(ctx)
				return err
			}
			return s.close(ctx)
		},
	}
}
