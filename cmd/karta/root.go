package main

import (
	"github.com/spf13/cobra"

	"github.com/kittclouds/karta/internal/config"
)

// app carries what PersistentPreRunE resolved to the subcommands.
type app struct {
	cfg *config.Config
}

// NewRootCmd creates the root karta command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "karta",
		Short:         "Karta - context canvas over a node graph",
		Long:          "Karta navigates a graph of nodes as a set of focal contexts, each remembering its own layout.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd)
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "path to config file")
	root.PersistentFlags().String("db", "", "storage location (overrides storage.dsn)")
	root.PersistentFlags().String("backend", "", "storage backend: sqlite, badger or memory (overrides storage.backend)")

	root.AddCommand(
		newContextsCmd(a),
		newShowCmd(a),
		newCreateCmd(a),
		newLinkCmd(a),
		newExportCmd(a),
	)
	return root
}

// load reads the config file and applies flag overrides.
func (a *app) load(cmd *cobra.Command) error {
	flags := cmd.Root().PersistentFlags()
	path, _ := flags.GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if db, _ := flags.GetString("db"); db != "" {
		cfg.Storage.DSN = db
	}
	if backend, _ := flags.GetString("backend"); backend != "" {
		cfg.Storage.Backend = backend
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return errs[0]
	}
	a.cfg = cfg
	return nil
}
