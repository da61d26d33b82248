package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	kerr "github.com/kittclouds/karta/pkg/errors"
)

func newExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write a snapshot of the whole store",
		Long:  "Write every node, edge and saved context as YAML. Names ending in .zst are zstd compressed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			gw, err := openGateway(a.cfg.Storage.Backend, a.cfg.Storage.DSN)
			if err != nil {
				return err
			}
			defer gw.Close()

			snap, err := gw.Snapshot(ctx)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(snap)
			if err != nil {
				return kerr.Wrap(err, kerr.CodeCLIExportFailure, "encoding snapshot")
			}
			if strings.HasSuffix(args[0], ".zst") {
				if data, err = compress(data); err != nil {
					return err
				}
			}
			if err := os.WriteFile(args[0], data, 0o644); err != nil {
				return kerr.Wrap(err, kerr.CodeCLIExportFailure, "writing snapshot", kerr.Field("file", args[0]))
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d nodes, %d edges, %d contexts to %s\n",
				len(snap.Nodes), len(snap.Edges), len(snap.Contexts), args[0])
			return nil
		},
	}
}

func compress(data []byte) ([]byte, error) {
	var compressed bytes.Buffer
	encoder, err := zstd.NewWriter(&compressed)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeCLIExportFailure, "creating zstd encoder")
	}
	if _, err := encoder.Write(data); err != nil {
		encoder.Close()
		return nil, kerr.Wrap(err, kerr.CodeCLIExportFailure, "compressing snapshot")
	}
	if err := encoder.Close(); err != nil {
		return nil, kerr.Wrap(err, kerr.CodeCLIExportFailure, "flushing zstd encoder")
	}
	return compressed.Bytes(), nil
}
