package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/piwi3910/bucketshift/internal/catalog"
	"github.com/piwi3910/bucketshift/internal/compression"
)

func (a *App) newExportCmd() *cobra.Command {
	var (
		stateFile   string
		format      string
		codec       string
		pendingOnly bool
		output      string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the state file contents as an inventory",
		Long: `Export writes every object recorded in the state file as CSV, JSON lines
or Parquet. CSV and JSON output can be compressed with gzip, zstd or lz4.
Parquet output is always Snappy compressed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			outFormat, err := catalog.ParseOutputFormat(format)
			if err != nil {
				return err
			}

			alg, err := compression.ParseAlgorithm(codec)
			if err != nil {
				return err
			}

			opts := catalog.ExportOptions{Format: outFormat, Compression: alg, PendingOnly: pendingOnly}

			l, err := openLedger(stateFile, false)
			if err != nil {
				return err
			}
			defer closeLedger(l)

			var w io.Writer = cmd.OutOrStdout()

			if output != "" && output != "-" {
				file, createErr := os.Create(output)
				if createErr != nil {
					return fmt.Errorf("failed to create %s: %w", output, createErr)
				}

				defer func() {
					if cerr := file.Close(); err == nil && cerr != nil {
						err = cerr
					}
				}()

				bw := bufio.NewWriter(file)
				defer func() {
					if ferr := bw.Flush(); err == nil && ferr != nil {
						err = ferr
					}
				}()

				w = bw
			}

			n, err := catalog.Export(cmd.Context(), l, w, opts)
			if err != nil {
				return fmt.Errorf("export failed: %w", err)
			}

			log.Info().
				Int64("records", n).
				Str("format", string(outFormat)).
				Str("compression", string(alg)).
				Str("output", output).
				Msg("Exported inventory")

			return nil
		},
	}

	cmd.Flags().StringVar(&stateFile, "state-file", "", "State file directory")
	cmd.Flags().StringVar(&format, "format", "csv", "Inventory format: csv, jsonl, parquet")
	cmd.Flags().StringVar(&codec, "compression", "none", "Compression for csv and jsonl: none, gzip, zstd, lz4")
	cmd.Flags().BoolVar(&pendingOnly, "pending-only", false, "Only export objects that are not copied yet")
	cmd.Flags().StringVarP(&output, "output", "o", "-", "Output file, - for stdout")

	_ = cmd.MarkFlagRequired("state-file")

	return cmd
}
