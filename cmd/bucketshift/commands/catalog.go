package commands

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/piwi3910/bucketshift/internal/catalog"
)

func (a *App) newCatalogCmd() *cobra.Command {
	var (
		srcBucket string
		stateFile string
		prefix    string
		pageSize  int32
	)

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the source bucket into the state file",
		Long: `Catalog lists every object of the source bucket and records it in the
state file. Objects already present in the state file are left untouched, so
catalog can be rerun safely. A failed listing request aborts the run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := a.loadSourceConfig()
			if err != nil {
				return err
			}

			src, err := a.OpenStore(ctx, cfg.Source)
			if err != nil {
				return err
			}

			l, err := openLedger(stateFile, true)
			if err != nil {
				return err
			}
			defer closeLedger(l)

			stopMetrics, err := a.startMetrics(ctx)
			if err != nil {
				return err
			}
			defer stopMetrics()

			log.Info().
				Str("bucket", srcBucket).
				Str("prefix", prefix).
				Str("state_file", stateFile).
				Msg("Cataloging source bucket")

			stats, err := catalog.New(src, l).Run(ctx, catalog.Options{
				Bucket:   srcBucket,
				Prefix:   prefix,
				PageSize: pageSize,
			})
			if err != nil {
				return fmt.Errorf("catalog failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Cataloging complete.")
			fmt.Fprintf(out, "Listed %d objects in %d pages: %d new, %d already known.\n",
				stats.Listed, stats.Pages, stats.Inserted, stats.Known())

			return nil
		},
	}

	cmd.Flags().StringVar(&srcBucket, "src-bucket-name", "", "Source bucket")
	cmd.Flags().StringVar(&stateFile, "state-file", "", "State file directory")
	cmd.Flags().StringVar(&prefix, "prefix", "", "Only catalog keys with this prefix")
	cmd.Flags().Int32Var(&pageSize, "page-size", catalog.DefaultPageSize, "Keys per listing request")

	_ = cmd.MarkFlagRequired("src-bucket-name")
	_ = cmd.MarkFlagRequired("state-file")

	return cmd
}
