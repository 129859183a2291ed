package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/piwi3910/bucketshift/internal/ledger"
)

// statusReport is the status command output.
type statusReport struct {
	StateFile      string `json:"state_file" yaml:"state_file"`
	ledger.Summary `yaml:",inline"`
}

func (a *App) newStatusCmd() *cobra.Command {
	var (
		stateFile string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show how many objects are pending and copied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger(stateFile, false)
			if err != nil {
				return err
			}
			defer closeLedger(l)

			summary, err := l.Summary(cmd.Context())
			if err != nil {
				return err
			}

			return writeStatus(cmd.OutOrStdout(), output, statusReport{StateFile: stateFile, Summary: summary})
		},
	}

	cmd.Flags().StringVar(&stateFile, "state-file", "", "State file directory")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json, yaml")

	_ = cmd.MarkFlagRequired("state-file")

	return cmd
}

func writeStatus(w io.Writer, format string, r statusReport) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(r); err != nil {
			return err
		}

		return enc.Close()
	case "text", "":
		pendingBytes := "unknown"
		if r.PendingBytes != nil {
			pendingBytes = humanize.IBytes(uint64(max(*r.PendingBytes, 0)))
		}

		fmt.Fprintf(w, "State file: %s\n", r.StateFile)
		fmt.Fprintf(w, "Objects:    %d\n", r.Total)
		fmt.Fprintf(w, "Copied:     %d (%s)\n", r.Copied, humanize.IBytes(uint64(max(r.CopiedBytes, 0))))
		fmt.Fprintf(w, "Pending:    %d (%s)\n", r.Pending, pendingBytes)

		return nil
	default:
		return fmt.Errorf("unknown output format %q (allowed: text, json, yaml)", format)
	}
}
