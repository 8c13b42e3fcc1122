package main

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbx"
)

func newRescueCmd(a *app) *cobra.Command {
	var (
		from    int64
		to      int64
		logPath string
	)
	cmd := &cobra.Command{
		Use:   "rescue <source> <output-dir>",
		Short: "Salvage blocks from a raw, possibly damaged byte stream",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := args[1]
			lp := logPath
			if lp == "" {
				lp = filepath.Join(outDir, "rescue.log.jsonl")
			}
			res, err := sbx.Rescue(sbx.RescueParams{
				SourcePath: args[0], OutputDir: outDir, LogPath: lp, From: from, To: to,
			}, a.log)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}

			out := report.Report{
				Stats: report.Stats{BlocksWritten: res.TotalBlocks},
			}
			return emitReport(cmd.OutOrStdout(), a.jsonOutput, out, func(w io.Writer) {
				fmt.Fprintf(w, "rescued %d blocks across %d containers into %s\n", res.TotalBlocks, len(res.Buckets), outDir)
				for _, b := range res.Buckets {
					fmt.Fprintf(w, "  %s: %d blocks (uid %x)\n", b.OutputPath, b.BlocksWritten, b.UID[:])
				}
			})
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "lower byte offset bound")
	cmd.Flags().Int64Var(&to, "to", 0, "upper byte offset bound")
	cmd.Flags().StringVar(&logPath, "log", "", "rescue log path (default: <output-dir>/rescue.log.jsonl)")
	return cmd
}
