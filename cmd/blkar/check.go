package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbx"
)

func newCheckCmd(a *app) *cobra.Command {
	var (
		pv          int
		burst       int
		hasBurst    bool
		reportBlank bool
	)
	cmd := &cobra.Command{
		Use:   "check <container>",
		Short: "Verify every block's CRC and RS recoverability",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ver, err := versionFromInt(pv)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}
			var burstHint *int
			if hasBurst {
				burstHint = &burst
			}
			rep := report.NewBaseReporter(20)
			res, err := sbx.Check(sbx.CheckParams{
				ContainerPath: args[0], OnlyVersion: ver, BurstHint: burstHint, ReportBlank: reportBlank,
			}, rep, a.log)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}

			stats := report.Stats{
				SBXVersion:        int(res.Version),
				FileUID:           fmt.Sprintf("%x", res.UID[:]),
				BlocksFailedCheck: res.BlocksFailedCheck,
				BlocksBlank:       res.BlocksBlank,
				Metrics:           rep.Snapshot(),
			}
			if res.HashCheckable {
				stats.HashMatch = boolPtr(res.HashMatch)
			}
			out := report.Report{Stats: stats}
			return emitReport(cmd.OutOrStdout(), a.jsonOutput, out, func(w io.Writer) {
				fmt.Fprintf(w, "checked %s: %d blocks failed (%d blank)\n", args[0], res.BlocksFailedCheck, res.BlocksBlank)
				for _, b := range res.Blocks {
					status := "corrupt"
					if b.Blank {
						status = "blank"
					} else if b.Valid {
						status = "ok"
					}
					fmt.Fprintf(w, "  seq %d: %s\n", b.Seq, status)
				}
			})
		},
	}
	cmd.Flags().IntVar(&pv, "pv", 0, "only consider this container version")
	cmd.Flags().IntVar(&burst, "burst", 0, "burst interleave factor hint (default: auto-detect)")
	cmd.Flags().BoolVar(&reportBlank, "report-blank", false, "include blank (past-end-of-stream) slots in the listing")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		hasBurst = cmd.Flags().Changed("burst")
		return nil
	}
	return cmd
}
