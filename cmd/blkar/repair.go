package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbx"
)

func newRepairCmd(a *app) *cobra.Command {
	var (
		pv       int
		burst    int
		hasBurst bool
		dryRun   bool
	)
	cmd := &cobra.Command{
		Use:   "repair <container>",
		Short: "Rewrite corrupt or missing blocks using parity",
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
			res, err := sbx.Repair(sbx.RepairParams{
				ContainerPath: args[0], OnlyVersion: ver, BurstHint: burstHint, DryRun: dryRun,
			}, rep, a.log)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}

			var changes []report.FieldChange
			for _, act := range res.Actions {
				changes = append(changes, report.FieldChange{
					Field: fmt.Sprintf("seq:%d", act.Seq), From: act.Reason, To: fmt.Sprintf("offset:%#x", act.Offset),
				})
			}
			out := report.Report{
				Stats: report.Stats{
					SBXVersion:    int(res.Version),
					FileUID:       fmt.Sprintf("%x", res.UID[:]),
					BlocksWritten: res.BlocksInspected,
					Metrics:       rep.Snapshot(),
				},
				MetadataChanges: []report.MetadataChanges{{Changes: changes}},
			}
			return emitReport(cmd.OutOrStdout(), a.jsonOutput, out, func(w io.Writer) {
				verb := "repaired"
				if dryRun {
					verb = "would repair"
				}
				fmt.Fprintf(w, "%s %d of %d inspected blocks\n", verb, len(res.Actions), res.BlocksInspected)
				for _, act := range res.Actions {
					fmt.Fprintf(w, "  seq %d (%s) at offset %#x\n", act.Seq, act.Reason, act.Offset)
				}
			})
		},
	}
	cmd.Flags().IntVar(&pv, "pv", 0, "only consider this container version")
	cmd.Flags().IntVar(&burst, "burst", 0, "burst interleave factor hint (default: auto-detect)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the repair plan without writing it")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		hasBurst = cmd.Flags().Changed("burst")
		return nil
	}
	return cmd
}
