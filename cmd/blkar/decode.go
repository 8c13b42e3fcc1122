package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbx"
)

func newDecodeCmd(a *app) *cobra.Command {
	var (
		pv      int
		uidHex  string
		force   bool
		burst   int
		hasBrst bool
		outPath string
		from    int64
		to      int64
	)
	cmd := &cobra.Command{
		Use:   "decode <container> [dest]",
		Short: "Reconstruct the original file from an SBX container",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			container := args[0]
			dest := outPath
			if len(args) == 2 {
				dest = args[1]
			}
			if dest == "" {
				dest = strings.TrimSuffix(container, filepath.Ext(container)) + ".out"
			}
			ver, err := versionFromInt(pv)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}
			uid, err := parseUID(uidHex)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}
			var burstHint *int
			if hasBrst {
				burstHint = &burst
			}

			rep := report.NewBaseReporter(20)
			res, err := sbx.Decode(sbx.DecodeParams{
				ContainerPath: container, DestPath: dest, Force: force,
				OnlyVersion: ver, ExpectedUID: uid, BurstHint: burstHint,
				From: from, To: to,
			}, rep, a.log)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}

			stats := report.Stats{
				SBXVersion:        int(res.Version),
				FileUID:           fmt.Sprintf("%x", res.UID[:]),
				BlocksFailedCheck: res.BlocksFailedCheck,
				RecordedHash:      strPtr(res.RecordedHash),
				Metrics:           rep.Snapshot(),
			}
			if res.HashCheckable {
				stats.HashOfOutputFile = strPtr(res.HashOfOutputFile)
				stats.HashMatch = boolPtr(res.HashMatch)
			}
			out := report.Report{Stats: stats}
			return emitReport(cmd.OutOrStdout(), a.jsonOutput, out, func(w io.Writer) {
				fmt.Fprintf(w, "decoded %s -> %s (%d blocks failed check, hashMatch=%v)\n",
					container, dest, res.BlocksFailedCheck, res.HashMatch)
				if a.verbose {
					fmt.Fprintln(cmd.ErrOrStderr(), report.PrettyDump(res))
				}
			})
		},
	}
	cmd.Flags().IntVar(&pv, "pv", 0, "only consider this container version")
	cmd.Flags().StringVar(&uidHex, "uid", "", "expect this container UID")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing output file")
	cmd.Flags().IntVar(&burst, "burst", 0, "burst interleave factor hint (default: auto-detect)")
	cmd.Flags().StringVar(&outPath, "sbx-out", "", "output file path")
	cmd.Flags().Int64Var(&from, "from", 0, "lower byte offset bound for block discovery")
	cmd.Flags().Int64Var(&to, "to", 0, "upper byte offset bound for block discovery")
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		hasBrst = cmd.Flags().Changed("burst")
		return nil
	}
	return cmd
}
