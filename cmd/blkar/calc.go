package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbx"
)

func newCalcCmd(a *app) *cobra.Command {
	var (
		version    int
		rsData     int
		rsParity   int
		burst      int
		inFileSize uint64
	)
	cmd := &cobra.Command{
		Use:   "calc",
		Short: "Compute the on-disk container size for a given input size and parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ver, err := versionFromInt(version)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}
			if ver == 0 {
				ver = block.Version(valueOrInt(version, a.cfg.Version))
			}
			layout := sbx.Layout{Version: ver, D: valueOrInt(rsData, a.cfg.RS.Data), P: valueOrInt(rsParity, a.cfg.RS.Parity), B: burst}
			res, err := sbx.Calc(sbx.CalcParams{Layout: layout, InFileSize: inFileSize})
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}
			out := report.Report{Stats: report.Stats{
				SBXVersion: int(ver),
				BytesOut:   res.TotalBytes,
			}}
			return emitReport(cmd.OutOrStdout(), a.jsonOutput, out, func(w io.Writer) {
				fmt.Fprintf(w, "%d bytes (%d blocks)\n", res.TotalBytes, res.TotalBlocks)
			})
		},
	}
	cmd.Flags().IntVar(&version, "sbx-version", 0, "SBX container version")
	cmd.Flags().IntVar(&rsData, "rs-data", 0, "RS data shard count")
	cmd.Flags().IntVar(&rsParity, "rs-parity", 0, "RS parity shard count")
	cmd.Flags().IntVar(&burst, "burst", 0, "burst interleave factor")
	cmd.Flags().Uint64Var(&inFileSize, "in-file-size", 0, "plaintext input size in bytes")
	return cmd
}
