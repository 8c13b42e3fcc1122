package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbx"
)

func newShowCmd(a *app) *cobra.Command {
	var (
		pv      int
		skipTo  int64
		to      int64
		showAll bool
	)
	cmd := &cobra.Command{
		Use:   "show <container>",
		Short: "Dump metadata and a block listing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ver, err := versionFromInt(pv)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}
			res, err := sbx.Show(sbx.ShowParams{
				ContainerPath: args[0], OnlyVersion: ver, SkipTo: skipTo, To: to, ShowAll: showAll,
			}, a.log)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}

			out := report.Report{
				Stats: report.Stats{
					SBXVersion: int(res.Version),
					FileUID:    fmt.Sprintf("%x", res.UID[:]),
				},
				Blocks: res.Blocks,
			}
			return emitReport(cmd.OutOrStdout(), a.jsonOutput, out, func(w io.Writer) {
				fmt.Fprintf(w, "file: %s (stored as %s, %d bytes)\n", res.FileName, res.StoredName, res.FileSize)
				var table strings.Builder
				report.WriteBlockTable(&table, res.Blocks, showAll)
				if a.verbose {
					// Line-numbered listing so offsets in long dumps are easy
					// to reference.
					if numbered, err := report.FilterLines(table.String(), ""); err == nil {
						fmt.Fprint(w, numbered)
						return
					}
				}
				fmt.Fprint(w, table.String())
			})
		},
	}
	cmd.Flags().IntVar(&pv, "pv", 0, "only consider this container version")
	cmd.Flags().Int64Var(&skipTo, "skip-to", 0, "lower byte offset bound for the block listing")
	cmd.Flags().Int64Var(&to, "to", 0, "upper byte offset bound for the block listing")
	cmd.Flags().BoolVar(&showAll, "show-all", false, "include parity blocks in the listing")
	return cmd
}
