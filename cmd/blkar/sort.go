package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbx"
)

func newSortCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "sort <container> <dest>",
		Short: "Re-emit a container's blocks in ascending sequence order",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := sbx.Sort(sbx.SortParams{ContainerPath: args[0], OutputPath: args[1], Force: force}, a.log)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}
			out := report.Report{Stats: report.Stats{
				SBXVersion:    int(res.Version),
				FileUID:       fmt.Sprintf("%x", res.UID[:]),
				BlocksWritten: res.BlocksWritten,
			}}
			return emitReport(cmd.OutOrStdout(), a.jsonOutput, out, func(w io.Writer) {
				fmt.Fprintf(w, "sorted %d blocks -> %s\n", res.BlocksWritten, args[1])
			})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing output file")
	return cmd
}
