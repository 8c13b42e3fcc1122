package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/blkar/blkar/internal/metadata"
	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbx"
)

func newUpdateCmd(a *app) *cobra.Command {
	var (
		snm    string
		fnm    string
		noSNM  bool
		noFNM  bool
		assume bool
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "update <container>",
		Short: "Edit metadata fields in place",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var muts []sbx.FieldMutation
			switch {
			case noSNM:
				muts = append(muts, sbx.FieldMutation{Tag: metadata.TagSNM, Unset: true})
			case snm != "":
				muts = append(muts, sbx.FieldMutation{Tag: metadata.TagSNM, Value: snm})
			}
			switch {
			case noFNM:
				muts = append(muts, sbx.FieldMutation{Tag: metadata.TagFNM, Unset: true})
			case fnm != "":
				muts = append(muts, sbx.FieldMutation{Tag: metadata.TagFNM, Value: fnm})
			}
			if len(muts) == 0 {
				return reportError(cmd, a.jsonOutput, fmt.Errorf("sbx: update requires at least one of --snm/--fnm/--no-snm/--no-fnm"))
			}
			if !assume && !dryRun && !confirm(cmd, "apply these metadata changes?") {
				return reportError(cmd, a.jsonOutput, fmt.Errorf("sbx: update aborted by user"))
			}

			res, err := sbx.Update(sbx.UpdateParams{
				ContainerPath: args[0], Mutations: muts, DryRun: dryRun,
			}, a.log)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}

			out := report.Report{
				Stats: report.Stats{SBXVersion: int(res.Version), FileUID: fmt.Sprintf("%x", res.UID[:])},
				MetadataChanges: []report.MetadataChanges{
					{Changes: res.Changes},
				},
			}
			return emitReport(cmd.OutOrStdout(), a.jsonOutput, out, func(w io.Writer) {
				for _, c := range res.Changes {
					fmt.Fprintf(w, "%s: %q -> %q\n", c.Field, c.From, c.To)
				}
			})
		},
	}
	cmd.Flags().StringVar(&snm, "snm", "", "set the stored (SNM) file name")
	cmd.Flags().StringVar(&fnm, "fnm", "", "set the original (FNM) file name")
	cmd.Flags().BoolVar(&noSNM, "no-snm", false, "remove the SNM field")
	cmd.Flags().BoolVar(&noFNM, "no-fnm", false, "remove the FNM field")
	cmd.Flags().BoolVarP(&assume, "yes", "y", false, "assume yes, don't prompt for confirmation")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "report the change set without writing it")
	return cmd
}

// confirm prompts on stdin before any in-place mutation of user data,
// unless the caller already passed -y.
func confirm(cmd *cobra.Command, prompt string) bool {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s [y/N] ", prompt)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}
