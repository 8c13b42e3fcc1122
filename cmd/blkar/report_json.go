package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blkar/blkar/internal/report"
)

// emitReport writes rep as the single top-level JSON object emitted when
// --json is set, or else runs textFn to print the human-readable
// rendering. textFn is never called in JSON mode.
func emitReport(w io.Writer, jsonOutput bool, rep report.Report, textFn func(w io.Writer)) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	textFn(w)
	return nil
}

// errorReport builds the "exactly one JSON object, even on failure" report
// emitted when a subcommand fails under --json.
func errorReport(err error) report.Report {
	msg := err.Error()
	return report.Report{Error: &msg}
}

func strPtr(b []byte) *string {
	if b == nil {
		return nil
	}
	s := fmt.Sprintf("%x", b)
	return &s
}

func boolPtr(b bool) *bool { return &b }

// reportError emits the failure report (a non-null "error" field under
// --json, a plain stderr line otherwise) and returns err unchanged so
// RunE's caller exits non-zero.
func reportError(cmd *cobra.Command, jsonOutput bool, err error) error {
	if jsonOutput {
		_ = emitReport(cmd.OutOrStdout(), true, errorReport(err), nil)
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
	}
	return err
}
