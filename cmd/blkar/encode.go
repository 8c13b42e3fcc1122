package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/mhash"
	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbx"
)

func newEncodeCmd(a *app) *cobra.Command {
	var (
		version  int
		force    bool
		rsData   int
		rsParity int
		burst    int
		uidHex   string
		hashAlgo string
		outPath  string
	)
	cmd := &cobra.Command{
		Use:   "encode <source> [--sbx-out PATH]",
		Short: "Produce an SBX container from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src := args[0]
			ver, err := versionFromInt(version)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}
			if ver == 0 {
				ver = block.Version(a.cfg.Version)
			}
			dest := outPath
			if dest == "" {
				dest = filepath.Base(src) + ".sbx"
			}
			uid, err := parseUID(uidHex)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}
			hashCode, err := mhash.CodeForName(valueOr(hashAlgo, a.cfg.HashAlgo))
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}
			layout := sbx.Layout{Version: ver, D: valueOrInt(rsData, a.cfg.RS.Data), P: valueOrInt(rsParity, a.cfg.RS.Parity), B: burst}

			rep := report.NewBaseReporter(20)
			var throughput []float64
			if a.verbose && !a.jsonOutput {
				rep.Sink = func(ev report.ProgressEvent) {
					throughput = append(throughput, float64(ev.BytesOut))
				}
			}
			res, err := sbx.Encode(context.Background(), sbx.EncodeParams{
				SourcePath: src, DestPath: dest, Force: force,
				Layout: layout, UID: uid, HashCode: hashCode,
				QueueDepth: a.cfg.QueueDepth,
			}, rep, a.log)
			if err != nil {
				return reportError(cmd, a.jsonOutput, err)
			}

			out := report.Report{
				Stats: report.Stats{
					SBXVersion:    int(res.Version),
					FileUID:       fmt.Sprintf("%x", res.UID[:]),
					BlocksWritten: res.BlocksWritten,
					RecordedHash:  strPtr(res.RecordedHash),
					Metrics:       rep.Snapshot(),
				},
			}
			return emitReport(cmd.OutOrStdout(), a.jsonOutput, out, func(w io.Writer) {
				fmt.Fprintf(w, "encoded %s -> %s (version %s, uid %s, %d blocks)\n",
					src, dest, res.Version, out.Stats.FileUID, res.BlocksWritten)
				if graph := report.Sparkline(throughput, 6); graph != "" {
					fmt.Fprintln(cmd.ErrOrStderr(), graph)
				}
			})
		},
	}
	cmd.Flags().IntVar(&version, "sbx-version", 0, "SBX container version (default: config/1)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing output file")
	cmd.Flags().IntVar(&rsData, "rs-data", 0, "RS data shard count (parity versions only)")
	cmd.Flags().IntVar(&rsParity, "rs-parity", 0, "RS parity shard count (parity versions only)")
	cmd.Flags().IntVar(&burst, "burst", 0, "burst interleave factor (0 or 1: no interleaving)")
	cmd.Flags().StringVar(&uidHex, "uid", "", "8 hex digit container UID (default: random)")
	cmd.Flags().StringVar(&hashAlgo, "hash", "", "hash algorithm: sha256 (default) or xxh64")
	cmd.Flags().StringVar(&outPath, "sbx-out", "", "output container path (default: <source>.sbx)")
	return cmd
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func valueOrInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
