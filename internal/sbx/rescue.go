package sbx

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/cockroachdb/swiss"
	"github.com/sirupsen/logrus"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/sbxerr"
	"github.com/blkar/blkar/internal/sbxlog"
	"github.com/blkar/blkar/internal/scan"
)

// RescueParams are the inputs to Rescue.
type RescueParams struct {
	SourcePath string // arbitrary byte stream, e.g. a raw disk image
	OutputDir  string
	LogPath    string // newline-delimited JSON log, one entry per block
	From, To   int64
}

// RescueBucket is one (version, uid) group of salvaged blocks.
type RescueBucket struct {
	Version       block.Version
	UID           block.UID
	OutputPath    string
	BlocksWritten int
}

// RescueResult summarizes a completed rescue.
type RescueResult struct {
	Buckets     []RescueBucket
	TotalBlocks int
}

type bucketKey struct {
	version block.Version
	uid     block.UID
}

type rescueLogEntry struct {
	SourceOffset int64  `json:"sourceOffset"`
	Version      int    `json:"version"`
	UID          string `json:"uid"`
	Seq          uint32 `json:"seq"`
}

// Rescue scans an arbitrary byte stream at every known alignment and emits
// every valid block found to OutputDir, bucketed by (version, uid) in the
// order encountered, writing a per-block JSON log entry to LogPath.
func Rescue(p RescueParams, log logrus.FieldLogger) (*RescueResult, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	src, err := os.Open(p.SourcePath)
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: opening source %s", p.SourcePath)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: stat source %s", p.SourcePath)
	}

	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return nil, sbxerr.IO(err, "sbx: creating output directory %s", p.OutputDir)
	}
	logFile, err := os.OpenFile(p.LogPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: creating rescue log %s", p.LogPath)
	}
	defer logFile.Close()
	enc := json.NewEncoder(logFile)

	buckets := swiss.New[bucketKey, *bucketState](8)
	var order []bucketKey

	// A block found in the 128-byte probe pass sits at an offset later
	// passes may revisit; emit each on-disk block once.
	seen := make(map[int64]bool)

	for _, alignment := range scan.Alignments {
		sc := scan.New(src, info.Size(), alignment, scan.Options{From: p.From, To: p.To, Filter: scan.FilterNone})
		for {
			res, ok := sc.Next()
			if !ok {
				break
			}
			if res.Block == nil || seen[res.Offset] {
				continue
			}
			seen[res.Offset] = true
			key := bucketKey{version: res.Block.Version, uid: res.Block.UID}
			st, ok := buckets.Get(key)
			if !ok {
				outPath := filepath.Join(p.OutputDir, fmt.Sprintf("%d_%x.sbx", byte(res.Block.Version), res.Block.UID[:]))
				outFile, err := os.OpenFile(outPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
				if err != nil {
					return nil, sbxerr.IO(err, "sbx: creating rescue output %s", outPath)
				}
				st = &bucketState{path: outPath, file: outFile}
				buckets.Put(key, st)
				order = append(order, key)
			}
			raw, err := res.Block.Serialize()
			if err != nil {
				return nil, err
			}
			if _, err := st.file.Write(raw); err != nil {
				return nil, sbxerr.IO(err, "sbx: writing rescued block to %s", st.path)
			}
			st.count++
			if err := enc.Encode(rescueLogEntry{
				SourceOffset: res.Offset,
				Version:      int(res.Block.Version),
				UID:          fmt.Sprintf("%x", res.Block.UID[:]),
				Seq:          res.Block.Seq,
			}); err != nil {
				return nil, sbxerr.IO(err, "sbx: writing rescue log entry")
			}
		}
	}

	result := &RescueResult{}
	for _, key := range order {
		st, _ := buckets.Get(key)
		_ = st.file.Close()
		result.Buckets = append(result.Buckets, RescueBucket{
			Version: key.version, UID: key.uid, OutputPath: st.path, BlocksWritten: st.count,
		})
		result.TotalBlocks += st.count
	}
	sort.Slice(result.Buckets, func(i, j int) bool { return result.Buckets[i].OutputPath < result.Buckets[j].OutputPath })

	sbxlog.For(log, "rescue").Infof("sbx: rescued %d blocks across %d containers", result.TotalBlocks, len(result.Buckets))
	return result, nil
}

type bucketState struct {
	path  string
	file  *os.File
	count int
}
