package sbx

import (
	"os"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/sbxerr"
	"github.com/blkar/blkar/internal/sbxlog"
	"github.com/blkar/blkar/internal/scan"
)

// SortParams are the inputs to Sort.
type SortParams struct {
	ContainerPath string
	OutputPath    string
	Force         bool
}

// SortResult summarizes a completed sort.
type SortResult struct {
	UID           block.UID
	Version       block.Version
	BlocksWritten int
}

// Sort re-emits a container's blocks in ascending sequence-number order to
// a new file, for containers whose blocks are out of order but all present.
func Sort(p SortParams, log logrus.FieldLogger) (*SortResult, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	f, err := os.Open(p.ContainerPath)
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: opening container %s", p.ContainerPath)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: stat container %s", p.ContainerPath)
	}

	// Strict filtering keys every later block to the first one's
	// (version, uid), so a byte range that happens to contain another
	// container's valid blocks never gets them spliced into the output.
	sc, first, found := scan.FindFirstValid(f, info.Size(), scan.Options{Filter: scan.FilterStrict})
	if !found {
		return nil, sbxerr.InvalidBlockf("sbx: no valid block found in %s", p.ContainerPath)
	}
	blocks := []*block.Block{first.Block}
	for {
		res, ok := sc.Next()
		if !ok {
			break
		}
		if res.Block != nil {
			blocks = append(blocks, res.Block)
		}
	}

	sort.Slice(blocks, func(i, j int) bool { return blocks[i].Seq < blocks[j].Seq })

	if !p.Force {
		if _, err := os.Stat(p.OutputPath); err == nil {
			return nil, sbxerr.Usagef("sbx: %s already exists (use -f to overwrite)", p.OutputPath)
		}
	}
	out, err := os.OpenFile(p.OutputPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: creating %s", p.OutputPath)
	}
	defer out.Close()

	for _, b := range blocks {
		raw, err := b.Serialize()
		if err != nil {
			return nil, err
		}
		if _, err := out.Write(raw); err != nil {
			return nil, sbxerr.IO(err, "sbx: writing sorted block %d", b.Seq)
		}
	}

	uid := first.Block.UID
	version := first.Block.Version
	sbxlog.For(log, "sort").WithField("uid", uid).Infof("sbx: sorted %d blocks", len(blocks))
	return &SortResult{UID: uid, Version: version, BlocksWritten: len(blocks)}, nil
}
