package sbx

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/mhash"
	"github.com/blkar/blkar/internal/metadata"
	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbxerr"
	"github.com/blkar/blkar/internal/sbxlog"
)

// CheckParams are the inputs to Check.
type CheckParams struct {
	ContainerPath string
	OnlyVersion   block.Version
	BurstHint     *int
	ReportBlank   bool
}

// CheckBlockStatus is one expected block slot's verification outcome.
type CheckBlockStatus struct {
	Seq   uint32
	Valid bool
	Blank bool // slot lies entirely past the end of the stream
}

// CheckResult summarizes a completed check.
type CheckResult struct {
	UID               block.UID
	Version           block.Version
	BlocksFailedCheck int
	BlocksBlank       int
	HashCheckable     bool
	HashMatch         bool
	Blocks            []CheckBlockStatus
}

// Check verifies every block's CRC and, for parity versions, its group's RS
// recoverability, without writing any output. It never aborts on a single
// block's failure; every failure is recorded, counted against rep, and
// scanning continues.
func Check(p CheckParams, rep report.Reporter, log logrus.FieldLogger) (*CheckResult, error) {
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
	streamLen := info.Size()

	metaBlock, _, err := locateMetadata(f, streamLen, p.OnlyVersion, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	metaSet, err := metadata.Decode(metaBlock.Payload)
	if err != nil {
		return nil, err
	}
	fileSize, _ := metaSet.FileSize()
	recordedHash, haveHash := metaSet.Hash()

	layout := Layout{Version: metaBlock.Version}
	if layout.Version.HasParity() {
		d, pp, ok := metaSet.RSParams()
		if !ok {
			return nil, sbxerr.MetadataMalformedf("sbx: parity version %s missing PID record", layout.Version)
		}
		layout.D, layout.P = d, pp
	} else {
		layout.D, layout.P = 1, 0
	}
	nData, err := layout.DataBlockCount(fileSize)
	if err != nil {
		return nil, err
	}
	groups := layout.GroupCount(nData)

	burst := 0
	if layout.Version.HasParity() {
		switch {
		case p.BurstHint != nil:
			burst = *p.BurstHint
		case haveHash:
			if info, err := mhash.Decode(recordedHash); err == nil && info.Checkable {
				if b, err := detectBurst(f, layout, groups, nData, fileSize, info.Code, recordedHash, 0, 0); err == nil {
					burst = b
				}
			}
		}
	}
	layout.B = burst

	blockSize, err := layout.BlockSize()
	if err != nil {
		return nil, err
	}
	blocks, err := collectBlocks(f, streamLen, layout, metaBlock.UID, 0, 0)
	if err != nil {
		return nil, err
	}

	res := &CheckResult{UID: metaBlock.UID, Version: layout.Version}
	totalSlots := 1 + layout.MetadataParityCount() + groups*layout.GroupSize()
	for seq := 0; seq < totalSlots; seq++ {
		offset := int64(seq) * int64(blockSize)
		status := CheckBlockStatus{Seq: uint32(seq)}
		if _, ok := blocks[uint32(seq)]; ok {
			status.Valid = true
		} else if offset+int64(blockSize) > streamLen {
			status.Blank = true
			res.BlocksBlank++
			res.BlocksFailedCheck++
		} else {
			res.BlocksFailedCheck++
		}
		if !status.Valid && rep != nil {
			rep.Stat("blocksFailedCheck", 1)
		}
		if !status.Valid && (!status.Blank || p.ReportBlank) {
			res.Blocks = append(res.Blocks, status)
		}
	}

	if haveHash {
		if info, err := mhash.Decode(recordedHash); err == nil && info.Checkable {
			hasher, err := mhash.New(info.Code)
			if err == nil {
				if _, err := decodeGroups(layout, groups, nData, blocks, fileSize, io.Discard, hasher, nil); err == nil {
					if got, err := hasher.Finalize(); err == nil {
						res.HashCheckable = true
						res.HashMatch = string(got) == string(recordedHash)
						if !res.HashMatch && rep != nil {
							rep.Error(sbxerr.HashMismatchf("sbx: recoverable data does not hash back to the recorded digest"))
						}
					}
				}
			}
		}
	}

	sbxlog.For(log, "check").WithField("uid", metaBlock.UID).
		Infof("sbx: checked %d slots, %d failed", totalSlots, res.BlocksFailedCheck)
	return res, nil
}
