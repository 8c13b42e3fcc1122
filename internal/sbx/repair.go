package sbx

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/mhash"
	"github.com/blkar/blkar/internal/metadata"
	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/rscode"
	"github.com/blkar/blkar/internal/sbxerr"
	"github.com/blkar/blkar/internal/sbxlog"
)

// RepairParams are the inputs to Repair.
type RepairParams struct {
	ContainerPath string
	OnlyVersion   block.Version
	BurstHint     *int
	DryRun        bool
}

// RepairAction describes one block Repair did (or, under DryRun, would do).
type RepairAction struct {
	Seq    uint32
	Offset int64
	Reason string // "crc_fail" or "missing"
}

// RepairResult summarizes a completed (or planned) repair.
type RepairResult struct {
	UID             block.UID
	Version         block.Version
	BurstUsed       int
	BlocksInspected int
	Actions         []RepairAction
	DryRun          bool
}

// Repair scans a container and rewrites any block that fails CRC or is
// missing, using Reed-Solomon reconstruction within its RS group. The
// metadata block and its P parity copies are a degenerate group
// reconstructed by majority vote, ties breaking toward the lowest offset.
// Every damaged block found is counted against rep.
func Repair(p RepairParams, rep report.Reporter, log logrus.FieldLogger) (*RepairResult, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	mode := os.O_RDONLY
	if !p.DryRun {
		mode = os.O_RDWR
	}
	f, err := os.OpenFile(p.ContainerPath, mode, 0)
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

	res := &RepairResult{UID: metaBlock.UID, Version: layout.Version, BurstUsed: burst, DryRun: p.DryRun}

	blockSize, err := layout.BlockSize()
	if err != nil {
		return nil, err
	}

	metaActions, err := repairMetadataGroup(f, layout, metaBlock.UID, blockSize, p.DryRun)
	if err != nil {
		return nil, err
	}
	res.Actions = append(res.Actions, metaActions...)

	blocks, err := collectBlocks(f, streamLen, layout, metaBlock.UID, 0, 0)
	if err != nil {
		return nil, err
	}

	var coder *rscode.Coder
	if layout.Version.HasParity() {
		coder, err = rscode.New(rscode.Params{DataShards: layout.D, ParityShards: layout.P})
		if err != nil {
			return nil, err
		}
	}
	n := layout.GroupSize()

	for g := 0; g < groups; g++ {
		res.BlocksInspected += n
		shards := make([][]byte, n)
		present := make([]bool, n)
		missingSeq := make([]uint32, n)
		for o := 0; o < n; o++ {
			seq := layout.SeqForSlot(groups, g, o)
			missingSeq[o] = seq
			if b, ok := blocks[seq]; ok {
				shards[o] = b.Payload
				present[o] = true
			}
		}
		presentCount := 0
		for _, pr := range present {
			if pr {
				presentCount++
			}
		}
		if presentCount == n {
			continue // group fully intact, nothing to repair
		}
		if coder == nil || presentCount < layout.D {
			return nil, sbxerr.InsufficientShardsf("sbx: RS group %d unrecoverable (%d/%d shards present)", g, presentCount, n)
		}
		mask := rscode.PresentMask(present)
		rebuilt, err := coder.Reconstruct(shards, mask)
		if err != nil {
			return nil, err
		}
		for o := 0; o < n; o++ {
			if present[o] {
				continue
			}
			seq := missingSeq[o]
			// Blocks are written in ascending physical order at encode time,
			// so a slot's expected offset is always derivable even when the
			// block itself is gone or corrupt.
			offset := int64(seq) * int64(blockSize)
			reason := "missing"
			if offset+int64(blockSize) <= streamLen {
				reason = "crc_fail" // bytes exist at the slot but no valid block does
			}
			res.Actions = append(res.Actions, RepairAction{Seq: seq, Offset: offset, Reason: reason})
			if !p.DryRun {
				b := &block.Block{Version: layout.Version, UID: metaBlock.UID, Seq: seq, Payload: rebuilt[o]}
				raw, err := b.Serialize()
				if err != nil {
					return nil, err
				}
				if _, err := f.WriteAt(raw, offset); err != nil {
					return nil, sbxerr.IO(err, "sbx: rewriting block %d at offset %d", seq, offset)
				}
			}
		}
	}

	if rep != nil && len(res.Actions) > 0 {
		rep.Stat("blocksFailedCheck", float64(len(res.Actions)))
	}

	sbxlog.For(log, "repair").WithField("uid", metaBlock.UID).
		Infof("sbx: repaired %d blocks (dry-run=%v)", len(res.Actions), p.DryRun)
	return res, nil
}

// repairMetadataGroup reconstructs the metadata block and its P parity
// copies by majority vote among the 1+P on-disk candidates. Ties break
// toward the lowest offset.
func repairMetadataGroup(f *os.File, layout Layout, uid block.UID, blockSize int, dryRun bool) ([]RepairAction, error) {
	count := 1 + layout.MetadataParityCount()
	type candidate struct {
		ok      bool
		inRange bool // the slot's full byte range lies within the stream
		payload []byte
	}
	candidates := make([]candidate, count)
	for i := 0; i < count; i++ {
		offset := int64(i) * int64(blockSize)
		raw := make([]byte, blockSize)
		if _, err := f.ReadAt(raw, offset); err != nil {
			continue
		}
		candidates[i].inRange = true
		b, err := block.Deserialize(raw, layout.Version)
		if err != nil {
			continue
		}
		candidates[i] = candidate{ok: true, inRange: true, payload: b.Payload}
	}

	type tally struct {
		count int
		first int
	}
	votes := make(map[string]*tally)
	var order []string
	for i, c := range candidates {
		if !c.ok {
			continue
		}
		key := string(c.payload)
		t, seen := votes[key]
		if !seen {
			t = &tally{first: i}
			votes[key] = t
			order = append(order, key)
		}
		t.count++
	}
	if len(order) == 0 {
		return nil, sbxerr.InsufficientShardsf("sbx: metadata group unrecoverable: no valid copies found")
	}
	best := order[0]
	for _, key := range order[1:] {
		if votes[key].count > votes[best].count ||
			(votes[key].count == votes[best].count && votes[key].first < votes[best].first) {
			best = key
		}
	}
	winningPayload := []byte(best)

	var actions []RepairAction
	for i, c := range candidates {
		if c.ok && string(c.payload) == best {
			continue
		}
		offset := int64(i) * int64(blockSize)
		reason := "missing"
		if c.inRange {
			reason = "crc_fail"
		}
		actions = append(actions, RepairAction{Seq: uint32(i), Offset: offset, Reason: reason})
		if !dryRun {
			b := &block.Block{Version: layout.Version, UID: uid, Seq: uint32(i), Payload: winningPayload}
			raw, err := b.Serialize()
			if err != nil {
				return nil, err
			}
			if _, err := f.WriteAt(raw, offset); err != nil {
				return nil, sbxerr.IO(err, "sbx: rewriting metadata copy %d", i)
			}
		}
	}
	return actions, nil
}
