package sbx

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/mhash"
	"github.com/blkar/blkar/internal/metadata"
	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/rscode"
	"github.com/blkar/blkar/internal/sbxerr"
	"github.com/blkar/blkar/internal/sbxlog"
	"github.com/blkar/blkar/internal/scan"
)

// MaxBurstGuess bounds the ascending burst-factor search run when no
// --burst hint is supplied. 32 covers every burst factor the `calc` and
// `encode` CLI surface realistically exposes without an exhaustive scan of
// the full [0,1000] range encode accepts.
const MaxBurstGuess = 32

// DecodeParams are the inputs to Decode.
type DecodeParams struct {
	ContainerPath string
	DestPath      string
	Force         bool

	OnlyVersion block.Version // --pv; 0 means "any"
	ExpectedUID *block.UID    // --uid

	// BurstHint is the --burst value, if the caller supplied one. Nil means
	// "detect automatically".
	BurstHint *int

	From, To int64
}

// DecodeResult summarizes a completed decode.
type DecodeResult struct {
	UID               block.UID
	Version           block.Version
	FileSize          uint64
	FileName          string
	BlocksFailedCheck int
	RecordedHash      []byte
	HashOfOutputFile  []byte
	HashMatch         bool
	HashCheckable     bool
	BurstUsed         int
}

// Decode reconstructs the original file from an SBX container. A hash
// mismatch is reported but never aborts decode: the reconstructed file is
// always written.
func Decode(p DecodeParams, rep report.Reporter, log logrus.FieldLogger) (*DecodeResult, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	src, err := os.Open(p.ContainerPath)
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: opening container %s", p.ContainerPath)
	}
	defer src.Close()
	info, err := src.Stat()
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: stat container %s", p.ContainerPath)
	}
	streamLen := info.Size()

	metaBlock, _, err := locateMetadata(src, streamLen, p.OnlyVersion, p.ExpectedUID, p.From, p.To)
	if err != nil {
		return nil, err
	}

	metaSet, err := metadata.Decode(metaBlock.Payload)
	if err != nil {
		return nil, err
	}
	fileSize, _ := metaSet.FileSize()
	fileName, _ := metaSet.FileName()
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

	if !p.Force {
		if _, err := os.Stat(p.DestPath); err == nil {
			return nil, sbxerr.Usagef("sbx: %s already exists (use -f to overwrite)", p.DestPath)
		}
	}

	var hashInfo mhash.Info
	if haveHash {
		hashInfo, err = mhash.Decode(recordedHash)
		if err != nil {
			return nil, err
		}
	}

	burst := 0
	if layout.Version.HasParity() {
		switch {
		case p.BurstHint != nil:
			burst = *p.BurstHint
		case haveHash && hashInfo.Checkable:
			burst, err = detectBurst(src, layout, groups, nData, fileSize, hashInfo.Code, recordedHash, p.From, p.To)
			if err != nil {
				return nil, err
			}
		default:
			burst = 0 // no hint and no checkable hash: assume no interleaving
		}
	}
	layout.B = burst

	dst, err := os.OpenFile(p.DestPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: creating output file %s", p.DestPath)
	}
	defer dst.Close()

	blocks, err := collectBlocks(src, streamLen, layout, metaBlock.UID, p.From, p.To)
	if err != nil {
		return nil, err
	}

	hashCode := uint64(0)
	if haveHash {
		hashCode = hashInfo.Code
	}
	var hasher *mhash.Hasher
	if haveHash && hashInfo.Checkable {
		hasher, err = mhash.New(hashCode)
		if err != nil {
			return nil, err
		}
	}

	blocksFailedCheck, err := decodeGroups(layout, groups, nData, blocks, fileSize, dst, hasher, rep)
	if err != nil {
		return nil, err
	}

	result := &DecodeResult{
		UID:               metaBlock.UID,
		Version:           layout.Version,
		FileSize:          fileSize,
		FileName:          fileName,
		BlocksFailedCheck: blocksFailedCheck,
		RecordedHash:      recordedHash,
		BurstUsed:         burst,
	}
	if hasher != nil {
		out, err := hasher.Finalize()
		if err != nil {
			return nil, err
		}
		result.HashOfOutputFile = out
		result.HashCheckable = true
		result.HashMatch = string(out) == string(recordedHash)
	}
	sbxlog.For(log, "decoder").WithField("uid", metaBlock.UID).
		Infof("sbx: decoded %d bytes, %d blocks failed check", fileSize, blocksFailedCheck)
	return result, nil
}

// locateMetadata finds the seq=0 block, trying every alignment ascending
// unless pv pins a specific version.
func locateMetadata(r io.ReaderAt, streamLen int64, pv block.Version, uid *block.UID, from, to int64) (*block.Block, int64, error) {
	alignments := scan.Alignments
	if pv != 0 {
		size, err := pv.Size()
		if err != nil {
			return nil, 0, err
		}
		alignments = []int{size}
	}
	opts := scan.Options{From: from, To: to, ExpectedVersion: pv, Filter: scan.FilterStrict}
	if uid != nil {
		opts.ExpectedUID = uid
	}
	for _, a := range alignments {
		sc := scan.New(r, streamLen, a, opts)
		for {
			res, ok := sc.Next()
			if !ok {
				break
			}
			if res.Block != nil && res.Block.Seq == 0 {
				return res.Block, res.Offset, nil
			}
		}
	}
	return nil, 0, sbxerr.InvalidBlockf("sbx: no metadata block found")
}

// collectBlocks scans the container at layout's native alignment over
// [from, to) and returns every valid block keyed by sequence number. A
// zero to means "to end of stream".
func collectBlocks(r io.ReaderAt, streamLen int64, layout Layout, uid block.UID, from, to int64) (map[uint32]*block.Block, error) {
	size, err := layout.BlockSize()
	if err != nil {
		return nil, err
	}
	expectedUID := uid
	sc := scan.New(r, streamLen, size, scan.Options{
		From:            from,
		To:              to,
		ExpectedVersion: layout.Version,
		ExpectedUID:     &expectedUID,
		Filter:          scan.FilterStrict,
	})
	blocks := make(map[uint32]*block.Block)
	for {
		res, ok := sc.Next()
		if !ok {
			break
		}
		if res.Block != nil {
			blocks[res.Block.Seq] = res.Block
		}
	}
	return blocks, nil
}

// decodeGroups walks every RS group, reconstructing and emitting plaintext
// in order. out may be io.Discard for a dry consistency trial (burst
// detection); hasher may be nil if the recorded hash isn't checkable.
func decodeGroups(layout Layout, groups, nData int, blocks map[uint32]*block.Block, fileSize uint64, out io.Writer, hasher *mhash.Hasher, rep report.Reporter) (int, error) {
	payloadSize, err := layout.PayloadSize()
	if err != nil {
		return 0, err
	}
	n := layout.GroupSize()

	var coder *rscode.Coder
	if layout.Version.HasParity() {
		coder, err = rscode.New(rscode.Params{DataShards: layout.D, ParityShards: layout.P})
		if err != nil {
			return 0, err
		}
	}

	blocksFailedCheck := 0
	dataIdx := 0
	bytesOut := int64(0)
	for g := 0; g < groups && dataIdx < nData; g++ {
		shards := make([][]byte, n)
		present := make([]bool, n)
		for o := 0; o < n; o++ {
			seq := layout.SeqForSlot(groups, g, o)
			if b, ok := blocks[seq]; ok {
				shards[o] = b.Payload
				present[o] = true
			} else {
				blocksFailedCheck++
				if rep != nil {
					rep.Stat("blocksFailedCheck", 1)
				}
			}
		}

		presentCount := 0
		for _, pr := range present {
			if pr {
				presentCount++
			}
		}

		var dataShards [][]byte
		switch {
		case presentCount == n:
			dataShards = shards[:layout.D]
		case coder != nil && presentCount >= layout.D:
			mask := rscode.PresentMask(present)
			rebuilt, err := coder.Reconstruct(shards, mask)
			if err != nil {
				return 0, err
			}
			dataShards = rebuilt[:layout.D]
		default:
			// Unrecoverable: emit zeroed payload for missing data slots and
			// keep going. Decode never aborts for a single bad group.
			dataShards = make([][]byte, layout.D)
			for i := range dataShards {
				if shards[i] != nil {
					dataShards[i] = shards[i]
				} else {
					dataShards[i] = make([]byte, payloadSize)
				}
			}
		}

		for i := 0; i < layout.D && dataIdx < nData; i++ {
			payload := dataShards[i]
			writeLen := payloadSize
			if dataIdx == nData-1 {
				if rem := int(fileSize % uint64(payloadSize)); rem != 0 {
					writeLen = rem
				}
			}
			if _, err := out.Write(payload[:writeLen]); err != nil {
				return 0, sbxerr.IO(err, "sbx: writing reconstructed output")
			}
			if hasher != nil {
				hasher.Update(payload[:writeLen])
			}
			bytesOut += int64(writeLen)
			dataIdx++
			if rep != nil {
				rep.Progress(report.ProgressEvent{BytesOut: bytesOut, BlocksWritten: dataIdx})
			}
		}
	}
	return blocksFailedCheck, nil
}

// detectBurst recovers the interleave factor: without a caller-supplied
// hint, try increasing B values and accept the smallest one whose
// reconstructed plaintext hashes back to the recorded digest. Any candidate
// "succeeds" numerically (a wrong B still produces *a* reconstruction); the
// hash comparison is what actually distinguishes the correct deinterleaving
// from a wrong guess, since a wrong B silently scrambles which bytes land
// in which position without tripping any single block's CRC.
func detectBurst(r io.ReaderAt, layout Layout, groups, nData int, fileSize uint64, hashCode uint64, recorded []byte, from, to int64) (int, error) {
	size, err := layout.BlockSize()
	if err != nil {
		return 0, err
	}
	streamLen, err := readerLen(r)
	if err != nil {
		return 0, err
	}
	for _, b := range append([]int{0}, burstCandidates()...) {
		trial := layout
		trial.B = b
		sc := scan.New(r, streamLen, size, scan.Options{From: from, To: to, ExpectedVersion: layout.Version, Filter: scan.FilterNone})
		blocks := make(map[uint32]*block.Block)
		for {
			res, ok := sc.Next()
			if !ok {
				break
			}
			if res.Block != nil {
				blocks[res.Block.Seq] = res.Block
			}
		}
		hasher, err := mhash.New(hashCode)
		if err != nil {
			return 0, err
		}
		if _, err := decodeGroups(trial, groups, nData, blocks, fileSize, io.Discard, hasher, nil); err != nil {
			continue
		}
		got, err := hasher.Finalize()
		if err != nil {
			continue
		}
		if string(got) == string(recorded) {
			return b, nil
		}
	}
	return 0, nil
}

func burstCandidates() []int {
	out := make([]int, 0, MaxBurstGuess)
	for b := 2; b <= MaxBurstGuess; b++ {
		out = append(out, b)
	}
	return out
}

func readerLen(r io.ReaderAt) (int64, error) {
	if f, ok := r.(*os.File); ok {
		info, err := f.Stat()
		if err != nil {
			return 0, sbxerr.IO(err, "sbx: stat during burst detection")
		}
		return info.Size(), nil
	}
	return 0, sbxerr.AssertionFailedf("sbx: detectBurst requires an *os.File reader")
}
