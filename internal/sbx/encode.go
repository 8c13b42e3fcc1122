package sbx

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	times "gopkg.in/djherbis/times.v1"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/mhash"
	"github.com/blkar/blkar/internal/metadata"
	"github.com/blkar/blkar/internal/pipeline"
	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/rscode"
	"github.com/blkar/blkar/internal/sbxerr"
	"github.com/blkar/blkar/internal/sbxlog"
)

// EncodeParams are the inputs to Encode.
type EncodeParams struct {
	SourcePath string
	DestPath   string
	Force      bool // -f: allow overwriting an existing DestPath

	Layout Layout // Version + D/P/B; D/P/B ignored when Version has no parity

	FileNameOverride   string // FNM; defaults to filepath.Base(SourcePath)
	StoredNameOverride string // SNM; defaults to filepath.Base(DestPath)
	UID                *block.UID
	HashCode           uint64 // multihash function code, from mhash.CodeForName

	QueueDepth int
}

// EncodeResult summarizes a completed encode, consumed by cmd/blkar to
// build the JSON/text report.
type EncodeResult struct {
	UID           block.UID
	Version       block.Version
	BlocksWritten int
	FileSize      uint64
	RecordedHash  []byte // multihash bytes
}

// encodedGroupStub is one RS group's worth of blocks with every field set
// except Seq, which the writer assigns once it knows the block's physical
// position in the interleaved output order. bytesIn is the running
// plaintext total as of this group, carried along so the writer can report
// progress without touching the reader's counter.
type encodedGroupStub struct {
	index   int
	bytesIn uint64
	blocks  []*block.Block // length D+P (or 1 for non-parity versions)
}

// groupPayloads is the reader stage's output: one group's data payloads
// plus the running plaintext total.
type groupPayloads struct {
	payloads [][]byte
	bytesIn  uint64
}

// Encode streams SourcePath into a new SBX container at DestPath. rep
// receives one Progress event per data or parity block written (the
// metadata block and its copies produce none); log receives structured
// diagnostics.
func Encode(ctx context.Context, p EncodeParams, rep report.Reporter, log logrus.FieldLogger) (*EncodeResult, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	layout := p.Layout
	if !layout.Version.HasParity() {
		layout.D, layout.P, layout.B = 1, 0, 0
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	payloadSize, err := layout.PayloadSize()
	if err != nil {
		return nil, err
	}

	if !p.Force {
		if _, err := os.Stat(p.DestPath); err == nil {
			return nil, sbxerr.Usagef("sbx: %s already exists (use -f to overwrite)", p.DestPath)
		}
	}

	src, err := os.Open(p.SourcePath)
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: opening source file %s", p.SourcePath)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: stat source file %s", p.SourcePath)
	}
	fileSize := uint64(info.Size())

	mtime := info.ModTime()
	if ts, err := times.Stat(p.SourcePath); err == nil {
		mtime = ts.ModTime()
	}

	dst, err := os.OpenFile(p.DestPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: creating destination file %s", p.DestPath)
	}
	defer dst.Close()

	uid := block.NewUID()
	if p.UID != nil {
		uid = *p.UID
	}

	hashCode := p.HashCode
	if hashCode == 0 {
		hashCode, _ = mhash.CodeForName("sha256")
	}
	hasher, err := mhash.New(hashCode)
	if err != nil {
		return nil, err
	}

	fnm := p.FileNameOverride
	if fnm == "" {
		fnm = filepath.Base(p.SourcePath)
	}
	snm := p.StoredNameOverride
	if snm == "" {
		snm = filepath.Base(p.DestPath)
	}

	log = sbxlog.For(log, "encoder").WithFields(logrus.Fields{"uid": uid, "version": layout.Version.String()})

	metaSet := metadata.NewSet()
	_ = metaSet.SetFileName(fnm)
	_ = metaSet.SetStoredName(snm)
	_ = metaSet.SetFileSize(fileSize)
	_ = metaSet.SetFileModTime(mtime.Unix())
	_ = metaSet.SetContainerCreatedTime(time.Now().Unix())
	placeholder, err := mhash.ZeroPlaceholder(hashCode)
	if err != nil {
		return nil, err
	}
	_ = metaSet.SetHash(placeholder)
	if layout.Version.HasParity() {
		if err := metaSet.SetRSParams(layout.D, layout.P); err != nil {
			return nil, err
		}
	}

	metaPayload, err := metaSet.Encode(payloadSize)
	if err != nil {
		return nil, err
	}
	metaBlockOffsets, err := writeMetadataAndParity(dst, layout, uid, metaPayload)
	if err != nil {
		return nil, err
	}

	blocksWritten := 1 + layout.MetadataParityCount()
	bytesIn := uint64(0)
	nextOffset := int64(blocksWritten) * int64(mustSize(layout))

	var coder *rscode.Coder
	if layout.Version.HasParity() {
		coder, err = rscode.New(rscode.Params{DataShards: layout.D, ParityShards: layout.P})
		if err != nil {
			return nil, err
		}
	}

	nData, err := layout.DataBlockCount(fileSize)
	if err != nil {
		return nil, err
	}
	groups := layout.GroupCount(nData)

	groupIdx := 0
	readGroup := func(ctx context.Context) (pipeline.Item, bool, error) {
		if groupIdx >= groups {
			return pipeline.Item{}, false, nil
		}
		g := groupIdx
		groupIdx++
		n := layout.D
		if !layout.Version.HasParity() {
			n = 1
		}
		payloads := make([][]byte, n)
		for i := 0; i < n; i++ {
			buf := make([]byte, payloadSize)
			remaining := fileSize - bytesIn
			want := uint64(payloadSize)
			if remaining < want {
				want = remaining
			}
			if want > 0 {
				if _, err := io.ReadFull(src, buf[:want]); err != nil {
					return pipeline.Item{}, false, sbxerr.IO(err, "sbx: reading source data at byte %d", bytesIn)
				}
				hasher.Update(buf[:want])
				bytesIn += want
			}
			payloads[i] = buf
		}
		return pipeline.Item{Seq: uint32(g), Data: groupPayloads{payloads: payloads, bytesIn: bytesIn}}, true, nil
	}

	work := func(ctx context.Context, in pipeline.Item) (pipeline.Item, error) {
		gp := in.Data.(groupPayloads)
		blocks := make([]*block.Block, 0, layout.GroupSize())
		for _, pl := range gp.payloads {
			blocks = append(blocks, &block.Block{Version: layout.Version, UID: uid, Payload: pl})
		}
		if coder != nil {
			parity, err := coder.Encode(gp.payloads)
			if err != nil {
				return pipeline.Item{}, err
			}
			for _, pp := range parity {
				blocks = append(blocks, &block.Block{Version: layout.Version, UID: uid, Payload: pp})
			}
		}
		return pipeline.Item{Seq: in.Seq, Data: encodedGroupStub{index: int(in.Seq), bytesIn: gp.bytesIn, blocks: blocks}}, nil
	}

	var pending []encodedGroupStub
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		// The last super-group of a container may hold fewer than B groups;
		// interleave over however many groups are actually pending rather
		// than requiring a full batch, so the tail still gets whatever
		// burst protection its size allows.
		il := rscode.Interleaver{N: layout.GroupSize(), B: len(pending)}
		logical := make([]*block.Block, 0, len(pending)*layout.GroupSize())
		for _, g := range pending {
			logical = append(logical, g.blocks...)
		}
		ordered := logical
		if layout.B > 1 && len(pending) > 1 {
			ordered = rscode.Permute(il, logical)
		}
		bytesConsumed := pending[len(pending)-1].bytesIn
		for _, b := range ordered {
			b.Seq = uint32(blocksWritten)
			raw, err := b.Serialize()
			if err != nil {
				return err
			}
			wroteAt := time.Now()
			if _, err := dst.WriteAt(raw, nextOffset); err != nil {
				return sbxerr.IO(err, "sbx: writing block at offset %d", nextOffset)
			}
			rep.Stat("blockLatencySeconds", time.Since(wroteAt).Seconds())
			nextOffset += int64(len(raw))
			blocksWritten++
			rep.Progress(report.ProgressEvent{BytesIn: int64(bytesConsumed), BytesOut: nextOffset, BlocksWritten: blocksWritten})
		}
		pending = pending[:0]
		return nil
	}

	write := func(ctx context.Context, out pipeline.Item) error {
		pending = append(pending, out.Data.(encodedGroupStub))
		batch := layout.B
		if batch <= 1 {
			batch = 1
		}
		if len(pending) == batch {
			return flush()
		}
		return nil
	}

	opts := pipeline.Options{QueueDepth: p.QueueDepth, Concurrency: 1}
	if opts.QueueDepth <= 0 {
		opts.QueueDepth = pipeline.DefaultQueueDepth
	}
	if err := pipeline.Run(ctx, opts, readGroup, work, write); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}

	finalHash, err := hasher.Finalize()
	if err != nil {
		return nil, err
	}
	if err := metaSet.SetHash(finalHash); err != nil {
		return nil, err
	}
	metaPayload, err = metaSet.Encode(payloadSize)
	if err != nil {
		return nil, err
	}
	if err := rewriteMetadataAndParity(dst, layout, uid, metaPayload, metaBlockOffsets); err != nil {
		return nil, err
	}

	log.Infof("sbx: encoded %d blocks (%d bytes in)", blocksWritten, bytesIn)
	return &EncodeResult{
		UID:           uid,
		Version:       layout.Version,
		BlocksWritten: blocksWritten,
		FileSize:      fileSize,
		RecordedHash:  finalHash,
	}, nil
}

func mustSize(l Layout) int {
	sz, _ := l.BlockSize()
	return sz
}

// writeMetadataAndParity writes the metadata block and its P identical
// parity copies at the start of the file, returning their byte offsets for
// later patching. RS over a single data shard reduces to replication, so
// the copies carry the metadata payload verbatim.
func writeMetadataAndParity(dst *os.File, layout Layout, uid block.UID, payload []byte) ([]int64, error) {
	size := mustSize(layout)
	count := 1 + layout.MetadataParityCount()
	offsets := make([]int64, count)
	for i := 0; i < count; i++ {
		b := &block.Block{Version: layout.Version, UID: uid, Seq: uint32(i), Payload: payload}
		raw, err := b.Serialize()
		if err != nil {
			return nil, err
		}
		offsets[i] = int64(i) * int64(size)
		if _, err := dst.WriteAt(raw, offsets[i]); err != nil {
			return nil, sbxerr.IO(err, "sbx: writing metadata block %d", i)
		}
	}
	return offsets, nil
}

// rewriteMetadataAndParity re-serializes and rewrites the metadata block and
// its parity copies after the HSH field is patched in.
func rewriteMetadataAndParity(dst *os.File, layout Layout, uid block.UID, payload []byte, offsets []int64) error {
	for i, off := range offsets {
		b := &block.Block{Version: layout.Version, UID: uid, Seq: uint32(i), Payload: payload}
		raw, err := b.Serialize()
		if err != nil {
			return err
		}
		if _, err := dst.WriteAt(raw, off); err != nil {
			return sbxerr.IO(err, "sbx: rewriting metadata block %d", i)
		}
	}
	return nil
}
