// Package scan implements the SBX block scanner: given a byte stream of
// unknown alignment, it locates every valid block by stepping at a fixed
// alignment and validating CRCs, with no other heuristic.
package scan

import (
	"io"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/sbxerr"
)

// Alignments lists the block sizes the scanner tries, ascending.
var Alignments = []int{128, 512, 4096}

// Filter controls how the scanner treats blocks once a reference has been
// adopted.
type Filter int

const (
	// FilterNone reports every valid block regardless of version/UID.
	FilterNone Filter = iota
	// FilterStrict only reports blocks matching the adopted reference's
	// (version, uid) pair once one has been adopted.
	FilterStrict
)

// Options configures one scan pass.
type Options struct {
	From, To int64 // byte range; To == 0 means "to end of stream"

	// ExpectedVersion/ExpectedUID pre-seed the reference filter instead of
	// letting the scanner adopt the first valid block it finds.
	ExpectedVersion block.Version
	ExpectedUID     *block.UID

	Filter Filter
}

// Result is one scan step's outcome: either a valid block at Offset, or an
// invalid candidate (Block == nil, Err describes why).
type Result struct {
	Offset int64
	Block  *block.Block
	Err    error
}

// Scanner walks a byte stream, yielding every candidate block position --
// valid or not -- via repeated calls to Next. It probes at multiples of its
// alignment until a reference block is adopted, then advances by the
// reference version's block size, so a container whose block size differs
// from the probe alignment is still found as long as its start lies on an
// alignment boundary. It is a restartable lazy sequence: construct one per
// alignment, call Next until it reports done.
type Scanner struct {
	r         io.ReaderAt
	streamLen int64
	alignment int
	opts      Options

	pos     int64
	end     int64
	haveRef bool
	refVer  block.Version
	refUID  block.UID
}

// New constructs a Scanner that probes at the given alignment (one of
// Alignments) over [opts.From, opts.To) (clamped to the stream).
func New(r io.ReaderAt, streamLen int64, alignment int, opts Options) *Scanner {
	from := opts.From
	if from < 0 {
		from = 0
	}
	to := opts.To
	if to <= 0 || to > streamLen {
		to = streamLen
	}
	// Start scanning at the first multiple of alignment at or after from.
	if rem := from % int64(alignment); rem != 0 {
		from += int64(alignment) - rem
	}
	s := &Scanner{
		r:         r,
		streamLen: streamLen,
		alignment: alignment,
		opts:      opts,
		pos:       from,
		end:       to,
	}
	if opts.ExpectedVersion != 0 {
		s.haveRef = true
		s.refVer = opts.ExpectedVersion
		if opts.ExpectedUID != nil {
			s.refUID = *opts.ExpectedUID
		}
	}
	return s
}

// step returns how far to advance past a candidate at the current
// position: the adopted reference's block size, or the probe alignment
// before any reference exists.
func (s *Scanner) step() int64 {
	if s.haveRef {
		if sz, err := s.refVer.Size(); err == nil {
			return int64(sz)
		}
	}
	return int64(s.alignment)
}

// Next attempts one candidate position and advances. ok is false once the
// scanner has exhausted its range.
func (s *Scanner) Next() (res Result, ok bool) {
	if s.pos >= s.end || s.pos+block.HeaderSize > s.streamLen {
		return Result{}, false
	}
	offset := s.pos

	raw := make([]byte, 4)
	if _, err := s.r.ReadAt(raw, offset); err != nil {
		s.pos = offset + s.step()
		return Result{Offset: offset, Err: sbxerr.IO(err, "sbx: scanning at offset %d", offset)}, true
	}
	if raw[0] != block.Magic[0] || raw[1] != block.Magic[1] || raw[2] != block.Magic[2] {
		s.pos = offset + s.step()
		return Result{Offset: offset, Err: sbxerr.InvalidBlockf("sbx: bad magic at offset %d", offset)}, true
	}
	ver := block.Version(raw[3])
	size, err := ver.Size()
	if err != nil {
		s.pos = offset + s.step()
		return Result{Offset: offset, Err: err}, true
	}
	if offset+int64(size) > s.streamLen {
		s.pos = offset + s.step()
		return Result{Offset: offset, Err: sbxerr.InvalidBlockf("sbx: block at offset %d truncated by end of stream", offset)}, true
	}

	full := make([]byte, size)
	if _, err := s.r.ReadAt(full, offset); err != nil {
		s.pos = offset + s.step()
		return Result{Offset: offset, Err: sbxerr.IO(err, "sbx: reading candidate block at offset %d", offset)}, true
	}
	blk, err := block.Deserialize(full, s.opts.ExpectedVersion)
	if err != nil {
		s.pos = offset + s.step()
		return Result{Offset: offset, Err: err}, true
	}

	// An explicit UID expectation holds even before any reference is
	// adopted (the caller may know the UID without knowing the version).
	if s.opts.Filter == FilterStrict && s.opts.ExpectedUID != nil && blk.UID != *s.opts.ExpectedUID {
		s.pos = offset + s.step()
		return Result{Offset: offset, Err: sbxerr.UIDMismatchf("sbx: block at %d does not match expected uid", offset)}, true
	}

	if s.haveRef {
		mismatchVersion := blk.Version != s.refVer
		mismatchUID := s.opts.ExpectedUID != nil || s.refUID != (block.UID{})
		if mismatchUID {
			mismatchUID = blk.UID != s.refUID
		}
		if s.opts.Filter == FilterStrict && (mismatchVersion || mismatchUID) {
			s.pos = offset + s.step()
			return Result{Offset: offset, Err: sbxerr.UIDMismatchf("sbx: block at %d does not match adopted reference", offset)}, true
		}
	} else {
		s.haveRef = true
		s.refVer = blk.Version
		s.refUID = blk.UID
	}

	s.pos = offset + s.step()
	return Result{Offset: offset, Block: blk}, true
}

// Reference reports the (version, uid) pair adopted so far, if any.
func (s *Scanner) Reference() (block.Version, block.UID, bool) {
	return s.refVer, s.refUID, s.haveRef
}

// All drains a Scanner, discarding invalid candidates. Intended for callers
// that only want valid blocks; callers needing CRC-failure counts should
// drive Next themselves.
func All(s *Scanner) []Result {
	var out []Result
	for {
		res, ok := s.Next()
		if !ok {
			break
		}
		if res.Block != nil {
			out = append(out, res)
		}
	}
	return out
}

// FindFirstValid tries each alignment in Alignments ascending, on the given
// range, returning the first valid block found and the Scanner positioned
// to continue from just after it (with the reference adopted). This is how
// sort finds its first block and adopts its (version, uid) without knowing
// the version ahead of time.
func FindFirstValid(r io.ReaderAt, streamLen int64, opts Options) (*Scanner, Result, bool) {
	for _, a := range Alignments {
		sc := New(r, streamLen, a, opts)
		for {
			res, ok := sc.Next()
			if !ok {
				break
			}
			if res.Block != nil {
				return sc, res, true
			}
		}
	}
	return nil, Result{}, false
}
