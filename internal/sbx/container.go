// Package sbx implements the encoder, decoder, repair, metadata-update,
// sort, rescue, and calc operations over SBX containers, built on top of
// internal/block, internal/metadata, internal/mhash, internal/rscode, and
// internal/scan.
package sbx

import (
	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/rscode"
	"github.com/blkar/blkar/internal/sbxerr"
)

// Layout captures one container's fixed shape: version, block size, and (for
// parity versions) its RS and interleave parameters. Every sbx operation
// that needs to reason about block positions builds one of these first.
type Layout struct {
	Version block.Version
	D, P    int // zero for non-parity versions
	B       int // burst factor; 0 or 1 both mean "no interleaving"
}

// BlockSize returns the on-disk size of every block in this container.
func (l Layout) BlockSize() (int, error) { return l.Version.Size() }

// PayloadSize returns BlockSize() - block.HeaderSize.
func (l Layout) PayloadSize() (int, error) { return l.Version.PayloadSize() }

// MetadataParityCount is P for parity versions, 0 otherwise.
func (l Layout) MetadataParityCount() int {
	if !l.Version.HasParity() {
		return 0
	}
	return l.P
}

// GroupSize is D+P, the width of one RS block group.
func (l Layout) GroupSize() int { return l.D + l.P }

// DataBlockCount returns the number of data blocks needed to hold
// fileSize bytes of plaintext.
func (l Layout) DataBlockCount(fileSize uint64) (int, error) {
	payloadSize, err := l.PayloadSize()
	if err != nil {
		return 0, err
	}
	if fileSize == 0 {
		return 0, nil
	}
	n := (fileSize + uint64(payloadSize) - 1) / uint64(payloadSize)
	return int(n), nil
}

// GroupCount returns ceil(nData / D) for parity versions; for non-parity
// versions every data block is its own trivial "group" of one.
func (l Layout) GroupCount(nData int) int {
	if !l.Version.HasParity() || l.D == 0 {
		return nData
	}
	if nData == 0 {
		return 0
	}
	return (nData + l.D - 1) / l.D
}

// TotalBlockCount returns the total number of blocks (metadata + metadata
// parity + data + parity) a container holding fileSize bytes occupies.
// Used directly by calc.go and by anything sizing an output file up front.
func (l Layout) TotalBlockCount(fileSize uint64) (int, error) {
	total := 1 + l.MetadataParityCount()
	if !l.Version.HasParity() {
		n, err := l.DataBlockCount(fileSize)
		if err != nil {
			return 0, err
		}
		return total + n, nil
	}
	nData, err := l.DataBlockCount(fileSize)
	if err != nil {
		return 0, err
	}
	groups := l.GroupCount(nData)
	return total + groups*l.GroupSize(), nil
}

// TotalSize returns TotalBlockCount(fileSize) * BlockSize(), the exact
// on-disk byte size of the encoded container.
func (l Layout) TotalSize(fileSize uint64) (int64, error) {
	blocks, err := l.TotalBlockCount(fileSize)
	if err != nil {
		return 0, err
	}
	size, err := l.BlockSize()
	if err != nil {
		return 0, err
	}
	return int64(blocks) * int64(size), nil
}

// SeqForSlot computes the sequence number assigned (at encode time) to the
// data/parity block at offset `offset` (0-based, [0,D+P)) within RS group
// `group` (0-based), given the container holds totalGroups data/parity
// groups in all. It mirrors the batching Encode uses: groups are interleaved
// in batches of B (the final batch may hold fewer than B groups, still
// interleaved over however many groups it actually has). Decode uses this to
// look up, for each logical group slot, which on-disk sequence number to
// expect, inverting the encoder's placement.
func (l Layout) SeqForSlot(totalGroups, group, offset int) uint32 {
	n := l.GroupSize()
	metaBlocks := 1 + l.MetadataParityCount()
	if !l.Version.HasParity() || l.B <= 1 {
		return uint32(metaBlocks + group*n + offset)
	}
	batch := l.B
	superIdx := group / batch
	groupInSuper := group % batch
	groupsInThisSuper := batch
	if remaining := totalGroups - superIdx*batch; remaining < batch {
		groupsInThisSuper = remaining
	}
	il := rscode.Interleaver{N: n, B: groupsInThisSuper}
	logical := groupInSuper*n + offset
	physical := il.PhysicalOffset(logical)
	seqBase := metaBlocks + superIdx*batch*n
	return uint32(seqBase + physical)
}

// Validate checks the layout's parameter bounds.
func (l Layout) Validate() error {
	if !l.Version.IsValid() {
		return sbxerr.UnknownVersionf("sbx: unknown version %d", byte(l.Version))
	}
	if !l.Version.HasParity() {
		return nil
	}
	params := rscode.Params{DataShards: l.D, ParityShards: l.P}
	if err := params.Validate(); err != nil {
		return err
	}
	if l.B < 0 || l.B > 1000 {
		return sbxerr.Usagef("sbx: burst must be in [0,1000], got %d", l.B)
	}
	return nil
}
