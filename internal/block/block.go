package block

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/blkar/blkar/internal/sbxerr"
)

// Magic is the fixed 3-byte signature every block begins with.
var Magic = [3]byte{'S', 'B', 'x'}

// UID is the 4-byte random identifier shared by every block of one
// container.
type UID [4]byte

// NewUID draws 4 random bytes for a new container.
func NewUID() UID {
	u := uuid.New()
	var id UID
	copy(id[:], u[:4])
	return id
}

// Kind classifies a block by its sequence number and the container's RS
// configuration.
type Kind int

const (
	KindMetadata Kind = iota
	KindData
	KindParity
)

// Block is a single deserialized SBX block: header fields plus payload.
// Once returned from Deserialize, a Block is immutable; the repair engine
// produces new Block values rather than mutating existing ones.
type Block struct {
	Version Version
	UID     UID
	Seq     uint32
	Payload []byte // length == Version.PayloadSize()
}

// header writes the 16-byte header (CRC field zeroed) for b into buf[:16].
func (b *Block) header(buf []byte) {
	_ = buf[15]
	buf[0], buf[1], buf[2] = Magic[0], Magic[1], Magic[2]
	buf[3] = byte(b.Version)
	buf[4], buf[5] = 0, 0 // CRC field, filled in by caller
	copy(buf[6:10], b.UID[:])
	binary.BigEndian.PutUint32(buf[10:14], b.Seq)
	buf[14], buf[15] = 0, 0 // reserved
}

// Serialize assembles the full on-disk representation of b, computing and
// stamping the CRC last.
func (b *Block) Serialize() ([]byte, error) {
	size, err := b.Version.Size()
	if err != nil {
		return nil, err
	}
	payloadSize := size - HeaderSize
	if len(b.Payload) != payloadSize {
		return nil, sbxerr.AssertionFailedf(
			"sbx: block payload is %d bytes, want %d for version %d", len(b.Payload), payloadSize, byte(b.Version))
	}

	out := make([]byte, size)
	b.header(out[:HeaderSize])
	copy(out[HeaderSize:], b.Payload)

	crc := crcCCITT(uint16(b.Version), out)
	binary.BigEndian.PutUint16(out[4:6], crc)
	return out, nil
}

// Deserialize parses raw as one block. If expectedVersion is non-zero, raw
// must already be sized and the version byte must match; otherwise the
// version byte is read first and used to pick the block size before the
// remainder is validated. The CRC check is the sole source of validity;
// there is no other heuristic, so any failure returns a
// sbxerr.KindInvalidBlock error with no partial Block exposed.
func Deserialize(raw []byte, expectedVersion Version) (*Block, error) {
	if len(raw) < HeaderSize {
		return nil, sbxerr.InvalidBlockf("sbx: block shorter than header (%d bytes)", len(raw))
	}
	if raw[0] != Magic[0] || raw[1] != Magic[1] || raw[2] != Magic[2] {
		return nil, sbxerr.InvalidBlockf("sbx: bad magic bytes")
	}
	ver := Version(raw[3])
	if expectedVersion != 0 && ver != expectedVersion {
		return nil, sbxerr.InvalidBlockf("sbx: version %d does not match expected %d", byte(ver), byte(expectedVersion))
	}
	size, err := ver.Size()
	if err != nil {
		return nil, err
	}
	if len(raw) != size {
		return nil, sbxerr.InvalidBlockf("sbx: block is %d bytes, want %d for version %d", len(raw), size, byte(ver))
	}

	declaredCRC := binary.BigEndian.Uint16(raw[4:6])

	checkBuf := make([]byte, size)
	copy(checkBuf, raw)
	checkBuf[4], checkBuf[5] = 0, 0
	gotCRC := crcCCITT(uint16(ver), checkBuf)
	if gotCRC != declaredCRC {
		return nil, sbxerr.InvalidBlockf("sbx: CRC mismatch (got %#04x, want %#04x)", gotCRC, declaredCRC)
	}

	b := &Block{Version: ver}
	copy(b.UID[:], raw[6:10])
	b.Seq = binary.BigEndian.Uint32(raw[10:14])
	b.Payload = append([]byte(nil), raw[HeaderSize:]...)
	return b, nil
}

// KindOf classifies seq given an RS configuration. dataShards/parityShards
// are zero for non-parity versions. The metadata-parity copies (one per
// parity shard) sit immediately after seq 0, before the first data group.
func KindOf(seq uint32, dataShards, parityShards int) Kind {
	if seq == 0 {
		return KindMetadata
	}
	if parityShards == 0 {
		return KindData
	}
	// Position within the stream, 0-indexed, skipping the metadata block
	// (seq 0) itself.
	pos := seq - 1
	groupSize := uint32(dataShards + parityShards)
	if pos < uint32(parityShards) {
		// Metadata-parity copies immediately follow the metadata block.
		return KindParity
	}
	pos -= uint32(parityShards)
	offsetInGroup := pos % groupSize
	if offsetInGroup < uint32(dataShards) {
		return KindData
	}
	return KindParity
}
