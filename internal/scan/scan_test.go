package scan

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/blkar/blkar/internal/block"
)

func buildBlock(t *testing.T, v block.Version, uid block.UID, seq uint32) []byte {
	t.Helper()
	sz, err := v.PayloadSize()
	require.NoError(t, err)
	b := &block.Block{Version: v, UID: uid, Seq: seq, Payload: make([]byte, sz)}
	raw, err := b.Serialize()
	require.NoError(t, err)
	return raw
}

func TestScannerFindsBlocksAtCorrectAlignment(t *testing.T) {
	uid := block.UID{1, 2, 3, 4}
	var buf bytes.Buffer
	buf.Write(buildBlock(t, block.V1, uid, 0))
	buf.Write(buildBlock(t, block.V1, uid, 1))
	buf.Write(buildBlock(t, block.V1, uid, 2))

	r := bytes.NewReader(buf.Bytes())
	sc := New(r, int64(buf.Len()), 512, Options{})
	results := All(sc)
	require.Len(t, results, 3)
	require.Equal(t, uint32(0), results[0].Block.Seq)
	require.Equal(t, uint32(1), results[1].Block.Seq)
	require.Equal(t, uint32(2), results[2].Block.Seq)
}

func TestScannerSkipsCorruptBlocksButContinues(t *testing.T) {
	uid := block.UID{9, 9, 9, 9}
	var buf bytes.Buffer
	buf.Write(buildBlock(t, block.V1, uid, 0))
	corrupt := buildBlock(t, block.V1, uid, 1)
	corrupt[20] ^= 0xFF
	buf.Write(corrupt)
	buf.Write(buildBlock(t, block.V1, uid, 2))

	r := bytes.NewReader(buf.Bytes())
	sc := New(r, int64(buf.Len()), 512, Options{})

	var valid, invalid int
	for {
		res, ok := sc.Next()
		if !ok {
			break
		}
		if res.Block != nil {
			valid++
		} else {
			invalid++
		}
	}
	require.Equal(t, 2, valid)
	require.Equal(t, 1, invalid)
}

func TestFindFirstValidTriesAlignmentsAscending(t *testing.T) {
	uid := block.UID{5, 5, 5, 5}
	// Prepend 512 bytes of junk before a V2 (128-byte) container so the
	// scanner must step through the 128-byte alignment pass, not just
	// happen to land on a block at offset 0.
	var buf bytes.Buffer
	buf.Write(make([]byte, 512))
	buf.Write(buildBlock(t, block.V2, uid, 0))
	buf.Write(buildBlock(t, block.V2, uid, 1))

	r := bytes.NewReader(buf.Bytes())
	_, res, found := FindFirstValid(r, int64(buf.Len()), Options{})
	require.True(t, found)
	require.Equal(t, block.V2, res.Block.Version)
}

func TestStrictFilterRejectsOtherUID(t *testing.T) {
	uidA := block.UID{1, 1, 1, 1}
	uidB := block.UID{2, 2, 2, 2}
	var buf bytes.Buffer
	buf.Write(buildBlock(t, block.V1, uidA, 0))
	buf.Write(buildBlock(t, block.V1, uidB, 1))

	r := bytes.NewReader(buf.Bytes())
	sc := New(r, int64(buf.Len()), 512, Options{Filter: FilterStrict})
	results := All(sc)
	require.Len(t, results, 1)
	require.Equal(t, uidA, results[0].Block.UID)
}

func TestScannerHonorsFromTo(t *testing.T) {
	uid := block.UID{7, 7, 7, 7}
	var buf bytes.Buffer
	buf.Write(buildBlock(t, block.V1, uid, 0))
	buf.Write(buildBlock(t, block.V1, uid, 1))
	buf.Write(buildBlock(t, block.V1, uid, 2))

	r := bytes.NewReader(buf.Bytes())
	sc := New(r, int64(buf.Len()), 512, Options{From: 512, To: 1024})
	results := All(sc)
	require.Len(t, results, 1)
	require.Equal(t, uint32(1), results[0].Block.Seq)
}
