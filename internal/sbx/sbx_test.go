package sbx

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/metadata"
	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbxlog"
)

type nopReporter struct{}

func (nopReporter) Progress(report.ProgressEvent) {}
func (nopReporter) Stat(string, float64)          {}
func (nopReporter) Error(error)                   {}

func discardLog() logrus.FieldLogger { return sbxlog.Discard() }

func TestEncodeDecodeRoundTripNoParity(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	data := bytes.Repeat([]byte{0xFF}, 1<<20)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dest := filepath.Join(dir, "out.sbx")
	encRes, err := Encode(context.Background(), EncodeParams{
		SourcePath: src, DestPath: dest,
		Layout: Layout{Version: block.V1},
	}, nopReporter{}, discardLog())
	require.NoError(t, err)
	require.Greater(t, encRes.BlocksWritten, 0)

	decDest := filepath.Join(dir, "recovered.bin")
	decRes, err := Decode(DecodeParams{ContainerPath: dest, DestPath: decDest}, nopReporter{}, discardLog())
	require.NoError(t, err)
	require.Equal(t, 0, decRes.BlocksFailedCheck)
	require.True(t, decRes.HashMatch)

	got, err := os.ReadFile(decDest)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestEncodeDecodeRoundTripParityWithCorruption(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	data := bytes.Repeat([]byte{0xAB}, 1<<20)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	// With D=10, P=2 each RS group survives at most 2 lost blocks; the
	// 2048-byte wipe below spans 4 whole blocks, so it is only
	// recoverable because B=4 interleaving spreads those 4 blocks across
	// 4 different groups.
	dest := filepath.Join(dir, "out.sbx")
	_, err := Encode(context.Background(), EncodeParams{
		SourcePath: src, DestPath: dest,
		Layout: Layout{Version: block.V17, D: 10, P: 2, B: 4},
	}, nopReporter{}, discardLog())
	require.NoError(t, err)

	f, err := os.OpenFile(dest, os.O_RDWR, 0)
	require.NoError(t, err)
	zeros := make([]byte, 2048)
	_, err = f.WriteAt(zeros, 4096)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	decDest := filepath.Join(dir, "recovered.bin")
	decRes, err := Decode(DecodeParams{ContainerPath: dest, DestPath: decDest}, nopReporter{}, discardLog())
	require.NoError(t, err)
	require.Greater(t, decRes.BlocksFailedCheck, 0)

	got, err := os.ReadFile(decDest)
	require.NoError(t, err)
	require.True(t, bytes.Equal(data, got))
}

func TestRepairRestoresIntegrity(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	data := bytes.Repeat([]byte{0x42}, 1<<20)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dest := filepath.Join(dir, "out.sbx")
	_, err := Encode(context.Background(), EncodeParams{
		SourcePath: src, DestPath: dest,
		Layout: Layout{Version: block.V17, D: 10, P: 2},
	}, nopReporter{}, discardLog())
	require.NoError(t, err)

	f, err := os.OpenFile(dest, os.O_RDWR, 0)
	require.NoError(t, err)
	zeros := make([]byte, 512)
	_, err = f.WriteAt(zeros, 4096)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	repRes, err := Repair(RepairParams{ContainerPath: dest}, nopReporter{}, discardLog())
	require.NoError(t, err)
	require.NotEmpty(t, repRes.Actions)

	checkRes, err := Check(CheckParams{ContainerPath: dest}, nopReporter{}, discardLog())
	require.NoError(t, err)
	require.Equal(t, 0, checkRes.BlocksFailedCheck)
}

func TestUpdateChangesStoredName(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	require.NoError(t, os.WriteFile(src, []byte("hello world"), 0o644))

	dest := filepath.Join(dir, "out.sbx")
	_, err := Encode(context.Background(), EncodeParams{
		SourcePath: src, DestPath: dest,
		Layout: Layout{Version: block.V1},
	}, nopReporter{}, discardLog())
	require.NoError(t, err)

	updRes, err := Update(UpdateParams{
		ContainerPath: dest,
		Mutations:     []FieldMutation{{Tag: metadata.TagSNM, Value: "NEWNAME"}},
	}, discardLog())
	require.NoError(t, err)
	require.Len(t, updRes.Changes, 1)
	require.Equal(t, "NEWNAME", updRes.Changes[0].To)

	showRes, err := Show(ShowParams{ContainerPath: dest}, discardLog())
	require.NoError(t, err)
	require.Equal(t, "NEWNAME", showRes.StoredName)

	updRes2, err := Update(UpdateParams{
		ContainerPath: dest,
		Mutations:     []FieldMutation{{Tag: metadata.TagSNM, Value: "NEWNAME"}},
	}, discardLog())
	require.NoError(t, err)
	require.Empty(t, updRes2.Changes)
}

func TestCalcEmptyInputIsMetadataGroupOnly(t *testing.T) {
	res, err := Calc(CalcParams{
		Layout:     Layout{Version: block.V17, D: 10, P: 2, B: 0},
		InFileSize: 0,
	})
	require.NoError(t, err)
	require.Equal(t, 1+2, res.TotalBlocks)
	require.EqualValues(t, 3*512, res.TotalBytes)
}

func TestSortReordersBlocks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	data := bytes.Repeat([]byte{0x11}, 4096)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dest := filepath.Join(dir, "out.sbx")
	_, err := Encode(context.Background(), EncodeParams{
		SourcePath: src, DestPath: dest,
		Layout: Layout{Version: block.V1},
	}, nopReporter{}, discardLog())
	require.NoError(t, err)

	raw, err := os.ReadFile(dest)
	require.NoError(t, err)
	blockSize := 512
	numBlocks := len(raw) / blockSize
	require.GreaterOrEqual(t, numBlocks, 2)
	shuffled := make([]byte, len(raw))
	copy(shuffled, raw[blockSize:2*blockSize])
	copy(shuffled[blockSize:2*blockSize], raw[:blockSize])
	copy(shuffled[2*blockSize:], raw[2*blockSize:])
	shuffledPath := filepath.Join(dir, "shuffled.sbx")
	require.NoError(t, os.WriteFile(shuffledPath, shuffled, 0o644))

	sortedPath := filepath.Join(dir, "sorted.sbx")
	sortRes, err := Sort(SortParams{ContainerPath: shuffledPath, OutputPath: sortedPath}, discardLog())
	require.NoError(t, err)
	require.Equal(t, numBlocks, sortRes.BlocksWritten)

	sorted, err := os.ReadFile(sortedPath)
	require.NoError(t, err)
	require.True(t, bytes.Equal(raw, sorted))
}

func TestDecodeHonorsToBound(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	data := bytes.Repeat([]byte{0x55}, 4096)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dest := filepath.Join(dir, "out.sbx")
	_, err := Encode(context.Background(), EncodeParams{
		SourcePath: src, DestPath: dest,
		Layout: Layout{Version: block.V1},
	}, nopReporter{}, discardLog())
	require.NoError(t, err)

	// Bounding discovery to the first three blocks leaves most data slots
	// uncollected; decode still completes, zero-filling the gaps.
	decDest := filepath.Join(dir, "recovered.bin")
	decRes, err := Decode(DecodeParams{ContainerPath: dest, DestPath: decDest, To: 512 * 3}, nopReporter{}, discardLog())
	require.NoError(t, err)
	require.Greater(t, decRes.BlocksFailedCheck, 0)
	require.False(t, decRes.HashMatch)
}

func TestSortRejectsForeignBlocks(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	data := bytes.Repeat([]byte{0x33}, 4096)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dest := filepath.Join(dir, "out.sbx")
	_, err := Encode(context.Background(), EncodeParams{
		SourcePath: src, DestPath: dest,
		Layout: Layout{Version: block.V1},
	}, nopReporter{}, discardLog())
	require.NoError(t, err)

	// Append a valid block from a different container; sort must key on
	// the first block's (version, uid) and leave the stray out.
	foreign := &block.Block{Version: block.V1, UID: block.UID{0xEE, 0xEE, 0xEE, 0xEE}, Seq: 1, Payload: make([]byte, 496)}
	foreignRaw, err := foreign.Serialize()
	require.NoError(t, err)
	raw, err := os.ReadFile(dest)
	require.NoError(t, err)
	mixedPath := filepath.Join(dir, "mixed.sbx")
	require.NoError(t, os.WriteFile(mixedPath, append(raw, foreignRaw...), 0o644))

	sortedPath := filepath.Join(dir, "sorted.sbx")
	sortRes, err := Sort(SortParams{ContainerPath: mixedPath, OutputPath: sortedPath}, discardLog())
	require.NoError(t, err)
	require.Equal(t, len(raw)/512, sortRes.BlocksWritten)

	sorted, err := os.ReadFile(sortedPath)
	require.NoError(t, err)
	require.True(t, bytes.Equal(raw, sorted))
}

func TestRescueSalvagesBlocksFromRawImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	data := bytes.Repeat([]byte{0x77}, 2048)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dest := filepath.Join(dir, "out.sbx")
	_, err := Encode(context.Background(), EncodeParams{
		SourcePath: src, DestPath: dest,
		Layout: Layout{Version: block.V1},
	}, nopReporter{}, discardLog())
	require.NoError(t, err)

	// Shift the container by 640 bytes: a multiple of the scanner's
	// smallest probe alignment but not of V1's 512-byte block size, so
	// rescue has to find the blocks off their native alignment.
	container, err := os.ReadFile(dest)
	require.NoError(t, err)
	image := append(bytes.Repeat([]byte{0x00}, 640), container...)
	imagePath := filepath.Join(dir, "image.raw")
	require.NoError(t, os.WriteFile(imagePath, image, 0o644))

	outDir := filepath.Join(dir, "rescued")
	logPath := filepath.Join(dir, "rescue.log.jsonl")
	rescRes, err := Rescue(RescueParams{SourcePath: imagePath, OutputDir: outDir, LogPath: logPath}, discardLog())
	require.NoError(t, err)
	require.Len(t, rescRes.Buckets, 1)

	showRes, err := Show(ShowParams{ContainerPath: dest}, discardLog())
	require.NoError(t, err)
	require.Equal(t, len(showRes.Blocks), rescRes.Buckets[0].BlocksWritten)
}
