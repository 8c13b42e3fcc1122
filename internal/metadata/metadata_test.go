package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	s := NewSet()
	require.NoError(t, s.SetFileName("movie.mkv"))
	require.NoError(t, s.SetStoredName("movie.mkv.sbx"))
	require.NoError(t, s.SetFileSize(123456))
	require.NoError(t, s.SetFileModTime(1700000000))
	require.NoError(t, s.SetContainerCreatedTime(1700000050))
	require.NoError(t, s.SetRSParams(10, 2))
	require.NoError(t, s.SetHash([]byte{0x12, 0x20, 1, 2, 3, 4}))

	enc, err := s.Encode(496)
	require.NoError(t, err)
	require.Len(t, enc, 496)

	got, err := Decode(enc)
	require.NoError(t, err)

	name, ok := got.FileName()
	require.True(t, ok)
	require.Equal(t, "movie.mkv", name)

	sz, ok := got.FileSize()
	require.True(t, ok)
	require.EqualValues(t, 123456, sz)

	d, p, ok := got.RSParams()
	require.True(t, ok)
	require.Equal(t, 10, d)
	require.Equal(t, 2, p)
}

func TestEncodeChainsPadRecordsPastOneByteLength(t *testing.T) {
	// 496 is V1's payload size; the real records below leave well over 255
	// bytes of padding, which no longer fits in a single PAD record's 1-byte
	// TLV length field.
	s := NewSet()
	require.NoError(t, s.SetFileName("movie.mkv"))
	require.NoError(t, s.SetStoredName("movie.mkv.sbx"))
	require.NoError(t, s.SetFileSize(123456))
	require.NoError(t, s.SetFileModTime(1700000000))
	require.NoError(t, s.SetContainerCreatedTime(1700000050))
	require.NoError(t, s.SetRSParams(10, 2))
	require.NoError(t, s.SetHash([]byte{0x12, 0x20, 1, 2, 3, 4}))

	enc, err := s.Encode(496)
	require.NoError(t, err)
	require.Len(t, enc, 496)

	got, err := Decode(enc)
	require.NoError(t, err)
	name, ok := got.FileName()
	require.True(t, ok)
	require.Equal(t, "movie.mkv", name)
}

func TestUnknownTagsPreservedVerbatim(t *testing.T) {
	s := NewSet()
	require.NoError(t, s.Set(Tag{'X', 'Y', 'Z'}, []byte("mystery")))
	enc, err := s.Encode(64)
	require.NoError(t, err)

	got, err := Decode(enc)
	require.NoError(t, err)
	v, ok := got.Get(Tag{'X', 'Y', 'Z'})
	require.True(t, ok)
	require.Equal(t, "mystery", string(v))
}

func TestDuplicateTagRejected(t *testing.T) {
	raw := append(encodeRecord(TagFNM, []byte("a")), encodeRecord(TagFNM, []byte("b"))...)
	_, err := Decode(raw)
	require.Error(t, err)
}

func TestUnsetRemovesField(t *testing.T) {
	s := NewSet()
	require.NoError(t, s.SetFileName("a"))
	s.Unset(TagFNM)
	_, ok := s.FileName()
	require.False(t, ok)
}

func TestSetRSParamsRange(t *testing.T) {
	s := NewSet()
	require.Error(t, s.SetRSParams(0, 1))
	require.Error(t, s.SetRSParams(129, 1))
	require.NoError(t, s.SetRSParams(128, 128))
}
