package block

import (
	"testing"

	"github.com/go-test/deep"
	"github.com/stretchr/testify/require"
)

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	for _, v := range AllVersions() {
		v := v
		t.Run(v.String(), func(t *testing.T) {
			payloadSize, err := v.PayloadSize()
			require.NoError(t, err)

			want := &Block{
				Version: v,
				UID:     UID{0xDE, 0xAD, 0xBE, 0xEF},
				Seq:     42,
				Payload: make([]byte, payloadSize),
			}
			for i := range want.Payload {
				want.Payload[i] = byte(i)
			}

			raw, err := want.Serialize()
			require.NoError(t, err)
			size, _ := v.Size()
			require.Len(t, raw, size)

			got, err := Deserialize(raw, 0)
			require.NoError(t, err)
			if diff := deep.Equal(want, got); diff != nil {
				t.Fatalf("round trip mismatch: %v", diff)
			}
		})
	}
}

func TestDeserializeRejectsBitFlips(t *testing.T) {
	v := V1
	payloadSize, _ := v.PayloadSize()
	b := &Block{Version: v, UID: UID{1, 2, 3, 4}, Seq: 7, Payload: make([]byte, payloadSize)}
	raw, err := b.Serialize()
	require.NoError(t, err)

	for _, byteIdx := range []int{0, 3, 5, 9, 13, HeaderSize, len(raw) - 1} {
		corrupted := append([]byte(nil), raw...)
		corrupted[byteIdx] ^= 0x01
		_, err := Deserialize(corrupted, 0)
		require.Error(t, err, "flipping bit in byte %d should invalidate CRC", byteIdx)
	}
}

func TestDeserializeWrongExpectedVersion(t *testing.T) {
	payloadSize, _ := V1.PayloadSize()
	b := &Block{Version: V1, Payload: make([]byte, payloadSize)}
	raw, err := b.Serialize()
	require.NoError(t, err)
	_, err = Deserialize(raw, V2)
	require.Error(t, err)
}

func TestVersionSizes(t *testing.T) {
	cases := map[Version]int{V1: 512, V17: 512, V2: 128, V18: 128, V3: 4096, V19: 4096}
	for v, want := range cases {
		got, err := v.Size()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.True(t, V17.HasParity())
	require.False(t, V1.HasParity())
}

func TestKindOf(t *testing.T) {
	// Non-parity: every non-zero seq is data.
	require.Equal(t, KindMetadata, KindOf(0, 0, 0))
	require.Equal(t, KindData, KindOf(1, 0, 0))

	// Parity D=2,P=1: seq 0 metadata, seq 1 metadata-parity copy,
	// then groups of (2 data, 1 parity): seq 2,3 data; seq 4 parity; etc.
	require.Equal(t, KindMetadata, KindOf(0, 2, 1))
	require.Equal(t, KindParity, KindOf(1, 2, 1))
	require.Equal(t, KindData, KindOf(2, 2, 1))
	require.Equal(t, KindData, KindOf(3, 2, 1))
	require.Equal(t, KindParity, KindOf(4, 2, 1))
	require.Equal(t, KindData, KindOf(5, 2, 1))
}
