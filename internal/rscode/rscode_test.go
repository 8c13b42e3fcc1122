package rscode

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeReconstructRoundTrip(t *testing.T) {
	params := Params{DataShards: 4, ParityShards: 2}
	c, err := New(params)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(1))
	data := make([][]byte, params.DataShards)
	for i := range data {
		data[i] = make([]byte, 32)
		rng.Read(data[i])
	}
	parity, err := c.Encode(data)
	require.NoError(t, err)
	require.Len(t, parity, params.ParityShards)

	all := append(append([][]byte{}, data...), parity...)

	// Drop any 2 shards (== ParityShards) and reconstruct.
	lost := []int{1, 4}
	present := make([]bool, len(all))
	shards := make([][]byte, len(all))
	for i := range all {
		present[i] = true
		shards[i] = all[i]
	}
	for _, idx := range lost {
		present[idx] = false
		shards[idx] = nil
	}

	rebuilt, err := c.Reconstruct(shards, PresentMask(present))
	require.NoError(t, err)
	for i := range all {
		require.True(t, bytes.Equal(all[i], rebuilt[i]), "shard %d mismatch", i)
	}
}

func TestReconstructInsufficientShards(t *testing.T) {
	params := Params{DataShards: 4, ParityShards: 2}
	c, err := New(params)
	require.NoError(t, err)

	shards := make([][]byte, 6)
	present := make([]bool, 6)
	// Only 3 present, need 4.
	for i := 0; i < 3; i++ {
		shards[i] = make([]byte, 16)
		present[i] = true
	}
	_, err = c.Reconstruct(shards, PresentMask(present))
	require.Error(t, err)
}

func TestParamsValidate(t *testing.T) {
	require.Error(t, Params{DataShards: 0, ParityShards: 1}.Validate())
	require.Error(t, Params{DataShards: 129, ParityShards: 1}.Validate())
	require.Error(t, Params{DataShards: 200, ParityShards: 200}.Validate())
	require.NoError(t, Params{DataShards: 10, ParityShards: 2}.Validate())
}

func TestInterleavePermuteRoundTrip(t *testing.T) {
	il := Interleaver{N: 3, B: 4}
	require.Equal(t, 12, il.Size())

	logical := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}
	physical := Permute(il, logical)
	back := Unpermute(il, physical)
	require.Equal(t, logical, back)

	// Any contiguous run of B physical positions should touch each RS
	// group at most once: a burst of up to B blocks damages at most one
	// block per group.
	for start := 0; start <= il.Size()-il.B; start++ {
		seenRow := make(map[int]bool)
		for physIdx := start; physIdx < start+il.B; physIdx++ {
			row := il.LogicalIndex(physIdx) / il.N
			require.False(t, seenRow[row], "burst at %d touched row %d twice", start, row)
			seenRow[row] = true
		}
	}
}
