// Package rscode implements the Reed-Solomon (D,P) erasure code over
// GF(2^8) used by the parity-capable SBX versions, wrapping
// github.com/klauspost/reedsolomon with the classic Vandermonde ("PAR1")
// generator matrix via WithPAR1Matrix().
package rscode

import (
	"github.com/bits-and-blooms/bitset"
	"github.com/klauspost/reedsolomon"

	"github.com/blkar/blkar/internal/sbxerr"
)

// Params is one (data_shards, parity_shards) configuration.
// D,P ∈ [1,128], D+P ≤ 256.
type Params struct {
	DataShards   int
	ParityShards int
}

// Validate checks the parameter bounds.
func (p Params) Validate() error {
	if p.DataShards < 1 || p.DataShards > 128 {
		return sbxerr.Usagef("sbx: rs-data must be in [1,128], got %d", p.DataShards)
	}
	if p.ParityShards < 1 || p.ParityShards > 128 {
		return sbxerr.Usagef("sbx: rs-parity must be in [1,128], got %d", p.ParityShards)
	}
	if p.DataShards+p.ParityShards > 256 {
		return sbxerr.Usagef("sbx: rs-data + rs-parity must be <= 256")
	}
	return nil
}

// Coder encodes and reconstructs RS groups for one fixed Params/shard
// length. Encoders are safe to reuse across many groups of the same shard
// length; klauspost/reedsolomon's Encoder type itself is stateless and
// goroutine-safe.
type Coder struct {
	params Params
	enc    reedsolomon.Encoder
}

// New builds a Coder for the given parameters, using the PAR1 (Vandermonde)
// matrix construction.
func New(params Params) (*Coder, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	enc, err := reedsolomon.New(params.DataShards, params.ParityShards, reedsolomon.WithPAR1Matrix())
	if err != nil {
		return nil, sbxerr.Wrap(sbxerr.KindIO, err, "sbx: constructing RS coder")
	}
	return &Coder{params: params, enc: enc}, nil
}

// Encode computes parity shards for the given data shards, all of which
// must have equal length. It returns only the P parity shards.
func (c *Coder) Encode(dataShards [][]byte) ([][]byte, error) {
	if len(dataShards) != c.params.DataShards {
		return nil, sbxerr.AssertionFailedf("sbx: rscode.Encode got %d data shards, want %d", len(dataShards), c.params.DataShards)
	}
	l := shardLen(dataShards)
	shards := make([][]byte, c.params.DataShards+c.params.ParityShards)
	copy(shards, dataShards)
	for i := c.params.DataShards; i < len(shards); i++ {
		shards[i] = make([]byte, l)
	}
	if err := c.enc.Encode(shards); err != nil {
		return nil, sbxerr.Wrap(sbxerr.KindIO, err, "sbx: RS encode")
	}
	return shards[c.params.DataShards:], nil
}

// Reconstruct fills in missing shards given a present mask. present has one
// bit per shard index in [0, D+P); shards not present must be nil or will
// be overwritten. If fewer than D shards are present, it returns an
// InsufficientShards error.
func (c *Coder) Reconstruct(shards [][]byte, present *bitset.BitSet) ([][]byte, error) {
	total := c.params.DataShards + c.params.ParityShards
	if len(shards) != total {
		return nil, sbxerr.AssertionFailedf("sbx: rscode.Reconstruct got %d shards, want %d", len(shards), total)
	}
	if int(present.Count()) < c.params.DataShards {
		return nil, sbxerr.InsufficientShardsf(
			"sbx: only %d of %d shards present, need at least %d", present.Count(), total, c.params.DataShards)
	}

	work := make([][]byte, total)
	for i := range work {
		if present.Test(uint(i)) {
			work[i] = shards[i]
		} else {
			work[i] = nil
		}
	}
	if err := c.enc.Reconstruct(work); err != nil {
		return nil, sbxerr.Wrap(sbxerr.KindInsufficientShards, err, "sbx: RS reconstruct")
	}
	return work, nil
}

// PresentMask builds a bitset from a slice of booleans (true == present),
// the representation the decode/repair pipelines build up incrementally as
// they scan blocks in a group.
func PresentMask(present []bool) *bitset.BitSet {
	bs := bitset.New(uint(len(present)))
	for i, p := range present {
		if p {
			bs.Set(uint(i))
		}
	}
	return bs
}

func shardLen(shards [][]byte) int {
	for _, s := range shards {
		if len(s) > 0 {
			return len(s)
		}
	}
	return 0
}
