package sbx

// CalcParams are the inputs to Calc.
type CalcParams struct {
	Layout     Layout
	InFileSize uint64
}

// CalcResult is the computed container size, with no disk I/O performed.
type CalcResult struct {
	TotalBytes  int64
	TotalBlocks int
}

// Calc computes the exact on-disk size of a container that would hold
// InFileSize bytes of plaintext under Layout's parameters, without touching
// disk. For a zero-byte input the result is exactly (1+P) * block_size:
// one metadata block plus its P parity copies, no data groups.
func Calc(p CalcParams) (*CalcResult, error) {
	layout := p.Layout
	if !layout.Version.HasParity() {
		layout.D, layout.P, layout.B = 1, 0, 0
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	blocks, err := layout.TotalBlockCount(p.InFileSize)
	if err != nil {
		return nil, err
	}
	size, err := layout.TotalSize(p.InFileSize)
	if err != nil {
		return nil, err
	}
	return &CalcResult{TotalBytes: size, TotalBlocks: blocks}, nil
}
