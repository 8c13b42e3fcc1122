package sbx

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/metadata"
	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbxerr"
	"github.com/blkar/blkar/internal/sbxlog"
)

// FieldMutation is one field change requested of Update: set a new value,
// or unset (remove) the field entirely.
type FieldMutation struct {
	Tag   metadata.Tag
	Unset bool
	Value string // ignored when Unset
}

// UpdateParams are the inputs to Update.
type UpdateParams struct {
	ContainerPath string
	OnlyVersion   block.Version
	Mutations     []FieldMutation
	DryRun        bool
}

// UpdateResult reports the mutations actually applied, mirroring the
// metadataChanges JSON shape.
type UpdateResult struct {
	UID     block.UID
	Version block.Version
	Changes []report.FieldChange
	DryRun  bool
}

// Update edits the metadata block's recognized TLV fields in place,
// re-pads, re-stamps CRC, and rewrites block 0 plus its parity copies for
// parity versions. The rewrite is atomic per block: each
// block is built and serialized completely before any WriteAt call, so a
// write either lands whole or the file is untouched for that block.
func Update(p UpdateParams, log logrus.FieldLogger) (*UpdateResult, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	mode := os.O_RDONLY
	if !p.DryRun {
		mode = os.O_RDWR
	}
	f, err := os.OpenFile(p.ContainerPath, mode, 0)
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: opening container %s", p.ContainerPath)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: stat container %s", p.ContainerPath)
	}

	metaBlock, _, err := locateMetadata(f, info.Size(), p.OnlyVersion, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	layout := Layout{Version: metaBlock.Version}
	metaSet, err := metadata.Decode(metaBlock.Payload)
	if err != nil {
		return nil, err
	}
	if layout.Version.HasParity() {
		d, pp, ok := metaSet.RSParams()
		if ok {
			layout.D, layout.P = d, pp
		}
	}

	var changes []report.FieldChange
	for _, mut := range p.Mutations {
		before, hadBefore := metaSet.Get(mut.Tag)
		beforeStr := ""
		if hadBefore {
			beforeStr = string(before)
		}
		if mut.Unset {
			if !hadBefore {
				continue
			}
			metaSet.Unset(mut.Tag)
			changes = append(changes, report.FieldChange{Field: mut.Tag.String(), From: beforeStr, To: ""})
			continue
		}
		if hadBefore && beforeStr == mut.Value {
			continue // no change
		}
		if err := metaSet.Set(mut.Tag, []byte(mut.Value)); err != nil {
			return nil, err
		}
		changes = append(changes, report.FieldChange{Field: mut.Tag.String(), From: beforeStr, To: mut.Value})
	}

	if p.DryRun || len(changes) == 0 {
		return &UpdateResult{UID: metaBlock.UID, Version: layout.Version, Changes: changes, DryRun: p.DryRun}, nil
	}

	payloadSize, err := layout.PayloadSize()
	if err != nil {
		return nil, err
	}
	payload, err := metaSet.Encode(payloadSize)
	if err != nil {
		return nil, err
	}
	blockSize, err := layout.BlockSize()
	if err != nil {
		return nil, err
	}
	count := 1 + layout.MetadataParityCount()
	for i := 0; i < count; i++ {
		b := &block.Block{Version: layout.Version, UID: metaBlock.UID, Seq: uint32(i), Payload: payload}
		raw, err := b.Serialize()
		if err != nil {
			return nil, err
		}
		if _, err := f.WriteAt(raw, int64(i)*int64(blockSize)); err != nil {
			return nil, sbxerr.IO(err, "sbx: rewriting metadata copy %d", i)
		}
	}

	sbxlog.For(log, "update").WithField("uid", metaBlock.UID).
		Infof("sbx: applied %d metadata changes", len(changes))
	return &UpdateResult{UID: metaBlock.UID, Version: layout.Version, Changes: changes}, nil
}
