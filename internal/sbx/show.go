package sbx

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/blkar/blkar/internal/block"
	"github.com/blkar/blkar/internal/metadata"
	"github.com/blkar/blkar/internal/report"
	"github.com/blkar/blkar/internal/sbxerr"
	"github.com/blkar/blkar/internal/sbxlog"
	"github.com/blkar/blkar/internal/scan"
)

// ShowParams are the inputs to Show.
type ShowParams struct {
	ContainerPath string
	OnlyVersion   block.Version

	// SkipTo/To constrain the block listing (not metadata discovery).
	// SkipTo < 0 clamps to 0; To < 0 yields an empty listing; To == 0
	// means "to end of file".
	SkipTo, To int64

	ShowAll bool // include parity blocks in the listing
}

// ShowResult is the metadata summary plus block listing.
type ShowResult struct {
	UID        block.UID
	Version    block.Version
	FileName   string
	StoredName string
	FileSize   uint64
	Blocks     []report.BlockInfo
}

// Show dumps the metadata block and a listing of blocks found in
// [SkipTo, To).
func Show(p ShowParams, log logrus.FieldLogger) (*ShowResult, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	f, err := os.Open(p.ContainerPath)
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: opening container %s", p.ContainerPath)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, sbxerr.IO(err, "sbx: stat container %s", p.ContainerPath)
	}
	streamLen := info.Size()

	metaBlock, _, err := locateMetadata(f, streamLen, p.OnlyVersion, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	metaSet, err := metadata.Decode(metaBlock.Payload)
	if err != nil {
		return nil, err
	}
	fileName, _ := metaSet.FileName()
	storedName, _ := metaSet.StoredName()
	if storedName == "" {
		storedName = filepath.Base(p.ContainerPath)
	}
	fileSize, _ := metaSet.FileSize()

	layout := Layout{Version: metaBlock.Version}
	dataShards, parityShards, ok := metaSet.RSParams()
	if layout.Version.HasParity() && ok {
		layout.D, layout.P = dataShards, parityShards
	}

	res := &ShowResult{
		UID: metaBlock.UID, Version: layout.Version,
		FileName: fileName, StoredName: storedName, FileSize: fileSize,
	}

	if p.To < 0 {
		log.Debug("sbx: show --to < 0, empty listing")
		return res, nil
	}
	skipTo := p.SkipTo
	if skipTo < 0 {
		skipTo = 0
	}
	to := p.To
	if to <= 0 || to > streamLen {
		to = streamLen
	}

	blockSize, err := layout.BlockSize()
	if err != nil {
		return nil, err
	}
	sc := scan.New(f, streamLen, blockSize, scan.Options{From: skipTo, To: to, Filter: scan.FilterNone})
	for {
		sres, ok := sc.Next()
		if !ok {
			break
		}
		if sres.Block == nil {
			continue
		}
		kind := block.KindOf(sres.Block.Seq, layout.D, layout.P)
		if !p.ShowAll && kind == block.KindParity {
			continue
		}
		res.Blocks = append(res.Blocks, report.BlockInfo{
			SBXContainerVersion: int(layout.Version),
			SBXContainerName:    storedName,
			FileName:            fileName,
			FileSize:            fileSize,
			SeqNum:              sres.Block.Seq,
			Offset:              sres.Offset,
			Kind:                kindName(kind),
			Valid:               true,
		})
	}

	sbxlog.For(log, "show").WithField("uid", metaBlock.UID).
		Debugf("sbx: listed %d blocks", len(res.Blocks))
	return res, nil
}

func kindName(k block.Kind) string {
	switch k {
	case block.KindMetadata:
		return "metadata"
	case block.KindData:
		return "data"
	case block.KindParity:
		return "parity"
	default:
		return "unknown"
	}
}
