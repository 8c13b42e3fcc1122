// Package metadata implements the SBX metadata block's TLV encoding.
package metadata

import (
	"github.com/blkar/blkar/internal/sbxerr"
)

// Tag is a 3-byte ASCII TLV tag.
type Tag [3]byte

// Recognized tags.
var (
	TagFNM = Tag{'F', 'N', 'M'} // original file name
	TagSNM = Tag{'S', 'N', 'M'} // stored/SBX file name
	TagFSZ = Tag{'F', 'S', 'Z'} // original file size
	TagFDT = Tag{'F', 'D', 'T'} // original file mtime
	TagSDT = Tag{'S', 'D', 'T'} // SBX file created time
	TagHSH = Tag{'H', 'S', 'H'} // multihash of original file
	TagPID = Tag{'P', 'I', 'D'} // parity configuration
	TagPAD = Tag{'P', 'A', 'D'} // padding
)

func (t Tag) String() string { return string(t[:]) }

// Record is one TLV record: a tag plus up to 255 bytes of payload.
type Record struct {
	Tag     Tag
	Payload []byte
}

// Set is a decoded metadata block: the recognized fields plus any unknown
// records preserved verbatim, in on-disk order excluding the trailing PAD.
type Set struct {
	records []Record // insertion order, one per distinct tag (except PAD, held out)
	index   map[Tag]int
}

// NewSet returns an empty metadata set.
func NewSet() *Set {
	return &Set{index: make(map[Tag]int)}
}

// Get returns the payload for tag and whether it is present. PAD is never
// returned by Get; use the padding added automatically by Encode.
func (s *Set) Get(tag Tag) ([]byte, bool) {
	if i, ok := s.index[tag]; ok {
		return s.records[i].Payload, true
	}
	return nil, false
}

// Set replaces (or adds) the record for tag. At most one record per tag is
// kept in a metadata block.
func (s *Set) Set(tag Tag, payload []byte) error {
	if tag == TagPAD {
		return sbxerr.MetadataMalformedf("sbx: PAD may not be set directly")
	}
	if len(payload) > 255 {
		return sbxerr.MetadataMalformedf("sbx: tag %s payload too long (%d bytes)", tag, len(payload))
	}
	if i, ok := s.index[tag]; ok {
		s.records[i].Payload = payload
		return nil
	}
	s.index[tag] = len(s.records)
	s.records = append(s.records, Record{Tag: tag, Payload: payload})
	return nil
}

// Unset removes the record for tag, if present.
func (s *Set) Unset(tag Tag) {
	i, ok := s.index[tag]
	if !ok {
		return
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	delete(s.index, tag)
	for t, idx := range s.index {
		if idx > i {
			s.index[t] = idx - 1
		}
	}
}

// Records returns the set's records, excluding padding, in on-disk order.
func (s *Set) Records() []Record {
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

// Encode serializes the set into exactly payloadSize bytes, appending PAD
// records to fill whatever remains. A single TLV record can only carry 255
// payload bytes, so once the remainder exceeds that (true of every block size but V2/V18's 112-byte
// payload once real fields are in use), Encode chains as many PAD records as
// needed, each as large as the 1-byte length field allows, until the payload
// is exactly filled.
func (s *Set) Encode(payloadSize int) ([]byte, error) {
	out := make([]byte, 0, payloadSize)
	for _, r := range s.records {
		if len(r.Payload) > 255 {
			return nil, sbxerr.MetadataMalformedf("sbx: tag %s payload too long (%d bytes)", r.Tag, len(r.Payload))
		}
		rec := encodeRecord(r.Tag, r.Payload)
		if len(out)+len(rec) > payloadSize {
			return nil, sbxerr.MetadataMalformedf("sbx: metadata does not fit in %d-byte payload", payloadSize)
		}
		out = append(out, rec...)
	}
	remaining := payloadSize - len(out)
	for remaining > 0 {
		if remaining < 4 {
			return nil, sbxerr.MetadataMalformedf("sbx: %d byte(s) left cannot fit a PAD record header", remaining)
		}
		padLen := remaining - 4
		if padLen > 255 {
			padLen = 255
			// Leave at least a PAD header's worth of room for the next record.
			if rest := remaining - 4 - padLen; rest < 4 {
				padLen -= 4 - rest
			}
		}
		out = append(out, encodeRecord(TagPAD, make([]byte, padLen))...)
		remaining -= 4 + padLen
	}
	return out, nil
}

func encodeRecord(tag Tag, payload []byte) []byte {
	rec := make([]byte, 4+len(payload))
	copy(rec[:3], tag[:])
	rec[3] = byte(len(payload))
	copy(rec[4:], payload)
	return rec
}

// Decode parses a metadata payload into a Set. Unknown tags are preserved
// verbatim; the trailing PAD record(s) are consumed and dropped (they carry
// no information -- Encode regenerates them). Encode may have chained
// several PAD records end to end (a single TLV record only carries 255
// payload bytes), so Decode keeps consuming PAD records once it sees the
// first one rather than expecting exactly one; any non-PAD record after a
// PAD has been seen is itself malformed, since padding is always the tail.
func Decode(payload []byte) (*Set, error) {
	s := NewSet()
	i := 0
	sawPad := false
	for i < len(payload) {
		if i+4 > len(payload) {
			return nil, sbxerr.MetadataMalformedf("sbx: truncated TLV record header at offset %d", i)
		}
		var tag Tag
		copy(tag[:], payload[i:i+3])
		length := int(payload[i+3])
		i += 4
		if i+length > len(payload) {
			return nil, sbxerr.MetadataMalformedf("sbx: TLV record at offset %d overruns payload", i-4)
		}
		value := payload[i : i+length]
		i += length

		if tag == TagPAD {
			sawPad = true
			continue
		}
		if sawPad {
			return nil, sbxerr.MetadataMalformedf("sbx: non-PAD record follows PAD record")
		}
		if _, dup := s.index[tag]; dup {
			return nil, sbxerr.MetadataMalformedf("sbx: duplicate tag %s", tag)
		}
		cp := append([]byte(nil), value...)
		if err := s.Set(tag, cp); err != nil {
			return nil, err
		}
	}
	return s, nil
}
