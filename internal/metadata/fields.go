package metadata

import (
	"encoding/binary"

	"github.com/blkar/blkar/internal/sbxerr"
)

// The typed accessors below translate between the raw TLV payloads and the
// Go types each recognized tag carries.

// FileName returns the FNM field.
func (s *Set) FileName() (string, bool) {
	b, ok := s.Get(TagFNM)
	return string(b), ok
}

// SetFileName sets the FNM field.
func (s *Set) SetFileName(name string) error { return s.Set(TagFNM, []byte(name)) }

// StoredName returns the SNM field.
func (s *Set) StoredName() (string, bool) {
	b, ok := s.Get(TagSNM)
	return string(b), ok
}

// SetStoredName sets the SNM field.
func (s *Set) SetStoredName(name string) error { return s.Set(TagSNM, []byte(name)) }

// FileSize returns the FSZ field, the original file's size in bytes.
func (s *Set) FileSize() (uint64, bool) {
	b, ok := s.Get(TagFSZ)
	if !ok || len(b) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(b), true
}

// SetFileSize sets the FSZ field.
func (s *Set) SetFileSize(n uint64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return s.Set(TagFSZ, b)
}

// FileModTime returns the FDT field: POSIX seconds of the original file's
// last-modified time.
func (s *Set) FileModTime() (int64, bool) {
	b, ok := s.Get(TagFDT)
	if !ok || len(b) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(b)), true
}

// SetFileModTime sets the FDT field.
func (s *Set) SetFileModTime(sec int64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(sec))
	return s.Set(TagFDT, b)
}

// ContainerCreatedTime returns the SDT field: POSIX seconds the SBX
// container was created.
func (s *Set) ContainerCreatedTime() (int64, bool) {
	b, ok := s.Get(TagSDT)
	if !ok || len(b) != 8 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(b)), true
}

// SetContainerCreatedTime sets the SDT field.
func (s *Set) SetContainerCreatedTime(sec int64) error {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(sec))
	return s.Set(TagSDT, b)
}

// Hash returns the raw multihash bytes stored in HSH.
func (s *Set) Hash() ([]byte, bool) { return s.Get(TagHSH) }

// SetHash sets the HSH field to the given multihash bytes.
func (s *Set) SetHash(mh []byte) error { return s.Set(TagHSH, mh) }

// RSParams returns the (data_shards, parity_shards) pair stored in PID, for
// parity versions.
func (s *Set) RSParams() (dataShards, parityShards int, ok bool) {
	b, present := s.Get(TagPID)
	if !present || len(b) != 2 {
		return 0, 0, false
	}
	return int(b[0]), int(b[1]), true
}

// SetRSParams sets the PID field. D and P must each be in [1,128].
func (s *Set) SetRSParams(dataShards, parityShards int) error {
	if dataShards < 1 || dataShards > 128 || parityShards < 1 || parityShards > 128 {
		return sbxerr.Usagef("sbx: rs-data and rs-parity must each be in [1, 128], got (%d, %d)", dataShards, parityShards)
	}
	return s.Set(TagPID, []byte{byte(dataShards), byte(parityShards)})
}
