// Package block implements the SBX block codec: header layout, CRC-CCITT
// integrity, and the six container versions.
package block

import "github.com/blkar/blkar/internal/sbxerr"

// Version identifies one of the six SBX container variants.
type Version byte

// The six supported container versions.
const (
	V1  Version = 1
	V2  Version = 2
	V3  Version = 3
	V17 Version = 17
	V18 Version = 18
	V19 Version = 19
)

// HeaderSize is the fixed size of every block's header, across all
// versions.
const HeaderSize = 16

// Size returns the total on-disk size of a block of this version,
// including the 16-byte header.
func (v Version) Size() (int, error) {
	switch v {
	case V1, V17:
		return 512, nil
	case V2, V18:
		return 128, nil
	case V3, V19:
		return 4096, nil
	default:
		return 0, sbxerr.UnknownVersionf("sbx: unknown version %d", byte(v))
	}
}

// PayloadSize returns Size() - HeaderSize.
func (v Version) PayloadSize() (int, error) {
	sz, err := v.Size()
	if err != nil {
		return 0, err
	}
	return sz - HeaderSize, nil
}

// HasParity reports whether this version carries Reed-Solomon parity
// blocks (the "17/18/19" family).
func (v Version) HasParity() bool {
	switch v {
	case V17, V18, V19:
		return true
	default:
		return false
	}
}

// IsValid reports whether v is one of the six known versions.
func (v Version) IsValid() bool {
	switch v {
	case V1, V2, V3, V17, V18, V19:
		return true
	default:
		return false
	}
}

// AllVersions lists every supported version, ascending.
func AllVersions() []Version {
	return []Version{V1, V2, V3, V17, V18, V19}
}

// AllBlockSizes lists the distinct block sizes across all versions, in the
// ascending order the scanner tries them in.
func AllBlockSizes() []int {
	return []int{128, 512, 4096}
}

// String renders the version as "V<n>", for log fields and test names.
func (v Version) String() string {
	switch v {
	case V1:
		return "V1"
	case V2:
		return "V2"
	case V3:
		return "V3"
	case V17:
		return "V17"
	case V18:
		return "V18"
	case V19:
		return "V19"
	default:
		return "Vunknown"
	}
}
