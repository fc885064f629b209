package sparse

import "errors"

var magic = []byte{83, 80, 82, 83, 101, 120, 116, 1}

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1
)

// NoNextExtent is the gap reported by Read when no extent is recorded
// beyond the returned slice.
const NoNextExtent int64 = -1

var (
	// ErrBadLength is returned when writing an extent with a non-positive length.
	ErrBadLength = errors.New("sparse: extent length must be positive")
	// ErrOverflow is returned when an extent would end beyond the int64 range.
	ErrOverflow = errors.New("sparse: extent end overflows int64")
	// ErrBadHandle is returned by the Registry for unknown or destroyed handles.
	ErrBadHandle = errors.New("sparse: invalid handle")
	// ErrBadCursor is returned for cursor storage which is too short or
	// was not initialised by CursorBegin for the same handle.
	ErrBadCursor = errors.New("sparse: invalid cursor")
	// ErrBroken is returned by File.WriteAt once a previous write has failed
	// half-way through.
	ErrBroken = errors.New("sparse: storage was spoiled by a previous write")
)

var (
	errClosed         = errors.New("sparse: is closed")
	errBadMagic       = errors.New("sparse: bad magic byte sequence")
	errBadCompression = errors.New("sparse: bad compression codec")
	errBadVarint      = errors.New("sparse: bad varint")
	errReleased       = errors.New("sparse: iterator was released")
)

// Extent maps the logical range [Logical, Logical+Length) byte-for-byte
// onto the physical range [Physical, Physical+Length).
type Extent struct {
	Logical  int64 `json:"logical"`
	Physical int64 `json:"physical"`
	Length   int64 `json:"length"`
}

// End returns the logical end offset (exclusive).
func (e Extent) End() int64 { return e.Logical + e.Length }

// PhysicalEnd returns the physical end offset (exclusive).
func (e Extent) PhysicalEnd() int64 { return e.Physical + e.Length }

// Contains reports whether the logical offset is covered by the extent.
func (e Extent) Contains(off int64) bool { return off >= e.Logical && off < e.End() }

func lessExtent(a, b *Extent) bool { return a.Logical < b.Logical }

// --------------------------------------------------------------------

type blockInfo struct {
	MaxEnd int64 // logical end of the last extent in the block
	Offset int64 // block offset position
}

// Compression is the compression codec
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	unknownCompression
)
