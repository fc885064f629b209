package sparse

import (
	"encoding/binary"
	"sync"
)

// CursorSize is the number of bytes of cursor storage used by
// Registry.CursorBegin and Registry.CursorAdvance.
//
//	Cursor layout:
//	+--------------+----------------+-----------------+--------------+
//	| tag (4 bytes)| state (4 bytes)| handle (8 bytes)| key (8 bytes)|
//	+--------------+----------------+-----------------+--------------+
const CursorSize = 24

const cursorTag uint32 = 0x53505243

// Handle identifies an Index owned by a Registry.
type Handle uint64

// Registry owns indexes on behalf of callers which can only hold opaque
// handles. Every call checks its handle, so a destroyed handle yields
// ErrBadHandle instead of touching freed state.
//
// Writes and Destroy hold an exclusive lock for their whole duration,
// reads and cursor calls a shared one.
type Registry struct {
	mu     sync.RWMutex
	last   Handle
	tables map[Handle]*Index
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[Handle]*Index)}
}

// Create allocates an empty index and returns its handle.
func (r *Registry) Create() Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last++
	r.tables[r.last] = New()
	return r.last
}

// Destroy releases the index and all its extents. The handle is invalid
// afterwards.
func (r *Registry) Destroy(h Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, ok := r.tables[h]
	if !ok {
		return ErrBadHandle
	}
	x.Reset()
	delete(r.tables, h)
	return nil
}

// Len returns the number of live handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.tables)
}

// CursorSize returns the size of the cursor storage.
func (r *Registry) CursorSize() int { return CursorSize }

// CursorBegin initialises cursor storage at the greatest extent of the
// index. See Cursor for the traversal semantics.
func (r *Registry) CursorBegin(h Handle, cursor []byte) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	x, ok := r.tables[h]
	if !ok {
		return ErrBadHandle
	}
	if len(cursor) < CursorSize {
		return ErrBadCursor
	}
	encodeCursor(cursor, h, x.Begin())
	return nil
}

// CursorAdvance moves the cursor to the next lower extent and reads it.
// found is false at the end of the sequence.
func (r *Registry) CursorAdvance(h Handle, cursor []byte) (e Extent, found bool, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	x, ok := r.tables[h]
	if !ok {
		return Extent{}, false, ErrBadHandle
	}
	c, err := decodeCursor(cursor, h)
	if err != nil {
		return Extent{}, false, err
	}
	e, found = x.Advance(&c)
	encodeCursor(cursor, h, c)
	return e, found, nil
}

// Read looks up a logical offset, see Index.Read.
func (r *Registry) Read(h Handle, start int64) (physical, sliceLength, gap int64, err error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	x, ok := r.tables[h]
	if !ok {
		return 0, 0, 0, ErrBadHandle
	}
	physical, sliceLength, gap = x.Read(start)
	return physical, sliceLength, gap, nil
}

// Write records a mapping, see Index.Write.
func (r *Registry) Write(h Handle, start, physical, length int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, ok := r.tables[h]
	if !ok {
		return ErrBadHandle
	}
	return x.Write(start, physical, length)
}

func encodeCursor(buf []byte, h Handle, c Cursor) {
	binary.LittleEndian.PutUint32(buf[0:], cursorTag)
	binary.LittleEndian.PutUint32(buf[4:], uint32(c.state))
	binary.LittleEndian.PutUint64(buf[8:], uint64(h))
	binary.LittleEndian.PutUint64(buf[16:], uint64(c.key))
}

func decodeCursor(buf []byte, h Handle) (Cursor, error) {
	if len(buf) < CursorSize {
		return Cursor{}, ErrBadCursor
	}
	if binary.LittleEndian.Uint32(buf[0:]) != cursorTag {
		return Cursor{}, ErrBadCursor
	}
	if Handle(binary.LittleEndian.Uint64(buf[8:])) != h {
		return Cursor{}, ErrBadCursor
	}

	state := cursorState(binary.LittleEndian.Uint32(buf[4:]))
	if state != cursorDone && state != cursorAt {
		return Cursor{}, ErrBadCursor
	}
	return Cursor{
		key:   int64(binary.LittleEndian.Uint64(buf[16:])),
		state: state,
	}, nil
}
