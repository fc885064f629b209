package sparse

type cursorState uint32

const (
	cursorDone cursorState = iota
	cursorAt
)

// Cursor walks an Index from the greatest logical start downwards.
//
// Begin positions the cursor at the greatest extent and every Advance
// first steps to the next lower extent and then reads it. The greatest
// extent is therefore never returned by Advance; use Ascend, Descend or
// Extents for a complete traversal.
//
// A Cursor only remembers the key it sits on, so it stays usable while
// the index is written to: Advance continues with the greatest extent
// whose logical start is below that key.
type Cursor struct {
	key   int64
	state cursorState
}

// Done reports whether the cursor has moved past the lowest extent.
func (c Cursor) Done() bool { return c.state != cursorAt }

// Begin returns a cursor positioned at the extent with the greatest
// logical start.
func (x *Index) Begin() Cursor {
	if e, ok := x.tree.Max(); ok {
		return Cursor{key: e.Logical, state: cursorAt}
	}
	return Cursor{}
}

// Advance moves the cursor to the next lower extent and returns it.
// It returns false once the cursor has moved past the lowest extent.
func (x *Index) Advance(c *Cursor) (Extent, bool) {
	if c.state != cursorAt {
		return Extent{}, false
	}

	e := x.before(c.key)
	if e == nil {
		c.state = cursorDone
		return Extent{}, false
	}
	c.key = e.Logical
	return *e, true
}
