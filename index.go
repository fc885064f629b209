package sparse

import (
	"fmt"

	"github.com/google/btree"
)

const btreeDegree = 32

// Index records which byte ranges of a logical address space are backed
// by a physical allocation, and where.
//
// An Index performs no internal locking. Read, Begin, Advance and the
// traversal methods may run concurrently with each other, but every Write
// must be serialised against all other calls on the same Index.
type Index struct {
	tree *btree.BTreeG[*Extent]
}

// New creates an empty index.
func New() *Index {
	return &Index{tree: btree.NewG(btreeDegree, lessExtent)}
}

// Len returns the number of recorded extents.
func (x *Index) Len() int { return x.tree.Len() }

// Reset removes all extents.
func (x *Index) Reset() { x.tree.Clear(false) }

// Floor returns the extent with the greatest logical start <= off.
func (x *Index) Floor(off int64) (Extent, bool) {
	if e := x.floor(off); e != nil {
		return *e, true
	}
	return Extent{}, false
}

// Lowest returns the extent with the least logical start.
func (x *Index) Lowest() (Extent, bool) {
	if e, ok := x.tree.Min(); ok {
		return *e, true
	}
	return Extent{}, false
}

// Highest returns the extent with the greatest logical start.
func (x *Index) Highest() (Extent, bool) {
	if e, ok := x.tree.Max(); ok {
		return *e, true
	}
	return Extent{}, false
}

// Ascend calls fn for every extent in increasing logical order until fn
// returns false.
func (x *Index) Ascend(fn func(Extent) bool) {
	x.tree.Ascend(func(e *Extent) bool { return fn(*e) })
}

// Descend calls fn for every extent in decreasing logical order until fn
// returns false.
func (x *Index) Descend(fn func(Extent) bool) {
	x.tree.Descend(func(e *Extent) bool { return fn(*e) })
}

// Extents returns a copy of all extents in increasing logical order.
func (x *Index) Extents() []Extent {
	res := make([]Extent, 0, x.tree.Len())
	x.Ascend(func(e Extent) bool {
		res = append(res, e)
		return true
	})
	return res
}

// Read looks up the logical offset start.
//
// If start is covered by an extent, physical is the backing offset and
// sliceLength the number of contiguous bytes available from start to the
// end of that extent. Otherwise sliceLength is 0.
//
// gap is the number of unmapped bytes between start+sliceLength and the
// next recorded extent, or NoNextExtent if there is none.
func (x *Index) Read(start int64) (physical, sliceLength, gap int64) {
	f := x.floor(start)
	if f != nil && f.Contains(start) {
		offset := start - f.Logical
		physical = f.Physical + offset
		sliceLength = f.Length - offset
	}

	var next *Extent
	if f == nil {
		next, _ = x.tree.Min()
	} else {
		next = x.after(f.Logical)
	}
	if next == nil {
		return physical, sliceLength, NoNextExtent
	}
	return physical, sliceLength, next.Logical - (start + sliceLength)
}

// Write maps the logical range [start, start+length) onto the physical
// range starting at physical. Existing extents overlapping that range are
// clipped, split or removed. The new extent is merged into its left
// neighbour when both are logically and physically contiguous; the right
// neighbour is never merged.
//
// It returns ErrBadLength if length <= 0 and ErrOverflow if either range
// would end beyond the int64 range. The index is unchanged on error.
func (x *Index) Write(start, physical, length int64) error {
	if length <= 0 {
		return ErrBadLength
	}
	end := start + length
	if end < start || physical+length < physical {
		return ErrOverflow
	}

	// candidates: the floor of start plus every extent starting before end
	from := start
	if f := x.floor(start); f != nil {
		from = f.Logical
	}
	var candidates []*Extent
	x.tree.AscendGreaterOrEqual(pivot(from), func(e *Extent) bool {
		if e.Logical >= end {
			return false
		}
		candidates = append(candidates, e)
		return true
	})

	for _, c := range candidates {
		cb, ce := c.Logical, c.End()
		if end < cb || ce < start {
			continue
		}

		leftOutside := cb < start
		rightOutside := end < ce
		switch {
		case !leftOutside && !rightOutside:
			// new:   ******
			// old:    ----
			x.tree.Delete(c)
		case leftOutside && rightOutside:
			// new:    ****
			// old:   ------
			x.tree.ReplaceOrInsert(&Extent{
				Logical:  end,
				Physical: c.Physical + (end - cb),
				Length:   ce - end,
			})
			c.Length = start - cb
		case leftOutside:
			// new:    ****
			// old:   ---
			c.Length = start - cb
		default:
			// new:   *****
			// old:     ----
			delta := end - cb
			x.tree.Delete(c)
			x.tree.ReplaceOrInsert(&Extent{
				Logical:  end,
				Physical: c.Physical + delta,
				Length:   c.Length - delta,
			})
		}
	}

	e := &Extent{Logical: start, Physical: physical, Length: length}
	x.tree.ReplaceOrInsert(e)

	if left := x.before(start); left != nil && left.End() == start && left.PhysicalEnd() == physical {
		left.Length += length
		x.tree.Delete(e)
	}

	if debugInvariants {
		if err := x.Validate(); err != nil {
			panic(err)
		}
	}
	return nil
}

// Validate checks that extents have positive lengths and that no two
// extents overlap. A failure means the index is corrupt.
func (x *Index) Validate() (err error) {
	var prev *Extent
	x.tree.Ascend(func(e *Extent) bool {
		if e.Length <= 0 {
			err = fmt.Errorf("sparse: extent at %d has non-positive length %d", e.Logical, e.Length)
			return false
		}
		if prev != nil && prev.End() > e.Logical {
			err = fmt.Errorf("sparse: extents at %d and %d overlap", prev.Logical, e.Logical)
			return false
		}
		prev = e
		return true
	})
	return
}

// insert adds e, which must not overlap any recorded extent.
func (x *Index) insert(e Extent) { x.tree.ReplaceOrInsert(&e) }

func pivot(key int64) *Extent { return &Extent{Logical: key} }

func (x *Index) floor(off int64) (found *Extent) {
	x.tree.DescendLessOrEqual(pivot(off), func(e *Extent) bool {
		found = e
		return false
	})
	return
}

// before returns the extent with the greatest logical start < key.
func (x *Index) before(key int64) (found *Extent) {
	x.tree.DescendLessOrEqual(pivot(key), func(e *Extent) bool {
		if e.Logical == key {
			return true
		}
		found = e
		return false
	})
	return
}

// after returns the extent with the least logical start > key.
func (x *Index) after(key int64) (found *Extent) {
	x.tree.AscendGreaterOrEqual(pivot(key), func(e *Extent) bool {
		if e.Logical == key {
			return true
		}
		found = e
		return false
	})
	return
}
