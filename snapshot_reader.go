package sparse

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/golang/snappy"
	"github.com/pkg/errors"
)

// Reader instances can seek and iterate across extents in snapshots.
type Reader struct {
	r io.ReaderAt

	index     []blockInfo
	maxOffset int64
}

// NewReader opens a snapshot reader.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	if size < 16 {
		return nil, errBadMagic
	}
	tmp := make([]byte, 16+binary.MaxVarintLen64)

	// read footer
	footerOffset := size - 16
	if _, err := r.ReadAt(tmp[:16], footerOffset); err != nil {
		return nil, errors.Wrap(err, "sparse: reading footer")
	}

	// parse footer
	if !bytes.Equal(tmp[8:16], magic) {
		return nil, errBadMagic
	}
	indexOffset := int64(binary.LittleEndian.Uint64(tmp[:8]))
	if indexOffset < 0 || indexOffset > footerOffset {
		return nil, errors.Errorf("sparse: index offset %d out of bounds", indexOffset)
	}

	// read index
	var index []blockInfo
	var info blockInfo

	for pos := indexOffset; pos < footerOffset; {
		tmp = tmp[:2*binary.MaxVarintLen64]
		if x := footerOffset - pos; x < int64(len(tmp)) {
			tmp = tmp[:int(x)]
		}

		if _, err := r.ReadAt(tmp, pos); err != nil {
			return nil, errors.Wrap(err, "sparse: reading block index")
		}

		var n1 int
		if len(index) == 0 {
			info.MaxEnd, n1 = binary.Varint(tmp[0:])
		} else {
			var u1 uint64
			u1, n1 = binary.Uvarint(tmp[0:])
			info.MaxEnd += int64(u1)
		}
		if n1 <= 0 {
			return nil, errBadVarint
		}

		u2, n2 := binary.Uvarint(tmp[n1:])
		if n2 <= 0 {
			return nil, errBadVarint
		}
		pos += int64(n1 + n2)

		info.Offset += int64(u2)
		index = append(index, info)
	}

	return &Reader{
		r: r,

		index:     index, // block offsets
		maxOffset: indexOffset,
	}, nil
}

// NumBlocks returns the number of stored blocks.
func (r *Reader) NumBlocks() int {
	return len(r.index)
}

// Seek returns an iterator positioned before the first extent which
// ends after the logical offset off.
func (r *Reader) Seek(off int64) (*Iterator, error) {
	b, err := r.SeekBlock(off)
	if err != nil {
		return nil, err
	}

	s := b.SeekSection(off)
	s.Seek(off)
	return &Iterator{r: r, b: b, s: s}, nil
}

// Load reads all extents into a new Index. The extents are restored as
// stored, adjacent extents are not merged.
func (r *Reader) Load() (*Index, error) {
	iter, err := r.Seek(math.MinInt64)
	if err != nil {
		return nil, err
	}
	defer iter.Release()

	x := New()
	var prev Extent
	for n := 0; iter.Next(); n++ {
		e := iter.Extent()
		if e.End() < e.Logical || e.PhysicalEnd() < e.Physical {
			return nil, ErrOverflow
		}
		if n != 0 && e.Logical < prev.End() {
			return nil, errors.Errorf("sparse: snapshot extents out of order at %d", e.Logical)
		}
		x.insert(e)
		prev = e
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return x, nil
}

// GetBlock returns a reader for the n-th block.
func (r *Reader) GetBlock(bpos int) (*BlockReader, error) {
	if len(r.index) == 0 {
		return &BlockReader{}, nil
	}
	if bpos < 0 {
		bpos = 0
	}
	if bpos >= len(r.index) {
		return &BlockReader{
			bpos: len(r.index),
		}, nil
	}
	return r.readBlock(bpos)
}

// SeekBlock seeks the block containing the first extent which ends
// after the logical offset off.
func (r *Reader) SeekBlock(off int64) (*BlockReader, error) {
	bpos := sort.Search(len(r.index), func(i int) bool {
		return r.index[i].MaxEnd > off
	})
	return r.GetBlock(bpos)
}

func (r *Reader) readBlock(bpos int) (*BlockReader, error) {
	min := r.index[bpos].Offset
	max := r.maxOffset
	if next := bpos + 1; next < len(r.index) {
		max = r.index[next].Offset
	}
	if max-min < 5 {
		return nil, errors.Errorf("sparse: block %d is truncated", bpos)
	}

	raw := fetchBuffer(int(max - min))
	if _, err := r.r.ReadAt(raw, min); err != nil {
		releaseBuffer(raw)
		return nil, errors.Wrapf(err, "sparse: reading block %d", bpos)
	}

	var block []byte
	switch cBitPos := len(raw) - 1; raw[cBitPos] {
	case blockNoCompression:
		block = raw[:cBitPos]
	case blockSnappyCompression:
		defer releaseBuffer(raw)

		sz, err := snappy.DecodedLen(raw[:cBitPos])
		if err != nil {
			return nil, err
		}

		plain := fetchBuffer(sz)
		if block, err = snappy.Decode(plain, raw[:cBitPos]); err != nil {
			releaseBuffer(plain)
			return nil, err
		}
	default:
		releaseBuffer(raw)
		return nil, errBadCompression
	}

	if len(block) < 4 {
		releaseBuffer(block)
		return nil, errors.Errorf("sparse: block %d has a bad section count", bpos)
	}
	scnt := int(binary.LittleEndian.Uint32(block[len(block)-4:]))
	if scnt < 1 || scnt*4 > len(block) {
		releaseBuffer(block)
		return nil, errors.Errorf("sparse: block %d has a bad section count", bpos)
	}

	br := &BlockReader{
		block:  block,
		bpos:   bpos,
		scnt:   scnt,
		maxEnd: r.index[bpos].MaxEnd,
	}

	// sections are non-empty and end at the section index
	for spos, prev := 1, 0; spos <= scnt; spos++ {
		off := br.sectionOffset(spos)
		if off <= prev {
			releaseBuffer(block)
			return nil, errors.Errorf("sparse: block %d has bad section offsets", bpos)
		}
		prev = off
	}
	return br, nil
}

// --------------------------------------------------------------------

// BlockReader reads a single block.
type BlockReader struct {
	block  []byte
	bpos   int // the current block position
	scnt   int // the section count
	maxEnd int64
}

// NumSections returns the number of sections in this block.
func (r *BlockReader) NumSections() int { return r.scnt }

// Pos returns the index position the current block within the snapshot.
func (r *BlockReader) Pos() int { return r.bpos }

// GetSection gets a single section.
func (r *BlockReader) GetSection(spos int) *SectionReader {
	if spos < 0 {
		spos = 0
	}
	if spos >= r.scnt {
		return &SectionReader{spos: r.scnt}
	}

	min := r.sectionOffset(spos)
	max := r.sectionOffset(spos + 1)
	return &SectionReader{section: r.block[min:max], spos: spos}
}

// SeekSection seeks the section holding the first extent which ends after
// the logical offset off.
func (r *BlockReader) SeekSection(off int64) *SectionReader {
	if off >= r.maxEnd {
		return r.GetSection(r.scnt)
	}

	spos := sort.Search(r.scnt, func(i int) bool {
		first, _ := binary.Varint(r.block[r.sectionOffset(i):]) // first logical start of the section
		return first > off
	}) - 1
	return r.GetSection(spos)
}

// Release releases the block reader and frees up resources. The reader must not be used
// after this method is called.
func (r *BlockReader) Release() { releaseBuffer(r.block) }

// The starting offset of the section within the block.
func (r *BlockReader) sectionOffset(spos int) int {
	if spos < 1 {
		return 0
	} else if spos >= r.scnt {
		return len(r.block) - r.scnt*4
	} else {
		nn := len(r.block) - r.scnt*4 + (spos-1)*4
		return int(binary.LittleEndian.Uint32(r.block[nn:]))
	}
}

// SectionReader reads an individual section within a block.
type SectionReader struct {
	section []byte

	spos  int // the section
	read  int // bytes read
	nread int // extents read

	cur Extent
	err error
}

// Seek positions the cursor before the first extent which ends after
// the logical offset off.
func (r *SectionReader) Seek(off int64) bool {
	for r.More() {
		e, n := r.decode()
		if n <= 0 {
			return false
		}
		if e.End() > off {
			return true
		}
		r.commit(e, n)
	}
	return false
}

// Pos returns the index position the current section within the block.
func (r *SectionReader) Pos() int { return r.spos }

// Extent returns the current extent.
func (r *SectionReader) Extent() Extent { return r.cur }

// More returns true if more data can be read in the section.
func (r *SectionReader) More() bool { return r.err == nil && r.read < len(r.section) }

// Err returns the decoding error, if any.
func (r *SectionReader) Err() error { return r.err }

// Next advances the cursor to the next extent within the section and
// returns true if successful.
func (r *SectionReader) Next() bool {
	if !r.More() {
		return false
	}

	e, n := r.decode()
	if n <= 0 {
		return false
	}
	r.commit(e, n)
	return true
}

func (r *SectionReader) commit(e Extent, n int) {
	r.read += n
	r.nread++
	r.cur = e
}

// decode parses the next extent without consuming it.
func (r *SectionReader) decode() (Extent, int) {
	buf := r.section[r.read:]

	var e Extent
	var n, m int
	if r.nread == 0 {
		e.Logical, m = binary.Varint(buf)
		if m <= 0 {
			r.err = errBadVarint
			return e, 0
		}
		n += m

		e.Physical, m = binary.Varint(buf[n:])
		if m <= 0 {
			r.err = errBadVarint
			return e, 0
		}
		n += m
	} else {
		gap, m := binary.Uvarint(buf)
		if m <= 0 {
			r.err = errBadVarint
			return e, 0
		}
		e.Logical = r.cur.End() + int64(gap)
		n += m

		delta, m := binary.Varint(buf[n:])
		if m <= 0 {
			r.err = errBadVarint
			return e, 0
		}
		e.Physical = r.cur.PhysicalEnd() + delta
		n += m
	}

	length, m := binary.Uvarint(buf[n:])
	if m <= 0 || length == 0 {
		r.err = errBadVarint
		return e, 0
	}
	e.Length = int64(length)
	return e, n + m
}

// --------------------------------------------------------------------

// Iterator is a convenience wrapper around BlockReader and SectionReader
// which can (forward-) iterate over extents across block and section boundaries.
type Iterator struct {
	r *Reader
	b *BlockReader
	s *SectionReader

	err error
}

// Extent returns the current extent.
func (i *Iterator) Extent() Extent { return i.s.Extent() }

// More returns true if more data can be read.
func (i *Iterator) More() bool {
	if i.err != nil || i.s.Err() != nil {
		return false
	}

	return i.s.More() || i.s.Pos()+1 < i.b.NumSections() || i.b.Pos()+1 < i.r.NumBlocks()
}

// Next advances the cursor to the next extent and returns true if successful.
func (i *Iterator) Next() bool {
	for i.err == nil {
		if err := i.s.Err(); err != nil {
			i.err = err
			return false
		}

		// more extents in the section
		if i.s.More() {
			if i.s.Next() {
				return true
			}
			continue
		}

		// more sections in the block
		if n := i.s.Pos() + 1; n < i.b.NumSections() {
			i.s = i.b.GetSection(n)
			continue
		}

		// more blocks
		if n := i.b.Pos() + 1; n < i.r.NumBlocks() {
			b, err := i.r.GetBlock(n)
			if err != nil {
				i.err = err
				return false
			}
			i.b.Release()
			i.b = b
			i.s = i.b.GetSection(0)
			continue
		}

		return false
	}
	return false
}

// Err exposes iterator errors, if any.
func (i *Iterator) Err() error {
	return i.err
}

// Release releases the iterator and frees up resources. The iterator must not be used
// after this method is called.
func (i *Iterator) Release() {
	i.b.Release()
	i.err = errReleased
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p)
	}
}
