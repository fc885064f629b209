package sparse

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
)

// WriterOptions define snapshot writer specific options.
type WriterOptions struct {
	// BlockSize is the minimum uncompressed size in bytes of each snapshot block.
	// Default: 4KiB.
	BlockSize int

	// BlockRestartInterval is the number of extents between restart points
	// for delta encoding.
	//
	// Default: 16.
	BlockRestartInterval int

	// The compression codec to use.
	// Default: SnappyCompression.
	Compression Compression
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = 1 << 12
	}
	if oo.BlockRestartInterval < 1 {
		oo.BlockRestartInterval = 16
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}

	return &oo
}

// Writer instances can write a snapshot of extents.
type Writer struct {
	w io.Writer
	o *WriterOptions

	block blockInfo // the current block info
	blen  int       // the number of extents in the current block
	soffs []int     // section offsets in the current block

	last    Extent // the last appended extent
	started bool

	buf []byte // plain buffer
	snp []byte // snappy  buffer
	tmp []byte // scratch buffer

	index []blockInfo
}

// NewWriter wraps a writer and returns a Writer.
func NewWriter(w io.Writer, o *WriterOptions) *Writer {
	return &Writer{
		w:   w,
		o:   o.norm(),
		tmp: make([]byte, 3*binary.MaxVarintLen64),
	}
}

// Append appends an extent to the snapshot. Extents must be appended in
// increasing logical order and must not overlap.
func (w *Writer) Append(e Extent) error {
	if w.tmp == nil {
		return errClosed
	}
	if e.Length <= 0 {
		return ErrBadLength
	}
	if e.End() < e.Logical || e.PhysicalEnd() < e.Physical {
		return ErrOverflow
	}
	if w.started && e.Logical < w.last.End() {
		return fmt.Errorf("sparse: attempted an out-of-order append, %d must be >= %d", e.Logical, w.last.End())
	}

	if len(w.buf) != 0 && len(w.buf)+3*binary.MaxVarintLen64 > w.o.BlockSize {
		if err := w.flush(); err != nil {
			return err
		}
	}

	var n int
	if w.blen%w.o.BlockRestartInterval == 0 { // new section?
		w.soffs = append(w.soffs, len(w.buf))
		n = binary.PutVarint(w.tmp[0:], e.Logical)
		n += binary.PutVarint(w.tmp[n:], e.Physical)
	} else {
		n = binary.PutUvarint(w.tmp[0:], uint64(e.Logical-w.last.End()))
		n += binary.PutVarint(w.tmp[n:], e.Physical-w.last.PhysicalEnd())
	}
	n += binary.PutUvarint(w.tmp[n:], uint64(e.Length))
	w.buf = append(w.buf, w.tmp[:n]...)

	w.blen++
	w.block.MaxEnd = e.End()
	w.last = e
	w.started = true

	return nil
}

// Close closes the writer
func (w *Writer) Close() error {
	if w.tmp == nil {
		return errClosed
	}
	if err := w.flush(); err != nil {
		return err
	}

	indexOffset := w.block.Offset
	if err := w.writeIndex(); err != nil {
		return err
	}

	if err := w.writeFooter(indexOffset); err != nil {
		return err
	}
	w.tmp = nil
	return nil
}

func (w *Writer) writeIndex() error {
	var prev blockInfo

	for i, ent := range w.index {
		var n int
		if i == 0 {
			n = binary.PutVarint(w.tmp[0:], ent.MaxEnd)
			n += binary.PutUvarint(w.tmp[n:], uint64(ent.Offset))
		} else { // delta-encode
			n = binary.PutUvarint(w.tmp[0:], uint64(ent.MaxEnd-prev.MaxEnd))
			n += binary.PutUvarint(w.tmp[n:], uint64(ent.Offset-prev.Offset))
		}
		prev = ent

		if err := w.writeRaw(w.tmp[:n]); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeFooter(indexOffset int64) error {
	binary.LittleEndian.PutUint64(w.tmp[0:], uint64(indexOffset))
	if err := w.writeRaw(w.tmp[:8]); err != nil {
		return err
	}
	return w.writeRaw(magic)
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.block.Offset += int64(n)
	return err
}

func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}

	for _, o := range w.soffs {
		if o > 0 {
			binary.LittleEndian.PutUint32(w.tmp, uint32(o))
			w.buf = append(w.buf, w.tmp[:4]...)
		}
	}
	binary.LittleEndian.PutUint32(w.tmp, uint32(len(w.soffs)))
	w.buf = append(w.buf, w.tmp[:4]...)

	var block []byte
	switch w.o.Compression {
	case SnappyCompression:
		w.snp = snappy.Encode(w.snp[:cap(w.snp)], w.buf)
		if len(w.snp) < len(w.buf)-len(w.buf)/4 {
			block = append(w.snp, blockSnappyCompression)
		} else {
			block = append(w.buf, blockNoCompression)
		}
	default:
		block = append(w.buf, blockNoCompression)
	}

	w.index = append(w.index, w.block)
	w.buf = w.buf[:0]
	w.soffs = w.soffs[:0]
	w.blen = 0

	return w.writeRaw(block)
}

// WriteSnapshot writes all extents of the index to w.
func (x *Index) WriteSnapshot(w io.Writer, o *WriterOptions) error {
	sw := NewWriter(w, o)

	var err error
	x.Ascend(func(e Extent) bool {
		err = sw.Append(e)
		return err == nil
	})
	if err != nil {
		return err
	}
	return sw.Close()
}
