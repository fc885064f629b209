package sparse

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	logFieldLogical  = "logical"
	logFieldPhysical = "physical"
	logFieldLength   = "length"
	logFieldRecords  = "records"
	logFieldDataSize = "data_size"
	logFieldReason   = "reason"
)

// FileOptions define File specific options.
type FileOptions struct {
	// Logger receives debug and warning messages.
	// Default: logrus.StandardLogger().
	Logger *logrus.Logger

	// KeepZeros stores all-zero payloads written to unmapped space
	// instead of dropping them, and disables trimming of leading and
	// trailing zeros in such writes.
	KeepZeros bool
}

func (o *FileOptions) norm() *FileOptions {
	var oo FileOptions
	if o != nil {
		oo = *o
	}

	if oo.Logger == nil {
		oo.Logger = logrus.StandardLogger()
	}
	return &oo
}

// FileStats summarises a File.
type FileStats struct {
	Extents     int   `json:"extents"`
	MappedBytes int64 `json:"mapped_bytes"`
	LogicalEnd  int64 `json:"logical_end"`
	DataSize    int64 `json:"data_size"`
	Broken      bool  `json:"broken"`
}

// File is a sparse virtual file. Written payloads are appended to a data
// store and every write is recorded in a journal, from which the index
// is rebuilt when the file is opened again. The journal is kept in a
// store of its own (OpenFile) or within the data store (OpenSingleFile).
// Unmapped ranges read as zeros.
//
// File is safe for concurrent use: writes are exclusive, reads shared.
type File struct {
	o   *FileOptions
	log *logrus.Entry

	data, journal Appender
	dataSize      int64

	mu     sync.RWMutex
	index  *Index
	jr     *Journal
	broken bool

	// single store only
	records []byte
	chain   *skipChain
}

func newFile(data, journal Appender, o *FileOptions) *File {
	o = o.norm()
	return &File{
		o:       o,
		log:     logrus.NewEntry(o.Logger),
		data:    data,
		journal: journal,
		index:   New(),
	}
}

// OpenFile replays the journal and opens a File. It fails if the data
// store size does not match the end of the last journaled payload.
func OpenFile(data, journal Appender, o *FileOptions) (*File, error) {
	f := newFile(data, journal, o)

	jr, n, err := ReplayJournal(journal, f.index)
	if err != nil {
		return nil, err
	}
	f.jr = jr

	if f.dataSize, err = data.Size(); err != nil {
		return nil, errors.Wrap(err, "sparse: data size")
	}
	if want := jr.Last().PhysicalEnd(); f.dataSize != want {
		return nil, errors.Errorf("sparse: data size doesn't match journal: %d != %d", f.dataSize, want)
	}

	f.log.WithFields(logrus.Fields{
		logFieldRecords:  n,
		logFieldDataSize: f.dataSize,
	}).Debug("sparse: journal replayed")
	return f, nil
}

// ReadAt implements io.ReaderAt. Unmapped bytes are filled with zeros, so
// a successful call always fills p completely.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Errorf("sparse: negative offset %d", off)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	total := len(p)
	for len(p) > 0 {
		physical, sliceLength, gap := f.index.Read(off)
		if sliceLength != 0 {
			if sliceLength > int64(len(p)) {
				sliceLength = int64(len(p))
			}
			n, err := f.data.ReadAt(p[:sliceLength], physical)
			if int64(n) != sliceLength {
				if err == nil || err == io.EOF {
					err = io.ErrUnexpectedEOF
				}
				return total - len(p) + n, errors.Wrapf(err, "sparse: reading data at %d", physical)
			}
			p = p[sliceLength:]
			off += sliceLength
			if len(p) == 0 {
				break
			}
		}

		if gap == NoNextExtent || gap > int64(len(p)) {
			gap = int64(len(p))
		}
		clear(p[:gap])
		p = p[gap:]
		off += gap
	}
	return total, nil
}

// WriteAt implements io.WriterAt.
//
// Once appending to the data store or journal has failed, the File is
// broken and every further write fails with ErrBroken. Reads keep working.
func (f *File) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Errorf("sparse: negative offset %d", off)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.broken {
		return 0, ErrBroken
	}

	pn := len(p)
	if pn == 0 {
		return 0, nil
	}
	if off+int64(pn) < off {
		return 0, ErrOverflow
	}

	if !f.o.KeepZeros {
		// writing to unmapped space only
		if _, sliceLength, gap := f.index.Read(off); sliceLength == 0 && (gap == NoNextExtent || gap >= int64(pn)) {
			if allZeros(p) {
				return pn, nil
			}
			for p[0] == 0 {
				p = p[1:]
				off++
			}
			for p[len(p)-1] == 0 {
				p = p[:len(p)-1]
			}
		}
	}

	if err := f.append(p, off); err != nil {
		return 0, err
	}
	return pn, nil
}

func (f *File) append(p []byte, off int64) error {
	var e Extent
	var err error
	if f.journal != nil {
		e, err = f.appendSplit(p, off)
	} else {
		e, err = f.appendSingle(p, off)
	}
	if err != nil {
		return err
	}

	if err := f.index.Write(e.Logical, e.Physical, e.Length); err != nil {
		return f.spoil(err, "index write")
	}

	f.log.WithFields(logrus.Fields{
		logFieldLogical:  e.Logical,
		logFieldPhysical: e.Physical,
		logFieldLength:   e.Length,
	}).Debug("sparse: extent written")
	return nil
}

func (f *File) appendSplit(p []byte, off int64) (Extent, error) {
	if n, err := f.data.Append(p); err != nil {
		return Extent{}, f.spoil(err, "data append")
	} else if n != len(p) {
		return Extent{}, f.spoil(io.ErrShortWrite, "data append")
	}

	e := Extent{Logical: off, Physical: f.dataSize, Length: int64(len(p))}
	f.dataSize += e.Length

	rec := f.jr.Encode(nil, e)
	if n, err := f.journal.Append(rec); err != nil {
		return Extent{}, f.spoil(err, "journal append")
	} else if n != len(rec) {
		return Extent{}, f.spoil(io.ErrShortWrite, "journal append")
	}
	return e, nil
}

func (f *File) spoil(err error, reason string) error {
	f.broken = true
	f.log.WithFields(logrus.Fields{
		logFieldDataSize: f.dataSize,
		logFieldReason:   reason,
	}).WithError(err).Warn("sparse: storage spoiled")
	return errors.Wrap(err, "sparse: "+reason)
}

// Extents returns all mapped extents in increasing logical order.
func (f *File) Extents() []Extent {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.index.Extents()
}

// Read looks up a logical offset, see Index.Read.
func (f *File) Read(off int64) (physical, sliceLength, gap int64) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	return f.index.Read(off)
}

// Stats returns a summary of the file.
func (f *File) Stats() FileStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	st := FileStats{
		Extents:  f.index.Len(),
		DataSize: f.dataSize,
		Broken:   f.broken,
	}
	f.index.Ascend(func(e Extent) bool {
		st.MappedBytes += e.Length
		st.LogicalEnd = e.End()
		return true
	})
	return st
}

// WriteSnapshot writes the current index to w, see Index.WriteSnapshot.
func (f *File) WriteSnapshot(w io.Writer, o *WriterOptions) error {
	f.mu.RLock()
	defer f.mu.RUnlock()

	f.log.WithFields(logrus.Fields{
		logFieldRecords: f.index.Len(),
	}).Debug("sparse: writing snapshot")
	return f.index.WriteSnapshot(w, o)
}

// Close closes the data store and journal if they implement io.Closer.
func (f *File) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var err error
	for _, a := range []Appender{f.data, f.journal} {
		if c, ok := a.(io.Closer); ok {
			if e := c.Close(); e != nil && err == nil {
				err = e
			}
		}
	}
	return err
}

func allZeros(p []byte) bool {
	for _, b := range p {
		if b != 0 {
			return false
		}
	}
	return true
}
