package sparse

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const singleTailSize = 4

// OpenSingleFile opens a File which keeps payloads and journal records in
// a single data store, one self-describing entry per write. See the
// package documentation for the entry layout.
func OpenSingleFile(data Appender, o *FileOptions) (*File, error) {
	f := newFile(data, nil, o)
	f.jr = new(Journal)
	f.chain = new(skipChain)

	size, err := data.Size()
	if err != nil {
		return nil, errors.Wrap(err, "sparse: data size")
	}
	f.dataSize = size
	if size == 0 {
		return f, nil
	}

	headers, chunks, err := readSingleEntries(data, size)
	if err != nil {
		return nil, err
	}

	links := make([]chainLink, len(chunks))
	sizes := make([]int, len(chunks))
	for i, chunk := range chunks {
		n, err := f.jr.replay(bytes.NewReader(chunk), f.index)
		if err != nil {
			return nil, errors.Wrapf(err, "sparse: entry at %d", headers[i])
		}
		f.records = append(f.records, chunk...)

		links[i] = chainLink{recordsEnd: int64(len(f.records)), header: headers[i]}
		sizes[i] = n
	}
	if f.chain, err = restoreChain(links, sizes); err != nil {
		return nil, err
	}

	if end := f.jr.Last().PhysicalEnd(); end > size {
		return nil, errors.Errorf("sparse: data size doesn't match journal: %d < %d", size, end)
	}

	f.log.WithFields(logrus.Fields{
		logFieldRecords:  f.chain.pushed,
		logFieldDataSize: f.dataSize,
	}).Debug("sparse: entries replayed")
	return f, nil
}

// readSingleEntries follows the parent pointers back from the tail of the
// store and returns the header offsets and journal records of the entries
// reached, oldest first.
func readSingleEntries(data Appender, size int64) ([]int64, [][]byte, error) {
	if size < singleTailSize {
		return nil, nil, errors.Errorf("sparse: data store too short for a tail: %d", size)
	}

	tmp := make([]byte, 2*binary.MaxVarintLen64)
	if _, err := data.ReadAt(tmp[:singleTailSize], size-singleTailSize); err != nil {
		return nil, nil, errors.Wrap(err, "sparse: reading tail")
	}
	// parent pointer, record size and at least one record of 3 bytes
	tail := int64(binary.LittleEndian.Uint32(tmp))
	if tail < 5 {
		return nil, nil, errors.Errorf("sparse: bad tail %d", tail)
	}

	var headers []int64
	var chunks [][]byte
	for hdr := size - singleTailSize - tail; ; {
		if hdr < 0 {
			return nil, nil, errors.Errorf("sparse: bad parent pointer %d", hdr)
		}

		head := tmp[:min(int64(len(tmp)), size-hdr)]
		if _, err := data.ReadAt(head, hdr); err != nil {
			return nil, nil, errors.Wrapf(err, "sparse: reading entry at %d", hdr)
		}
		parentDiff, n1 := binary.Uvarint(head)
		if n1 <= 0 {
			return nil, nil, errBadVarint
		}
		recordSize, n2 := binary.Uvarint(head[n1:])
		if n2 <= 0 {
			return nil, nil, errBadVarint
		}

		start := hdr + int64(n1+n2)
		if recordSize > uint64(size-start) {
			return nil, nil, errors.Errorf("sparse: entry at %d overflows the data store", hdr)
		}
		chunk := make([]byte, recordSize)
		if _, err := data.ReadAt(chunk, start); err != nil {
			return nil, nil, errors.Wrapf(err, "sparse: reading entry at %d", hdr)
		}

		headers = append(headers, hdr)
		chunks = append(chunks, chunk)
		if parentDiff == 0 {
			break
		}
		if parentDiff > uint64(hdr) {
			return nil, nil, errors.Errorf("sparse: bad parent pointer at %d", hdr)
		}
		hdr -= int64(parentDiff)
	}

	for i, j := 0, len(chunks)-1; i < j; i, j = i+1, j-1 {
		headers[i], headers[j] = headers[j], headers[i]
		chunks[i], chunks[j] = chunks[j], chunks[i]
	}
	return headers, chunks, nil
}

func (f *File) appendSingle(p []byte, off int64) (Extent, error) {
	parent := f.chain.parent()

	buf := binary.AppendUvarint(nil, uint64(len(p)))
	e := Extent{Logical: off, Physical: f.dataSize + int64(len(buf)), Length: int64(len(p))}
	buf = append(buf, p...)

	hdr := f.dataSize + int64(len(buf))
	var parentDiff uint64
	if parent.header != 0 {
		parentDiff = uint64(hdr - parent.header)
	}
	buf = binary.AppendUvarint(buf, parentDiff)

	records := f.jr.Encode(f.records, e)
	chunk := records[parent.recordsEnd:]
	buf = binary.AppendUvarint(buf, uint64(len(chunk)))
	buf = append(buf, chunk...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(f.dataSize+int64(len(buf))-hdr))

	if n, err := f.data.Append(buf); err != nil {
		return Extent{}, f.spoil(err, "data append")
	} else if n != len(buf) {
		return Extent{}, f.spoil(io.ErrShortWrite, "data append")
	}
	f.records = records
	f.dataSize += int64(len(buf))
	f.chain.push(chainLink{recordsEnd: int64(len(records)), header: hdr})
	return e, nil
}
