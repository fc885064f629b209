package sparse

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

// Journal encodes index writes as records of three varints, each relative
// to the previous record:
//
//	+---------------------------+-----------------------------+--------------------------+
//	| logical start (varint,Δ)  | physical start (uvarint,Δ)  | length (varint,Δ)        |
//	+---------------------------+-----------------------------+--------------------------+
//
// The physical start never decreases in a journal written by File, as
// payloads are only ever appended to the data store.
type Journal struct {
	prev Extent
	tmp  []byte
}

// Last returns the last encoded or replayed extent.
func (j *Journal) Last() Extent { return j.prev }

// Encode appends the record for e to dst.
func (j *Journal) Encode(dst []byte, e Extent) []byte {
	if j.tmp == nil {
		j.tmp = make([]byte, 3*binary.MaxVarintLen64)
	}

	n := binary.PutVarint(j.tmp[0:], e.Logical-j.prev.Logical)
	n += binary.PutUvarint(j.tmp[n:], uint64(e.Physical-j.prev.Physical))
	n += binary.PutVarint(j.tmp[n:], e.Length-j.prev.Length)
	j.prev = e

	return append(dst, j.tmp[:n]...)
}

// ReplayJournal decodes all records stored in a and writes them to x.
// It returns the journal positioned after the last record, ready to
// encode further records, and the number of records replayed.
func ReplayJournal(a Appender, x *Index) (*Journal, int, error) {
	size, err := a.Size()
	if err != nil {
		return nil, 0, errors.Wrap(err, "sparse: journal size")
	}

	j := new(Journal)
	n, err := j.replay(bufio.NewReader(io.NewSectionReader(a, 0, size)), x)
	if err != nil {
		return nil, n, err
	}
	return j, n, nil
}

// replay decodes records from r, continuing from the last record, and
// writes them to x until r is exhausted.
func (j *Journal) replay(r io.ByteReader, x *Index) (int, error) {
	for n := 0; ; n++ {
		dl, err := binary.ReadVarint(r)
		if err == io.EOF {
			return n, nil
		} else if err != nil {
			return n, errors.Wrapf(err, "sparse: journal record %d", n)
		}

		dp, err := binary.ReadUvarint(r)
		if err != nil {
			return n, errors.Wrapf(noEOF(err), "sparse: journal record %d", n)
		}
		dn, err := binary.ReadVarint(r)
		if err != nil {
			return n, errors.Wrapf(noEOF(err), "sparse: journal record %d", n)
		}

		e := Extent{
			Logical:  j.prev.Logical + dl,
			Physical: j.prev.Physical + int64(dp),
			Length:   j.prev.Length + dn,
		}
		if err := x.Write(e.Logical, e.Physical, e.Length); err != nil {
			return n, errors.Wrapf(err, "sparse: journal record %d", n)
		}
		j.prev = e
	}
}

func noEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
