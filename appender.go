package sparse

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Appender is append-only storage with random reads.
type Appender interface {
	io.ReaderAt
	Append(data []byte) (int, error)
	Size() (int64, error)
}

// MemAppender is an in-memory Appender.
type MemAppender []byte

// ReadAt implements io.ReaderAt.
func (a *MemAppender) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, errors.Errorf("sparse: negative offset %d", off)
	}
	if off >= int64(len(*a)) {
		return 0, io.EOF
	}
	n := copy(p, (*a)[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Append implements Appender.
func (a *MemAppender) Append(data []byte) (int, error) {
	*a = append(*a, data...)
	return len(data), nil
}

// Size implements Appender.
func (a *MemAppender) Size() (int64, error) {
	return int64(len(*a)), nil
}

// FileAppender is an Appender backed by a file opened in append mode.
type FileAppender struct {
	f *os.File
}

// OpenFileAppender opens or creates the named file.
func OpenFileAppender(name string) (*FileAppender, error) {
	f, err := os.OpenFile(name, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "sparse: opening %s", name)
	}
	return &FileAppender{f: f}, nil
}

// ReadAt implements io.ReaderAt.
func (a *FileAppender) ReadAt(p []byte, off int64) (int, error) {
	return a.f.ReadAt(p, off)
}

// Append implements Appender.
func (a *FileAppender) Append(data []byte) (int, error) {
	return a.f.Write(data)
}

// Size implements Appender.
func (a *FileAppender) Size() (int64, error) {
	fi, err := a.f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// Close closes the underlying file.
func (a *FileAppender) Close() error {
	return a.f.Close()
}
