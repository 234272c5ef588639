package rangereader

import (
	"context"
	"io"
	"os"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
)

// LocalFile is a RangeReader over a local archive file. *os.File.ReadAt is
// safe for concurrent use on disjoint ranges since it issues pread rather
// than seek+read, matching the concurrency contract RangeReader requires.
type LocalFile struct {
	f *os.File
}

// NewLocalFile wraps an already-open archive file.
func NewLocalFile(f *os.File) *LocalFile {
	return &LocalFile{f: f}
}

// ReadAt reads exactly length bytes at offset.
func (l *LocalFile) ReadAt(_ context.Context, offset uint64, length uint32) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := l.f.ReadAt(buf, int64(offset)); err != nil {
		if err == io.EOF {
			return nil, archiveerr.New(archiveerr.IO, "local range read past end of file", err)
		}
		return nil, archiveerr.New(archiveerr.IO, "local range read", err)
	}
	return buf, nil
}
