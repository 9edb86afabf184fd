package rarfs

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/meigma/rarfs/index"
)

// Backing identifies where a File's bytes come from.
type Backing int

const (
	// BackingStored reads a stored member straight from its volumes.
	BackingStored Backing = iota

	// BackingStream decompresses through a stream session.
	BackingStream

	// BackingCached reads an extracted copy from the cache directory.
	BackingCached
)

// String returns the backing name.
func (b Backing) String() string {
	switch b {
	case BackingStored:
		return "stored"
	case BackingStream:
		return "stream"
	case BackingCached:
		return "cached"
	default:
		return "unknown"
	}
}

type readSeekCloser interface {
	io.ReadSeeker
	io.Closer
}

// File is an open archive member. It implements fs.File and io.Seeker.
//
// A File is not safe for concurrent use except that Close may be called
// while a Read or Seek is blocked.
type File struct {
	archive string
	entry   index.ArchiveEntry
	backing Backing
	r       readSeekCloser
	size    int64
	release func()

	mu       sync.Mutex
	pos      int64
	probed   bool
	seekable bool

	closeOnce sync.Once
	closeErr  error
}

var _ fs.File = (*File)(nil)

func newFile(archive string, entry index.ArchiveEntry, b Backing, r readSeekCloser, size int64, release func()) *File {
	return &File{archive: archive, entry: entry, backing: b, r: r, size: size, release: release}
}

// Name returns the member path.
func (f *File) Name() string {
	return f.entry.Name
}

// Archive returns the archive path.
func (f *File) Archive() string {
	return f.archive
}

// Backing reports how the member is served.
func (f *File) Backing() Backing {
	return f.backing
}

// Size returns the member length, or a negative value if unknown.
func (f *File) Size() int64 {
	return f.size
}

// Position returns the current read offset.
func (f *File) Position() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos
}

// Read implements io.Reader.
func (f *File) Read(p []byte) (int, error) {
	n, err := f.r.Read(p)
	f.mu.Lock()
	f.pos += int64(n)
	f.mu.Unlock()
	if err != nil && !errors.Is(err, io.EOF) {
		return n, f.pathErr("read", err)
	}
	return n, err
}

// Seek implements io.Seeker.
//
// The backing is probed once with a trial seek to its end. If that fails
// every Seek returns ErrNotSeekable.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.probed {
		f.probe()
	}
	if !f.seekable {
		return 0, f.pathErr("seek", ErrNotSeekable)
	}
	n, err := f.r.Seek(offset, whence)
	if err != nil {
		return 0, f.pathErr("seek", err)
	}
	f.pos = n
	return n, nil
}

// probe checks the backing can seek and restores the read offset.
func (f *File) probe() {
	f.probed = true
	if _, err := f.r.Seek(0, io.SeekEnd); err != nil {
		return
	}
	if _, err := f.r.Seek(f.pos, io.SeekStart); err != nil {
		return
	}
	f.seekable = true
}

// Stat implements fs.File.
func (f *File) Stat() (fs.FileInfo, error) {
	return newInfo(&f.entry), nil
}

// Close releases the backing. Cached copies are released in the index so
// they can be evicted; stream sessions wait for their producer to stop.
// Close is idempotent.
func (f *File) Close() error {
	f.closeOnce.Do(func() {
		if err := f.r.Close(); err != nil {
			f.closeErr = f.pathErr("close", err)
		}
		if f.release != nil {
			f.release()
		}
	})
	return f.closeErr
}

func (f *File) pathErr(op string, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return err
	}
	return &fs.PathError{Op: op, Path: fmt.Sprintf("%s%s%s", f.archive, Separator, f.entry.Name), Err: err}
}
