package rar

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sort"
	"sync"

	"github.com/spf13/afero"

	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/stream"
)

// ErrNotStored is returned by OpenStored for members that are compressed
// or encrypted.
var ErrNotStored = errors.New("rarfs: member is not stored")

// StoredReader reads a stored member directly from its volume files.
// Reads at different offsets are independent; ReadAt is safe for
// concurrent use.
type StoredReader struct {
	fs     afero.Fs
	name   string
	size   int64
	parts  []index.Part
	starts []int64 // member offset of each part

	mu    sync.Mutex
	files map[string]afero.File
	pos   int64
}

// OpenStored returns a reader over a stored member. Volumes are opened on
// first use.
func OpenStored(fsys afero.Fs, entry *index.ArchiveEntry) (*StoredReader, error) {
	if !entry.IsStored() || entry.Encrypted {
		return nil, fmt.Errorf("%w: %s", ErrNotStored, entry.Name)
	}
	r := &StoredReader{
		fs:    fsys,
		name:  entry.Name,
		parts: entry.Parts,
		files: make(map[string]afero.File),
	}
	var total int64
	for _, p := range entry.Parts {
		r.starts = append(r.starts, total)
		total += p.Size
	}
	r.size = entry.Size
	if r.size < 0 {
		r.size = total
	}
	return r, nil
}

// Size returns the member size.
func (r *StoredReader) Size() int64 {
	return r.size
}

// ReadAt implements io.ReaderAt.
func (r *StoredReader) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("%w: negative offset", stream.ErrInvalidOffset)
	}
	if off >= r.size {
		return 0, io.EOF
	}
	want := p
	if rest := r.size - off; int64(len(want)) > rest {
		want = want[:rest]
	}

	n := 0
	for n < len(want) {
		cur := off + int64(n)
		i := sort.Search(len(r.starts), func(i int) bool { return r.starts[i] > cur }) - 1
		if i < 0 || cur-r.starts[i] >= r.parts[i].Size {
			return n, fmt.Errorf("%w: %s has no data at %d", stream.ErrVolumeMissing, r.name, cur)
		}
		part := r.parts[i]
		f, err := r.file(part.Volume)
		if err != nil {
			return n, err
		}
		within := cur - r.starts[i]
		chunk := want[n:]
		if rest := part.Size - within; int64(len(chunk)) > rest {
			chunk = chunk[:rest]
		}
		m, err := f.ReadAt(chunk, part.DataOffset+within)
		n += m
		if err != nil && !(errors.Is(err, io.EOF) && m == len(chunk)) {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return n, fmt.Errorf("read %s: %w", part.Volume, err)
		}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Read implements io.Reader.
func (r *StoredReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	pos := r.pos
	r.mu.Unlock()

	n, err := r.ReadAt(p, pos)

	r.mu.Lock()
	r.pos = pos + int64(n)
	r.mu.Unlock()
	if n > 0 && errors.Is(err, io.EOF) {
		err = nil
	}
	return n, err
}

// Seek implements io.Seeker.
func (r *StoredReader) Seek(offset int64, whence int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = r.pos + offset
	case io.SeekEnd:
		target = r.size + offset
	default:
		return 0, fmt.Errorf("%w: whence %d", stream.ErrInvalidOffset, whence)
	}
	if target < 0 || target > r.size {
		return 0, fmt.Errorf("%w: %d not in [0, %d]", stream.ErrInvalidOffset, target, r.size)
	}
	r.pos = target
	return target, nil
}

// Close closes the opened volume files.
func (r *StoredReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for name, f := range r.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(r.files, name)
	}
	return errors.Join(errs...)
}

func (r *StoredReader) file(volume string) (afero.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.files[volume]; ok {
		return f, nil
	}
	f, err := r.fs.Open(volume)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", stream.ErrVolumeMissing, err)
		}
		return nil, err
	}
	r.files[volume] = f
	return f, nil
}
