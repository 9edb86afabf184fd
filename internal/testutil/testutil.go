// Package testutil provides fakes shared by rarfs tests.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/meigma/rarfs/index"
)

// Content returns n bytes of deterministic, position-dependent data.
// Any window of the result identifies its offset, which makes seek bugs
// visible in comparisons.
func Content(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte((i*31 + i/251) % 253)
	}
	return data
}

// Stored returns a raw entry for a stored (uncompressed) member.
func Stored(name string, size int64, parts ...index.Part) index.RawEntry {
	return index.RawEntry{
		Name:       []byte(name),
		UTF8:       true,
		Size:       size,
		PackedSize: size,
		Method:     index.MethodStore,
		Attributes: 0x20,
		Offset:     -1,
		Parts:      parts,
	}
}

// Compressed returns a raw entry for a compressed member.
func Compressed(name string, size int64, offset int64) index.RawEntry {
	return index.RawEntry{
		Name:       []byte(name),
		UTF8:       true,
		Size:       size,
		PackedSize: size / 2,
		Method:     index.MethodNormal,
		Attributes: 0x20,
		Offset:     offset,
	}
}

// Dir returns a raw entry for an explicit directory member.
func Dir(name string) index.RawEntry {
	return index.RawEntry{
		Name:       []byte(name),
		UTF8:       true,
		Method:     index.MethodStore,
		Attributes: 0x10,
		Offset:     -1,
	}
}

// FakeLister serves fixed listings and counts calls per archive.
type FakeLister struct {
	mu       sync.Mutex
	archives map[string][]index.RawEntry
	calls    map[string]int
	err      error
	delay    time.Duration
}

// NewFakeLister returns an empty lister.
func NewFakeLister() *FakeLister {
	return &FakeLister{
		archives: make(map[string][]index.RawEntry),
		calls:    make(map[string]int),
	}
}

// Add registers an archive listing.
func (l *FakeLister) Add(archivePath string, entries ...index.RawEntry) *FakeLister {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.archives[archivePath] = entries
	return l
}

// SetError makes every List call fail with err.
func (l *FakeLister) SetError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// SetDelay makes every List call sleep first.
func (l *FakeLister) SetDelay(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.delay = d
}

// List implements index.Lister.
func (l *FakeLister) List(_ context.Context, archivePath string) ([]index.RawEntry, error) {
	l.mu.Lock()
	l.calls[archivePath]++
	delay, err := l.delay, l.err
	entries, ok := l.archives[archivePath]
	l.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("no such archive")
	}
	return entries, nil
}

// Calls returns how many times archivePath was listed.
func (l *FakeLister) Calls(archivePath string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[archivePath]
}

// FakeSource is a stream source over an in-memory member.
//
// Each Open returns a fresh reader positioned at offset 0 that yields at
// most Chunk bytes per Read, like a decompressor producing output blocks.
type FakeSource struct {
	Data  []byte
	Chunk int

	// FailAt, when positive, makes reads fail with Err once that many
	// bytes have been produced. Err defaults to io.ErrUnexpectedEOF.
	FailAt int64
	Err    error

	// OpenErr, when set, is returned by Open.
	OpenErr error

	// Block, when non-nil, stalls every Read until it is closed.
	Block chan struct{}

	opens  atomic.Int64
	closes atomic.Int64
}

// Open implements stream.Source.
func (s *FakeSource) Open(ctx context.Context) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.opens.Add(1)
	if s.OpenErr != nil {
		return nil, s.OpenErr
	}
	chunk := s.Chunk
	if chunk <= 0 {
		chunk = 4096
	}
	return &fakeReader{src: s, r: bytes.NewReader(s.Data), chunk: chunk}, nil
}

// Opens returns how many times the source was opened.
func (s *FakeSource) Opens() int {
	return int(s.opens.Load())
}

// Closes returns how many readers were closed.
func (s *FakeSource) Closes() int {
	return int(s.closes.Load())
}

type fakeReader struct {
	src   *FakeSource
	r     *bytes.Reader
	chunk int
	read  int64
}

func (f *fakeReader) Read(p []byte) (int, error) {
	if f.src.Block != nil {
		<-f.src.Block
	}
	if f.src.FailAt > 0 && f.read >= f.src.FailAt {
		if f.src.Err != nil {
			return 0, f.src.Err
		}
		return 0, io.ErrUnexpectedEOF
	}
	if len(p) > f.chunk {
		p = p[:f.chunk]
	}
	if f.src.FailAt > 0 && f.read+int64(len(p)) > f.src.FailAt {
		p = p[:f.src.FailAt-f.read]
	}
	n, err := f.r.Read(p)
	f.read += int64(n)
	return n, err
}

func (f *fakeReader) Close() error {
	f.src.closes.Add(1)
	return nil
}
