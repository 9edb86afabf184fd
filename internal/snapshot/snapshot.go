// Package snapshot persists archive listings so they survive restarts.
//
// A snapshot file holds a zstd-compressed FlatBuffers Index followed by a
// digest trailer:
//
//	[zstd payload][digest string]["digest length" byte]
//
// Snapshots are keyed by the sha256 of the archive path and validated
// against the archive's size and modification time on load. Anything that
// fails to verify or decode is treated as a miss.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/afero"

	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/internal/fb"
)

const (
	formatVersion = 1
	fileExt       = ".idx"
)

// ErrCorrupt is returned when a snapshot file fails verification.
var ErrCorrupt = errors.New("snapshot: corrupt")

// Store reads and writes listing snapshots in one directory.
// It is safe for concurrent use.
type Store struct {
	dir    string
	fs     afero.Fs
	logger *slog.Logger

	enc *zstd.Encoder
	dec *zstd.Decoder
}

var _ index.Snapshotter = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithFs sets the filesystem snapshots are stored on.
func WithFs(fsys afero.Fs) Option {
	return func(s *Store) {
		if fsys != nil {
			s.fs = fsys
		}
	}
}

// WithLogger sets the logger for discarded snapshots and write failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates dir if needed and returns a Store writing into it.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{dir: dir, fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1), zstd.WithLowerEncoderMem(true))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	s.enc, s.dec = enc, dec
	return s, nil
}

func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Path returns the snapshot file for an archive.
func (s *Store) Path(archivePath string) string {
	return filepath.Join(s.dir, digest.FromString(archivePath).Encoded()+fileExt)
}

// Load implements index.Snapshotter.
func (s *Store) Load(archivePath string, stamp index.Stamp) ([]index.ArchiveEntry, bool) {
	path := s.Path(archivePath)
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log().Warn("reading snapshot failed", "archive", archivePath, "path", path, "error", err)
		}
		return nil, false
	}

	entries, got, err := s.decode(data)
	if err != nil {
		s.log().Warn("discarding snapshot", "archive", archivePath, "path", path, "error", err)
		return nil, false
	}
	if got.Size != stamp.Size || got.ModTime.UnixNano() != stamp.ModTime.UnixNano() {
		s.log().Debug("snapshot is stale", "archive", archivePath, "path", path)
		return nil, false
	}
	return entries, true
}

// Save implements index.Snapshotter. The file is replaced atomically.
func (s *Store) Save(archivePath string, stamp index.Stamp, entries []index.ArchiveEntry) error {
	data := s.encode(stamp, entries)

	tmp, err := afero.TempFile(s.fs, s.dir, ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()          //nolint:errcheck // best-effort cleanup
		_ = s.fs.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := s.fs.Rename(tmpPath, s.Path(archivePath)); err != nil {
		_ = s.fs.Remove(tmpPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("commit snapshot: %w", err)
	}
	s.log().Debug("snapshot saved", "archive", archivePath, "entries", len(entries), "bytes", len(data))
	return nil
}

// Remove deletes the snapshot of an archive, if any.
func (s *Store) Remove(archivePath string) error {
	err := s.fs.Remove(s.Path(archivePath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *Store) encode(stamp index.Stamp, entries []index.ArchiveEntry) []byte {
	payload := s.enc.EncodeAll(buildIndex(stamp, entries), nil)
	d := digest.FromBytes(payload).String()

	out := make([]byte, 0, len(payload)+len(d)+1)
	out = append(out, payload...)
	out = append(out, d...)
	return append(out, byte(len(d)))
}

func (s *Store) decode(data []byte) ([]index.ArchiveEntry, index.Stamp, error) {
	if len(data) == 0 {
		return nil, index.Stamp{}, fmt.Errorf("%w: empty file", ErrCorrupt)
	}
	n := int(data[len(data)-1])
	if n+1 > len(data) {
		return nil, index.Stamp{}, fmt.Errorf("%w: truncated trailer", ErrCorrupt)
	}
	payload := data[:len(data)-1-n]
	want, err := digest.Parse(string(data[len(data)-1-n : len(data)-1]))
	if err != nil {
		return nil, index.Stamp{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	v := want.Verifier()
	if _, err := v.Write(payload); err != nil {
		return nil, index.Stamp{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if !v.Verified() {
		return nil, index.Stamp{}, fmt.Errorf("%w: digest mismatch", ErrCorrupt)
	}

	raw, err := s.dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, index.Stamp{}, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return readIndex(raw)
}

// buildIndex serializes a listing to FlatBuffers format.
func buildIndex(stamp index.Stamp, entries []index.ArchiveEntry) []byte {
	builder := flatbuffers.NewBuilder(1024)

	// Build entries in reverse order (FlatBuffers requirement)
	entryOffsets := make([]flatbuffers.UOffsetT, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := &entries[i]

		partOffsets := make([]flatbuffers.UOffsetT, len(e.Parts))
		for j := len(e.Parts) - 1; j >= 0; j-- {
			p := e.Parts[j]
			volumeOffset := builder.CreateString(p.Volume)
			fb.PartStart(builder)
			fb.PartAddVolume(builder, volumeOffset)
			fb.PartAddDataOffset(builder, p.DataOffset)
			fb.PartAddSize(builder, p.Size)
			partOffsets[j] = fb.PartEnd(builder)
		}
		fb.EntryStartPartsVector(builder, len(partOffsets))
		for j := len(partOffsets) - 1; j >= 0; j-- {
			builder.PrependUOffsetT(partOffsets[j])
		}
		partsOffset := builder.EndVector(len(partOffsets))

		nameOffset := builder.CreateString(e.Name)

		var mtime int64
		if !e.ModTime.IsZero() {
			mtime = e.ModTime.UnixNano()
		}

		fb.EntryStart(builder)
		fb.EntryAddName(builder, nameOffset)
		fb.EntryAddSize(builder, e.Size)
		fb.EntryAddPackedSize(builder, e.PackedSize)
		fb.EntryAddMethod(builder, byte(e.Method))
		fb.EntryAddAttributes(builder, e.Attributes)
		fb.EntryAddHostOs(builder, byte(e.HostOS))
		fb.EntryAddMtimeNs(builder, mtime)
		fb.EntryAddOffset(builder, e.Offset)
		fb.EntryAddSolid(builder, e.Solid)
		fb.EntryAddEncrypted(builder, e.Encrypted)
		fb.EntryAddParts(builder, partsOffset)
		entryOffsets[i] = fb.EntryEnd(builder)
	}

	fb.IndexStartEntriesVector(builder, len(entries))
	for i := len(entryOffsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(entryOffsets[i])
	}
	entriesOffset := builder.EndVector(len(entries))

	fb.IndexStart(builder)
	fb.IndexAddVersion(builder, formatVersion)
	fb.IndexAddArchiveSize(builder, stamp.Size)
	fb.IndexAddArchiveMtimeNs(builder, stamp.ModTime.UnixNano())
	fb.IndexAddEntries(builder, entriesOffset)
	fb.FinishIndexBuffer(builder, fb.IndexEnd(builder))
	return builder.FinishedBytes()
}

// readIndex decodes a FlatBuffers listing. The buffer has passed digest
// verification, but a malformed table still panics inside the accessors.
func readIndex(buf []byte) (entries []index.ArchiveEntry, stamp index.Stamp, err error) {
	defer func() {
		if r := recover(); r != nil {
			entries, stamp, err = nil, index.Stamp{}, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()
	if len(buf) < flatbuffers.SizeUOffsetT {
		return nil, index.Stamp{}, fmt.Errorf("%w: short index", ErrCorrupt)
	}

	idx := fb.GetRootAsIndex(buf, 0)
	if v := idx.Version(); v != formatVersion {
		return nil, index.Stamp{}, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, v)
	}
	stamp = index.Stamp{Size: idx.ArchiveSize(), ModTime: time.Unix(0, idx.ArchiveMtimeNs())}

	var (
		fe fb.Entry
		fp fb.Part
	)
	entries = make([]index.ArchiveEntry, idx.EntriesLength())
	for i := range entries {
		if !idx.Entries(&fe, i) {
			return nil, index.Stamp{}, fmt.Errorf("%w: entry %d", ErrCorrupt, i)
		}
		e := index.ArchiveEntry{
			Name:       string(fe.Name()),
			Size:       fe.Size(),
			PackedSize: fe.PackedSize(),
			Method:     index.Method(fe.Method()),
			Attributes: fe.Attributes(),
			HostOS:     index.HostOS(fe.HostOs()),
			Offset:     fe.Offset(),
			Solid:      fe.Solid(),
			Encrypted:  fe.Encrypted(),
		}
		if ns := fe.MtimeNs(); ns != 0 {
			e.ModTime = time.Unix(0, ns)
		}
		if n := fe.PartsLength(); n > 0 {
			e.Parts = make([]index.Part, n)
			for j := range e.Parts {
				fe.Parts(&fp, j)
				e.Parts[j] = index.Part{
					Volume:     string(fp.Volume()),
					DataOffset: fp.DataOffset(),
					Size:       fp.Size(),
				}
			}
		}
		entries[i] = e
	}
	return entries, stamp, nil
}
