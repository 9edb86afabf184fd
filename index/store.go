package index

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/rarfs/internal/pathutil"
)

// Lister lists the members of an archive.
type Lister interface {
	List(ctx context.Context, archivePath string) ([]RawEntry, error)
}

// ListerFunc adapts a function to the Lister interface.
type ListerFunc func(ctx context.Context, archivePath string) ([]RawEntry, error)

// List calls f.
func (f ListerFunc) List(ctx context.Context, archivePath string) ([]RawEntry, error) {
	return f(ctx, archivePath)
}

// Stamp identifies an archive revision for snapshot validation.
type Stamp struct {
	Size    int64
	ModTime time.Time
}

// Snapshotter persists listings across process restarts.
//
// Load must return false for any snapshot whose stamp does not match.
type Snapshotter interface {
	Load(archivePath string, stamp Stamp) ([]ArchiveEntry, bool)
	Save(archivePath string, stamp Stamp, entries []ArchiveEntry) error
}

// archive is the cached state for one archive path.
type archive struct {
	listed  bool
	entries []ArchiveEntry // sorted by Name
	files   []*FileInfo
}

// Store caches archive listings and per-member extraction records.
//
// A single mutex guards all state. Listing I/O happens outside the lock
// and concurrent first listings of the same archive are collapsed.
// The Store is safe for concurrent use.
type Store struct {
	lister    Lister
	fs        afero.Fs
	snapshots Snapshotter
	now       func() time.Time
	logger    *slog.Logger

	mu        sync.Mutex
	archives  map[string]*archive
	listGroup singleflight.Group // zero value is valid
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. A nil logger discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithFs sets the filesystem used to stat archives and delete cached files.
// Defaults to the OS filesystem.
func WithFs(fsys afero.Fs) Option {
	return func(s *Store) {
		s.fs = fsys
	}
}

// WithSnapshotter enables persisted listings.
func WithSnapshotter(snap Snapshotter) Option {
	return func(s *Store) {
		s.snapshots = snap
	}
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a Store that lists archives with lister.
func New(lister Lister, opts ...Option) *Store {
	s := &Store{
		lister:   lister,
		fs:       afero.NewOsFs(),
		now:      time.Now,
		archives: make(map[string]*archive),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// log returns the logger, falling back to a discard logger if nil.
func (s *Store) log() *slog.Logger {
	if s.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.logger
}

// Fs returns the filesystem the store operates on.
func (s *Store) Fs() afero.Fs {
	return s.fs
}

// Now returns the store clock's current time.
func (s *Store) Now() time.Time {
	return s.now()
}

// ArchiveKey returns the canonical key for an archive path.
func ArchiveKey(archivePath string) string {
	return filepath.Clean(archivePath)
}

// ListArchive returns the members of an archive, listing it on first use.
//
// Subsequent calls return the cached listing without invoking the Lister.
// Listing failures wrap ErrArchiveUnreadable and leave nothing cached.
func (s *Store) ListArchive(ctx context.Context, archivePath string) ([]ArchiveEntry, error) {
	entries, err := s.entries(ctx, archivePath)
	if err != nil {
		return nil, err
	}
	return slices.Clone(entries), nil
}

// Entry looks up a member by path. Returns ErrMemberNotFound if absent.
func (s *Store) Entry(ctx context.Context, archivePath, memberPath string) (ArchiveEntry, error) {
	entries, err := s.entries(ctx, archivePath)
	if err != nil {
		return ArchiveEntry{}, err
	}
	name := pathutil.Normalize(memberPath)
	i, ok := slices.BinarySearchFunc(entries, name, func(e ArchiveEntry, target string) int {
		return cmp.Compare(e.Name, target)
	})
	if !ok {
		return ArchiveEntry{}, fmt.Errorf("%w: %s", ErrMemberNotFound, name)
	}
	return entries[i], nil
}

// IsListed reports whether archivePath has a cached listing.
func (s *Store) IsListed(archivePath string) bool {
	_, ok := s.cached(ArchiveKey(archivePath))
	return ok
}

// Archives returns the paths of all listed archives, sorted.
func (s *Store) Archives() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.archives))
	for key, a := range s.archives {
		if a.listed {
			paths = append(paths, key)
		}
	}
	sort.Strings(paths)
	return paths
}

// entries returns the shared, sorted entry slice for an archive.
func (s *Store) entries(ctx context.Context, archivePath string) ([]ArchiveEntry, error) {
	key := ArchiveKey(archivePath)
	if entries, ok := s.cached(key); ok {
		return entries, nil
	}

	result, err, _ := s.listGroup.Do(key, func() (any, error) {
		// Double-check after winning the flight
		if entries, ok := s.cached(key); ok {
			return entries, nil
		}
		entries, err := s.load(ctx, key)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		a, ok := s.archives[key]
		if !ok {
			a = &archive{}
			s.archives[key] = a
		}
		if !a.listed {
			a.entries = entries
			a.listed = true
		}
		return a.entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]ArchiveEntry), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

func (s *Store) cached(key string) ([]ArchiveEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.archives[key]
	if !ok || !a.listed {
		return nil, false
	}
	return a.entries, true
}

// load lists an archive through the snapshotter or the Lister.
func (s *Store) load(ctx context.Context, key string) ([]ArchiveEntry, error) {
	stamp, stampErr := s.stamp(key)
	if s.snapshots != nil && stampErr == nil {
		if entries, ok := s.snapshots.Load(key, stamp); ok {
			s.log().Debug("listing snapshot hit", "archive", key, "entries", len(entries))
			return entries, nil
		}
	}

	raw, err := s.lister.List(ctx, key)
	if err != nil {
		s.log().Warn("archive listing failed", "archive", key, "error", err)
		return nil, fmt.Errorf("%w: %s: %w", ErrArchiveUnreadable, key, err)
	}
	entries := normalizeEntries(raw)
	s.log().Debug("archive listed", "archive", key, "entries", len(entries))

	if s.snapshots != nil && stampErr == nil {
		if err := s.snapshots.Save(key, stamp, entries); err != nil {
			s.log().Warn("saving listing snapshot failed", "archive", key, "error", err)
		}
	}
	return entries, nil
}

func (s *Store) stamp(key string) (Stamp, error) {
	info, err := s.fs.Stat(key)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// normalizeEntries re-encodes raw names, sorts by name and keeps the first
// occurrence of duplicate names.
func normalizeEntries(raw []RawEntry) []ArchiveEntry {
	entries := make([]ArchiveEntry, 0, len(raw))
	for i := range raw {
		r := &raw[i]
		name := pathutil.DecodeName(r.Name, r.UTF8)
		if name == "." {
			continue
		}
		entries = append(entries, ArchiveEntry{
			Name:       name,
			Size:       r.Size,
			PackedSize: r.PackedSize,
			Method:     r.Method,
			Attributes: r.Attributes,
			HostOS:     r.HostOS,
			ModTime:    r.ModTime,
			Offset:     r.Offset,
			Solid:      r.Solid,
			Encrypted:  r.Encrypted,
			Parts:      r.Parts,
		})
	}
	slices.SortStableFunc(entries, func(a, b ArchiveEntry) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return slices.CompactFunc(entries, func(a, b ArchiveEntry) bool {
		return a.Name == b.Name
	})
}

// FileInfo returns a copy of the extraction record for a member.
func (s *Store) FileInfo(archivePath, memberPath string) (FileInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi := s.fileInfoLocked(ArchiveKey(archivePath), pathutil.Normalize(memberPath), false)
	if fi == nil {
		return FileInfo{}, false
	}
	return fi.clone(), true
}

// UpdateFileInfo applies fn to the extraction record for a member under
// the store lock, creating the record on first use, and returns a copy of
// the result. UsedCount is clamped at zero.
func (s *Store) UpdateFileInfo(archivePath, memberPath string, fn func(*FileInfo)) FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi := s.fileInfoLocked(ArchiveKey(archivePath), pathutil.Normalize(memberPath), true)
	fn(fi)
	if fi.UsedCount < 0 {
		fi.UsedCount = 0
	}
	return fi.clone()
}

// Release decrements the UsedCount of a member's record. It never goes
// below zero and never deletes the cached file.
func (s *Store) Release(archivePath, memberPath string) (FileInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fi := s.fileInfoLocked(ArchiveKey(archivePath), pathutil.Normalize(memberPath), false)
	if fi == nil {
		return FileInfo{}, false
	}
	if fi.UsedCount > 0 {
		fi.UsedCount--
	}
	return fi.clone(), true
}

// ReleasePath is Release keyed by a cached file path, current or superseded.
func (s *Store) ReleasePath(cachedPath string) (FileInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.archives {
		for _, fi := range a.files {
			if fi.CachedPath == cachedPath || slices.Contains(fi.Superseded, cachedPath) {
				if fi.UsedCount > 0 {
					fi.UsedCount--
				}
				return fi.clone(), true
			}
		}
	}
	return FileInfo{}, false
}

// FileInfos returns copies of all extraction records.
func (s *Store) FileInfos() []FileInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []FileInfo //nolint:prealloc // size unknown until iteration
	for _, a := range s.archives {
		for _, fi := range a.files {
			out = append(out, fi.clone())
		}
	}
	return out
}

func (s *Store) fileInfoLocked(key, member string, create bool) *FileInfo {
	a, ok := s.archives[key]
	if !ok {
		if !create {
			return nil
		}
		a = &archive{}
		s.archives[key] = a
	}
	for _, fi := range a.files {
		if fi.PathInArchive == member {
			return fi
		}
	}
	if !create {
		return nil
	}
	fi := &FileInfo{Archive: key, PathInArchive: member, Offset: -1}
	a.files = append(a.files, fi)
	return fi
}

// ClearCache drops all listings and extraction records.
//
// Auto-delete cached files are removed from disk first. Unless force is
// set, files still referenced (UsedCount > 0) are left in place.
func (s *Store) ClearCache(force bool) error {
	s.mu.Lock()
	archives := s.archives
	s.archives = make(map[string]*archive)
	s.mu.Unlock()

	var errs []error
	for key, a := range archives {
		for _, fi := range a.files {
			paths := slices.Clone(fi.Superseded)
			if fi.CachedPath != "" && fi.AutoDelete {
				paths = append(paths, fi.CachedPath)
			}
			if len(paths) == 0 {
				continue
			}
			if !force && fi.UsedCount > 0 {
				s.log().Debug("keeping referenced cached file", "archive", key, "paths", paths, "used", fi.UsedCount)
				continue
			}
			for _, path := range paths {
				if err := RemoveCached(s.fs, path); err != nil {
					errs = append(errs, err)
					continue
				}
				s.log().Debug("deleted cached file", "archive", key, "path", path)
			}
		}
	}
	return errors.Join(errs...)
}

// CacheFolderPrefix names the per-extraction folders inside a cache directory.
const CacheFolderPrefix = "rarfolder"

// RemoveCached deletes a cached file, and its cache folder if that is left
// empty. A file that is already gone is not an error.
func RemoveCached(fsys afero.Fs, path string) error {
	if err := fsys.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cached file %s: %w", path, err)
	}
	dir := filepath.Dir(path)
	if !strings.HasPrefix(filepath.Base(dir), CacheFolderPrefix) {
		return nil
	}
	if empty, err := afero.IsEmpty(fsys, dir); err == nil && empty {
		_ = fsys.Remove(dir) //nolint:errcheck // best-effort folder cleanup
	}
	return nil
}
