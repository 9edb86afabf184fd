package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/rarfs/index"
)

const (
	// DefaultLargeFileThreshold is the size above which extractions are
	// confirmed and report progress.
	DefaultLargeFileThreshold = 50 << 20

	// DefaultCancelWindow is how long a canceled extraction keeps failing
	// fast before it may be attempted again.
	DefaultCancelWindow = 3 * time.Second

	// MaxCacheFolders bounds the rarfolder slots tried per cache directory.
	MaxCacheFolders = 10000

	defaultDirPerm = 0o755
)

// Extractor decompresses archive members to disk.
type Extractor interface {
	// Extract writes the requested member (or, for an empty Member, every
	// member) under req.DestDir. It returns an error wrapping
	// ErrExtractionCanceled if req.Progress returned false.
	Extract(ctx context.Context, req ExtractRequest) (ExtractResult, error)
}

// ExtractRequest describes one extraction.
type ExtractRequest struct {
	// Archive is the path of the archive (first volume).
	Archive string

	// Member is the normalized member path, or "" for the whole archive.
	Member string

	// DestDir is the directory the member is written into. A single member
	// is written as DestDir/<base name>; a whole archive keeps its tree.
	DestDir string

	// Offset is the archive offset of the member header to resume at,
	// or -1 to scan from the start.
	Offset int64

	// Size is the expected uncompressed size, used for progress totals.
	Size int64

	// Progress, if non-nil, receives progress updates.
	Progress ProgressFunc
}

// ExtractResult reports a completed extraction.
type ExtractResult struct {
	// Path is the extracted file, or DestDir for a whole archive.
	Path string

	// Written is the number of bytes written.
	Written int64

	// Offset is the resume offset of the member, for reuse on later
	// extractions from the same archive.
	Offset int64
}

// Confirmer lets a host application confirm and observe large extractions.
type Confirmer interface {
	// ConfirmLargeExtraction is asked before a member larger than the
	// threshold is extracted. Returning false cancels it.
	ConfirmLargeExtraction(name string, size int64) bool

	// ReportProgress is called while a large member is extracted.
	// Returning false cancels the extraction.
	ReportProgress(percent int, text string) bool
}

// Request asks for a member to be made available on disk.
type Request struct {
	Archive string
	Member  string
	Flags   Flags

	// Dir is the cache directory. Empty uses the Manager's directory.
	Dir string

	// ExpectedSize overrides the listed member size when positive.
	ExpectedSize int64
}

// Manager extracts members into a cache directory and tracks the copies.
// The Manager is safe for concurrent use.
type Manager struct {
	store     *index.Store
	extractor Extractor

	fs             afero.Fs
	dir            string
	dirPerm        os.FileMode
	confirmer      Confirmer
	probe          SpaceProbe
	largeThreshold int64
	cancelWindow   time.Duration
	now            func() time.Time
	progress       ProgressFunc
	removeAttempts uint
	removeDelay    time.Duration
	logger         *slog.Logger

	allocMu sync.Mutex // serializes destination reservation
	evictMu sync.Mutex // serializes eviction passes
	group   singleflight.Group
}

// New creates a Manager recording into store and extracting with extractor.
func New(store *index.Store, extractor Extractor, opts ...Option) *Manager {
	m := &Manager{
		store:          store,
		extractor:      extractor,
		fs:             store.Fs(),
		dir:            filepath.Join(os.TempDir(), "rarfs"),
		dirPerm:        defaultDirPerm,
		probe:          DefaultSpaceProbe,
		largeThreshold: DefaultLargeFileThreshold,
		cancelWindow:   DefaultCancelWindow,
		now:            store.Now,
		removeAttempts: 3,
		removeDelay:    100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// log returns the logger, falling back to a discard logger if nil.
func (m *Manager) log() *slog.Logger {
	if m.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.logger
}

// Dir returns the default cache directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Store returns the index store the Manager records into.
func (m *Manager) Store() *index.Store {
	return m.store
}

// CacheFile returns the path of an extracted copy of a member, extracting
// it if needed. Each successful call increments the member's UsedCount and
// must be paired with Release or ReleasePath.
//
// Concurrent calls for the same member, destination and extraction flags
// share one extraction. The caller that runs it decides cancellation for
// all of them; the others retry if their own context is still live.
func (m *Manager) CacheFile(ctx context.Context, req Request) (string, error) {
	entry, err := m.store.Entry(ctx, req.Archive, req.Member)
	if err != nil {
		return "", err
	}
	if entry.IsDir() {
		return "", &fs.PathError{Op: "cache", Path: entry.Name, Err: fs.ErrInvalid}
	}

	size := req.ExpectedSize
	if size <= 0 {
		size = entry.Size
	}
	dir := req.Dir
	if dir == "" {
		dir = m.dir
	}
	key := fmt.Sprintf("%s\x00%s\x00%s\x00%d",
		index.ArchiveKey(req.Archive), entry.Name, filepath.Clean(dir), req.Flags&(FlagOverwrite|FlagAutoDelete))

	for attempt := 0; ; attempt++ {
		if path, ok := m.reuse(req.Archive, entry.Name, req.Flags); ok {
			m.log().Debug("cache hit", "archive", req.Archive, "member", entry.Name, "path", path)
			return path, nil
		}

		// The closure only runs on the calling goroutine, for the caller
		// that leads the extraction.
		led := false
		result, err, _ := m.group.Do(key, func() (any, error) {
			led = true
			return m.extract(ctx, req, &entry, dir, size)
		})
		again := !led && attempt < maxFollowerRetries && ctx.Err() == nil
		if err != nil {
			if again && errors.Is(err, ErrExtractionCanceled) && !m.recentlyCanceled(req.Archive, entry.Name) {
				continue
			}
			return "", err
		}
		path := result.(string) //nolint:errcheck // type assertion always succeeds when err is nil
		if led {
			// extract took the reference when it recorded the copy.
			return path, nil
		}
		if m.claim(req.Archive, entry.Name, path) {
			return path, nil
		}
		if !again {
			return "", fmt.Errorf("%w: %s was evicted before use", ErrInsufficientSpace, entry.Name)
		}
		m.log().Debug("shared extraction evicted, retrying", "archive", req.Archive, "member", entry.Name, "path", path)
	}
}

// maxFollowerRetries bounds how often a caller that joined another
// caller's extraction starts over.
const maxFollowerRetries = 2

// reuse returns an existing cached copy and takes a reference on it.
func (m *Manager) reuse(archivePath, member string, flags Flags) (string, bool) {
	if flags.Has(FlagOverwrite) {
		return "", false
	}
	fi, ok := m.store.FileInfo(archivePath, member)
	if !ok || fi.CachedPath == "" {
		return "", false
	}
	if exists, err := afero.Exists(m.fs, fi.CachedPath); err != nil || !exists {
		return "", false
	}
	return fi.CachedPath, m.claim(archivePath, member, fi.CachedPath)
}

// claim takes a reference on path if it is still the member's cached copy.
// Eviction may have claimed it since it was looked up.
func (m *Manager) claim(archivePath, member, path string) bool {
	taken := false
	m.store.UpdateFileInfo(archivePath, member, func(cur *index.FileInfo) {
		if cur.CachedPath == path {
			cur.UsedCount++
			taken = true
		}
	})
	return taken
}

func (m *Manager) recentlyCanceled(archivePath, member string) bool {
	fi, ok := m.store.FileInfo(archivePath, member)
	return ok && fi.RecentlyCanceled(m.now(), m.cancelWindow)
}

func (m *Manager) extract(ctx context.Context, req Request, entry *index.ArchiveEntry, dir string, size int64) (string, error) {
	member := entry.Name
	fi, known := m.store.FileInfo(req.Archive, member)
	if known && fi.RecentlyCanceled(m.now(), m.cancelWindow) {
		m.log().Debug("extraction recently canceled", "archive", req.Archive, "member", member)
		return "", fmt.Errorf("%w: %s", ErrExtractionCanceled, member)
	}

	large := size > m.largeThreshold
	if large && m.confirmer != nil && !m.confirmer.ConfirmLargeExtraction(entry.BaseName(), size) {
		m.log().Info("large extraction declined", "archive", req.Archive, "member", member, "size", size)
		m.markCanceled(req.Archive, member)
		return "", fmt.Errorf("%w: %s", ErrExtractionCanceled, member)
	}

	if err := m.fs.MkdirAll(dir, m.dirPerm); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := m.Evict(ctx, dir, size); err != nil {
		return "", err
	}

	destDir, placeholder, err := m.reserve(dir, entry.BaseName())
	if err != nil {
		return "", err
	}

	offset := entry.Offset
	if known && fi.Offset >= 0 {
		offset = fi.Offset
	}

	start := m.now()
	res, err := m.extractor.Extract(ctx, ExtractRequest{
		Archive:  req.Archive,
		Member:   member,
		DestDir:  destDir,
		Offset:   offset,
		Size:     size,
		Progress: m.progressFor(req.Archive, member, size, large),
	})
	if err != nil {
		if rmErr := index.RemoveCached(m.fs, placeholder); rmErr != nil {
			m.log().Warn("removing placeholder failed", "path", placeholder, "error", rmErr)
		}
		if errors.Is(err, ErrExtractionCanceled) {
			m.log().Info("extraction canceled", "archive", req.Archive, "member", member)
			m.markCanceled(req.Archive, member)
			return "", fmt.Errorf("%w: %s", ErrExtractionCanceled, member)
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The caller went away; that is not a user decision.
			m.log().Debug("extraction abandoned", "archive", req.Archive, "member", member, "error", err)
			return "", fmt.Errorf("%w: %s: %w", ErrExtractionCanceled, member, err)
		}
		m.log().Warn("extraction failed", "archive", req.Archive, "member", member, "error", err)
		return "", fmt.Errorf("extract %s from %s: %w", member, req.Archive, err)
	}

	var stale string
	m.store.UpdateFileInfo(req.Archive, member, func(fi *index.FileInfo) {
		if old := fi.CachedPath; old != "" && old != res.Path && fi.AutoDelete {
			if fi.UsedCount < 1 {
				stale = old
			} else {
				fi.Superseded = append(fi.Superseded, old)
			}
		}
		fi.CachedPath = res.Path
		fi.AutoDelete = req.Flags.Has(FlagAutoDelete)
		fi.Offset = res.Offset
		fi.CanceledAt = time.Time{}
		fi.UsedCount++
	})
	if stale != "" {
		if err := index.RemoveCached(m.fs, stale); err != nil {
			m.log().Warn("removing replaced cached file failed", "path", stale, "error", err)
		}
	}
	m.log().Info("member extracted",
		"archive", req.Archive,
		"member", member,
		"path", res.Path,
		"bytes", res.Written,
		"duration", m.now().Sub(start))
	return res.Path, nil
}

// reserve picks the first rarfolder slot under dir that does not yet hold
// base and claims it with an empty placeholder file.
func (m *Manager) reserve(dir, base string) (destDir, path string, err error) {
	m.allocMu.Lock()
	defer m.allocMu.Unlock()

	for i := range MaxCacheFolders {
		destDir = filepath.Join(dir, fmt.Sprintf("%s%04d", index.CacheFolderPrefix, i))
		path = filepath.Join(destDir, base)
		if exists, statErr := afero.Exists(m.fs, path); statErr != nil || exists {
			continue
		}
		if err := m.fs.MkdirAll(destDir, m.dirPerm); err != nil {
			return "", "", fmt.Errorf("create cache folder: %w", err)
		}
		f, err := m.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err != nil {
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			return "", "", fmt.Errorf("reserve cache file: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", "", err
		}
		return destDir, path, nil
	}
	return "", "", fmt.Errorf("%w: %s", ErrNoDestination, filepath.Join(dir, base))
}

func (m *Manager) markCanceled(archivePath, member string) {
	now := m.now()
	m.store.UpdateFileInfo(archivePath, member, func(fi *index.FileInfo) {
		fi.CanceledAt = now
	})
}

// progressFor combines the configured ProgressFunc with the Confirmer's
// progress reports. The Confirmer only hears about large members.
func (m *Manager) progressFor(archivePath, member string, size int64, large bool) ProgressFunc {
	report := large && m.confirmer != nil
	if m.progress == nil && !report {
		return nil
	}
	text := "Extracting " + filepath.Base(member)
	return func(ev ProgressEvent) bool {
		ev.Archive, ev.Member = archivePath, member
		if ev.BytesTotal <= 0 {
			ev.BytesTotal = size
		}
		if m.progress != nil && !m.progress(ev) {
			return false
		}
		if report && !m.confirmer.ReportProgress(ev.Percent(), text) {
			return false
		}
		return true
	}
}

// Release drops one reference to a member's cached copy. The file stays
// on disk until a sweep, eviction or ClearCache removes it.
func (m *Manager) Release(archivePath, member string) {
	if fi, ok := m.store.Release(archivePath, member); ok {
		m.log().Debug("released cached member", "archive", archivePath, "member", member, "used", fi.UsedCount)
	}
}

// ReleasePath is Release keyed by the cached file path.
func (m *Manager) ReleasePath(cachedPath string) {
	if fi, ok := m.store.ReleasePath(cachedPath); ok {
		m.log().Debug("released cached member", "archive", fi.Archive, "member", fi.PathInArchive, "used", fi.UsedCount)
	}
}

// ExtractArchive extracts every member of an archive under destDir.
func (m *Manager) ExtractArchive(ctx context.Context, archivePath, destDir string) (ExtractResult, error) {
	entries, err := m.store.ListArchive(ctx, archivePath)
	if err != nil {
		return ExtractResult{}, err
	}
	var total int64
	for i := range entries {
		if entries[i].Size > 0 {
			total += entries[i].Size
		}
	}

	if err := m.fs.MkdirAll(destDir, m.dirPerm); err != nil {
		return ExtractResult{}, fmt.Errorf("create destination: %w", err)
	}
	if err := m.Evict(ctx, destDir, total); err != nil {
		return ExtractResult{}, err
	}

	res, err := m.extractor.Extract(ctx, ExtractRequest{
		Archive:  archivePath,
		DestDir:  destDir,
		Offset:   -1,
		Size:     total,
		Progress: m.progressFor(archivePath, "", total, total > m.largeThreshold),
	})
	if err != nil {
		if errors.Is(err, ErrExtractionCanceled) || errors.Is(err, context.Canceled) {
			return res, fmt.Errorf("%w: %s", ErrExtractionCanceled, archivePath)
		}
		return res, fmt.Errorf("extract %s: %w", archivePath, err)
	}
	m.log().Info("archive extracted", "archive", archivePath, "dest", destDir, "bytes", res.Written)
	return res, nil
}
