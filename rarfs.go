package rarfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/meigma/rarfs/cache"
	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/internal/pathutil"
	"github.com/meigma/rarfs/internal/snapshot"
	"github.com/meigma/rarfs/rar"
	"github.com/meigma/rarfs/stream"
)

// Streamer opens decompression sources for compressed members.
type Streamer interface {
	Stream(archivePath string, entry index.ArchiveEntry) stream.Source
}

// FS serves archive members as files. It is safe for concurrent use.
type FS struct {
	fs           afero.Fs
	lister       index.Lister
	extractor    cache.Extractor
	streamer     Streamer
	confirmer    cache.Confirmer
	probe        cache.SpaceProbe
	cacheDir     string
	snapshotDir  string
	password     string
	defaultFlags cache.Flags
	streamOpts   []stream.Option
	cacheOpts    []cache.Option
	indexOpts    []index.Option
	logger       *slog.Logger

	store   *index.Store
	manager *cache.Manager
}

// New creates an FS. Without options it reads archives from the OS
// filesystem and caches extracted members under the system temp directory.
func New(opts ...Option) (*FS, error) {
	f := &FS{}
	for _, opt := range opts {
		if err := opt(f); err != nil {
			return nil, err
		}
	}
	if f.fs == nil {
		f.fs = afero.NewOsFs()
	}

	rarOpts := []rar.Option{rar.WithPassword(f.password), rar.WithLogger(f.logger)}
	if f.lister == nil {
		f.lister = rar.NewLister(f.fs, rarOpts...)
	}
	if f.extractor == nil {
		f.extractor = rar.NewExtractor(f.fs, rarOpts...)
	}
	if f.streamer == nil {
		f.streamer = rar.NewStreamer(f.fs, rarOpts...)
	}

	indexOpts := []index.Option{index.WithLogger(f.logger), index.WithFs(f.fs)}
	if f.snapshotDir != "" {
		snap, err := snapshot.New(f.snapshotDir, snapshot.WithFs(f.fs), snapshot.WithLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("open snapshot dir: %w", err)
		}
		indexOpts = append(indexOpts, index.WithSnapshotter(snap))
	}
	f.store = index.New(f.lister, append(indexOpts, f.indexOpts...)...)

	cacheOpts := []cache.Option{cache.WithLogger(f.logger), cache.WithFs(f.fs)}
	if f.cacheDir != "" {
		cacheOpts = append(cacheOpts, cache.WithDir(f.cacheDir))
	}
	if f.confirmer != nil {
		cacheOpts = append(cacheOpts, cache.WithConfirmer(f.confirmer))
	}
	if f.probe != nil {
		cacheOpts = append(cacheOpts, cache.WithSpaceProbe(f.probe))
	}
	f.manager = cache.New(f.store, f.extractor, append(cacheOpts, f.cacheOpts...)...)
	return f, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (f *FS) log() *slog.Logger {
	if f.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return f.logger
}

// Store returns the archive index.
func (f *FS) Store() *index.Store {
	return f.store
}

// Manager returns the cache manager.
func (f *FS) Manager() *cache.Manager {
	return f.manager
}

// Open opens the member addressed by name. See [ParseURL] for the format.
func (f *FS) Open(name string) (*File, error) {
	return f.OpenContext(context.Background(), name)
}

// OpenContext is like Open. ctx bounds listing and extraction and, for
// streamed members, the lifetime of the decompression session.
func (f *FS) OpenContext(ctx context.Context, name string) (*File, error) {
	u, err := ParseURL(name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return f.OpenURL(ctx, u)
}

// OpenURL opens the member addressed by an already parsed URL.
func (f *FS) OpenURL(ctx context.Context, u URL) (*File, error) {
	flags := f.defaultFlags
	if u.HasFlags {
		flags = u.Flags
	}
	file, err := f.open(ctx, u.Archive, u.Member, flags, u.CacheDir)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: u.String(), Err: err}
	}
	return file, nil
}

// open resolves a member to one of its three backings.
func (f *FS) open(ctx context.Context, archivePath, member string, flags cache.Flags, cacheDir string) (*File, error) {
	entry, err := f.store.Entry(ctx, archivePath, member)
	if err != nil {
		return nil, err
	}
	if entry.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", fs.ErrInvalid, entry.Name)
	}
	logger := f.log().With("archive", archivePath, "member", entry.Name)

	switch {
	case entry.IsStored() && !entry.Encrypted:
		r, err := rar.OpenStored(f.fs, &entry)
		if err != nil {
			return nil, err
		}
		logger.Debug("opened stored member", "parts", len(entry.Parts))
		return newFile(archivePath, entry, BackingStored, r, r.Size(), nil), nil

	case flags.Has(cache.FlagStream):
		opts := append([]stream.Option{stream.WithLogger(logger), stream.WithContext(ctx)}, f.streamOpts...)
		s := stream.New(f.streamer.Stream(archivePath, entry), entry.Size, opts...)
		logger.Debug("opened stream session", "session", s.ID())
		return newFile(archivePath, entry, BackingStream, s, entry.Size, nil), nil

	case flags.Has(cache.FlagNoCache):
		return nil, fmt.Errorf("%w: %s is compressed and caching is disabled", cache.ErrExtractionCanceled, entry.Name)
	}

	path, err := f.manager.CacheFile(ctx, cache.Request{
		Archive: archivePath,
		Member:  entry.Name,
		Flags:   flags,
		Dir:     cacheDir,
	})
	if err != nil {
		return nil, err
	}
	release := func() { f.manager.Release(archivePath, entry.Name) }

	cached, err := f.fs.Open(path)
	if err != nil {
		release()
		return nil, err
	}
	info, err := cached.Stat()
	if err != nil {
		_ = cached.Close() //nolint:errcheck // reporting the stat error
		release()
		return nil, err
	}
	logger.Debug("opened cached member", "path", path)
	return newFile(archivePath, entry, BackingCached, cached, info.Size(), release), nil
}

// Exists reports whether name addresses a member or directory. It only
// consults the archive index.
func (f *FS) Exists(name string) bool {
	_, err := f.Stat(name)
	return err == nil
}

// Stat returns file info for the member or directory addressed by name
// without opening it. Directories, explicit or synthesized, report
// fs.ModeDir.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	u, err := ParseURL(name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	info, err := f.stat(context.Background(), u.Archive, u.Member)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	return info, nil
}

func (f *FS) stat(ctx context.Context, archivePath, member string) (fs.FileInfo, error) {
	if member == "." {
		if _, err := f.store.ListArchive(ctx, archivePath); err != nil {
			return nil, err
		}
		return newDirInfo(pathutil.Base(archivePath)), nil
	}

	entry, err := f.store.Entry(ctx, archivePath, member)
	if err == nil {
		return newInfo(&entry), nil
	}
	if !errors.Is(err, index.ErrMemberNotFound) {
		return nil, err
	}
	items, lerr := f.store.ListFiles(ctx, archivePath, false, member)
	if lerr != nil || len(items) == 0 {
		return nil, fmt.Errorf("%w: %w", fs.ErrNotExist, err)
	}
	return newDirInfo(pathutil.Base(member)), nil
}

// ReadDir returns the direct children of the directory addressed by name,
// sorted by name.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	u, err := ParseURL(name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	entries, err := f.readDir(context.Background(), u.Archive, u.Member)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	return entries, nil
}

func (f *FS) readDir(ctx context.Context, archivePath, member string) ([]fs.DirEntry, error) {
	items, err := f.store.ListFiles(ctx, archivePath, false, member)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 && member != "." {
		info, err := f.stat(ctx, archivePath, member)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%w: not a directory", fs.ErrInvalid)
		}
	}
	sortByName(items)
	entries := make([]fs.DirEntry, 0, len(items))
	for i := range items {
		entries = append(entries, dirEntry{info: itemInfo(&items[i])})
	}
	return entries, nil
}

// ExtractArchive extracts every member of an archive below destDir.
func (f *FS) ExtractArchive(ctx context.Context, archivePath, destDir string) error {
	res, err := f.manager.ExtractArchive(ctx, archivePath, destDir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", archivePath, err)
	}
	f.log().Info("archive extracted", "archive", archivePath, "path", destDir, "bytes", res.Written)
	return nil
}

// ClearCache drops listings and deletes auto-delete cached copies.
// Without force, copies still in use stay on disk.
func (f *FS) ClearCache(force bool) error {
	return f.store.ClearCache(force)
}

// ListArchive returns every member of an archive.
func (f *FS) ListArchive(ctx context.Context, archivePath string) ([]index.ArchiveEntry, error) {
	return f.store.ListArchive(ctx, archivePath)
}

// GetFilesInRar lists the items under prefix, synthesizing directories.
func (f *FS) GetFilesInRar(ctx context.Context, archivePath string, recursive bool, prefix string) ([]index.Item, error) {
	return f.store.ListFiles(ctx, archivePath, recursive, prefix)
}

// GetEntry returns one member of an archive.
func (f *FS) GetEntry(ctx context.Context, archivePath, member string) (index.ArchiveEntry, error) {
	return f.store.Entry(ctx, archivePath, member)
}
