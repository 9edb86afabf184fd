package cache_test

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/meigma/rarfs/cache"
	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/internal/mocks"
	"github.com/meigma/rarfs/internal/testutil"
)

const archivePath = "/data/a.rar"

type clock struct {
	t time.Time
}

func (c *clock) Now() time.Time { return c.t }

func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

type fixture struct {
	fs        afero.Fs
	store     *index.Store
	extractor *mocks.MockExtractor
	confirmer *mocks.MockConfirmer
	clock     *clock
}

func newFixture(t *testing.T, entries ...index.RawEntry) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		fs:        afero.NewMemMapFs(),
		extractor: mocks.NewMockExtractor(ctrl),
		confirmer: mocks.NewMockConfirmer(ctrl),
		clock:     &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	lister := testutil.NewFakeLister().Add(archivePath, entries...)
	f.store = index.New(lister, index.WithFs(f.fs), index.WithNow(f.clock.Now))
	return f
}

func (f *fixture) manager(opts ...cache.Option) *cache.Manager {
	base := []cache.Option{
		cache.WithDir("/cache"),
		cache.WithSpaceProbe(capacityProbe(f.fs, 1<<40)),
		cache.WithRemoveRetry(1, 0),
	}
	return cache.New(f.store, f.extractor, append(base, opts...)...)
}

// writes returns an Extract implementation that writes data to DestDir.
func (f *fixture) writes(data []byte, offset int64) func(context.Context, cache.ExtractRequest) (cache.ExtractResult, error) {
	return func(_ context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
		path := filepath.Join(req.DestDir, filepath.Base(req.Member))
		if err := afero.WriteFile(f.fs, path, data, 0o644); err != nil {
			return cache.ExtractResult{}, err
		}
		return cache.ExtractResult{Path: path, Written: int64(len(data)), Offset: offset}, nil
	}
}

// capacityProbe reports capacity minus the bytes stored in fsys.
func capacityProbe(fsys afero.Fs, capacity int64) cache.SpaceProbe {
	return func(string) (uint64, error) {
		var used int64
		_ = afero.Walk(fsys, "/", func(_ string, info fs.FileInfo, err error) error { //nolint:errcheck // best-effort size
			if err == nil && !info.IsDir() {
				used += info.Size()
			}
			return nil
		})
		return uint64(max(capacity-used, 0)), nil
	}
}

func TestCacheFileExtractsOnceAndReuses(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("dir/movie.mkv", 5, 128))
	m := f.manager()
	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
			assert.Equal(t, archivePath, req.Archive)
			assert.Equal(t, "dir/movie.mkv", req.Member)
			assert.Equal(t, "/cache/rarfolder0000", req.DestDir)
			assert.Equal(t, int64(128), req.Offset)
			assert.Nil(t, req.Progress, "small members report no progress")
			return f.writes([]byte("hello"), 256)(ctx, req)
		}).
		Times(1)

	req := cache.Request{Archive: archivePath, Member: "dir/movie.mkv", Flags: cache.FlagAutoDelete}
	path, err := m.CacheFile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "/cache/rarfolder0000/movie.mkv", path)

	again, err := m.CacheFile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, path, again)

	fi, ok := f.store.FileInfo(archivePath, "dir/movie.mkv")
	require.True(t, ok)
	assert.Equal(t, 2, fi.UsedCount)
	assert.True(t, fi.AutoDelete)
	assert.Equal(t, int64(256), fi.Offset)

	m.Release(archivePath, "dir/movie.mkv")
	m.ReleasePath(path)
	m.ReleasePath(path)
	fi, _ = f.store.FileInfo(archivePath, "dir/movie.mkv")
	assert.Equal(t, 0, fi.UsedCount)

	ok, err = afero.Exists(f.fs, path)
	require.NoError(t, err)
	assert.True(t, ok, "release never deletes")
}

func TestCacheFileOverwriteUsesNextFolder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("a.bin", 3, 0))
	m := f.manager()
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).DoAndReturn(f.writes([]byte("one"), 0))
	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
			assert.Equal(t, int64(0), req.Offset, "recorded offset is reused")
			return f.writes([]byte("two"), 0)(ctx, req)
		})

	first, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "a.bin"})
	require.NoError(t, err)
	second, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "a.bin", Flags: cache.FlagOverwrite})
	require.NoError(t, err)

	assert.Equal(t, "/cache/rarfolder0000/a.bin", first)
	assert.Equal(t, "/cache/rarfolder0001/a.bin", second)
}

func TestCacheFileOverwriteReplacesAutoDeleteCopy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("a.bin", 3, 0))
	m := f.manager()
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).DoAndReturn(f.writes([]byte("abc"), 0)).Times(3)
	req := cache.Request{Archive: archivePath, Member: "a.bin", Flags: cache.FlagAutoDelete}
	overwrite := cache.Request{Archive: archivePath, Member: "a.bin", Flags: cache.FlagAutoDelete | cache.FlagOverwrite}

	// An unreferenced copy is removed once its replacement exists.
	first, err := m.CacheFile(context.Background(), req)
	require.NoError(t, err)
	m.Release(archivePath, "a.bin")
	second, err := m.CacheFile(context.Background(), overwrite)
	require.NoError(t, err)
	assert.Equal(t, "/cache/rarfolder0001/a.bin", second)
	ok, err := afero.Exists(f.fs, first)
	require.NoError(t, err)
	assert.False(t, ok)

	// A referenced copy is kept and tracked until the member is released.
	third, err := m.CacheFile(context.Background(), overwrite)
	require.NoError(t, err)
	assert.Equal(t, "/cache/rarfolder0000/a.bin", third)
	fi, _ := f.store.FileInfo(archivePath, "a.bin")
	assert.Equal(t, []string{second}, fi.Superseded)
	assert.Equal(t, 2, fi.UsedCount)
	ok, err = afero.Exists(f.fs, second)
	require.NoError(t, err)
	assert.True(t, ok)

	m.ReleasePath(second)
	m.Release(archivePath, "a.bin")
	require.NoError(t, f.store.ClearCache(true))
	for _, path := range []string{second, third} {
		ok, err := afero.Exists(f.fs, path)
		require.NoError(t, err)
		assert.False(t, ok, "%s is removed", path)
	}
}

func TestCacheFileReferenceSurvivesConcurrentEviction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("big.bin", 10, 0))
	var (
		m         *cache.Manager
		extracted bool
		evicting  bool
	)
	// Every clock read after the copy is written races an eviction that
	// wants more space than the disk has.
	now := func() time.Time {
		if extracted && !evicting {
			evicting = true
			_ = m.Evict(context.Background(), "/cache", 1<<50) //nolint:errcheck // always short
			evicting = false
		}
		return f.clock.Now()
	}
	m = f.manager(cache.WithNow(now))
	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
			defer func() { extracted = true }()
			return f.writes(make([]byte, 10), 0)(ctx, req)
		})

	path, err := m.CacheFile(context.Background(), cache.Request{
		Archive: archivePath,
		Member:  "big.bin",
		Flags:   cache.FlagAutoDelete,
	})
	require.NoError(t, err)

	ok, err := afero.Exists(f.fs, path)
	require.NoError(t, err)
	assert.True(t, ok, "a referenced copy is never evicted")
	fi, _ := f.store.FileInfo(archivePath, "big.bin")
	assert.Equal(t, path, fi.CachedPath)
	assert.Equal(t, 1, fi.UsedCount)
}

func TestCacheFileConcurrentCallersShareExtraction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("a.bin", 3, 0))
	m := f.manager()
	started := make(chan struct{})
	release := make(chan struct{})
	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
			close(started)
			<-release
			return f.writes([]byte("abc"), 0)(ctx, req)
		}).
		Times(1)

	req := cache.Request{Archive: archivePath, Member: "a.bin", Flags: cache.FlagAutoDelete}
	paths := make(chan string, 2)
	errs := make(chan error, 2)
	call := func() {
		path, err := m.CacheFile(context.Background(), req)
		paths <- path
		errs <- err
	}
	go call()
	<-started
	go call()
	time.Sleep(20 * time.Millisecond)
	close(release)

	p1, p2 := <-paths, <-paths
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	assert.Equal(t, p1, p2)

	fi, _ := f.store.FileInfo(archivePath, "a.bin")
	assert.Equal(t, 2, fi.UsedCount)
}

func TestCacheFileAbandonedExtractionIsNotACancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("a.bin", 3, 0))
	m := f.manager()
	started := make(chan struct{})
	gomock.InOrder(
		f.extractor.EXPECT().
			Extract(gomock.Any(), gomock.Any()).
			DoAndReturn(func(ctx context.Context, _ cache.ExtractRequest) (cache.ExtractResult, error) {
				close(started)
				<-ctx.Done()
				return cache.ExtractResult{}, ctx.Err()
			}),
		f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).DoAndReturn(f.writes([]byte("abc"), 0)),
	)

	req := cache.Request{Archive: archivePath, Member: "a.bin"}
	ctx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := m.CacheFile(ctx, req)
		leaderErr <- err
	}()
	<-started

	other := make(chan error, 1)
	go func() {
		_, err := m.CacheFile(context.Background(), req)
		other <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	err := <-leaderErr
	require.ErrorIs(t, err, cache.ErrExtractionCanceled)
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, <-other, "a caller with a live context still gets its copy")

	fi, _ := f.store.FileInfo(archivePath, "a.bin")
	assert.True(t, fi.CanceledAt.IsZero())
	assert.Equal(t, "/cache/rarfolder0000/a.bin", fi.CachedPath)
	assert.Equal(t, 1, fi.UsedCount)
}

func TestCacheFileSameBaseNameDoesNotCollide(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		testutil.Compressed("cd1/info.nfo", 1, 0),
		testutil.Compressed("cd2/info.nfo", 1, 100),
	)
	m := f.manager()
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).DoAndReturn(f.writes([]byte("1"), 0)).Times(2)

	p1, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "cd1/info.nfo"})
	require.NoError(t, err)
	p2, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "cd2/info.nfo"})
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
	assert.Equal(t, "/cache/rarfolder0001/info.nfo", p2)
}

func TestCacheFileRecoversFromMissingCopy(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("a.bin", 3, 0))
	m := f.manager()
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).DoAndReturn(f.writes([]byte("abc"), 0)).Times(2)

	path, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "a.bin"})
	require.NoError(t, err)
	require.NoError(t, f.fs.Remove(path))

	path2, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "a.bin"})
	require.NoError(t, err)
	ok, err := afero.Exists(f.fs, path2)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCacheFileLookupErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("a.bin", 3, 0), testutil.Dir("d"))
	m := f.manager()

	_, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "missing"})
	require.ErrorIs(t, err, index.ErrMemberNotFound)

	_, err = m.CacheFile(context.Background(), cache.Request{Archive: "/data/other.rar", Member: "a.bin"})
	require.ErrorIs(t, err, index.ErrArchiveUnreadable)

	_, err = m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "d"})
	require.ErrorIs(t, err, fs.ErrInvalid)
}

func TestCacheFileDeclinedLargeExtractionFailsFast(t *testing.T) {
	t.Parallel()

	const size = 200 << 20
	f := newFixture(t, testutil.Compressed("movies/big.mkv", size, 0))
	m := f.manager(cache.WithConfirmer(f.confirmer))
	req := cache.Request{Archive: archivePath, Member: "movies/big.mkv"}

	f.confirmer.EXPECT().ConfirmLargeExtraction("big.mkv", int64(size)).Return(false).Times(1)

	_, err := m.CacheFile(context.Background(), req)
	require.ErrorIs(t, err, cache.ErrExtractionCanceled)

	// Inside the cancel window: no prompt, no extraction.
	f.clock.Advance(time.Second)
	_, err = m.CacheFile(context.Background(), req)
	require.ErrorIs(t, err, cache.ErrExtractionCanceled)

	fi, ok := f.store.FileInfo(archivePath, "movies/big.mkv")
	require.True(t, ok)
	assert.Equal(t, f.clock.Now().Add(-time.Second), fi.CanceledAt)
	assert.Empty(t, fi.CachedPath)

	// After the window the user is asked again.
	f.clock.Advance(3 * time.Second)
	f.confirmer.EXPECT().ConfirmLargeExtraction("big.mkv", int64(size)).Return(true)
	f.confirmer.EXPECT().ReportProgress(gomock.Any(), "Extracting big.mkv").Return(true).AnyTimes()
	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
			require.NotNil(t, req.Progress)
			assert.True(t, req.Progress(cache.ProgressEvent{Stage: cache.StageExtracting, BytesDone: size / 2}))
			return f.writes([]byte("x"), 0)(ctx, req)
		})

	path, err := m.CacheFile(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "/cache/rarfolder0000/big.mkv", path)
}

func TestCacheFileProgressCancel(t *testing.T) {
	t.Parallel()

	const size = 100 << 20
	f := newFixture(t, testutil.Compressed("big.iso", size, 0))
	m := f.manager(cache.WithConfirmer(f.confirmer))

	f.confirmer.EXPECT().ConfirmLargeExtraction("big.iso", int64(size)).Return(true)
	f.confirmer.EXPECT().ReportProgress(25, "Extracting big.iso").Return(false)
	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
			if !req.Progress(cache.ProgressEvent{Stage: cache.StageExtracting, BytesDone: size / 4}) {
				return cache.ExtractResult{}, cache.ErrExtractionCanceled
			}
			return cache.ExtractResult{}, errors.New("progress should have canceled")
		})

	_, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "big.iso"})
	require.ErrorIs(t, err, cache.ErrExtractionCanceled)

	ok, err := afero.Exists(f.fs, "/cache/rarfolder0000")
	require.NoError(t, err)
	assert.False(t, ok, "reserved folder is cleaned up")

	fi, _ := f.store.FileInfo(archivePath, "big.iso")
	assert.False(t, fi.CanceledAt.IsZero())
}

func TestCacheFileExtractorFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("a.bin", 3, 0))
	m := f.manager()
	boom := errors.New("crc mismatch")
	f.extractor.EXPECT().Extract(gomock.Any(), gomock.Any()).Return(cache.ExtractResult{}, boom)

	_, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "a.bin"})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, cache.ErrExtractionCanceled)

	fi, ok := f.store.FileInfo(archivePath, "a.bin")
	if ok {
		assert.Empty(t, fi.CachedPath)
		assert.True(t, fi.CanceledAt.IsZero(), "failures are not cancellations")
	}
	exists, err := afero.Exists(f.fs, "/cache/rarfolder0000/a.bin")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCacheFileProgressOption(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("small.txt", 10, 0))
	var events []cache.ProgressEvent
	m := f.manager(cache.WithProgress(func(ev cache.ProgressEvent) bool {
		events = append(events, ev)
		return true
	}))
	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
			require.NotNil(t, req.Progress)
			req.Progress(cache.ProgressEvent{Stage: cache.StageExtracting, BytesDone: 5})
			return f.writes(make([]byte, 10), 0)(ctx, req)
		})

	_, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "small.txt"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "small.txt", events[0].Member)
	assert.Equal(t, int64(10), events[0].BytesTotal)
	assert.Equal(t, 50, events[0].Percent())
}

func TestExtractArchive(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		testutil.Compressed("a.txt", 10, 0),
		testutil.Compressed("b/c.txt", 20, 50),
	)
	m := f.manager()
	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
			assert.Empty(t, req.Member)
			assert.Equal(t, "/out", req.DestDir)
			assert.Equal(t, int64(30), req.Size)
			return cache.ExtractResult{Path: req.DestDir, Written: 30}, nil
		})

	res, err := m.ExtractArchive(context.Background(), archivePath, "/out")
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.Written)
}
