package cache_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/meigma/rarfs/cache"
	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/internal/testutil"
)

// seed writes a cached copy and records it in the store.
func seed(t *testing.T, f *fixture, member string, size int, autoDelete bool, used int) string {
	t.Helper()
	path := fmt.Sprintf("/cache/rarfolder%04d/%s", len(f.store.FileInfos()), member)
	require.NoError(t, afero.WriteFile(f.fs, path, make([]byte, size), 0o644))
	f.store.UpdateFileInfo(archivePath, member, func(fi *index.FileInfo) {
		fi.CachedPath = path
		fi.AutoDelete = autoDelete
		fi.UsedCount = used
	})
	return path
}

func exists(t *testing.T, fsys afero.Fs, path string) bool {
	t.Helper()
	ok, err := afero.Exists(fsys, path)
	require.NoError(t, err)
	return ok
}

func TestEvictLargestFirst(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	small := seed(t, f, "small.bin", 30, true, 0)
	large := seed(t, f, "large.bin", 60, true, 0)
	used := seed(t, f, "used.bin", 80, true, 1)
	kept := seed(t, f, "kept.bin", 90, false, 0)

	// 260 used of 300: 40 free.
	m := f.manager(cache.WithSpaceProbe(capacityProbe(f.fs, 300)))
	require.NoError(t, m.Evict(context.Background(), "/cache", 50))

	assert.False(t, exists(t, f.fs, large), "largest candidate goes first")
	assert.True(t, exists(t, f.fs, small), "eviction stops once enough is free")
	assert.True(t, exists(t, f.fs, used))
	assert.True(t, exists(t, f.fs, kept))

	fi, ok := f.store.FileInfo(archivePath, "large.bin")
	require.True(t, ok)
	assert.Empty(t, fi.CachedPath)
}

func TestEvictInsufficientSpace(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seed(t, f, "a.bin", 10, true, 0)
	used := seed(t, f, "used.bin", 80, true, 2)

	m := f.manager(cache.WithSpaceProbe(capacityProbe(f.fs, 100)))
	err := m.Evict(context.Background(), "/cache", 50)
	require.ErrorIs(t, err, cache.ErrInsufficientSpace)
	assert.True(t, exists(t, f.fs, used), "referenced copies are never evicted")
}

func TestEvictUnknownSpaceDeletesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	path := seed(t, f, "a.bin", 10, true, 0)

	m := f.manager(cache.WithSpaceProbe(func(string) (uint64, error) {
		return 0, fmt.Errorf("probe: %w", errors.ErrUnsupported)
	}))
	require.NoError(t, m.Evict(context.Background(), "/cache", 1<<40))
	assert.True(t, exists(t, f.fs, path))
}

func TestCacheFileEvictsBeforeExtracting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, testutil.Compressed("new.bin", 50, 0))
	old := seed(t, f, "old.bin", 70, true, 0)

	m := f.manager(cache.WithSpaceProbe(capacityProbe(f.fs, 100)))
	f.extractor.EXPECT().
		Extract(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req cache.ExtractRequest) (cache.ExtractResult, error) {
			assert.False(t, exists(t, f.fs, old), "space is freed before extraction starts")
			return f.writes(make([]byte, 50), 0)(ctx, req)
		})

	path, err := m.CacheFile(context.Background(), cache.Request{Archive: archivePath, Member: "new.bin"})
	require.NoError(t, err)
	assert.Equal(t, "/cache/rarfolder0000/new.bin", path)
}

func TestSweep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	a := seed(t, f, "a.bin", 10, true, 0)
	b := seed(t, f, "b.bin", 20, true, 0)
	used := seed(t, f, "used.bin", 5, true, 1)
	kept := seed(t, f, "kept.bin", 5, false, 0)

	m := f.manager()
	freed, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(30), freed)

	assert.False(t, exists(t, f.fs, a))
	assert.False(t, exists(t, f.fs, b))
	assert.False(t, exists(t, f.fs, "/cache/rarfolder0000"))
	assert.True(t, exists(t, f.fs, used))
	assert.True(t, exists(t, f.fs, kept))

	// Records survive a sweep.
	assert.Len(t, f.store.FileInfos(), 4)
}

func TestUsage(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	m := f.manager()

	bytes, files, err := m.Usage()
	require.NoError(t, err)
	assert.Zero(t, bytes, "a missing cache dir is empty")
	assert.Zero(t, files)

	seed(t, f, "a.bin", 10, true, 0)
	seed(t, f, "b.bin", 25, false, 1)
	require.NoError(t, afero.WriteFile(f.fs, "/cache/stray.tmp", make([]byte, 5), 0o644))

	bytes, files, err = m.Usage()
	require.NoError(t, err)
	assert.Equal(t, int64(40), bytes)
	assert.Equal(t, 3, files)
}

func TestSweepRemovesSupersededCopies(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	current := seed(t, f, "a.bin", 10, true, 1)
	old := "/cache/rarfolder0009/a.bin"
	require.NoError(t, afero.WriteFile(f.fs, old, make([]byte, 20), 0o644))
	f.store.UpdateFileInfo(archivePath, "a.bin", func(fi *index.FileInfo) {
		fi.Superseded = []string{old}
	})
	m := f.manager()

	freed, err := m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, freed, "nothing goes while the member is referenced")
	assert.True(t, exists(t, f.fs, old))

	m.Release(archivePath, "a.bin")
	freed, err = m.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(30), freed)
	assert.False(t, exists(t, f.fs, old))
	assert.False(t, exists(t, f.fs, current))

	fi, _ := f.store.FileInfo(archivePath, "a.bin")
	assert.Empty(t, fi.Superseded)
	assert.Empty(t, fi.CachedPath)
}
