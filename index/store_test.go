package index_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/internal/testutil"
)

func TestListArchiveIdempotent(t *testing.T) {
	t.Parallel()

	lister := testutil.NewFakeLister().Add("/a.rar",
		testutil.Compressed("b.txt", 10, 100),
		testutil.Compressed("a.txt", 5, 20),
	)
	s := index.New(lister, index.WithFs(afero.NewMemMapFs()))

	first, err := s.ListArchive(context.Background(), "/a.rar")
	require.NoError(t, err)
	second, err := s.ListArchive(context.Background(), "/a.rar")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, lister.Calls("/a.rar"))
	require.Len(t, first, 2)
	assert.Equal(t, "a.txt", first[0].Name)
	assert.Equal(t, "b.txt", first[1].Name)
}

func TestListArchiveConcurrentListsOnce(t *testing.T) {
	t.Parallel()

	lister := testutil.NewFakeLister().Add("/a.rar", testutil.Compressed("x", 1, 0))
	lister.SetDelay(20 * time.Millisecond)
	s := index.New(lister, index.WithFs(afero.NewMemMapFs()))

	var wg sync.WaitGroup
	for range 8 {
		wg.Go(func() {
			_, err := s.ListArchive(context.Background(), "/a.rar")
			assert.NoError(t, err)
		})
	}
	wg.Wait()
	assert.Equal(t, 1, lister.Calls("/a.rar"))
}

func TestListArchiveUnreadable(t *testing.T) {
	t.Parallel()

	lister := testutil.NewFakeLister()
	lister.SetError(errors.New("bad header"))
	s := index.New(lister, index.WithFs(afero.NewMemMapFs()))

	_, err := s.ListArchive(context.Background(), "/broken.rar")
	require.ErrorIs(t, err, index.ErrArchiveUnreadable)
	assert.False(t, s.IsListed("/broken.rar"))

	// Nothing cached: the next call lists again.
	_, err = s.ListArchive(context.Background(), "/broken.rar")
	require.ErrorIs(t, err, index.ErrArchiveUnreadable)
	assert.Equal(t, 2, lister.Calls("/broken.rar"))
}

func TestEntryNormalizesNames(t *testing.T) {
	t.Parallel()

	lister := testutil.NewFakeLister().Add("/a.rar",
		testutil.Compressed(`movies\extras\clip.mkv`, 10, 0),
		testutil.Compressed("dup.txt", 1, 10),
		testutil.Compressed("dup.txt", 2, 20),
	)
	s := index.New(lister, index.WithFs(afero.NewMemMapFs()))

	e, err := s.Entry(context.Background(), "/a.rar", "/movies/extras/clip.mkv")
	require.NoError(t, err)
	assert.Equal(t, "movies/extras/clip.mkv", e.Name)

	dup, err := s.Entry(context.Background(), "/a.rar", "dup.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(1), dup.Size, "first duplicate wins")

	_, err = s.Entry(context.Background(), "/a.rar", "missing.txt")
	require.ErrorIs(t, err, index.ErrMemberNotFound)
}

func TestIsDirFromAttributes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		entry index.ArchiveEntry
		want  bool
	}{
		{"windows dir", index.ArchiveEntry{HostOS: index.HostWindows, Attributes: 0x10}, true},
		{"windows file", index.ArchiveEntry{HostOS: index.HostWindows, Attributes: 0x20}, false},
		{"unix dir", index.ArchiveEntry{HostOS: index.HostUnix, Attributes: 0o40755}, true},
		{"unix file", index.ArchiveEntry{HostOS: index.HostUnix, Attributes: 0o100644}, false},
		// 0x10 is a permission bit under unix conventions, not a directory flag.
		{"unix file with 0x10 bit", index.ArchiveEntry{HostOS: index.HostUnix, Attributes: 0o100620}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.entry.IsDir())
		})
	}
}

func TestFileInfoLifecycle(t *testing.T) {
	t.Parallel()

	s := index.New(testutil.NewFakeLister(), index.WithFs(afero.NewMemMapFs()))

	_, ok := s.FileInfo("/a.rar", "m.bin")
	assert.False(t, ok)

	fi := s.UpdateFileInfo("/a.rar", "m.bin", func(fi *index.FileInfo) {
		fi.UsedCount++
	})
	assert.Equal(t, int64(-1), fi.Offset)
	assert.Equal(t, 1, fi.UsedCount)

	fi, ok = s.Release("/a.rar", "m.bin")
	require.True(t, ok)
	assert.Equal(t, 0, fi.UsedCount)

	// Never below zero.
	fi, ok = s.Release("/a.rar", "m.bin")
	require.True(t, ok)
	assert.Equal(t, 0, fi.UsedCount)

	fi = s.UpdateFileInfo("/a.rar", "m.bin", func(fi *index.FileInfo) {
		fi.UsedCount -= 5
	})
	assert.Equal(t, 0, fi.UsedCount)
}

func TestClearCacheRespectsUsedCount(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cache/rarfolder0000/used.bin", []byte("u"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/cache/rarfolder0001/idle.bin", []byte("i"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/cache/rarfolder0002/keep.bin", []byte("k"), 0o644))

	lister := testutil.NewFakeLister().Add("/a.rar", testutil.Compressed("used.bin", 1, 0))
	s := index.New(lister, index.WithFs(fsys))
	_, err := s.ListArchive(context.Background(), "/a.rar")
	require.NoError(t, err)

	s.UpdateFileInfo("/a.rar", "used.bin", func(fi *index.FileInfo) {
		fi.CachedPath = "/cache/rarfolder0000/used.bin"
		fi.AutoDelete = true
		fi.UsedCount = 1
	})
	s.UpdateFileInfo("/a.rar", "idle.bin", func(fi *index.FileInfo) {
		fi.CachedPath = "/cache/rarfolder0001/idle.bin"
		fi.AutoDelete = true
	})
	s.UpdateFileInfo("/a.rar", "keep.bin", func(fi *index.FileInfo) {
		fi.CachedPath = "/cache/rarfolder0002/keep.bin"
	})

	require.NoError(t, s.ClearCache(false))

	exists := func(p string) bool {
		ok, err := afero.Exists(fsys, p)
		require.NoError(t, err)
		return ok
	}
	assert.True(t, exists("/cache/rarfolder0000/used.bin"), "referenced file must survive")
	assert.False(t, exists("/cache/rarfolder0001/idle.bin"))
	assert.False(t, exists("/cache/rarfolder0001"), "empty cache folder is removed")
	assert.True(t, exists("/cache/rarfolder0002/keep.bin"), "non auto-delete file survives")

	assert.False(t, s.IsListed("/a.rar"))
	assert.Empty(t, s.FileInfos())
	_, err = s.ListArchive(context.Background(), "/a.rar")
	require.NoError(t, err)
	assert.Equal(t, 2, lister.Calls("/a.rar"))
}

func TestClearCacheForce(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/cache/rarfolder0000/used.bin", []byte("u"), 0o644))

	s := index.New(testutil.NewFakeLister(), index.WithFs(fsys))
	s.UpdateFileInfo("/a.rar", "used.bin", func(fi *index.FileInfo) {
		fi.CachedPath = "/cache/rarfolder0000/used.bin"
		fi.AutoDelete = true
		fi.UsedCount = 3
	})

	require.NoError(t, s.ClearCache(true))
	ok, err := afero.Exists(fsys, "/cache/rarfolder0000/used.bin")
	require.NoError(t, err)
	assert.False(t, ok)
}

type memSnapshots struct {
	mu    sync.Mutex
	saved map[string][]index.ArchiveEntry
	stamp map[string]index.Stamp
}

func (m *memSnapshots) Load(archivePath string, stamp index.Stamp) ([]index.ArchiveEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.stamp[archivePath]; !ok || st.Size != stamp.Size || !st.ModTime.Equal(stamp.ModTime) {
		return nil, false
	}
	return m.saved[archivePath], true
}

func (m *memSnapshots) Save(archivePath string, stamp index.Stamp, entries []index.ArchiveEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved[archivePath] = entries
	m.stamp[archivePath] = stamp
	return nil
}

func TestSnapshotsSurviveRestart(t *testing.T) {
	t.Parallel()

	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a.rar", []byte("Rar!"), 0o644))
	snaps := &memSnapshots{saved: map[string][]index.ArchiveEntry{}, stamp: map[string]index.Stamp{}}
	lister := testutil.NewFakeLister().Add("/a.rar", testutil.Compressed("x.bin", 3, 7))

	first := index.New(lister, index.WithFs(fsys), index.WithSnapshotter(snaps))
	want, err := first.ListArchive(context.Background(), "/a.rar")
	require.NoError(t, err)

	second := index.New(lister, index.WithFs(fsys), index.WithSnapshotter(snaps))
	got, err := second.ListArchive(context.Background(), "/a.rar")
	require.NoError(t, err)

	assert.Equal(t, want, got)
	assert.Equal(t, 1, lister.Calls("/a.rar"))
}
