package snapshot_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/internal/snapshot"
	"github.com/meigma/rarfs/internal/testutil"
)

const archivePath = "/media/show.part1.rar"

var stamp = index.Stamp{Size: 1 << 30, ModTime: time.Unix(1_700_000_000, 123456789)}

func sampleEntries() []index.ArchiveEntry {
	return []index.ArchiveEntry{
		{
			Name:       "docs",
			Method:     index.MethodStore,
			Attributes: 0x10,
			Offset:     -1,
		},
		{
			Name:       "docs/ep01.mkv",
			Size:       3 << 30,
			PackedSize: 3 << 30,
			Method:     index.MethodStore,
			Attributes: 0o100644,
			HostOS:     index.HostUnix,
			ModTime:    time.Unix(1_600_000_000, 0),
			Offset:     1024,
			Parts: []index.Part{
				{Volume: "/media/show.part1.rar", DataOffset: 1100, Size: 1 << 30},
				{Volume: "/media/show.part2.rar", DataOffset: 80, Size: 2 << 30},
			},
		},
		{
			Name:       "extra/notes.txt",
			Size:       -1,
			PackedSize: 40,
			Method:     index.MethodBest,
			Offset:     4096,
			Solid:      true,
			Encrypted:  true,
		},
	}
}

func newStore(t *testing.T, fsys afero.Fs) *snapshot.Store {
	t.Helper()
	s, err := snapshot.New("/snap", snapshot.WithFs(fsys))
	require.NoError(t, err)
	return s
}

func assertEntriesEqual(t *testing.T, want, got []index.ArchiveEntry) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		w, g := want[i], got[i]
		assert.True(t, w.ModTime.Equal(g.ModTime), "%s: mod time %v != %v", w.Name, w.ModTime, g.ModTime)
		w.ModTime, g.ModTime = time.Time{}, time.Time{}
		assert.Equal(t, w, g)
	}
}

func TestSaveLoad(t *testing.T) {
	t.Parallel()

	mem := afero.NewMemMapFs()
	s := newStore(t, mem)
	want := sampleEntries()
	require.NoError(t, s.Save(archivePath, stamp, want))

	got, ok := s.Load(archivePath, stamp)
	require.True(t, ok)
	assertEntriesEqual(t, want, got)

	// A fresh store on the same directory reads it too.
	got, ok = newStore(t, mem).Load(archivePath, stamp)
	require.True(t, ok)
	assertEntriesEqual(t, want, got)

	infos, err := afero.ReadDir(mem, "/snap")
	require.NoError(t, err)
	require.Len(t, infos, 1, "no temp files are left behind")
	assert.Equal(t, filepath.Base(s.Path(archivePath)), infos[0].Name())
}

func TestPathIsStableAndDistinct(t *testing.T) {
	t.Parallel()

	s := newStore(t, afero.NewMemMapFs())
	a := s.Path("/a.rar")
	assert.Equal(t, a, s.Path("/a.rar"))
	assert.NotEqual(t, a, s.Path("/b.rar"))
	assert.True(t, strings.HasSuffix(a, ".idx"))
	assert.Len(t, filepath.Base(a), 64+len(".idx"))
}

func TestLoadMisses(t *testing.T) {
	t.Parallel()

	t.Run("no snapshot", func(t *testing.T) {
		t.Parallel()
		_, ok := newStore(t, afero.NewMemMapFs()).Load(archivePath, stamp)
		assert.False(t, ok)
	})

	t.Run("size changed", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, afero.NewMemMapFs())
		require.NoError(t, s.Save(archivePath, stamp, sampleEntries()))
		_, ok := s.Load(archivePath, index.Stamp{Size: stamp.Size + 1, ModTime: stamp.ModTime})
		assert.False(t, ok)
	})

	t.Run("mtime changed", func(t *testing.T) {
		t.Parallel()
		s := newStore(t, afero.NewMemMapFs())
		require.NoError(t, s.Save(archivePath, stamp, sampleEntries()))
		_, ok := s.Load(archivePath, index.Stamp{Size: stamp.Size, ModTime: stamp.ModTime.Add(time.Second)})
		assert.False(t, ok)
	})
}

func TestCorruptSnapshotIsMiss(t *testing.T) {
	t.Parallel()

	corruptions := map[string]func([]byte) []byte{
		"flipped payload byte": func(b []byte) []byte { b[3] ^= 0xff; return b },
		"truncated":            func(b []byte) []byte { return b[:len(b)/2] },
		"empty":                func([]byte) []byte { return nil },
		"bad trailer length":   func(b []byte) []byte { b[len(b)-1] = 0xff; return b },
		"garbage digest":       func(b []byte) []byte { return append(b[:len(b)-1-71], append([]byte(strings.Repeat("x", 71)), 71)...) },
	}
	for name, corrupt := range corruptions {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			mem := afero.NewMemMapFs()
			s := newStore(t, mem)
			require.NoError(t, s.Save(archivePath, stamp, sampleEntries()))

			path := s.Path(archivePath)
			data, err := afero.ReadFile(mem, path)
			require.NoError(t, err)
			require.NoError(t, afero.WriteFile(mem, path, corrupt(data), 0o644))

			_, ok := s.Load(archivePath, stamp)
			assert.False(t, ok)
		})
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	s := newStore(t, afero.NewMemMapFs())
	require.NoError(t, s.Save(archivePath, stamp, sampleEntries()))
	require.NoError(t, s.Remove(archivePath))
	_, ok := s.Load(archivePath, stamp)
	assert.False(t, ok)
	require.NoError(t, s.Remove(archivePath), "removing twice is fine")
}

func TestStoreUsesSnapshots(t *testing.T) {
	t.Parallel()

	mem := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(mem, archivePath, []byte("rar bytes"), 0o644))
	snap := newStore(t, mem)

	first := testutil.NewFakeLister().Add(archivePath,
		testutil.Stored("a.txt", 9, index.Part{Volume: archivePath, Size: 9}))
	_, err := index.New(first, index.WithFs(mem), index.WithSnapshotter(snap)).ListArchive(context.Background(), archivePath)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Calls(archivePath))

	// A restarted process loads the listing without touching the archive.
	second := testutil.NewFakeLister()
	entries, err := index.New(second, index.WithFs(mem), index.WithSnapshotter(snap)).ListArchive(context.Background(), archivePath)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.txt", entries[0].Name)
	assert.Zero(t, second.Calls(archivePath))

	// Rewriting the archive invalidates the snapshot.
	require.NoError(t, afero.WriteFile(mem, archivePath, []byte("new rar bytes"), 0o644))
	third := testutil.NewFakeLister().Add(archivePath)
	entries, err = index.New(third, index.WithFs(mem), index.WithSnapshotter(snap)).ListArchive(context.Background(), archivePath)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, third.Calls(archivePath))
}
