package rar_test

import (
	"bytes"
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/rarfs/index"
	"github.com/meigma/rarfs/internal/testutil"
	"github.com/meigma/rarfs/rar"
)

func readArchive(t *testing.T, data []byte) *rar.Archive {
	t.Helper()
	arc, err := rar.ReadArchive(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	return arc
}

func TestReadArchiveRar3(t *testing.T) {
	t.Parallel()

	mod := time.Date(2023, 5, 6, 7, 8, 10, 0, time.Local)
	data := testutil.Rar3(0, 0,
		testutil.RarFile{Name: "docs", Dir: true},
		testutil.RarFile{Name: `docs\a.txt`, Data: []byte("hello"), ModTime: mod},
		testutil.RarFile{Name: "big.bin", Data: make([]byte, 10), Size: 1000, Method: 0x33, Unix: true, Attr: 0o100644},
	)
	arc := readArchive(t, data)

	assert.Equal(t, rar.Version3, arc.Version)
	assert.False(t, arc.Volume)
	assert.False(t, arc.NextVolume)
	assert.Equal(t, int64(7+13), arc.PrefixEnd)
	require.Len(t, arc.Files, 3)

	dir := arc.Files[0]
	assert.Equal(t, arc.PrefixEnd, dir.HeaderOffset)
	assert.True(t, dir.Dir)
	assert.NotZero(t, dir.Attributes&0x10)

	file := arc.Files[1]
	assert.Equal(t, []byte(`docs\a.txt`), file.Name)
	assert.Equal(t, int64(5), file.PackedSize)
	assert.Equal(t, int64(5), file.Size)
	assert.Equal(t, index.MethodStore, file.Method)
	assert.Equal(t, index.HostWindows, file.HostOS)
	assert.True(t, mod.Equal(file.ModTime), "got %v", file.ModTime)
	assert.Equal(t, []byte("hello"), data[file.DataOffset:file.DataOffset+5])

	big := arc.Files[2]
	assert.Equal(t, index.MethodNormal, big.Method)
	assert.Equal(t, index.HostUnix, big.HostOS)
	assert.Equal(t, int64(1000), big.Size)
	assert.Equal(t, int64(10), big.PackedSize)
	assert.Equal(t, uint32(0o100644), big.Attributes)
}

func TestReadArchiveRar3Flags(t *testing.T) {
	t.Parallel()

	data := testutil.Rar3(testutil.Rar3MainVolume|testutil.Rar3MainSolid, testutil.Rar3EndNotLast,
		testutil.RarFile{Name: "a", Data: []byte("xy"), Size: 10, Flags: testutil.Rar3SplitAfter | testutil.Rar3Password},
		testutil.RarFile{Name: "unknown", Data: []byte("z"), Size: -1},
		testutil.RarFile{Name: "日本.txt", Data: []byte("z")},
	)
	arc := readArchive(t, data)

	assert.True(t, arc.Volume)
	assert.True(t, arc.Solid)
	assert.True(t, arc.NextVolume)
	require.Len(t, arc.Files, 3)
	assert.True(t, arc.Files[0].SplitAfter)
	assert.False(t, arc.Files[0].SplitBefore)
	assert.True(t, arc.Files[0].Encrypted)
	assert.Equal(t, int64(-1), arc.Files[1].Size)
	assert.Equal(t, []byte("日本.txt"), arc.Files[2].Name)
	assert.True(t, arc.Files[2].UTF8)
}

func TestReadArchiveSFX(t *testing.T) {
	t.Parallel()

	stub := make([]byte, 4096)
	copy(stub, "MZ")
	archive := testutil.Rar3(0, 0, testutil.RarFile{Name: "a.txt", Data: []byte("abc")})
	arc := readArchive(t, append(stub, archive...))

	require.Len(t, arc.Files, 1)
	assert.Equal(t, int64(4096+7+13), arc.Files[0].HeaderOffset)
	assert.Equal(t, int64(4096+7+13), arc.PrefixEnd)
}

func TestReadArchiveTruncated(t *testing.T) {
	t.Parallel()

	data := testutil.Rar3(0, 0,
		testutil.RarFile{Name: "a.txt", Data: []byte("abc")},
		testutil.RarFile{Name: "b.txt", Data: []byte("def")},
	)
	first := readArchive(t, data).Files[1].HeaderOffset

	arc := readArchive(t, data[:first+10])
	require.Len(t, arc.Files, 1)
	assert.Equal(t, []byte("a.txt"), arc.Files[0].Name)
}

func TestReadArchiveErrors(t *testing.T) {
	t.Parallel()

	rar5Encrypted := []byte("Rar!\x1a\x07\x01\x00")
	h := testutil.AppendVint(testutil.AppendVint(testutil.AppendVint(nil, 4), 0), 0)
	rar5Encrypted = binary.LittleEndian.AppendUint32(rar5Encrypted, 0)
	rar5Encrypted = testutil.AppendVint(rar5Encrypted, uint64(len(h)))
	rar5Encrypted = append(rar5Encrypted, h...)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"zip", []byte("PK\x03\x04 definitely not a rar archive"), rar.ErrNotArchive},
		{"empty", nil, rar.ErrNotArchive},
		{"rar3 encrypted headers", testutil.Rar3(testutil.Rar3MainEncrypted, 0), rar.ErrEncryptedHeaders},
		{"rar5 encrypted headers", rar5Encrypted, rar.ErrEncryptedHeaders},
		{"rar3 bad block size", append(testutil.Rar3(0, 0)[:20], 0, 0, 0x74, 0, 0x80, 3, 0), rar.ErrCorrupt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := rar.ReadArchive(bytes.NewReader(tt.data), int64(len(tt.data)))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestReadArchiveRar5(t *testing.T) {
	t.Parallel()

	mod := time.Unix(1700000000, 0)
	data := testutil.Rar5(testutil.Rar5MainVolume|testutil.Rar5MainSolid, testutil.Rar5EndNotLast,
		testutil.RarFile{Name: "sub", Dir: true, Unix: true, Attr: 0o755},
		testutil.RarFile{Name: "sub/ü.txt", Data: []byte("hi"), Size: 100, Method: 0x35, ModTime: mod, Unix: true, Attr: 0o100644},
		testutil.RarFile{Name: "stream.bin", Data: []byte("x"), Size: -1, Flags: testutil.Rar5SplitBefore | testutil.Rar5SplitAfter},
	)
	arc := readArchive(t, data)

	assert.Equal(t, rar.Version5, arc.Version)
	assert.True(t, arc.Volume)
	assert.True(t, arc.Solid)
	assert.True(t, arc.NextVolume)
	require.Len(t, arc.Files, 3)

	dir := arc.Files[0]
	assert.True(t, dir.Dir)
	assert.Equal(t, uint32(0o40755), dir.Attributes)
	assert.Equal(t, index.HostUnix, dir.HostOS)

	file := arc.Files[1]
	assert.Equal(t, "sub/ü.txt", string(file.Name))
	assert.True(t, file.UTF8)
	assert.Equal(t, index.MethodBest, file.Method)
	assert.Equal(t, int64(100), file.Size)
	assert.Equal(t, int64(2), file.PackedSize)
	assert.True(t, mod.Equal(file.ModTime))
	assert.Equal(t, []byte("hi"), data[file.DataOffset:file.DataOffset+2])

	split := arc.Files[2]
	assert.Equal(t, int64(-1), split.Size)
	assert.True(t, split.SplitBefore)
	assert.True(t, split.SplitAfter)
}
