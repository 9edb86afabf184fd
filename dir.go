package rarfs

import (
	"cmp"
	"context"
	"io"
	"io/fs"
	"slices"

	"github.com/meigma/rarfs/index"
)

// Archive returns an fs.FS view of one archive. Member files open with the
// FS default flags; directories are synthesized from member paths.
func (f *FS) Archive(archivePath string) fs.FS {
	return &archiveFS{fsys: f, archive: archivePath}
}

// archiveFS implements fs.FS, fs.StatFS and fs.ReadDirFS over one archive.
type archiveFS struct {
	fsys    *FS
	archive string
}

var (
	_ fs.StatFS    = (*archiveFS)(nil)
	_ fs.ReadDirFS = (*archiveFS)(nil)
)

// Open implements fs.FS.
func (a *archiveFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	ctx := context.Background()

	info, err := a.fsys.stat(ctx, a.archive, name)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if name == "." {
		info = newDirInfo(".")
	}
	if info.IsDir() {
		return &openDir{a: a, name: name, info: info}, nil
	}
	file, err := a.fsys.open(ctx, a.archive, name, a.fsys.defaultFlags, "")
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return file, nil
}

// Stat implements fs.StatFS.
func (a *archiveFS) Stat(name string) (fs.FileInfo, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrInvalid}
	}
	info, err := a.fsys.stat(context.Background(), a.archive, name)
	if err != nil {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: err}
	}
	if name == "." {
		return newDirInfo("."), nil
	}
	return info, nil
}

// ReadDir implements fs.ReadDirFS.
func (a *archiveFS) ReadDir(name string) ([]fs.DirEntry, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	entries, err := a.fsys.readDir(context.Background(), a.archive, name)
	if err != nil {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: err}
	}
	return entries, nil
}

// openDir implements fs.File and fs.ReadDirFile for archive directories.
type openDir struct {
	a    *archiveFS
	name string
	info fs.FileInfo
	iter *dirIter
}

func (d *openDir) Read(_ []byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: fs.ErrInvalid}
}

func (d *openDir) Stat() (fs.FileInfo, error) {
	return d.info, nil
}

func (d *openDir) Close() error {
	d.iter = nil
	return nil
}

func (d *openDir) ReadDir(n int) ([]fs.DirEntry, error) {
	if d.iter == nil {
		items, err := d.a.fsys.store.ListFiles(context.Background(), d.a.archive, false, d.name)
		if err != nil {
			return nil, &fs.PathError{Op: "readdir", Path: d.name, Err: err}
		}
		sortByName(items)
		d.iter = newDirIter(items)
	}

	if n <= 0 {
		return d.readAll(), nil
	}

	entries := make([]fs.DirEntry, 0, n)
	for len(entries) < n {
		entry, ok := d.iter.Next()
		if !ok {
			if len(entries) == 0 {
				return nil, io.EOF
			}
			return entries, nil
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (d *openDir) readAll() []fs.DirEntry {
	entries := make([]fs.DirEntry, 0)
	for {
		entry, ok := d.iter.Next()
		if !ok {
			return entries
		}
		entries = append(entries, entry)
	}
}

// dirIter yields the direct children of a directory listing.
type dirIter struct {
	items []index.Item
	next  int
}

func newDirIter(items []index.Item) *dirIter {
	return &dirIter{items: items}
}

// Next returns the next directory entry.
func (it *dirIter) Next() (fs.DirEntry, bool) {
	if it.next >= len(it.items) {
		return nil, false
	}
	item := &it.items[it.next]
	it.next++
	return dirEntry{info: itemInfo(item)}, true
}

// sortByName orders listing items by their base name, the order fs.ReadDir
// promises. Item paths sort directories after siblings sharing a prefix.
func sortByName(items []index.Item) {
	slices.SortFunc(items, func(a, b index.Item) int {
		return cmp.Compare(a.Name(), b.Name())
	})
}
