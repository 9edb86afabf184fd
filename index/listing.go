package index

import (
	"cmp"
	"context"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/meigma/rarfs/internal/pathutil"
)

// Item is one node of a directory listing.
type Item struct {
	// Path is the member path. Directory paths end in "/".
	Path string

	// IsDir reports whether the item is a directory.
	IsDir bool

	// Size is the uncompressed size (0 for directories).
	Size int64

	// ModTime is the modification time (zero for synthesized directories).
	ModTime time.Time

	// Entry is the underlying member, or nil for synthesized directories.
	Entry *ArchiveEntry
}

// Name returns the last element of the item path.
func (it *Item) Name() string {
	return pathutil.Base(it.Path)
}

// ListFiles returns the items under prefix.
//
// Directories are synthesized for every intermediate path segment and
// merged with explicit directory members, so each directory appears once.
// When recursive is false only direct children of prefix are returned.
// The result is sorted by path and is empty if nothing lies under prefix.
func (s *Store) ListFiles(ctx context.Context, archivePath string, recursive bool, prefix string) ([]Item, error) {
	entries, err := s.entries(ctx, archivePath)
	if err != nil {
		return nil, err
	}

	dirPrefix := pathutil.DirPrefix(pathutil.Normalize(prefix))
	start := sort.Search(len(entries), func(i int) bool {
		return entries[i].Name >= dirPrefix
	})

	l := listing{seen: make(map[string]int)}
	for i := start; i < len(entries); i++ {
		e := &entries[i]
		if !strings.HasPrefix(e.Name, dirPrefix) {
			break
		}
		rel := strings.TrimPrefix(e.Name, dirPrefix)
		if rel == "" {
			continue
		}

		if !recursive {
			child, isSubDir := pathutil.Child(e.Name, dirPrefix)
			if isSubDir {
				l.add(dirItem(dirPrefix + child + "/"))
				continue
			}
			l.add(entryItem(e))
			continue
		}

		segments := strings.Split(rel, "/")
		for j := 1; j < len(segments); j++ {
			l.add(dirItem(dirPrefix + strings.Join(segments[:j], "/") + "/"))
		}
		l.add(entryItem(e))
	}

	slices.SortFunc(l.items, func(a, b Item) int {
		return cmp.Compare(a.Path, b.Path)
	})
	return l.items, nil
}

// listing accumulates items, deduplicating by path.
type listing struct {
	items []Item
	seen  map[string]int
}

func (l *listing) add(it Item) {
	if i, ok := l.seen[it.Path]; ok {
		// An explicit directory member carries more metadata than a
		// synthesized one.
		if it.Entry != nil && l.items[i].Entry == nil {
			l.items[i] = it
		}
		return
	}
	l.seen[it.Path] = len(l.items)
	l.items = append(l.items, it)
}

func dirItem(path string) Item {
	return Item{Path: path, IsDir: true}
}

func entryItem(e *ArchiveEntry) Item {
	entry := *e
	if entry.IsDir() {
		return Item{Path: entry.Name + "/", IsDir: true, ModTime: entry.ModTime, Entry: &entry}
	}
	return Item{Path: entry.Name, Size: entry.Size, ModTime: entry.ModTime, Entry: &entry}
}
