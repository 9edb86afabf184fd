package cache

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/avast/retry-go/v4"

	"github.com/meigma/rarfs/index"
)

type candidate struct {
	archive string
	member  string
	path    string
	size    int64

	// superseded marks a replaced copy listed in FileInfo.Superseded.
	superseded bool
}

// Evict deletes unreferenced auto-delete copies under dir, largest first,
// until the volume holding dir has at least need bytes free. It returns
// ErrInsufficientSpace if the candidates run out first. When free space
// cannot be determined, nothing is deleted.
func (m *Manager) Evict(ctx context.Context, dir string, need int64) error {
	if need <= 0 {
		return nil
	}
	m.evictMu.Lock()
	defer m.evictMu.Unlock()

	if m.hasSpace(dir, need) {
		return nil
	}

	for _, c := range m.candidates(dir) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := m.evictOne(ctx, c); err != nil {
			m.log().Warn("evicting cached file failed", "path", c.path, "error", err)
			continue
		}
		if m.progress != nil {
			m.progress(ProgressEvent{Stage: StageEvicting, Archive: c.archive, Member: c.member, BytesDone: c.size})
		}
		if m.hasSpace(dir, need) {
			return nil
		}
	}
	return fmt.Errorf("%w: need %d bytes in %s", ErrInsufficientSpace, need, dir)
}

// Sweep deletes every unreferenced auto-delete copy, keeping the listings
// and extraction records. It returns the number of bytes freed.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	m.evictMu.Lock()
	defer m.evictMu.Unlock()

	var freed int64
	var errs []error
	for _, c := range m.candidates("") {
		if err := ctx.Err(); err != nil {
			return freed, err
		}
		n, err := m.evictOne(ctx, c)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		freed += n
	}
	if freed > 0 {
		m.log().Info("swept cache", "bytes", freed)
	}
	return freed, errors.Join(errs...)
}

func (m *Manager) hasSpace(dir string, need int64) bool {
	free, err := m.probe(dir)
	if err != nil {
		if !errors.Is(err, errors.ErrUnsupported) {
			m.log().Warn("free space probe failed", "dir", dir, "error", err)
		}
		return true
	}
	return free >= uint64(need) //nolint:gosec // need is positive
}

// candidates returns evictable copies under dir (all copies if dir is
// empty), largest first.
func (m *Manager) candidates(dir string) []candidate {
	var root string
	if dir != "" {
		root = filepath.Clean(dir) + string(filepath.Separator)
	}

	var out []candidate
	add := func(fi index.FileInfo, path string, superseded bool) {
		if root != "" && !strings.HasPrefix(filepath.Clean(path), root) {
			return
		}
		info, err := m.fs.Stat(path)
		if err != nil || info.IsDir() {
			return
		}
		out = append(out, candidate{
			archive:    fi.Archive,
			member:     fi.PathInArchive,
			path:       path,
			size:       info.Size(),
			superseded: superseded,
		})
	}
	for _, fi := range m.store.FileInfos() {
		if fi.UsedCount > 0 {
			continue
		}
		for _, path := range fi.Superseded {
			add(fi, path, true)
		}
		if fi.AutoDelete && fi.CachedPath != "" {
			add(fi, fi.CachedPath, false)
		}
	}
	slices.SortFunc(out, func(a, b candidate) int {
		if c := cmp.Compare(b.size, a.size); c != 0 {
			return c
		}
		return cmp.Compare(a.path, b.path)
	})
	return out
}

// evictOne claims a candidate in the store and deletes its file. A
// candidate that was reacquired since it was selected is skipped.
func (m *Manager) evictOne(ctx context.Context, c candidate) (int64, error) {
	claimed := false
	m.store.UpdateFileInfo(c.archive, c.member, func(fi *index.FileInfo) {
		if fi.UsedCount > 0 {
			return
		}
		switch {
		case c.superseded && slices.Contains(fi.Superseded, c.path):
			fi.Superseded = slices.DeleteFunc(slices.Clone(fi.Superseded), func(p string) bool { return p == c.path })
			claimed = true
		case !c.superseded && fi.CachedPath == c.path:
			fi.CachedPath = ""
			claimed = true
		}
	})
	if !claimed {
		return 0, nil
	}

	err := retry.Do(
		func() error {
			return index.RemoveCached(m.fs, c.path)
		},
		retry.Context(ctx),
		retry.Attempts(m.removeAttempts),
		retry.Delay(m.removeDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		m.store.UpdateFileInfo(c.archive, c.member, func(fi *index.FileInfo) {
			switch {
			case c.superseded:
				fi.Superseded = append(fi.Superseded, c.path)
			case fi.CachedPath == "":
				fi.CachedPath = c.path
			default:
				// Re-extracted while the delete was failing.
				fi.Superseded = append(fi.Superseded, c.path)
			}
		})
		return 0, err
	}
	m.log().Debug("evicted cached file", "archive", c.archive, "member", c.member, "path", c.path, "bytes", c.size)
	return c.size, nil
}
