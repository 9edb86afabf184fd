package cache

import (
	"errors"
	"io/fs"
	"os"

	"github.com/spf13/afero"
)

// Usage reports the bytes and regular files held under the cache
// directory, including copies that are not tracked by the index.
func (m *Manager) Usage() (bytes int64, files int, err error) {
	err = afero.Walk(m.fs, m.dir, func(_ string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		bytes += info.Size()
		files++
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return 0, 0, nil
	}
	return bytes, files, err
}
