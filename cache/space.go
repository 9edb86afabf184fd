package cache

import (
	"errors"
	"os"
	"path/filepath"
)

// SpaceProbe reports the bytes available to unprivileged users on the
// volume holding path. Probes return an error wrapping
// errors.ErrUnsupported when the platform cannot tell, which the Manager
// treats as enough space.
type SpaceProbe func(path string) (uint64, error)

// DefaultSpaceProbe probes the OS volume holding path. If path does not
// exist yet, its nearest existing ancestor is probed.
func DefaultSpaceProbe(path string) (uint64, error) {
	p := filepath.Clean(path)
	for {
		if _, err := os.Stat(p); err == nil {
			break
		} else if !errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
		parent := filepath.Dir(p)
		if parent == p {
			break
		}
		p = parent
	}
	return freeSpace(p)
}
